// Package points owns the authoritative in-memory waypoint set and the path
// computed for it.
//
// A Store is not safe for concurrent use; the planner actor is its only caller.
// Every mutation returns a Change describing what happened so the caller can
// update markers and trigger a resync.
package points
