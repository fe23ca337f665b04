// Package app hosts the planner: a single goroutine that owns the point store,
// the resync and solve controllers and the transfer session, and applies
// commands, gestures and remote completions to them in order.
//
// Network calls run on their own goroutines and report back as commands, so
// controllers never need locks. Adapters sit on both sides: the browser bridge
// feeds gestures in and renders surface updates, the remote client serves the
// registry, solver and transfer endpoints.
package app
