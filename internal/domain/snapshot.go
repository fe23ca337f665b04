package domain

import (
	"context"
	"time"
)

// Snapshot is a read-only copy of the planner's client-local state.
type Snapshot struct {
	Mode          Kind            `json:"mode"`
	Waypoints     []Waypoint      `json:"waypoints"`
	Counts        Counts          `json:"counts"`
	Path          *PathResult     `json:"path,omitempty"`
	ExportEnabled bool            `json:"export_enabled"`
	Solving       bool            `json:"solving"`
	Clearing      bool            `json:"clearing"`
	Dragging      bool            `json:"dragging"`
	Transfer      TransferSession `json:"transfer"`
	Generation    uint64          `json:"generation"`
	SyncedAt      time.Time       `json:"synced_at,omitzero"`
	TakenAt       time.Time       `json:"taken_at"`
}

// SnapshotPublisher receives a snapshot after every state change.
type SnapshotPublisher interface {
	Publish(ctx context.Context, s Snapshot) error
}
