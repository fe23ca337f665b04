package domain

import "context"

// PointRegistry is the server-side mirror of the waypoint set.
type PointRegistry interface {
	AddPoint(ctx context.Context, w Waypoint) error
	ClearPoints(ctx context.Context) error
}

// PathSolver asks the remote service to solve over its registered points.
// A success: false answer or an empty path is returned as a rejection error.
type PathSolver interface {
	SolvePath(ctx context.Context) (*PathResult, error)
}

// TransferService creates and cancels ephemeral code-identified transfers.
type TransferService interface {
	CreateTransfer(ctx context.Context, payload []byte) (*CreatedTransfer, error)
	CancelTransfer(ctx context.Context, transferID string) error
}

// Exporter serializes a path into the track exchange format.
type Exporter interface {
	Export(path PathResult) ([]byte, error)
	ContentType() string
}
