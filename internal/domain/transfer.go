package domain

import "time"

const (
	// TransferCodeWindow bounds how long the client waits for a transfer code.
	TransferCodeWindow = 15 * time.Second
	// TransferValidity is the server-enforced lifetime of an active transfer.
	// The client only displays it.
	TransferValidity = 60 * time.Second
)

type TransferStatus string

const (
	TransferNone      TransferStatus = "none"
	TransferPending   TransferStatus = "pending"
	TransferActive    TransferStatus = "active"
	TransferCancelled TransferStatus = "cancelled"
	TransferFailed    TransferStatus = "failed"
	// TransferCompleted is set server-side only; the client never observes it.
	TransferCompleted TransferStatus = "completed"
)

// InFlight reports whether the session still holds server-side resources
// from the client's point of view.
func (s TransferStatus) InFlight() bool {
	return s == TransferPending || s == TransferActive
}

// TransferSession is the client's bookkeeping of one code-based handoff.
type TransferSession struct {
	TransferID string         `json:"transfer_id,omitempty"`
	Code       string         `json:"code,omitempty"`
	Status     TransferStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at,omitzero"`
	ExpiresAt  time.Time      `json:"expires_at,omitzero"`
	Message    string         `json:"message,omitempty"`
	Details    string         `json:"details,omitempty"`
}

// CreatedTransfer is a successful answer from the transfer service.
type CreatedTransfer struct {
	TransferID string
	Code       string
}
