package domain

import "github.com/google/uuid"

// MapSurface is the narrow capability the core needs from the map widget.
// Handlers registered through the On* methods may be invoked from any
// goroutine.
type MapSurface interface {
	OnClick(handler func(pos Position))
	OnDragStart(handler func(id uuid.UUID))
	OnDragEnd(handler func(id uuid.UUID, pos Position))

	PlaceMarker(w Waypoint)
	RemoveMarker(id uuid.UUID)
	DrawPath(path PathResult)
	ClearPath()
	FitToPath(path PathResult)
	SetPathOpacity(opacity float64)
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Status is a user-facing message. Detail carries optional secondary
// diagnostic text.
type Status struct {
	Level  Level  `json:"level"`
	Text   string `json:"text"`
	Detail string `json:"detail,omitempty"`
}

// StatusSink is the generic "notify user" collaborator.
type StatusSink interface {
	Notify(s Status)
}

// Action names a user-triggered operation whose control can be busy.
type Action string

const (
	ActionSolve    Action = "solve"
	ActionClear    Action = "clear"
	ActionTransfer Action = "transfer"
)

// TransferView is what the presentation layer shows for a transfer session.
type TransferView struct {
	Status         TransferStatus `json:"status"`
	Code           string         `json:"code,omitempty"`
	ReceiveCommand string         `json:"receive_command,omitempty"`
	Validity       string         `json:"validity,omitempty"`
}

// Controls drives the state of buttons and panels outside the map.
type Controls interface {
	SetBusy(action Action, busy bool)
	SetExportEnabled(enabled bool)
	ShowTransfer(view TransferView)
}
