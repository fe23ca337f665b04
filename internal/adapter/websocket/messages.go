package websocket

import (
	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/google/uuid"
)

// Inbound message types sent by the browser.
const (
	inMode           = "mode"
	inClick          = "click"
	inDragStart      = "drag_start"
	inDragEnd        = "drag_end"
	inDelete         = "delete"
	inClear          = "clear"
	inRemoveKind     = "remove_kind"
	inSolve          = "solve"
	inTransfer       = "transfer"
	inCancelTransfer = "cancel_transfer"
)

// Outbound message types sent to the browser.
const (
	outMarkerPlaced  = "marker_placed"
	outMarkerRemoved = "marker_removed"
	outPathDrawn     = "path_drawn"
	outPathCleared   = "path_cleared"
	outFit           = "fit"
	outPathOpacity   = "path_opacity"
	outStatus        = "status"
	outBusy          = "busy"
	outExport        = "export"
	outTransfer      = "transfer"
)

type inbound struct {
	Type string      `json:"type"`
	Kind domain.Kind `json:"kind,omitempty"`
	ID   uuid.UUID   `json:"id,omitzero"`
	Lat  *float64    `json:"lat,omitempty"`
	Lng  *float64    `json:"lng,omitempty"`
}

// position reports the message coordinates, or false if either is missing.
func (m inbound) position() (domain.Position, bool) {
	if m.Lat == nil || m.Lng == nil {
		return domain.Position{}, false
	}
	return domain.Position{Lat: *m.Lat, Lng: *m.Lng}, true
}

type outbound struct {
	Type     string               `json:"type"`
	Waypoint *domain.Waypoint     `json:"waypoint,omitempty"`
	Label    string               `json:"label,omitempty"`
	ID       *uuid.UUID           `json:"id,omitempty"`
	Path     *domain.PathResult   `json:"path,omitempty"`
	Opacity  *float64             `json:"opacity,omitempty"`
	Status   *domain.Status       `json:"status,omitempty"`
	Action   domain.Action        `json:"action,omitempty"`
	Busy     *bool                `json:"busy,omitempty"`
	Enabled  *bool                `json:"enabled,omitempty"`
	Transfer *domain.TransferView `json:"transfer,omitempty"`
}

func ptr[T any](v T) *T {
	return &v
}
