// Package interaction filters map gestures before they reach the point store.
package interaction

import (
	"log/slog"
	"time"

	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	// DragDebounce is how long clicks stay suppressed after a drag ends.
	// Map widgets emit a click at the end of a drag.
	DragDebounce = 200 * time.Millisecond

	DraggingOpacity = 0.3
	RestingOpacity  = 1.0
)

// Reason explains why a click was rejected.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonNoMode   Reason = "no_mode"
	ReasonBusy     Reason = "busy"
	ReasonDragging Reason = "dragging"
	ReasonDebounce Reason = "debounce"
)

// Guard tracks the placement mode, in-flight operations and drag state.
// Not safe for concurrent use.
type Guard struct {
	clock   clockwork.Clock
	surface domain.MapSurface

	mode        domain.Kind
	busy        map[domain.Action]bool
	dragging    bool
	dragID      uuid.UUID
	dragEndedAt time.Time
}

func NewGuard(clock clockwork.Clock, surface domain.MapSurface) *Guard {
	return &Guard{
		clock:   clock,
		surface: surface,
		busy:    make(map[domain.Action]bool),
	}
}

// SetMode selects the kind placed by the next click. KindNone disables placement.
func (g *Guard) SetMode(kind domain.Kind) error {
	if kind != domain.KindNone && !kind.Valid() {
		return domain.ErrInvalidKind
	}
	g.mode = kind
	return nil
}

func (g *Guard) Mode() domain.Kind {
	return g.mode
}

// SetBusy records whether action is in flight. Only solve and clear block clicks.
func (g *Guard) SetBusy(action domain.Action, busy bool) {
	g.busy[action] = busy
}

func (g *Guard) Dragging() bool {
	return g.dragging
}

// AllowClick reports the kind to place for a click now, or why the click is ignored.
func (g *Guard) AllowClick() (domain.Kind, Reason) {
	switch {
	case g.mode == domain.KindNone:
		return domain.KindNone, ReasonNoMode
	case g.busy[domain.ActionSolve] || g.busy[domain.ActionClear]:
		return domain.KindNone, ReasonBusy
	case g.dragging:
		return domain.KindNone, ReasonDragging
	case g.clock.Since(g.dragEndedAt) < DragDebounce:
		return domain.KindNone, ReasonDebounce
	}
	return g.mode, ReasonNone
}

// DragStart enters the dragging state and dims the path overlay.
// It returns false if a drag is already in progress.
func (g *Guard) DragStart(id uuid.UUID) bool {
	if g.dragging {
		slog.Debug("Ignoring drag start during drag", "waypoint_id", id, "dragging_id", g.dragID)
		return false
	}
	g.dragging = true
	g.dragID = id
	g.surface.SetPathOpacity(DraggingOpacity)
	return true
}

// DragEnd leaves the dragging state, restores the overlay and starts the
// click debounce window. It returns false if no drag was in progress or the
// drag in progress is of another waypoint; the state is left unchanged then.
func (g *Guard) DragEnd(id uuid.UUID) bool {
	if !g.dragging {
		slog.Debug("Ignoring drag end without drag start", "waypoint_id", id)
		return false
	}
	if id != g.dragID {
		slog.Warn("Ignoring drag end for another waypoint", "waypoint_id", id, "dragging_id", g.dragID)
		return false
	}
	g.dragging = false
	g.dragID = uuid.Nil
	g.dragEndedAt = g.clock.Now()
	g.surface.SetPathOpacity(RestingOpacity)
	return true
}
