// Package solve drives the path-solve request lifecycle:
// Idle → Requesting → Idle (with a result or an error).
//
// The controller never performs I/O. The planner calls Begin, issues the
// request when Begin succeeds, and feeds the outcome back through Complete.
package solve

import (
	"log/slog"

	"github.com/aleskucera/robot-mission-planner/internal/domain"
	apperrors "github.com/aleskucera/robot-mission-planner/internal/platform/errors"
	"github.com/aleskucera/robot-mission-planner/internal/points"
)

const genericFailure = "Failed to solve path"

type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
)

// Outcome classifies a completed solve for logging and metrics.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRejected  Outcome = "rejected"
	OutcomeTransport Outcome = "transport_error"
	OutcomeStale     Outcome = "stale"
)

type Controller struct {
	store    *points.Store
	surface  domain.MapSurface
	controls domain.Controls
	status   domain.StatusSink

	state State
	// endpointVersion is the store's endpoint version when the request began.
	endpointVersion uint64
}

func NewController(store *points.Store, surface domain.MapSurface, controls domain.Controls, status domain.StatusSink) *Controller {
	return &Controller{
		store:    store,
		surface:  surface,
		controls: controls,
		status:   status,
		state:    StateIdle,
	}
}

func (c *Controller) State() State {
	return c.state
}

// InFlight reports whether a request is outstanding.
func (c *Controller) InFlight() bool {
	return c.state == StateRequesting
}

// Begin checks the guard and enters Requesting. A second call while a request
// is in flight is a silent no-op returning ErrSolveInFlight. Missing endpoints
// are reported to the user and never reach the network.
func (c *Controller) Begin() error {
	if c.state == StateRequesting {
		return domain.ErrSolveInFlight
	}

	if !c.store.Counts().HasEndpoints() {
		c.status.Notify(domain.Status{Level: domain.LevelWarning, Text: domain.ErrMissingEndpoints.Message})
		return domain.ErrMissingEndpoints
	}

	c.state = StateRequesting
	c.endpointVersion = c.store.EndpointVersion()
	c.controls.SetBusy(domain.ActionSolve, true)
	c.status.Notify(domain.Status{Level: domain.LevelInfo, Text: "Solving path..."})
	return nil
}

// Complete applies the outcome of the request started by Begin and always
// returns the controller to Idle.
func (c *Controller) Complete(path *domain.PathResult, err error) Outcome {
	if c.state != StateRequesting {
		slog.Warn("Solve completion without a request in flight")
		return OutcomeStale
	}
	defer func() {
		c.state = StateIdle
		c.controls.SetBusy(domain.ActionSolve, false)
	}()

	if err == nil && (path == nil || len(path.Points) == 0) {
		err = apperrors.RejectionError("", "")
	}

	if err != nil {
		c.dropPath()
		c.status.Notify(domain.Status{
			Level:  domain.LevelError,
			Text:   apperrors.UserMessage(err, genericFailure),
			Detail: apperrors.DetailsOf(err),
		})
		if apperrors.TypeOf(err) == apperrors.TypeRejection {
			return OutcomeRejected
		}
		return OutcomeTransport
	}

	// Endpoints changed while the request was in flight; the answer describes
	// points that no longer exist.
	if c.store.EndpointVersion() != c.endpointVersion {
		c.dropPath()
		c.status.Notify(domain.Status{Level: domain.LevelWarning, Text: "Points changed while solving; solve again"})
		return OutcomeStale
	}

	if err := c.store.SetPath(*path); err != nil {
		c.dropPath()
		c.status.Notify(domain.Status{Level: domain.LevelError, Text: genericFailure})
		return OutcomeRejected
	}

	c.surface.DrawPath(*path)
	c.surface.FitToPath(*path)
	c.controls.SetExportEnabled(true)

	text := "Path found!"
	if path.Summary != "" {
		text += " " + path.Summary
	}
	c.status.Notify(domain.Status{Level: domain.LevelSuccess, Text: text})
	return OutcomeSuccess
}

func (c *Controller) dropPath() {
	if c.store.ClearPath() {
		c.surface.ClearPath()
	}
	c.controls.SetExportEnabled(false)
}
