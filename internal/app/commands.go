package app

import (
	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/aleskucera/robot-mission-planner/internal/resync"
	"github.com/google/uuid"
)

// plannerCmd is the command interface for the Planner actor.
type plannerCmd interface{ name() string }

type modeCmd struct{ kind domain.Kind }

type clickCmd struct{ pos domain.Position }

type dragStartCmd struct{ id uuid.UUID }

type dragEndCmd struct {
	id  uuid.UUID
	pos domain.Position
}

type deleteCmd struct{ id uuid.UUID }

type removeKindCmd struct{ kind domain.Kind }

type clearCmd struct{}

type solveCmd struct{}

type solveDoneCmd struct {
	path *domain.PathResult
	err  error
}

type resyncDoneCmd struct{ result resync.Result }

type transferCmd struct{}

type transferDoneCmd struct {
	attempt uint64
	created *domain.CreatedTransfer
	err     error
}

type transferDeadlineCmd struct{ attempt uint64 }

type cancelTransferCmd struct{}

type cancelFailedCmd struct {
	transferID string
	err        error
}

type stateCmd struct{ reply chan domain.Snapshot }

type pathCmd struct{ reply chan *domain.PathResult }

type stopCmd struct{}

func (modeCmd) name() string             { return "mode" }
func (clickCmd) name() string            { return "click" }
func (dragStartCmd) name() string        { return "drag_start" }
func (dragEndCmd) name() string          { return "drag_end" }
func (deleteCmd) name() string           { return "delete" }
func (removeKindCmd) name() string       { return "remove_kind" }
func (clearCmd) name() string            { return "clear" }
func (solveCmd) name() string            { return "solve" }
func (solveDoneCmd) name() string        { return "solve_done" }
func (resyncDoneCmd) name() string       { return "resync_done" }
func (transferCmd) name() string         { return "transfer" }
func (transferDoneCmd) name() string     { return "transfer_done" }
func (transferDeadlineCmd) name() string { return "transfer_deadline" }
func (cancelTransferCmd) name() string   { return "cancel_transfer" }
func (cancelFailedCmd) name() string     { return "cancel_failed" }
func (stateCmd) name() string            { return "state" }
func (pathCmd) name() string             { return "path" }
func (stopCmd) name() string             { return "stop" }

// readOnly reports whether cmd leaves planner state untouched.
func readOnly(cmd plannerCmd) bool {
	switch cmd.(type) {
	case stateCmd, pathCmd, stopCmd:
		return true
	}
	return false
}
