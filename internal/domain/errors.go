package domain

import (
	"errors"

	apperrors "github.com/aleskucera/robot-mission-planner/internal/platform/errors"
)

var (
	ErrInvalidPosition  = errors.New("invalid position")
	ErrInvalidKind      = errors.New("invalid waypoint kind")
	ErrWaypointNotFound = apperrors.NotFoundError("waypoint not found")
	ErrEmptyPath        = errors.New("path result must not be empty")

	ErrMissingEndpoints = apperrors.GuardError("need both start and end points")
	ErrSolveInFlight    = apperrors.GuardError("a solve request is already in progress")
	ErrNothingToExport  = apperrors.GuardError("no path to export; solve a path first")
	ErrTransferInFlight = apperrors.GuardError("a transfer is already being created")
	ErrNoTransfer       = apperrors.GuardError("no transfer to cancel")

	ErrTransferCodeTimeout = apperrors.TimeoutError("Failed to capture transfer code within 15 seconds")

	ErrPlannerStopped = errors.New("planner stopped")
)
