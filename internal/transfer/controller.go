// Package transfer manages the lifecycle of a code-based file handoff:
//
//	None → Pending → Active | Failed | Cancelled
//	Active → Cancelled
//
// Every creation request is tagged with an attempt number. The creation
// response and the code-capture deadline both settle an attempt; whichever
// arrives first wins and the other is discarded. Like the solve controller,
// this type performs no I/O and keeps no timers: the caller issues requests
// and schedules the deadline, then reports back through Resolve and Expire.
package transfer

import (
	"fmt"
	"log/slog"

	"github.com/aleskucera/robot-mission-planner/internal/domain"
	apperrors "github.com/aleskucera/robot-mission-planner/internal/platform/errors"
	"github.com/jonboulle/clockwork"
)

const genericFailure = "Failed to create transfer"

// Outcome classifies how an attempt settled.
type Outcome string

const (
	OutcomeActive    Outcome = "active"
	OutcomeRejected  Outcome = "rejected"
	OutcomeTransport Outcome = "transport_error"
	OutcomeTimeout   Outcome = "timeout"
	// OutcomeLate is a response for an attempt that was already settled.
	OutcomeLate Outcome = "late"
)

// Start tells the caller what to do after Begin succeeds.
type Start struct {
	Attempt uint64
	// Supersedes is the transfer ID of the active session this attempt
	// replaces. The caller cancels it best-effort.
	Supersedes string
}

// Resolution tells the caller what to do after Resolve.
type Resolution struct {
	Outcome Outcome
	// Orphan is a transfer the server created for an attempt nobody waits
	// for anymore. The caller cancels it best-effort.
	Orphan string
}

type Controller struct {
	clock         clockwork.Clock
	controls      domain.Controls
	status        domain.StatusSink
	receivePrefix string

	session domain.TransferSession
	attempt uint64
}

func NewController(clock clockwork.Clock, controls domain.Controls, status domain.StatusSink, receivePrefix string) *Controller {
	return &Controller{
		clock:         clock,
		controls:      controls,
		status:        status,
		receivePrefix: receivePrefix,
		session:       domain.TransferSession{Status: domain.TransferNone},
	}
}

// Session returns a copy of the current session.
func (c *Controller) Session() domain.TransferSession {
	return c.session
}

// Attempt returns the number of the most recent attempt.
func (c *Controller) Attempt() uint64 {
	return c.attempt
}

// View renders the session for the presentation layer.
func (c *Controller) View() domain.TransferView {
	v := domain.TransferView{Status: c.session.Status}
	if c.session.Status == domain.TransferActive {
		v.Code = c.session.Code
		v.ReceiveCommand = c.ReceiveCommand(c.session.Code)
		v.Validity = fmt.Sprintf("valid for %d seconds", int(domain.TransferValidity.Seconds()))
	}
	return v
}

// ReceiveCommand is the command the user runs on the receiving machine.
func (c *Controller) ReceiveCommand(code string) string {
	return c.receivePrefix + " " + code
}

// Begin starts a new attempt. exportAvailable reports whether a path payload
// exists. Begin is rejected while an attempt is pending and supersedes an
// active session.
func (c *Controller) Begin(exportAvailable bool) (Start, error) {
	if !exportAvailable {
		c.status.Notify(domain.Status{Level: domain.LevelWarning, Text: domain.ErrNothingToExport.Message})
		return Start{}, domain.ErrNothingToExport
	}
	if c.session.Status == domain.TransferPending {
		return Start{}, domain.ErrTransferInFlight
	}

	var start Start
	if c.session.Status == domain.TransferActive {
		start.Supersedes = c.session.TransferID
		slog.Info("Superseding active transfer", "transfer_id", start.Supersedes)
	}

	c.attempt++
	start.Attempt = c.attempt
	c.session = domain.TransferSession{
		Status:    domain.TransferPending,
		CreatedAt: c.clock.Now(),
	}

	c.controls.SetBusy(domain.ActionTransfer, true)
	c.controls.ShowTransfer(c.View())
	c.status.Notify(domain.Status{Level: domain.LevelInfo, Text: "Creating transfer..."})
	return start, nil
}

// Resolve settles attempt with the creation response. A response for an
// attempt that already settled (deadline, cancel, or a newer Begin) is
// discarded; if it created a server session that session is returned as an
// orphan.
func (c *Controller) Resolve(attempt uint64, created *domain.CreatedTransfer, err error) Resolution {
	if attempt != c.attempt || c.session.Status != domain.TransferPending {
		res := Resolution{Outcome: OutcomeLate}
		if err == nil && created != nil {
			res.Orphan = created.TransferID
		}
		slog.Info("Discarding late transfer response",
			"attempt", attempt,
			"current_attempt", c.attempt,
			"orphan_transfer_id", res.Orphan)
		return res
	}

	if err == nil && (created == nil || created.Code == "") {
		err = apperrors.RejectionError("", "")
	}

	if err != nil {
		c.fail(apperrors.UserMessage(err, genericFailure), apperrors.DetailsOf(err))
		if apperrors.TypeOf(err) == apperrors.TypeRejection {
			return Resolution{Outcome: OutcomeRejected}
		}
		return Resolution{Outcome: OutcomeTransport}
	}

	now := c.clock.Now()
	c.session.Status = domain.TransferActive
	c.session.TransferID = created.TransferID
	c.session.Code = created.Code
	c.session.ExpiresAt = now.Add(domain.TransferValidity)

	c.controls.SetBusy(domain.ActionTransfer, false)
	c.controls.ShowTransfer(c.View())
	c.status.Notify(domain.Status{
		Level:  domain.LevelSuccess,
		Text:   "Transfer code: " + created.Code,
		Detail: c.ReceiveCommand(created.Code),
	})
	return Resolution{Outcome: OutcomeActive}
}

// Expire settles attempt as timed out if the response has not arrived yet.
// It reports whether the deadline won.
func (c *Controller) Expire(attempt uint64) bool {
	if attempt != c.attempt || c.session.Status != domain.TransferPending {
		return false
	}
	c.fail(domain.ErrTransferCodeTimeout.Message, "")
	return true
}

// Cancel moves a pending or active session to Cancelled and returns the
// transfer ID the caller should cancel on the server, which is empty when
// none is known yet. The local state does not depend on that call.
func (c *Controller) Cancel() (string, error) {
	if !c.session.Status.InFlight() {
		return "", domain.ErrNoTransfer
	}

	id := c.session.TransferID
	if c.session.Status == domain.TransferPending {
		// Invalidate the outstanding attempt so its response is discarded.
		c.attempt++
	}

	c.session = domain.TransferSession{
		Status:    domain.TransferCancelled,
		CreatedAt: c.session.CreatedAt,
	}
	c.controls.SetBusy(domain.ActionTransfer, false)
	c.controls.ShowTransfer(c.View())
	c.status.Notify(domain.Status{Level: domain.LevelInfo, Text: "Transfer cancelled"})
	return id, nil
}

// CancelFailed reports a failed best-effort server-side cancel. The local
// session is left as it is.
func (c *Controller) CancelFailed(transferID string, err error) {
	slog.Warn("Transfer cancel failed", "transfer_id", transferID, "error", err)
	c.status.Notify(domain.Status{
		Level:  domain.LevelWarning,
		Text:   "Could not cancel transfer on the server",
		Detail: apperrors.DetailsOf(err),
	})
}

func (c *Controller) fail(message, details string) {
	c.session.Status = domain.TransferFailed
	c.session.Message = message
	c.session.Details = details

	c.controls.SetBusy(domain.ActionTransfer, false)
	c.controls.ShowTransfer(c.View())
	c.status.Notify(domain.Status{Level: domain.LevelError, Text: message, Detail: details})
}
