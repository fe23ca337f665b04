package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aleskucera/robot-mission-planner/internal/adapter/metrics"
	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/aleskucera/robot-mission-planner/internal/interaction"
	"github.com/aleskucera/robot-mission-planner/internal/platform/correlation"
	apperrors "github.com/aleskucera/robot-mission-planner/internal/platform/errors"
	"github.com/aleskucera/robot-mission-planner/internal/points"
	"github.com/aleskucera/robot-mission-planner/internal/resync"
	"github.com/aleskucera/robot-mission-planner/internal/solve"
	"github.com/aleskucera/robot-mission-planner/internal/transfer"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	commandBuffer  = 256
	stopTimeout    = 10 * time.Second
	publishTimeout = 2 * time.Second
	// A creation response later than this cannot refer to a live server
	// session, so there is nothing left to wait for.
	transferRequestTimeout = domain.TransferValidity
)

// Deps are the collaborators of a Planner. Publisher is optional.
type Deps struct {
	Registry  domain.PointRegistry
	Solver    domain.PathSolver
	Transfers domain.TransferService
	Exporter  domain.Exporter
	Publisher domain.SnapshotPublisher

	Surface  domain.MapSurface
	Controls domain.Controls
	Status   domain.StatusSink

	Clock   clockwork.Clock
	Metrics *metrics.PlannerMetrics
}

// Options tune timeouts and presentation.
type Options struct {
	ReceiveCommand string
	RequestTimeout time.Duration
	SolveTimeout   time.Duration
}

// Planner owns the waypoint store and every controller. A single goroutine
// consumes commands from user gestures and from completed network calls, so
// no planner state is ever shared.
type Planner struct {
	cmdCh    chan plannerCmd
	done     chan struct{}
	stopOnce sync.Once

	clock     clockwork.Clock
	metrics   *metrics.PlannerMetrics
	solver    domain.PathSolver
	transfers domain.TransferService
	exporter  domain.Exporter
	publisher domain.SnapshotPublisher
	syncer    *resync.Syncer
	opts      Options

	surface  domain.MapSurface
	controls domain.Controls
	status   domain.StatusSink

	// Owned by the run goroutine.
	store         *points.Store
	guard         *interaction.Guard
	solve         *solve.Controller
	transfer      *transfer.Controller
	transferTimer clockwork.Timer
	solveQueued   bool
	solveStarted  time.Time
	clearing      bool
	clearGen      uint64
	submittedGen  uint64
	settledGen    uint64
	syncedAt      time.Time
}

// NewPlanner creates a planner, registers its map handlers and starts its
// loop and resync worker.
func NewPlanner(deps Deps, opts Options) *Planner {
	store := points.NewStore()
	p := &Planner{
		cmdCh:     make(chan plannerCmd, commandBuffer),
		done:      make(chan struct{}),
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		solver:    deps.Solver,
		transfers: deps.Transfers,
		exporter:  deps.Exporter,
		publisher: deps.Publisher,
		opts:      opts,
		surface:   deps.Surface,
		controls:  deps.Controls,
		status:    deps.Status,
		store:     store,
		guard:     interaction.NewGuard(deps.Clock, deps.Surface),
		solve:     solve.NewController(store, deps.Surface, deps.Controls, deps.Status),
		transfer:  transfer.NewController(deps.Clock, deps.Controls, deps.Status, opts.ReceiveCommand),
	}

	p.syncer = resync.New(deps.Registry, deps.Clock, opts.RequestTimeout, func(r resync.Result) {
		_ = p.post(resyncDoneCmd{result: r})
	})

	deps.Surface.OnClick(func(pos domain.Position) { _ = p.post(clickCmd{pos: pos}) })
	deps.Surface.OnDragStart(func(id uuid.UUID) { _ = p.post(dragStartCmd{id: id}) })
	deps.Surface.OnDragEnd(func(id uuid.UUID, pos domain.Position) { _ = p.post(dragEndCmd{id: id, pos: pos}) })

	p.syncer.Start()
	go p.run()
	return p
}

// SelectMode sets the kind placed by subsequent clicks. KindNone disables placement.
func (p *Planner) SelectMode(kind domain.Kind) error {
	if kind != domain.KindNone && !kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidKind, kind)
	}
	return p.post(modeCmd{kind: kind})
}

// Delete removes one waypoint.
func (p *Planner) Delete(id uuid.UUID) error {
	return p.post(deleteCmd{id: id})
}

// RemoveAllOfKind removes every waypoint of kind.
func (p *Planner) RemoveAllOfKind(kind domain.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidKind, kind)
	}
	return p.post(removeKindCmd{kind: kind})
}

// ClearAll removes every waypoint and the path.
func (p *Planner) ClearAll() error {
	return p.post(clearCmd{})
}

// Solve requests a path over the current waypoints.
func (p *Planner) Solve() error {
	return p.post(solveCmd{})
}

// CreateTransfer hands the current path off to the transfer service.
func (p *Planner) CreateTransfer() error {
	return p.post(transferCmd{})
}

// CancelTransfer cancels the pending or active transfer.
func (p *Planner) CancelTransfer() error {
	return p.post(cancelTransferCmd{})
}

// State returns a snapshot of the planner's client-local state.
func (p *Planner) State(ctx context.Context) (domain.Snapshot, error) {
	reply := make(chan domain.Snapshot, 1)
	if err := p.post(stateCmd{reply: reply}); err != nil {
		return domain.Snapshot{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-p.done:
		return domain.Snapshot{}, domain.ErrPlannerStopped
	case <-ctx.Done():
		return domain.Snapshot{}, ctx.Err()
	}
}

// Export encodes the cached path with the configured exporter.
func (p *Planner) Export(ctx context.Context) ([]byte, error) {
	reply := make(chan *domain.PathResult, 1)
	if err := p.post(pathCmd{reply: reply}); err != nil {
		return nil, err
	}

	var path *domain.PathResult
	select {
	case path = <-reply:
	case <-p.done:
		return nil, domain.ErrPlannerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if path == nil {
		return nil, domain.ErrNothingToExport
	}

	data, err := p.exporter.Export(*path)
	if err != nil {
		return nil, apperrors.InternalError("failed to encode path", err)
	}
	return data, nil
}

// ContentType is the media type of Export's output.
func (p *Planner) ContentType() string {
	return p.exporter.ContentType()
}

// Stop shuts down the loop and the resync worker. Outstanding network calls
// finish in the background and their results are dropped.
func (p *Planner) Stop() {
	p.stopOnce.Do(func() {
		select {
		case p.cmdCh <- stopCmd{}:
		case <-p.done:
		}

		timeout := p.clock.NewTimer(stopTimeout)
		defer timeout.Stop()

		select {
		case <-p.done:
			slog.Info("Planner stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Planner stop timeout exceeded", "timeout", stopTimeout)
		}

		p.syncer.Stop()
	})
}

func (p *Planner) post(cmd plannerCmd) error {
	select {
	case <-p.done:
		return domain.ErrPlannerStopped
	default:
	}

	select {
	case p.cmdCh <- cmd:
		return nil
	case <-p.done:
		return domain.ErrPlannerStopped
	}
}

func (p *Planner) run() {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Planner panic recovered", "panic", r)
		}
	}()

	depthTicker := p.clock.NewTicker(time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(p.cmdCh)
			p.metrics.CommandChannelDepth.Set(float64(depth))
			if depth > commandBuffer*4/5 {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(p.cmdCh))
			}

		case cmd := <-p.cmdCh:
			p.metrics.CommandsTotal.WithLabelValues(cmd.name()).Inc()
			if _, ok := cmd.(stopCmd); ok {
				p.handleStop()
				return
			}
			p.dispatch(cmd)
			if !readOnly(cmd) {
				p.publish()
			}
		}
	}
}

func (p *Planner) dispatch(cmd plannerCmd) {
	switch c := cmd.(type) {
	case modeCmd:
		_ = p.guard.SetMode(c.kind)
	case clickCmd:
		p.handleClick(c.pos)
	case dragStartCmd:
		p.handleDragStart(c.id)
	case dragEndCmd:
		p.handleDragEnd(c.id, c.pos)
	case deleteCmd:
		p.handleDelete(c.id)
	case removeKindCmd:
		p.applyChange(p.store.RemoveAllOfKind(c.kind))
	case clearCmd:
		p.handleClear()
	case resyncDoneCmd:
		p.handleResyncDone(c.result)
	case solveCmd:
		p.handleSolve()
	case solveDoneCmd:
		p.handleSolveDone(c.path, c.err)
	case transferCmd:
		p.handleTransfer()
	case transferDoneCmd:
		p.handleTransferDone(c)
	case transferDeadlineCmd:
		p.handleTransferDeadline(c.attempt)
	case cancelTransferCmd:
		p.handleCancelTransfer()
	case cancelFailedCmd:
		p.transfer.CancelFailed(c.transferID, c.err)
	case stateCmd:
		c.reply <- p.snapshot()
	case pathCmd:
		if path, ok := p.store.Path(); ok {
			c.reply <- &path
		} else {
			c.reply <- nil
		}
	default:
		slog.Warn("Planner received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
	}
}

func (p *Planner) handleClick(pos domain.Position) {
	kind, reason := p.guard.AllowClick()
	if reason != interaction.ReasonNone {
		p.metrics.ClicksRejected.WithLabelValues(string(reason)).Inc()
		slog.Debug("Click ignored", "reason", reason)
		return
	}

	w, change, err := p.store.Place(kind, pos)
	if err != nil {
		slog.Warn("Rejected waypoint", "kind", kind, "error", err)
		p.status.Notify(domain.Status{Level: domain.LevelWarning, Text: "Invalid position"})
		return
	}
	slog.Info("Waypoint placed", "waypoint_id", w.ID, "kind", w.Kind, "label", points.Label(w))
	p.applyChange(change)
}

func (p *Planner) handleDragStart(id uuid.UUID) {
	if _, ok := p.store.Get(id); !ok {
		slog.Debug("Drag start for unknown waypoint", "waypoint_id", id)
		return
	}
	p.guard.DragStart(id)
}

func (p *Planner) handleDragEnd(id uuid.UUID, pos domain.Position) {
	if !p.guard.DragEnd(id) {
		return
	}

	change, err := p.store.Move(id, pos)
	if err != nil {
		slog.Warn("Rejected waypoint move", "waypoint_id", id, "error", err)
		if w, ok := p.store.Get(id); ok {
			// Snap the marker back to where the store still has it.
			p.surface.PlaceMarker(w)
		}
		return
	}
	p.applyChange(change)
}

func (p *Planner) handleDelete(id uuid.UUID) {
	change, err := p.store.Remove(id)
	if err != nil {
		slog.Debug("Delete of unknown waypoint", "waypoint_id", id)
		return
	}
	p.applyChange(change)
}

func (p *Planner) handleClear() {
	if p.clearing {
		slog.Debug("Clear already in progress")
		return
	}

	change := p.store.ClearAll()
	p.clearing = true
	p.guard.SetBusy(domain.ActionClear, true)
	p.controls.SetBusy(domain.ActionClear, true)
	p.applyChange(change)
	// Empty store still needs the remote clear.
	if change.Empty() {
		p.submit()
	}
	p.clearGen = p.submittedGen
}

// applyChange mirrors a store mutation onto the map and schedules a resync.
func (p *Planner) applyChange(change points.Change) {
	if change.Empty() {
		return
	}

	for _, w := range change.Removed {
		p.surface.RemoveMarker(w.ID)
	}
	for _, w := range change.Added {
		p.surface.PlaceMarker(w)
	}
	for _, w := range change.Moved {
		p.surface.PlaceMarker(w)
	}
	if change.PathInvalidated {
		p.surface.ClearPath()
		p.controls.SetExportEnabled(false)
		slog.Debug("Path invalidated")
	}

	counts := p.store.Counts()
	p.metrics.Waypoints.WithLabelValues(string(domain.KindStart)).Set(float64(counts.Start))
	p.metrics.Waypoints.WithLabelValues(string(domain.KindGoal)).Set(float64(counts.Goal))
	p.metrics.Waypoints.WithLabelValues(string(domain.KindIntermediate)).Set(float64(counts.Intermediate))

	p.submit()
}

func (p *Planner) submit() {
	p.submittedGen = p.syncer.Submit(p.store.Waypoints())
}

func (p *Planner) handleResyncDone(r resync.Result) {
	if r.Generation > p.settledGen {
		p.settledGen = r.Generation
	}

	p.metrics.ResyncDuration.Observe(r.Duration.Seconds())
	if r.Err != nil {
		p.metrics.ResyncsTotal.WithLabelValues("error").Inc()
		// An older failure is repaired by the newer resync already queued.
		if r.Generation == p.submittedGen {
			p.status.Notify(domain.Status{
				Level:  domain.LevelError,
				Text:   "Failed to sync points with server",
				Detail: apperrors.DetailsOf(r.Err),
			})
		}
	} else {
		p.metrics.ResyncsTotal.WithLabelValues("success").Inc()
		p.syncedAt = p.clock.Now()
	}

	if p.clearing && r.Generation >= p.clearGen {
		p.clearing = false
		p.guard.SetBusy(domain.ActionClear, false)
		p.controls.SetBusy(domain.ActionClear, false)
		if r.Err == nil {
			p.status.Notify(domain.Status{Level: domain.LevelInfo, Text: "All points cleared"})
		}
	}

	if p.solveQueued && p.synced() {
		p.solveQueued = false
		p.startSolve()
	}
}

// synced reports whether the latest submitted resync has settled.
func (p *Planner) synced() bool {
	return p.settledGen >= p.submittedGen
}

func (p *Planner) handleSolve() {
	if err := p.solve.Begin(); err != nil {
		slog.Debug("Solve not started", "error", err)
		return
	}
	p.guard.SetBusy(domain.ActionSolve, true)
	p.solveStarted = p.clock.Now()

	// The server solves over its registered points, so wait for the
	// registry to catch up first.
	if !p.synced() {
		p.solveQueued = true
		return
	}
	p.startSolve()
}

func (p *Planner) startSolve() {
	ctx, _ := correlation.Ensure(context.Background())
	slog.InfoContext(ctx, "Requesting path", "waypoints", p.store.Counts().Total())

	go func() {
		ctx, cancel := context.WithTimeout(ctx, p.opts.SolveTimeout)
		defer cancel()
		path, err := p.solver.SolvePath(ctx)
		_ = p.post(solveDoneCmd{path: path, err: err})
	}()
}

func (p *Planner) handleSolveDone(path *domain.PathResult, err error) {
	outcome := p.solve.Complete(path, err)
	p.guard.SetBusy(domain.ActionSolve, false)

	p.metrics.SolvesTotal.WithLabelValues(string(outcome)).Inc()
	p.metrics.SolveDuration.Observe(p.clock.Since(p.solveStarted).Seconds())

	if err != nil {
		slog.Warn("Solve failed", "outcome", outcome, "error", err)
	} else {
		slog.Info("Solve completed", "outcome", outcome)
	}
}

func (p *Planner) handleTransfer() {
	start, err := p.transfer.Begin(p.store.ExportEnabled())
	if err != nil {
		slog.Debug("Transfer not started", "error", err)
		return
	}
	if start.Supersedes != "" {
		p.cancelRemote(start.Supersedes, false)
	}

	path, _ := p.store.Path()
	payload, err := p.exporter.Export(path)
	if err != nil {
		slog.Error("Failed to encode transfer payload", "error", err)
		res := p.transfer.Resolve(start.Attempt, nil, apperrors.InternalError("failed to encode path", err))
		p.metrics.TransfersTotal.WithLabelValues(string(res.Outcome)).Inc()
		return
	}

	attempt := start.Attempt
	p.stopTransferTimer()
	p.transferTimer = p.clock.AfterFunc(domain.TransferCodeWindow, func() {
		_ = p.post(transferDeadlineCmd{attempt: attempt})
	})

	ctx, _ := correlation.Ensure(context.Background())
	slog.InfoContext(ctx, "Creating transfer", "attempt", attempt, "payload_bytes", len(payload))

	go func() {
		ctx, cancel := context.WithTimeout(ctx, transferRequestTimeout)
		defer cancel()
		created, err := p.transfers.CreateTransfer(ctx, payload)
		_ = p.post(transferDoneCmd{attempt: attempt, created: created, err: err})
	}()
}

func (p *Planner) handleTransferDone(c transferDoneCmd) {
	res := p.transfer.Resolve(c.attempt, c.created, c.err)
	p.metrics.TransfersTotal.WithLabelValues(string(res.Outcome)).Inc()

	if res.Outcome != transfer.OutcomeLate {
		p.stopTransferTimer()
	}
	if res.Orphan != "" {
		p.cancelRemote(res.Orphan, false)
	}
	if c.err != nil {
		slog.Warn("Transfer creation failed", "attempt", c.attempt, "outcome", res.Outcome, "error", c.err)
	}
}

func (p *Planner) handleTransferDeadline(attempt uint64) {
	if p.transfer.Expire(attempt) {
		p.metrics.TransfersTotal.WithLabelValues(string(transfer.OutcomeTimeout)).Inc()
		slog.Warn("Transfer code not received in time", "attempt", attempt, "window", domain.TransferCodeWindow)
	}
}

func (p *Planner) handleCancelTransfer() {
	id, err := p.transfer.Cancel()
	if err != nil {
		slog.Debug("Nothing to cancel", "error", err)
		return
	}
	p.stopTransferTimer()
	if id != "" {
		p.cancelRemote(id, true)
	}
}

// cancelRemote cancels a server-side transfer in the background. Failures
// are reported to the user only when report is set.
func (p *Planner) cancelRemote(transferID string, report bool) {
	ctx, _ := correlation.Ensure(context.Background())
	go func() {
		ctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
		defer cancel()

		err := p.transfers.CancelTransfer(ctx, transferID)
		if err == nil {
			slog.InfoContext(ctx, "Transfer cancelled on server", "transfer_id", transferID)
			return
		}
		if report {
			_ = p.post(cancelFailedCmd{transferID: transferID, err: err})
			return
		}
		slog.WarnContext(ctx, "Best-effort transfer cancel failed", "transfer_id", transferID, "error", err)
	}()
}

func (p *Planner) stopTransferTimer() {
	if p.transferTimer != nil {
		p.transferTimer.Stop()
		p.transferTimer = nil
	}
}

func (p *Planner) snapshot() domain.Snapshot {
	s := domain.Snapshot{
		Mode:          p.guard.Mode(),
		Waypoints:     p.store.Waypoints(),
		Counts:        p.store.Counts(),
		ExportEnabled: p.store.ExportEnabled(),
		Solving:       p.solve.InFlight(),
		Clearing:      p.clearing,
		Dragging:      p.guard.Dragging(),
		Transfer:      p.transfer.Session(),
		Generation:    p.settledGen,
		SyncedAt:      p.syncedAt,
		TakenAt:       p.clock.Now(),
	}
	if path, ok := p.store.Path(); ok {
		s.Path = &path
	}
	return s
}

func (p *Planner) publish() {
	if p.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.publisher.Publish(ctx, p.snapshot()); err != nil {
		p.metrics.PublishErrors.Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("Snapshot publish timed out", "timeout", publishTimeout)
			return
		}
		slog.Warn("Snapshot publish failed", "error", err)
	}
}

func (p *Planner) handleStop() {
	p.stopTransferTimer()
	slog.Info("Planner shutting down",
		"waypoints", p.store.Counts().Total(),
		"solving", p.solve.InFlight(),
		"transfer_status", p.transfer.Session().Status)
}
