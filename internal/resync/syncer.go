// Package resync reconciles the local waypoint set with the remote point
// registry by full resubmission: clear everything, then add every waypoint in
// iteration order.
package resync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/aleskucera/robot-mission-planner/internal/platform/correlation"
	"github.com/jonboulle/clockwork"
)

// Result reports the outcome of one applied snapshot.
type Result struct {
	Generation uint64
	Points     int
	Duration   time.Duration
	Err        error
}

type job struct {
	generation uint64
	waypoints  []domain.Waypoint
}

// Syncer runs resyncs on a single worker goroutine, one at a time. A snapshot
// submitted while another is queued replaces it; only the newest matters.
type Syncer struct {
	registry domain.PointRegistry
	clock    clockwork.Clock
	timeout  time.Duration
	onResult func(Result)

	mu         sync.Mutex
	pending    *job
	generation uint64

	wake     chan struct{}
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Syncer. timeout bounds a whole resync (clear plus all adds).
// onResult is invoked on the worker goroutine after each applied snapshot.
func New(registry domain.PointRegistry, clock clockwork.Clock, timeout time.Duration, onResult func(Result)) *Syncer {
	return &Syncer{
		registry: registry,
		clock:    clock,
		timeout:  timeout,
		onResult: onResult,
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (s *Syncer) Start() {
	go s.run()
}

// Submit queues a snapshot and returns its generation. Never blocks.
func (s *Syncer) Submit(waypoints []domain.Waypoint) uint64 {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	if s.pending != nil {
		slog.Debug("Resync superseded before it ran", "generation", s.pending.generation, "by", gen)
	}
	s.pending = &job{generation: gen, waypoints: waypoints}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return gen
}

// Stop terminates the worker. Queued snapshots are dropped; a resync in
// progress runs to completion first.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

// Resync clears the remote registry and re-adds every waypoint in order. It
// stops at the first failing call.
func (s *Syncer) Resync(ctx context.Context, waypoints []domain.Waypoint) error {
	if err := s.registry.ClearPoints(ctx); err != nil {
		return fmt.Errorf("clear points: %w", err)
	}
	for i, w := range waypoints {
		if err := s.registry.AddPoint(ctx, w); err != nil {
			return fmt.Errorf("add point %d of %d (%s): %w", i+1, len(waypoints), w.Kind, err)
		}
	}
	return nil
}

func (s *Syncer) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.wake:
		}

		j := s.take()
		if j == nil {
			continue
		}
		s.apply(j)
	}
}

func (s *Syncer) take() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.pending
	s.pending = nil
	return j
}

func (s *Syncer) apply(j *job) {
	ctx, _ := correlation.Ensure(context.Background())
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.clock.Now()
	err := s.Resync(ctx, j.waypoints)
	result := Result{
		Generation: j.generation,
		Points:     len(j.waypoints),
		Duration:   s.clock.Since(start),
		Err:        err,
	}

	if err != nil {
		slog.WarnContext(ctx, "Resync failed", "generation", j.generation, "points", len(j.waypoints), "error", err)
	} else {
		slog.DebugContext(ctx, "Resync applied", "generation", j.generation, "points", len(j.waypoints))
	}

	if s.onResult != nil {
		s.onResult(result)
	}
}
