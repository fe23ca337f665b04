package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aleskucera/robot-mission-planner/internal/adapter/metrics"
	"github.com/aleskucera/robot-mission-planner/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	snapshotKey     = "planner:snapshot"
	snapshotChannel = "planner:snapshots"
)

// SnapshotStore keeps the latest planner snapshot under one key and
// announces every new snapshot on a pub/sub channel.
type SnapshotStore struct {
	rdb     goredis.UniversalClient
	ttl     time.Duration
	metrics *metrics.RedisMetrics
}

var _ domain.SnapshotPublisher = (*SnapshotStore)(nil)

func NewSnapshotStore(rdb goredis.UniversalClient, ttl time.Duration, m *metrics.RedisMetrics) *SnapshotStore {
	return &SnapshotStore{rdb: rdb, ttl: ttl, metrics: m}
}

// Publish stores snap as the latest snapshot and announces it in one transaction.
func (s *SnapshotStore) Publish(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, snapshotKey, data, s.ttl)
		pipe.Publish(ctx, snapshotChannel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SnapshotBytes.Set(float64(len(data)))
	}
	return nil
}

// Latest returns the stored snapshot, or nil when none is stored or it expired.
func (s *SnapshotStore) Latest(ctx context.Context) (*domain.Snapshot, error) {
	data, err := s.rdb.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Subscribe streams snapshots published after the call until ctx is done.
// The returned channel is closed when the subscription ends.
func (s *SnapshotStore) Subscribe(ctx context.Context) (<-chan domain.Snapshot, error) {
	sub := s.rdb.Subscribe(ctx, snapshotChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to snapshots: %w", err)
	}

	out := make(chan domain.Snapshot)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var snap domain.Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping is the readiness check for the store.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
