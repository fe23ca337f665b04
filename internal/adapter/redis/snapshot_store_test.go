package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aleskucera/robot-mission-planner/internal/adapter/metrics"
	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*SnapshotStore, *miniredis.Miniredis, *metrics.RedisMetrics) {
	t.Helper()

	mr := miniredis.RunT(t)
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	rdb, err := NewClient(context.Background(), "redis://"+mr.Addr(), m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	return NewSnapshotStore(rdb, time.Hour, m), mr, m
}

func testSnapshot() domain.Snapshot {
	start := domain.Waypoint{ID: uuid.New(), Kind: domain.KindStart, Position: domain.Position{Lat: 50.08, Lng: 14.42}}
	return domain.Snapshot{
		Mode:      domain.KindGoal,
		Waypoints: []domain.Waypoint{start},
		Counts:    domain.Counts{Start: 1},
		Transfer:  domain.TransferSession{Status: domain.TransferNone},
		TakenAt:   time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestSnapshotStore_PublishThenLatest(t *testing.T) {
	store, mr, m := setupStore(t)
	ctx := context.Background()

	snap := testSnapshot()
	require.NoError(t, store.Publish(ctx, snap))

	got, err := store.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.Waypoints, got.Waypoints)
	assert.Equal(t, domain.KindGoal, got.Mode)
	assert.True(t, snap.TakenAt.Equal(got.TakenAt))

	assert.Equal(t, time.Hour, mr.TTL(snapshotKey))
	assert.Positive(t, testutil.ToFloat64(m.SnapshotBytes))
}

func TestSnapshotStore_LatestWhenEmpty(t *testing.T) {
	store, _, _ := setupStore(t)

	got, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotStore_LatestExpires(t *testing.T) {
	store, mr, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Publish(ctx, testSnapshot()))
	mr.FastForward(2 * time.Hour)

	got, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotStore_LatestCorrupt(t *testing.T) {
	store, mr, _ := setupStore(t)
	require.NoError(t, mr.Set(snapshotKey, "{not json"))

	_, err := store.Latest(context.Background())
	assert.ErrorContains(t, err, "failed to decode snapshot")
}

func TestSnapshotStore_Subscribe(t *testing.T) {
	store, _, _ := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots, err := store.Subscribe(ctx)
	require.NoError(t, err)

	snap := testSnapshot()
	snap.Generation = 7
	require.NoError(t, store.Publish(ctx, snap))

	select {
	case got := <-snapshots:
		assert.Equal(t, uint64(7), got.Generation)
		assert.Equal(t, snap.Waypoints, got.Waypoints)
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot not delivered")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-snapshots
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSnapshotStore_Ping(t *testing.T) {
	store, mr, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	mr.Close()
	assert.ErrorContains(t, store.Ping(ctx), "redis ping failed")
}

func TestSnapshotStore_PublishFailsWhenDown(t *testing.T) {
	store, mr, _ := setupStore(t)
	mr.Close()

	err := store.Publish(context.Background(), testSnapshot())
	assert.ErrorContains(t, err, "failed to publish snapshot")
}

func TestMetricsHook_CountsOperations(t *testing.T) {
	store, _, m := setupStore(t)
	ctx := context.Background()

	_, err := store.Latest(ctx) // GET miss is not an error
	require.NoError(t, err)
	require.NoError(t, store.Publish(ctx, testSnapshot()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("pipeline", "success")))
	assert.Zero(t, testutil.ToFloat64(m.OpsTotal.WithLabelValues("get", "error")))
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-url", nil)
	assert.ErrorContains(t, err, "failed to parse redis URL")
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	_, err := NewClient(context.Background(), "redis://"+addr, m)
	assert.ErrorContains(t, err, "failed to ping redis")
	assert.Positive(t, testutil.ToFloat64(m.ConnectionErrors))
}

func TestCircuitBreaker_OpensWhileRedisDown(t *testing.T) {
	store, mr, m := setupStore(t)
	ctx := context.Background()
	mr.Close()

	var err error
	for range 10 {
		err = store.Publish(ctx, testSnapshot())
		if errors.Is(err, circuitbreaker.ErrOpen) {
			break
		}
	}

	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitStateChanges.WithLabelValues("open")))
}

func TestCircuitBreaker_MissIsNotFailure(t *testing.T) {
	store, _, m := setupStore(t)
	ctx := context.Background()

	for range 10 {
		_, err := store.Latest(ctx)
		require.NoError(t, err)
	}
	assert.Zero(t, testutil.ToFloat64(m.CircuitBreakerState))
}
