package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionLimits_Global(t *testing.T) {
	l := NewConnectionLimits(clockwork.NewFakeClock(), 2, 10, 100, 100)

	ok, _ := l.acquire("10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.acquire("10.0.0.2")
	assert.True(t, ok)

	ok, reason := l.acquire("10.0.0.3")
	assert.False(t, ok)
	assert.Equal(t, limitReasonGlobal, reason)
	assert.Equal(t, http.StatusServiceUnavailable, reason.status())

	l.release("10.0.0.1")
	ok, _ = l.acquire("10.0.0.3")
	assert.True(t, ok)
}

func TestConnectionLimits_PerIP(t *testing.T) {
	l := NewConnectionLimits(clockwork.NewFakeClock(), 10, 2, 100, 100)

	for range 2 {
		ok, _ := l.acquire("10.0.0.1")
		require.True(t, ok)
	}

	ok, reason := l.acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, limitReasonPerIP, reason)
	assert.Equal(t, http.StatusTooManyRequests, reason.status())

	ok, _ = l.acquire("10.0.0.2")
	assert.True(t, ok, "other IPs are unaffected")

	l.release("10.0.0.1")
	ok, _ = l.acquire("10.0.0.1")
	assert.True(t, ok)
}

func TestConnectionLimits_RateRefillsWithClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewConnectionLimits(clock, 10, 10, 1, 1)

	ok, _ := l.acquire("10.0.0.1")
	require.True(t, ok)
	l.release("10.0.0.1")

	ok, reason := l.acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, limitReasonRate, reason)

	clock.Advance(time.Second)
	ok, _ = l.acquire("10.0.0.1")
	assert.True(t, ok)
}

func TestConnectionLimits_ReleaseUnknownIP(t *testing.T) {
	l := NewConnectionLimits(clockwork.NewFakeClock(), 1, 1, 100, 100)

	l.release("10.0.0.9")

	ok, _ := l.acquire("10.0.0.1")
	assert.True(t, ok, "stray release must not go negative")
	ok, _ = l.acquire("10.0.0.2")
	assert.False(t, ok)
}

func TestConnectionLimits_CleanupDropsIdleLimiters(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewConnectionLimits(clock, 10, 10, 100, 100)

	_, _ = l.acquire("10.0.0.1")
	l.release("10.0.0.1")

	clock.Advance(limiterIdleExpiry + limiterCleanupInterval)
	_, _ = l.acquire("10.0.0.2")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.limiters, "10.0.0.1")
	assert.Contains(t, l.limiters, "10.0.0.2")
}

func TestConnectionLimits_Concurrent(t *testing.T) {
	l := NewConnectionLimits(clockwork.NewFakeClock(), 50, 1000, 1000, 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.acquire("10.0.0.1"); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, granted)
}

func TestBridge_RejectsOverLimit(t *testing.T) {
	m := newTestMetrics()
	limits := NewConnectionLimits(clockwork.NewRealClock(), 10, 1, 100, 100)
	b := NewBridge(clockwork.NewRealClock(), m, NewCheckOrigin(nil, false), limits)
	srv := httptest.NewServer(b)
	t.Cleanup(func() {
		b.Stop()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsRejected.WithLabelValues(string(limitReasonPerIP))))

	// Closing the first connection frees the slot.
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
}
