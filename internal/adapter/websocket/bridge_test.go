package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aleskucera/robot-mission-planner/internal/adapter/metrics"
	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommands struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeCommands) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeCommands) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCommands) SelectMode(kind domain.Kind) error { return f.record("mode:" + string(kind)) }
func (f *fakeCommands) Delete(id uuid.UUID) error         { return f.record("delete:" + id.String()) }
func (f *fakeCommands) RemoveAllOfKind(kind domain.Kind) error {
	return f.record("remove:" + string(kind))
}
func (f *fakeCommands) ClearAll() error       { return f.record("clear") }
func (f *fakeCommands) Solve() error          { return f.record("solve") }
func (f *fakeCommands) CreateTransfer() error { return f.record("transfer") }
func (f *fakeCommands) CancelTransfer() error { return f.record("cancel") }

type bridgeFixture struct {
	bridge  *Bridge
	metrics *metrics.WebSocketMetrics
	server  *httptest.Server
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()
	m := metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	b := NewBridge(clockwork.NewRealClock(), m, NewCheckOrigin(nil, false), nil)
	srv := httptest.NewServer(b)
	t.Cleanup(func() {
		b.Stop()
		srv.Close()
	})
	return &bridgeFixture{bridge: b, metrics: m, server: srv}
}

func (f *bridgeFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return f.bridge.ClientCount() > 0 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// drainReplay reads the fixed replay an empty bridge sends on connect.
func drainReplay(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	want := []string{outPathOpacity, outExport, outBusy, outBusy, outBusy, outTransfer}
	for _, typ := range want {
		assert.Equal(t, typ, readMessage(t, conn)["type"])
	}
}

func TestBridge_PlaceMarkerBroadcastsWithLabel(t *testing.T) {
	f := newBridgeFixture(t)
	conn := f.dial(t)
	drainReplay(t, conn)

	w := domain.Waypoint{ID: uuid.New(), Kind: domain.KindStart, Position: domain.Position{Lat: 50.0755, Lng: 14.4378}}
	f.bridge.PlaceMarker(w)

	msg := readMessage(t, conn)
	assert.Equal(t, outMarkerPlaced, msg["type"])
	assert.True(t, strings.HasPrefix(msg["label"].(string), "S "))
	waypoint := msg["waypoint"].(map[string]any)
	assert.Equal(t, w.ID.String(), waypoint["id"])
	assert.Equal(t, "start", waypoint["kind"])
}

func TestBridge_ReplaysStateToNewConnections(t *testing.T) {
	f := newBridgeFixture(t)

	start := domain.Waypoint{ID: uuid.New(), Kind: domain.KindStart, Position: domain.Position{Lat: 1, Lng: 2}}
	goal := domain.Waypoint{ID: uuid.New(), Kind: domain.KindGoal, Position: domain.Position{Lat: 3, Lng: 4}}
	removed := domain.Waypoint{ID: uuid.New(), Kind: domain.KindIntermediate, Position: domain.Position{Lat: 5, Lng: 6}}
	f.bridge.PlaceMarker(start)
	f.bridge.PlaceMarker(removed)
	f.bridge.PlaceMarker(goal)
	f.bridge.RemoveMarker(removed.ID)
	f.bridge.DrawPath(domain.PathResult{Points: []domain.Position{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}}, Summary: "Total distance: 10 meters"})
	f.bridge.SetPathOpacity(0.3)
	f.bridge.SetExportEnabled(true)
	f.bridge.SetBusy(domain.ActionClear, true)
	f.bridge.ShowTransfer(domain.TransferView{Status: domain.TransferActive, Code: "7-crossover-batman"})
	f.bridge.Notify(domain.Status{Level: domain.LevelInfo, Text: "not replayed"})

	conn := f.dial(t)

	var types []string
	for range 9 {
		msg := readMessage(t, conn)
		types = append(types, msg["type"].(string))

		switch msg["type"] {
		case outPathOpacity:
			assert.InDelta(t, 0.3, msg["opacity"], 1e-9)
		case outExport:
			assert.Equal(t, true, msg["enabled"])
		case outBusy:
			assert.Equal(t, msg["action"] == "clear", msg["busy"])
		case outTransfer:
			assert.Equal(t, "7-crossover-batman", msg["transfer"].(map[string]any)["code"])
		}
	}

	assert.Equal(t, []string{
		outMarkerPlaced, outMarkerPlaced, outPathDrawn,
		outPathOpacity, outExport, outBusy, outBusy, outBusy, outTransfer,
	}, types)
}

func TestBridge_GesturesInvokeHandlers(t *testing.T) {
	f := newBridgeFixture(t)

	clicks := make(chan domain.Position, 1)
	dragEnds := make(chan uuid.UUID, 1)
	f.bridge.OnClick(func(pos domain.Position) { clicks <- pos })
	f.bridge.OnDragStart(func(uuid.UUID) {})
	f.bridge.OnDragEnd(func(id uuid.UUID, _ domain.Position) { dragEnds <- id })

	conn := f.dial(t)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "click", "lat": 50.1, "lng": 14.4}))

	select {
	case pos := <-clicks:
		assert.Equal(t, domain.Position{Lat: 50.1, Lng: 14.4}, pos)
	case <-time.After(2 * time.Second):
		t.Fatal("click handler not invoked")
	}

	id := uuid.New()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "drag_end", "id": id, "lat": 1, "lng": 2}))
	select {
	case got := <-dragEnds:
		assert.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("drag end handler not invoked")
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MessagesReceived.WithLabelValues(inClick)))
}

func TestBridge_ForwardsCommands(t *testing.T) {
	f := newBridgeFixture(t)
	commands := &fakeCommands{}
	f.bridge.Attach(commands)

	conn := f.dial(t)
	id := uuid.New()
	for _, msg := range []map[string]any{
		{"type": "mode", "kind": "goal"},
		{"type": "delete", "id": id},
		{"type": "remove_kind", "kind": "intermediate"},
		{"type": "bogus"},
		{"type": "clear"},
		{"type": "solve"},
		{"type": "transfer"},
		{"type": "cancel_transfer"},
	} {
		require.NoError(t, conn.WriteJSON(msg))
	}

	want := []string{"mode:goal", "delete:" + id.String(), "remove:intermediate", "clear", "solve", "transfer", "cancel"}
	require.Eventually(t, func() bool { return len(commands.Calls()) == len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, commands.Calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MessagesReceived.WithLabelValues("unknown")))
}

func TestBridge_MalformedMessageKeepsConnection(t *testing.T) {
	f := newBridgeFixture(t)
	commands := &fakeCommands{}
	f.bridge.Attach(commands)

	conn := f.dial(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "solve"}))

	require.Eventually(t, func() bool { return len(commands.Calls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MessagesReceived.WithLabelValues("invalid")))
}

func TestBridge_ConnectionGauge(t *testing.T) {
	f := newBridgeFixture(t)

	conn := f.dial(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActiveConnections))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.bridge.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ActiveConnections))
}

func TestBridge_RejectsForeignOrigin(t *testing.T) {
	f := newBridgeFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, f.bridge.ClientCount())
}

func TestBridge_StopSendsCloseFrame(t *testing.T) {
	f := newBridgeFixture(t)
	conn := f.dial(t)
	drainReplay(t, conn)

	f.bridge.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "Server shutting down", closeErr.Text)
}

func TestBridge_GesturesWithoutCoordinatesDropped(t *testing.T) {
	f := newBridgeFixture(t)

	clicks := make(chan domain.Position, 4)
	dragEnds := make(chan uuid.UUID, 4)
	f.bridge.OnClick(func(pos domain.Position) { clicks <- pos })
	f.bridge.OnDragEnd(func(id uuid.UUID, _ domain.Position) { dragEnds <- id })

	conn := f.dial(t)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "click"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "drag_end", "id": uuid.New(), "lat": 1}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "click", "lat": 0, "lng": 0}))

	select {
	case pos := <-clicks:
		assert.Equal(t, domain.Position{}, pos, "explicit zero coordinates are a real click")
	case <-time.After(2 * time.Second):
		t.Fatal("click handler not invoked")
	}
	assert.Empty(t, clicks)
	assert.Empty(t, dragEnds)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.MessagesReceived.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MessagesReceived.WithLabelValues(inClick)))
}

func TestBridge_ReplayLargerThanQueueIsComplete(t *testing.T) {
	f := newBridgeFixture(t)

	markers := 2 * messageBufferSize
	for i := range markers {
		f.bridge.PlaceMarker(domain.Waypoint{
			ID:       uuid.New(),
			Kind:     domain.KindIntermediate,
			Position: domain.Position{Lat: 50 + float64(i)/1000, Lng: 14},
		})
	}
	f.bridge.SetBusy(domain.ActionTransfer, true)
	f.bridge.ShowTransfer(domain.TransferView{Status: domain.TransferActive, Code: "3-galaxy-lemon"})

	conn := f.dial(t)
	for range markers {
		assert.Equal(t, outMarkerPlaced, readMessage(t, conn)["type"])
	}
	for _, typ := range []string{outPathOpacity, outExport, outBusy, outBusy} {
		assert.Equal(t, typ, readMessage(t, conn)["type"])
	}
	busy := readMessage(t, conn)
	assert.Equal(t, "transfer", busy["action"])
	assert.Equal(t, true, busy["busy"])

	last := readMessage(t, conn)
	require.Equal(t, outTransfer, last["type"])
	assert.Equal(t, "3-galaxy-lemon", last["transfer"].(map[string]any)["code"])
	assert.Zero(t, testutil.ToFloat64(f.metrics.SlowClientsEvicted))
}
