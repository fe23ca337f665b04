// Package websocket bridges the planner core to a browser-side map widget.
//
// The Bridge implements domain.MapSurface, domain.Controls and
// domain.StatusSink by broadcasting JSON commands to every connected browser,
// and turns browser gestures back into planner calls. It mirrors the visible
// state so a newly connected browser starts from the current picture.
package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/aleskucera/robot-mission-planner/internal/adapter/metrics"
	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/aleskucera/robot-mission-planner/internal/points"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const maxMessageSize = 4096

// Commands is the planner API driven by browser messages.
type Commands interface {
	SelectMode(kind domain.Kind) error
	Delete(id uuid.UUID) error
	RemoveAllOfKind(kind domain.Kind) error
	ClearAll() error
	Solve() error
	CreateTransfer() error
	CancelTransfer() error
}

type Bridge struct {
	clock    clockwork.Clock
	metrics  *metrics.WebSocketMetrics
	upgrader websocket.Upgrader
	limits   *ConnectionLimits

	mu          sync.Mutex
	clients     map[*websocket.Conn]*clientWriter
	commands    Commands
	onClick     func(domain.Position)
	onDragStart func(uuid.UUID)
	onDragEnd   func(uuid.UUID, domain.Position)

	// Mirror of what the browsers show.
	markers  []domain.Waypoint
	path     *domain.PathResult
	opacity  float64
	busy     map[domain.Action]bool
	export   bool
	transfer domain.TransferView
}

var (
	_ domain.MapSurface = (*Bridge)(nil)
	_ domain.Controls   = (*Bridge)(nil)
	_ domain.StatusSink = (*Bridge)(nil)
)

// NewBridge creates a bridge. checkOrigin validates the Origin header of
// upgrade requests. limits may be nil for no connection limits.
func NewBridge(clock clockwork.Clock, m *metrics.WebSocketMetrics, checkOrigin func(r *http.Request) bool, limits *ConnectionLimits) *Bridge {
	return &Bridge{
		clock:    clock,
		metrics:  m,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		limits:   limits,
		clients:  make(map[*websocket.Conn]*clientWriter),
		opacity:  1,
		busy:     make(map[domain.Action]bool),
		transfer: domain.TransferView{Status: domain.TransferNone},
	}
}

// Attach sets the planner that browser messages are forwarded to.
func (b *Bridge) Attach(commands Commands) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = commands
}

func (b *Bridge) OnClick(handler func(pos domain.Position)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onClick = handler
}

func (b *Bridge) OnDragStart(handler func(id uuid.UUID)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDragStart = handler
}

func (b *Bridge) OnDragEnd(handler func(id uuid.UUID, pos domain.Position)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDragEnd = handler
}

func (b *Bridge) PlaceMarker(w domain.Waypoint) {
	b.update(func() {
		if i := b.markerIndex(w.ID); i >= 0 {
			b.markers[i] = w
		} else {
			b.markers = append(b.markers, w)
		}
	}, markerPlaced(w))
}

func (b *Bridge) RemoveMarker(id uuid.UUID) {
	b.update(func() {
		if i := b.markerIndex(id); i >= 0 {
			b.markers = slices.Delete(b.markers, i, i+1)
		}
	}, outbound{Type: outMarkerRemoved, ID: &id})
}

func (b *Bridge) DrawPath(path domain.PathResult) {
	p := path.Clone()
	b.update(func() { b.path = &p }, outbound{Type: outPathDrawn, Path: &p})
}

func (b *Bridge) ClearPath() {
	b.update(func() { b.path = nil }, outbound{Type: outPathCleared})
}

func (b *Bridge) FitToPath(path domain.PathResult) {
	p := path.Clone()
	b.update(nil, outbound{Type: outFit, Path: &p})
}

func (b *Bridge) SetPathOpacity(opacity float64) {
	b.update(func() { b.opacity = opacity }, outbound{Type: outPathOpacity, Opacity: ptr(opacity)})
}

func (b *Bridge) Notify(s domain.Status) {
	b.update(nil, outbound{Type: outStatus, Status: &s})
}

func (b *Bridge) SetBusy(action domain.Action, busy bool) {
	b.update(func() { b.busy[action] = busy }, outbound{Type: outBusy, Action: action, Busy: ptr(busy)})
}

func (b *Bridge) SetExportEnabled(enabled bool) {
	b.update(func() { b.export = enabled }, outbound{Type: outExport, Enabled: ptr(enabled)})
}

func (b *Bridge) ShowTransfer(view domain.TransferView) {
	b.update(func() { b.transfer = view }, outbound{Type: outTransfer, Transfer: &view})
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.limits != nil {
		ip := remoteIP(r)
		if ok, reason := b.limits.acquire(ip); !ok {
			slog.Warn("WebSocket connection rejected", "remote_ip", ip, "reason", reason)
			b.metrics.ConnectionsRejected.WithLabelValues(string(reason)).Inc()
			http.Error(w, "too many connections", reason.status())
			return
		}
		defer b.limits.release(ip)
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	if !b.register(conn) {
		return
	}
	defer b.unregister(conn)

	conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket read failed", "remote_addr", r.RemoteAddr, "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("Discarding malformed message", "error", err)
			b.metrics.MessagesReceived.WithLabelValues("invalid").Inc()
			continue
		}
		b.dispatch(msg)
	}
}

// ClientCount returns the number of connected browsers.
func (b *Bridge) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Stop closes every connection with a close frame.
func (b *Bridge) Stop() {
	b.mu.Lock()
	writers := make([]*clientWriter, 0, len(b.clients))
	for conn, cw := range b.clients {
		writers = append(writers, cw)
		delete(b.clients, conn)
	}
	b.mu.Unlock()

	for _, cw := range writers {
		cw.stopGraceful("Server shutting down")
	}
	b.metrics.ActiveConnections.Set(0)
	slog.Info("Browser bridge stopped", "disconnected_clients", len(writers))
}

// register queues the replay for conn and adds it to the broadcast set. The
// writer queue is sized so the whole replay fits ahead of live updates. It
// returns false, leaving conn unregistered, if the replay could not be queued.
func (b *Bridge) register(conn *websocket.Conn) bool {
	cw, ok := b.enqueueReplay(conn)
	if !ok {
		slog.Warn("Dropping browser that cannot take the replay")
		b.metrics.SlowClientsEvicted.Inc()
		cw.stop()
	}
	return ok
}

func (b *Bridge) enqueueReplay(conn *websocket.Conn) (*clientWriter, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	replay := b.replay()
	cw := newClientWriter(conn, b.clock, b.metrics, len(replay)+messageBufferSize)
	for _, msg := range replay {
		data, err := json.Marshal(msg)
		if err != nil {
			slog.Error("Failed to marshal replay message", "type", msg.Type, "error", err)
			continue
		}
		if !cw.send(data) {
			return cw, false
		}
	}
	b.clients[conn] = cw
	b.metrics.ActiveConnections.Inc()
	slog.Debug("Browser connected", "clients", len(b.clients), "replay_messages", len(replay))
	return cw, true
}

func (b *Bridge) unregister(conn *websocket.Conn) {
	b.mu.Lock()
	cw, ok := b.clients[conn]
	delete(b.clients, conn)
	b.mu.Unlock()

	if !ok {
		return
	}
	cw.stop()
	b.metrics.ActiveConnections.Dec()
	slog.Debug("Browser disconnected")
}

// replay renders the mirror as the messages a fresh browser needs. Caller holds mu.
func (b *Bridge) replay() []outbound {
	msgs := make([]outbound, 0, len(b.markers)+6)
	for _, w := range b.markers {
		msgs = append(msgs, markerPlaced(w))
	}
	if b.path != nil {
		p := b.path.Clone()
		msgs = append(msgs, outbound{Type: outPathDrawn, Path: &p})
	}
	msgs = append(msgs,
		outbound{Type: outPathOpacity, Opacity: ptr(b.opacity)},
		outbound{Type: outExport, Enabled: ptr(b.export)},
	)
	for _, action := range []domain.Action{domain.ActionSolve, domain.ActionClear, domain.ActionTransfer} {
		msgs = append(msgs, outbound{Type: outBusy, Action: action, Busy: ptr(b.busy[action])})
	}
	view := b.transfer
	msgs = append(msgs, outbound{Type: outTransfer, Transfer: &view})
	return msgs
}

// update applies mutate to the mirror and broadcasts msg under one lock so
// that replays and broadcasts never interleave.
func (b *Bridge) update(mutate func(), msg outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal bridge message", "type", msg.Type, "error", err)
		return
	}

	b.mu.Lock()
	if mutate != nil {
		mutate()
	}
	var slow []*clientWriter
	for conn, cw := range b.clients {
		if !cw.send(data) {
			slow = append(slow, cw)
			delete(b.clients, conn)
		}
	}
	b.mu.Unlock()

	for _, cw := range slow {
		slog.Warn("Disconnecting slow browser")
		b.metrics.SlowClientsEvicted.Inc()
		b.metrics.ActiveConnections.Dec()
		cw.stop()
	}
}

func (b *Bridge) dispatch(msg inbound) {
	b.mu.Lock()
	commands := b.commands
	onClick, onDragStart, onDragEnd := b.onClick, b.onDragStart, b.onDragEnd
	b.mu.Unlock()

	var err error
	switch msg.Type {
	case inClick:
		pos, ok := msg.position()
		if !ok {
			b.discardWithoutPosition(msg)
			return
		}
		if onClick != nil {
			onClick(pos)
		}
	case inDragStart:
		if onDragStart != nil {
			onDragStart(msg.ID)
		}
	case inDragEnd:
		pos, ok := msg.position()
		if !ok {
			b.discardWithoutPosition(msg)
			return
		}
		if onDragEnd != nil {
			onDragEnd(msg.ID, pos)
		}
	case inMode, inDelete, inClear, inRemoveKind, inSolve, inTransfer, inCancelTransfer:
		if commands == nil {
			err = errNotAttached
			break
		}
		err = forward(commands, msg)
	default:
		slog.Debug("Ignoring unknown message type", "type", msg.Type)
		b.metrics.MessagesReceived.WithLabelValues("unknown").Inc()
		return
	}

	b.metrics.MessagesReceived.WithLabelValues(msg.Type).Inc()
	if err != nil {
		slog.Warn("Browser command failed", "type", msg.Type, "error", err)
	}
}

func (b *Bridge) discardWithoutPosition(msg inbound) {
	slog.Debug("Discarding message without coordinates", "type", msg.Type)
	b.metrics.MessagesReceived.WithLabelValues("invalid").Inc()
}

var errNotAttached = errors.New("no planner attached")

func forward(commands Commands, msg inbound) error {
	switch msg.Type {
	case inMode:
		return commands.SelectMode(msg.Kind)
	case inDelete:
		return commands.Delete(msg.ID)
	case inClear:
		return commands.ClearAll()
	case inRemoveKind:
		return commands.RemoveAllOfKind(msg.Kind)
	case inSolve:
		return commands.Solve()
	case inTransfer:
		return commands.CreateTransfer()
	case inCancelTransfer:
		return commands.CancelTransfer()
	}
	return nil
}

func (b *Bridge) markerIndex(id uuid.UUID) int {
	return slices.IndexFunc(b.markers, func(w domain.Waypoint) bool { return w.ID == id })
}

func markerPlaced(w domain.Waypoint) outbound {
	return outbound{Type: outMarkerPlaced, Waypoint: &w, Label: points.Label(w)}
}
