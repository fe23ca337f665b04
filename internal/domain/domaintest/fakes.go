// Package domaintest provides recording fakes of the presentation-side
// interfaces for use in tests.
package domaintest

import (
	"sync"

	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/google/uuid"
)

// Surface records every call made to it and lets tests fire widget events.
type Surface struct {
	mu          sync.Mutex
	markers     map[uuid.UUID]domain.Waypoint
	path        *domain.PathResult
	fits        int
	opacity     float64
	onClick     func(domain.Position)
	onDragStart func(uuid.UUID)
	onDragEnd   func(uuid.UUID, domain.Position)
}

var _ domain.MapSurface = (*Surface)(nil)

func NewSurface() *Surface {
	return &Surface{markers: make(map[uuid.UUID]domain.Waypoint), opacity: 1}
}

func (s *Surface) OnClick(h func(domain.Position)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClick = h
}

func (s *Surface) OnDragStart(h func(uuid.UUID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDragStart = h
}

func (s *Surface) OnDragEnd(h func(uuid.UUID, domain.Position)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDragEnd = h
}

func (s *Surface) PlaceMarker(w domain.Waypoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[w.ID] = w
}

func (s *Surface) RemoveMarker(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, id)
}

func (s *Surface) DrawPath(p domain.PathResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := p.Clone()
	s.path = &c
}

func (s *Surface) ClearPath() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = nil
}

func (s *Surface) FitToPath(domain.PathResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fits++
}

func (s *Surface) SetPathOpacity(o float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opacity = o
}

// Click simulates a map click.
func (s *Surface) Click(pos domain.Position) {
	s.mu.Lock()
	h := s.onClick
	s.mu.Unlock()
	if h != nil {
		h(pos)
	}
}

// DragStart simulates the start of a marker drag.
func (s *Surface) DragStart(id uuid.UUID) {
	s.mu.Lock()
	h := s.onDragStart
	s.mu.Unlock()
	if h != nil {
		h(id)
	}
}

// DragEnd simulates the end of a marker drag.
func (s *Surface) DragEnd(id uuid.UUID, pos domain.Position) {
	s.mu.Lock()
	h := s.onDragEnd
	s.mu.Unlock()
	if h != nil {
		h(id, pos)
	}
}

func (s *Surface) Markers() map[uuid.UUID]domain.Waypoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]domain.Waypoint, len(s.markers))
	for k, v := range s.markers {
		out[k] = v
	}
	return out
}

func (s *Surface) Path() (domain.PathResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == nil {
		return domain.PathResult{}, false
	}
	return s.path.Clone(), true
}

func (s *Surface) Fits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fits
}

func (s *Surface) Opacity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opacity
}

// Controls records busy flags, export gating and the last transfer view.
type Controls struct {
	mu       sync.Mutex
	busy     map[domain.Action]bool
	export   bool
	transfer domain.TransferView
	views    []domain.TransferView
}

var _ domain.Controls = (*Controls)(nil)

func NewControls() *Controls {
	return &Controls{busy: make(map[domain.Action]bool)}
}

func (c *Controls) SetBusy(a domain.Action, busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy[a] = busy
}

func (c *Controls) SetExportEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.export = enabled
}

func (c *Controls) ShowTransfer(v domain.TransferView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transfer = v
	c.views = append(c.views, v)
}

func (c *Controls) Busy(a domain.Action) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy[a]
}

func (c *Controls) ExportEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.export
}

func (c *Controls) Transfer() domain.TransferView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transfer
}

func (c *Controls) TransferViews() []domain.TransferView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.TransferView(nil), c.views...)
}

// StatusLog records every notification.
type StatusLog struct {
	mu       sync.Mutex
	messages []domain.Status
}

var _ domain.StatusSink = (*StatusLog)(nil)

func (l *StatusLog) Notify(s domain.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, s)
}

func (l *StatusLog) All() []domain.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Status(nil), l.messages...)
}

// Last returns the most recent notification, or the zero Status.
func (l *StatusLog) Last() domain.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.messages) == 0 {
		return domain.Status{}
	}
	return l.messages[len(l.messages)-1]
}
