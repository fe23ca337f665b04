package points

import (
	"fmt"
	"slices"

	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"
)

const labelPrecision = 7

// Change describes the effect of one mutation.
type Change struct {
	Added           []domain.Waypoint
	Removed         []domain.Waypoint
	Moved           []domain.Waypoint
	PathInvalidated bool
}

// Empty reports whether the mutation changed nothing.
func (c Change) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Moved) == 0 && !c.PathInvalidated
}

type Store struct {
	waypoints []*domain.Waypoint
	path      *domain.PathResult
	newID     func() uuid.UUID

	// endpointVersion increments whenever a Start or Goal is removed, replaced or moved.
	endpointVersion uint64
}

func NewStore() *Store {
	return &Store{newID: uuid.New}
}

// Place inserts a waypoint. A Start or Goal first replaces the existing one of
// the same kind, which invalidates the cached path.
func (s *Store) Place(kind domain.Kind, pos domain.Position) (domain.Waypoint, Change, error) {
	if !kind.Valid() {
		return domain.Waypoint{}, Change{}, fmt.Errorf("%w: %q", domain.ErrInvalidKind, kind)
	}
	if err := pos.Validate(); err != nil {
		return domain.Waypoint{}, Change{}, err
	}

	var change Change
	if kind.IsEndpoint() {
		change = s.RemoveAllOfKind(kind)
	}

	w := &domain.Waypoint{ID: s.newID(), Position: pos, Kind: kind}
	s.waypoints = append(s.waypoints, w)
	change.Added = append(change.Added, *w)

	return *w, change, nil
}

// Remove deletes one waypoint by ID.
func (s *Store) Remove(id uuid.UUID) (Change, error) {
	i := s.indexOf(id)
	if i < 0 {
		return Change{}, domain.ErrWaypointNotFound
	}

	removed := *s.waypoints[i]
	s.waypoints = slices.Delete(s.waypoints, i, i+1)

	change := Change{Removed: []domain.Waypoint{removed}}
	if removed.Kind.IsEndpoint() {
		change.PathInvalidated = s.endpointsChanged()
	}
	return change, nil
}

// RemoveAllOfKind deletes every waypoint of kind.
func (s *Store) RemoveAllOfKind(kind domain.Kind) Change {
	var change Change
	s.waypoints = slices.DeleteFunc(s.waypoints, func(w *domain.Waypoint) bool {
		if w.Kind != kind {
			return false
		}
		change.Removed = append(change.Removed, *w)
		return true
	})

	if len(change.Removed) > 0 && kind.IsEndpoint() {
		change.PathInvalidated = s.endpointsChanged()
	}
	return change
}

// ClearAll deletes every waypoint and the cached path.
func (s *Store) ClearAll() Change {
	var change Change
	endpoints := false
	for _, w := range s.waypoints {
		change.Removed = append(change.Removed, *w)
		endpoints = endpoints || w.Kind.IsEndpoint()
	}
	s.waypoints = nil
	if endpoints {
		s.endpointVersion++
	}
	change.PathInvalidated = s.invalidatePath()
	return change
}

// Move relocates a waypoint after a drag. Moving an endpoint invalidates the
// path the same way replacing it would.
func (s *Store) Move(id uuid.UUID, pos domain.Position) (Change, error) {
	if err := pos.Validate(); err != nil {
		return Change{}, err
	}
	i := s.indexOf(id)
	if i < 0 {
		return Change{}, domain.ErrWaypointNotFound
	}

	w := s.waypoints[i]
	w.Position = pos

	change := Change{Moved: []domain.Waypoint{*w}}
	if w.Kind.IsEndpoint() {
		change.PathInvalidated = s.endpointsChanged()
	}
	return change, nil
}

// Get returns the waypoint with id.
func (s *Store) Get(id uuid.UUID) (domain.Waypoint, bool) {
	if i := s.indexOf(id); i >= 0 {
		return *s.waypoints[i], true
	}
	return domain.Waypoint{}, false
}

// Counts tallies the current waypoints per kind.
func (s *Store) Counts() domain.Counts {
	var c domain.Counts
	for _, w := range s.waypoints {
		switch w.Kind {
		case domain.KindStart:
			c.Start++
		case domain.KindGoal:
			c.Goal++
		case domain.KindIntermediate:
			c.Intermediate++
		}
	}
	return c
}

// Waypoints returns a copy of the waypoints in iteration order.
func (s *Store) Waypoints() []domain.Waypoint {
	out := make([]domain.Waypoint, len(s.waypoints))
	for i, w := range s.waypoints {
		out[i] = *w
	}
	return out
}

// SetPath caches a solve result, replacing any previous one.
func (s *Store) SetPath(path domain.PathResult) error {
	if len(path.Points) == 0 {
		return domain.ErrEmptyPath
	}
	p := path.Clone()
	s.path = &p
	return nil
}

// ClearPath drops the cached path. It reports whether one was present.
func (s *Store) ClearPath() bool {
	return s.invalidatePath()
}

// Path returns a copy of the cached path.
func (s *Store) Path() (domain.PathResult, bool) {
	if s.path == nil {
		return domain.PathResult{}, false
	}
	return s.path.Clone(), true
}

// ExportEnabled reports whether a path is available for export.
func (s *Store) ExportEnabled() bool {
	return s.path != nil
}

// EndpointVersion identifies the current pair of endpoints. A path solved
// under one version is stale under any other.
func (s *Store) EndpointVersion() uint64 {
	return s.endpointVersion
}

func (s *Store) endpointsChanged() bool {
	s.endpointVersion++
	return s.invalidatePath()
}

func (s *Store) invalidatePath() bool {
	had := s.path != nil
	s.path = nil
	return had
}

func (s *Store) indexOf(id uuid.UUID) int {
	return slices.IndexFunc(s.waypoints, func(w *domain.Waypoint) bool { return w.ID == id })
}

// Label returns a short marker label: the kind initial followed by the
// waypoint's geohash cell.
func Label(w domain.Waypoint) string {
	initial := "I"
	switch w.Kind {
	case domain.KindStart:
		initial = "S"
	case domain.KindGoal:
		initial = "G"
	}
	return initial + " " + geohash.EncodeWithPrecision(w.Position.Lat, w.Position.Lng, labelPrecision)
}
