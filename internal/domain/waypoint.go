package domain

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Kind classifies a waypoint. The zero value means "no kind" and doubles as
// the "no placement mode selected" state of the interaction guard.
type Kind string

const (
	KindNone         Kind = ""
	KindStart        Kind = "start"
	KindGoal         Kind = "goal"
	KindIntermediate Kind = "intermediate"
)

// Valid reports whether k names a placeable waypoint kind.
func (k Kind) Valid() bool {
	switch k {
	case KindStart, KindGoal, KindIntermediate:
		return true
	}
	return false
}

// IsEndpoint reports whether k is Start or Goal. Endpoints are singletons and
// their removal invalidates any computed path.
func (k Kind) IsEndpoint() bool {
	return k == KindStart || k == KindGoal
}

// ParseKind converts the wire name of a kind. The empty string yields KindNone.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if k == KindNone || k.Valid() {
		return k, nil
	}
	return KindNone, fmt.Errorf("unknown waypoint kind %q", s)
}

// Position is a WGS84 coordinate pair.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate rejects coordinates outside the WGS84 range.
func (p Position) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidPosition, p.Lat, p.Lng)
	}
	return nil
}

// Waypoint is a classified point placed by the user.
type Waypoint struct {
	ID       uuid.UUID `json:"id"`
	Position Position  `json:"position"`
	Kind     Kind      `json:"kind"`
}

// Counts tallies waypoints per kind.
type Counts struct {
	Start        int `json:"start"`
	Goal         int `json:"goal"`
	Intermediate int `json:"intermediate"`
}

// HasEndpoints reports whether both a Start and a Goal exist.
func (c Counts) HasEndpoints() bool {
	return c.Start > 0 && c.Goal > 0
}

// Total returns the number of waypoints of any kind.
func (c Counts) Total() int {
	return c.Start + c.Goal + c.Intermediate
}
