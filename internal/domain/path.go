package domain

// PathResult is an ordered sequence of positions returned by a successful
// solve. It is never empty when present.
type PathResult struct {
	Points  []Position `json:"points"`
	Summary string     `json:"summary"`
}

// Clone returns a copy that shares no memory with p.
func (p PathResult) Clone() PathResult {
	points := make([]Position, len(p.Points))
	copy(points, p.Points)
	return PathResult{Points: points, Summary: p.Summary}
}
