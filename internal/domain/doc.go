// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (waypoint.go, path.go, transfer.go, surface.go, etc.)
// with shared types and cross-cutting interfaces. No orchestration code - just contracts.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
