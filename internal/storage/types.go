// Package storage defines the composable persistence interfaces for the
// Boswell object model. Backends (PostgreSQL, SQLite) implement these small
// interfaces independently; the engine layer only ever sees the interfaces.
package storage

import (
	"errors"
)

var (
	// ErrNotFound indicates that a referenced branch, blob, commit or trail
	// does not exist. Never retried.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict indicates that a concurrent mutation won a race — a branch
	// head moved underneath a commit, or a unique row already exists.
	// Callers retry the whole operation against fresh state.
	ErrConflict = errors.New("conflicting concurrent update")

	// ErrInvalidInput indicates malformed input rejected before any write.
	ErrInvalidInput = errors.New("invalid input")
)

// TrailFilter narrows trail listings. Zero values mean "no filter".
type TrailFilter struct {
	// SourceBlob restricts to outbound trails from this blob.
	SourceBlob string

	// TargetBlob restricts to inbound trails to this blob.
	TargetBlob string

	// States restricts to trails in any of these lifecycle states.
	States []string

	// Limit caps the number of rows returned. Zero means the backend default.
	Limit int

	// WeakestFirst orders by strength ascending (the resurrection work-list
	// order). The default is strength descending (hot trails).
	WeakestFirst bool
}

// LinkFilter narrows cross-reference listings. Zero values mean "no filter".
type LinkFilter struct {
	// Blob matches links where the blob is either endpoint.
	Blob string

	// Branch matches links where the branch is either endpoint.
	Branch string

	// LinkType restricts to one link type.
	LinkType string

	// Limit caps the number of rows returned. Zero means the backend default.
	Limit int
}

// DefaultListLimit is applied when a filter does not set its own limit.
const DefaultListLimit = 50
