package registry

import "errors"

// Typed error kinds (spec.md §7). All errors propagate to the caller
// untouched; the registry never retries on its own behalf.
var (
	// ErrInvalidInput is returned when an endpoint cannot be parsed, e.g. a
	// malformed IPv4 dotted-quad.
	ErrInvalidInput = errors.New("registry: invalid input")

	// ErrOutOfMemory is returned when pool allocation fails during insert.
	ErrOutOfMemory = errors.New("registry: out of memory")

	// ErrNotFound is returned when no pool (or no nodes) exist for an
	// endpoint.
	ErrNotFound = errors.New("registry: not found")

	// ErrBusy is returned when a node is currently locked by another party.
	ErrBusy = errors.New("registry: busy")

	// ErrAllPathsDown is returned when a pool has nodes but none are READY.
	ErrAllPathsDown = errors.New("registry: all paths down")

	// ErrTimeout is returned when TimedGet's wait budget expires.
	ErrTimeout = errors.New("registry: timeout")
)
