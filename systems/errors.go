package systems

import "errors"

var (
	// ErrOutOfRange is returned when a position maps outside the grid volume.
	ErrOutOfRange = errors.New("coordinate out of range")

	// ErrCapacityExceeded is returned when every agent slot is in use.
	ErrCapacityExceeded = errors.New("agent capacity exceeded")

	// ErrMissingCell marks an agent recorded in a coordinate that has no cell.
	ErrMissingCell = errors.New("missing cell")

	// ErrUnknownAgent is returned for ids that were never registered or were removed.
	ErrUnknownAgent = errors.New("unknown agent")
)
