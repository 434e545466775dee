package vision

import "errors"

// Package errors. Callers match them with errors.Is; the returned errors
// carry the node and operand details in their message.
var (
	// ErrConstruction is returned when a node cannot be built, for example
	// for an unsupported element type and storage combination.
	ErrConstruction = errors.New("vision: invalid node construction")

	// ErrShape is returned when a kernel reads outside the extent it was
	// promised. It signals a broken invariant and is never retried.
	ErrShape = errors.New("vision: shape violation")

	// ErrDevice is returned when a device rejects an allocation, upload or
	// kernel submission.
	ErrDevice = errors.New("vision: device failure")

	// ErrStaleTree is returned when a cycle visits a node that was already
	// evaluated and not reset since.
	ErrStaleTree = errors.New("vision: node not reset since last cycle")

	// ErrNilNode is returned when a nil operand is passed to a builder.
	ErrNilNode = errors.New("vision: nil node")

	// ErrNoDevice is returned by Run when no device was given and none is
	// registered.
	ErrNoDevice = errors.New("vision: no device")
)
