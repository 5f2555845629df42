package timer

import "errors"

var (
	// ErrInvalidInterval is returned by Add for a zero or negative interval.
	ErrInvalidInterval = errors.New("timer: interval must be positive")
	// ErrNilSubscriber is returned by Add for a nil subscriber handle.
	ErrNilSubscriber = errors.New("timer: nil subscriber")
	// ErrDuplicateSubscriber is returned by Add when the same
	// (subscriber, parameter) identity is already registered.
	ErrDuplicateSubscriber = errors.New("timer: subscriber already registered")
	// ErrNotFound is returned by Remove when no element matches and
	// dontFail is false.
	ErrNotFound = errors.New("timer: subscriber not registered")

	// ErrAlreadyStarted is returned by Start when the worker is already
	// running. The engine is a one-shot resource.
	ErrAlreadyStarted = errors.New("timer: already started")
	// ErrShutdown is returned by Start after Shutdown; the engine cannot
	// be restarted.
	ErrShutdown = errors.New("timer: already shut down")
)
