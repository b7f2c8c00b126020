package session

import "errors"

var (
	// ErrEmptyToken is returned when SaveToken is called with a blank token.
	ErrEmptyToken = errors.New("empty token")

	// ErrPersist wraps storage write/remove failures. The in-memory state is already updated
	// when it is returned.
	ErrPersist = errors.New("session storage write failed")

	// ErrUnknownDriver is returned for an unsupported storage backend name.
	ErrUnknownDriver = errors.New("unknown storage driver")

	// ErrConfig is returned for invalid backend configuration.
	ErrConfig = errors.New("invalid config")
)
