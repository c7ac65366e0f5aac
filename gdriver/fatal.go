package gdriver

import (
	"errors"
)

// ErrAlreadyInitialized is the cause of a fatal InitChain error
// when genesis content is delivered to a store that has already committed.
var ErrAlreadyInitialized = errors.New("database already initialized")

// FatalError is the error that stopped a [Driver].
// It is only produced by requests whose failure makes further progress unsafe.
type FatalError struct {
	// Kind is the [gabci.RequestKind] of the request being handled.
	Kind string

	Err error
}

func (e *FatalError) Error() string {
	return "fatal error handling " + e.Kind + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is or wraps a [*FatalError].
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
