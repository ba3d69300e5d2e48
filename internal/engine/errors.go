package engine

import "errors"

// dependencyUnavailableError signals a missing runtime dependency (e.g. llama.cpp
// not compiled in) so callers can tell it apart from a generation failure.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var d dependencyUnavailableError
	return errors.As(err, &d)
}

// ErrNotLoaded is returned by Start before a successful Load.
var ErrNotLoaded = errors.New("model not loaded")

// ErrAborted is returned by Generate when the session was aborted.
var ErrAborted = errors.New("generation aborted")
