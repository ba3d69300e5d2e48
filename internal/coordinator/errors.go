package coordinator

import (
	"errors"
	"fmt"
)

// Error kinds carried by GenerationError.
const (
	KindBackendUnavailable = "backend_unavailable"
	KindGenerationFailed   = "generation_failed"
)

var (
	// ErrEmptyQuery rejects a request whose query is blank after trimming.
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("coordinator closed")
)

// GenerationError is the out-of-band failure of one job.
type GenerationError struct {
	JobID   JobID
	Kind    string
	Message string
	Err     error
}

func (e *GenerationError) Error() string { return e.Kind + ": " + e.Message }

func (e *GenerationError) Unwrap() error { return e.Err }

// Wire returns the map form sent to consumers.
func (e *GenerationError) Wire() map[string]any {
	return map[string]any{"error": map[string]any{"kind": e.Kind, "message": e.Message}}
}

func newGenerationError(id JobID, kind string, err error) *GenerationError {
	return &GenerationError{JobID: id, Kind: kind, Message: err.Error(), Err: err}
}

// IsGenerationFailed reports whether err is a GenerationError of kind generation_failed.
func IsGenerationFailed(err error) bool {
	var g *GenerationError
	return errors.As(err, &g) && g.Kind == KindGenerationFailed
}

type panicError struct{ v any }

func (e panicError) Error() string { return fmt.Sprintf("panic: %v", e.v) }
