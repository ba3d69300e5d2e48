package coordinator

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"medqa/internal/engine"
	"medqa/internal/prompt"
	"medqa/internal/retrieval"
)

// Initializer is the readiness handshake the worker waits on before
// retrieval. *readiness.Gate satisfies it.
type Initializer interface {
	EnsureInit()
	WaitForInit(ctx context.Context) error
}

// Config wires a Coordinator to its collaborators.
type Config struct {
	Backend   engine.Backend
	Retriever retrieval.Retriever
	// Gate may be nil when the backend is loaded before New.
	Gate   Initializer
	Budget prompt.Budget
	Params engine.InferParams

	Logger    zerolog.Logger
	Publisher LifecyclePublisher
}

func (c Config) validate() error {
	if c.Backend == nil {
		return errors.New("coordinator: backend is required")
	}
	if c.Retriever == nil {
		return errors.New("coordinator: retriever is required")
	}
	return nil
}
