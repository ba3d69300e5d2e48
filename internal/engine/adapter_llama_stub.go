//go:build !llama

package engine

// This file provides a no-CGO stub for the llama backend. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.

import "context"

// LlamaBuilt indicates this binary was compiled with real llama support.
const LlamaBuilt = false

var errNotBuilt = ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")

type llamaBackend struct {
	cfg Config
}

// NewLlamaBackend returns a Backend whose Load always fails in this build.
func NewLlamaBackend(cfg Config) Backend {
	return &llamaBackend{cfg: cfg.WithDefaults()}
}

func (b *llamaBackend) Load(ctx context.Context) error { return errNotBuilt }

func (b *llamaBackend) Start(params InferParams) (Session, error) { return nil, errNotBuilt }

func (b *llamaBackend) Close() error { return nil }
