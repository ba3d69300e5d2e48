//go:build !llama

package retrieval

import (
	"context"
	"errors"
)

var errEmbedNotBuilt = errors.New("llama support not built (missing 'llama' build tag)")

// LlamaEmbedder is a stub that refuses to load without the 'llama' build tag.
type LlamaEmbedder struct {
	cfg EmbedderConfig
}

// NewLlamaEmbedder returns an embedder whose Load always fails in this build.
func NewLlamaEmbedder(cfg EmbedderConfig) *LlamaEmbedder { return &LlamaEmbedder{cfg: cfg} }

func (e *LlamaEmbedder) Load(ctx context.Context) error { return errEmbedNotBuilt }

func (e *LlamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errEmbedNotBuilt
}

func (e *LlamaEmbedder) Close() error { return nil }
