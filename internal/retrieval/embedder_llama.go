//go:build llama

package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// LlamaEmbedder computes embeddings with a go-llama.cpp model loaded in embedding mode.
type LlamaEmbedder struct {
	cfg   EmbedderConfig
	mu    sync.Mutex
	model *llama.LLama
}

// NewLlamaEmbedder returns an embedder; the model is read on Load.
func NewLlamaEmbedder(cfg EmbedderConfig) *LlamaEmbedder {
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = 512
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 4
	}
	return &LlamaEmbedder{cfg: cfg}
}

func (e *LlamaEmbedder) Load(ctx context.Context) error {
	if strings.TrimSpace(e.cfg.ModelPath) == "" {
		return errors.New("embedding model path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := llama.New(e.cfg.ModelPath, llama.EnableEmbeddings, llama.SetContext(e.cfg.ContextSize))
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.model = m
	e.mu.Unlock()
	return nil
}

// Embed is serialized: the native context is not safe for concurrent use.
func (e *LlamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil, errors.New("embedding model not loaded")
	}
	return e.model.Embeddings(text, llama.SetThreads(e.cfg.Threads))
}

// Close frees the model.
func (e *LlamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}
