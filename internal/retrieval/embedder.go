package retrieval

import "context"

// Embedder turns text into a vector in the same space as the indexed passages.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Loader is implemented by embedders that need a slow one-time load.
type Loader interface {
	Load(ctx context.Context) error
}

// EmbedderConfig describes the embedding model.
type EmbedderConfig struct {
	ModelPath   string
	ContextSize int
	Threads     int
}
