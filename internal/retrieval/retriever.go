// Package retrieval finds the guideline passages most similar to a question.
// The index is produced offline; this package only embeds the query and ranks
// stored passages by cosine similarity.
package retrieval

import "context"

// Defaults applied when Config fields are unset.
const (
	DefaultTopK = 3
)

// Passage is a retrieved chunk of guideline text, ordered by descending Score.
type Passage struct {
	Text   string
	Source string
	Score  float64
}

// Retriever returns up to K passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Passage, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string) ([]Passage, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, query string) ([]Passage, error) {
	return f(ctx, query)
}

// Config bounds retrieval results.
type Config struct {
	TopK int
	// Cutoff drops passages scoring below it. Zero keeps every candidate, so
	// TopK passages come back even when none of them is relevant.
	Cutoff float64
}

// WithDefaults returns c with zero fields replaced by package defaults.
func (c Config) WithDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	return c
}

// Texts returns the passage texts in order.
func Texts(ps []Passage) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Text
	}
	return out
}
