package engine

import "context"

// Backend abstracts the model runtime.
type Backend interface {
	// Load reads the model into memory. It is called once, off the request path.
	Load(ctx context.Context) error
	// Start prepares a session for one generation.
	Start(params InferParams) (Session, error)
	// Close frees the model.
	Close() error
}

// Session represents a single generation.
type Session interface {
	// Generate streams token deltas for prompt to onToken. It returns when the
	// model stops, onToken returns an error, ctx is canceled, or Abort is called.
	Generate(ctx context.Context, prompt string, onToken func(string) error) (FinalResult, error)
	// Abort forces an in-flight Generate to stop at the next token boundary.
	// Safe to call from any goroutine, more than once, and before Generate.
	Abort()
	// Close releases per-session resources. Abort must not be called after Close.
	Close() error
}

// InferParams captures generation parameters passed to the backend.
type InferParams struct {
	Temperature   float32
	TopP          float32
	TopK          int
	MaxTokens     int
	Stop          []string
	Seed          int
	RepeatPenalty float32
}

// FinalResult summarizes the generation after streaming.
type FinalResult struct {
	Content      string
	FinishReason string
}

// Finish reasons.
const (
	FinishStop    = "stop"
	FinishAborted = "aborted"
)
