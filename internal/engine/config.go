package engine

// Defaults applied when corresponding Config fields are unset.
const (
	defaultContextSize = 32768
	defaultThreads     = 4
	defaultMaxTokens   = 1024
)

// Config describes how to load the generation model.
type Config struct {
	ModelPath   string
	ContextSize int
	Threads     int
	GPULayers   int
	// Params are the sampling defaults for every session.
	Params InferParams
}

// WithDefaults returns c with zero fields replaced by package defaults.
func (c Config) WithDefaults() Config {
	if c.ContextSize <= 0 {
		c.ContextSize = defaultContextSize
	}
	if c.Threads <= 0 {
		c.Threads = defaultThreads
	}
	if c.Params.MaxTokens <= 0 {
		c.Params.MaxTokens = defaultMaxTokens
	}
	return c
}
