//go:build llama

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	llama "github.com/go-skynet/go-llama.cpp"
)

// LlamaBuilt indicates this binary was compiled with real llama support.
const LlamaBuilt = true

type llamaBackend struct {
	cfg   Config
	mu    sync.Mutex
	model *llama.LLama
}

// NewLlamaBackend returns a go-llama.cpp backed Backend. Nothing is loaded until Load.
func NewLlamaBackend(cfg Config) Backend {
	return &llamaBackend{cfg: cfg.WithDefaults()}
}

func (b *llamaBackend) Load(ctx context.Context) error {
	if strings.TrimSpace(b.cfg.ModelPath) == "" {
		return errors.New("model path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	mo := []llama.ModelOption{
		llama.SetContext(b.cfg.ContextSize),
	}
	if b.cfg.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(b.cfg.GPULayers))
	}
	m, err := llama.New(b.cfg.ModelPath, mo...)
	if err != nil {
		return err
	}
	b.mu.Lock()
	old := b.model
	b.model = m
	b.mu.Unlock()
	if old != nil {
		old.Free()
	}
	return nil
}

func (b *llamaBackend) Start(params InferParams) (Session, error) {
	b.mu.Lock()
	m := b.model
	b.mu.Unlock()
	if m == nil {
		return nil, ErrNotLoaded
	}
	return &llamaSession{model: m, threads: b.cfg.Threads, params: mergeParams(b.cfg.Params, params)}, nil
}

func (b *llamaBackend) Close() error {
	b.mu.Lock()
	m := b.model
	b.model = nil
	b.mu.Unlock()
	if m != nil {
		m.Free()
	}
	return nil
}

// llamaSession borrows the backend's model for one Predict call.
type llamaSession struct {
	model   *llama.LLama
	threads int
	params  InferParams
	aborted atomic.Bool
	closed  atomic.Bool
}

func (s *llamaSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (FinalResult, error) {
	if s.closed.Load() {
		return FinalResult{}, errors.New("session closed")
	}
	var cbErr error
	// The native loop only stops when the callback returns false, so abort,
	// cancellation and sink errors are all funnelled through it.
	s.model.SetTokenCallback(func(tok string) bool {
		if s.aborted.Load() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if err := onToken(tok); err != nil {
			cbErr = err
			return false
		}
		return true
	})
	text, err := s.model.Predict(prompt, mapInferParamsToPredictOptions(s.params, s.threads)...)
	switch {
	case s.aborted.Load():
		return FinalResult{Content: text, FinishReason: FinishAborted}, ErrAborted
	case ctx.Err() != nil:
		return FinalResult{Content: text, FinishReason: FinishAborted}, ctx.Err()
	case cbErr != nil:
		return FinalResult{Content: text}, cbErr
	case err != nil:
		return FinalResult{}, err
	}
	return FinalResult{Content: text, FinishReason: FinishStop}, nil
}

func (s *llamaSession) Abort() { s.aborted.Store(true) }

func (s *llamaSession) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.model.SetTokenCallback(nil)
	}
	return nil
}

// helpers
func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// mergeParams overlays per-session params on the configured defaults.
func mergeParams(base, p InferParams) InferParams {
	out := base
	out.Temperature = zf(p.Temperature, base.Temperature)
	out.TopP = zf(p.TopP, base.TopP)
	out.TopK = zn(p.TopK, base.TopK)
	out.MaxTokens = zn(p.MaxTokens, base.MaxTokens)
	out.RepeatPenalty = zf(p.RepeatPenalty, base.RepeatPenalty)
	if p.Seed != 0 {
		out.Seed = p.Seed
	}
	if len(p.Stop) > 0 {
		out.Stop = p.Stop
	}
	return out
}

// mapInferParamsToPredictOptions converts our params into go-llama.cpp options.
func mapInferParamsToPredictOptions(params InferParams, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, params.MaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(zf(params.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(params.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(params.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(params.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if params.Seed != 0 {
		po = append(po, llama.SetSeed(params.Seed))
	}
	if len(params.Stop) > 0 {
		po = append(po, llama.SetStopWords(params.Stop...))
	}
	return po
}
