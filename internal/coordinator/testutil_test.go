package coordinator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medqa/internal/engine"
	"medqa/internal/retrieval"
)

const waitTimeout = 5 * time.Second

// fakeBackend hands out sessions that stream tokensFor(prompt).
type fakeBackend struct {
	tokensFor func(prompt string) []string
	// holdFor reports whether a session should keep running after its
	// tokens until aborted.
	holdFor func(prompt string) bool
	// streamFor reports whether a session should emit tokens in a loop
	// until aborted.
	streamFor func(prompt string) bool
	startErr  error
	genErr    error

	mu       sync.Mutex
	prompts  []string
	sessions []*fakeSession

	active    atomic.Int32
	maxActive atomic.Int32
	started   chan string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tokensFor: func(string) []string { return []string{"Take ", "fluids", "."} },
		started:   make(chan string, 64),
	}
}

func (b *fakeBackend) Load(context.Context) error { return nil }
func (b *fakeBackend) Close() error               { return nil }

func (b *fakeBackend) Start(engine.InferParams) (engine.Session, error) {
	if b.startErr != nil {
		return nil, b.startErr
	}
	s := &fakeSession{b: b, abort: make(chan struct{})}
	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	return s, nil
}

func (b *fakeBackend) Prompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.prompts...)
}

func (b *fakeBackend) Sessions() []*fakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakeSession(nil), b.sessions...)
}

type fakeSession struct {
	b          *fakeBackend
	abortOnce  sync.Once
	abort      chan struct{}
	closed     atomic.Bool
	lateAbort  atomic.Bool
	closeCalls atomic.Int32
}

func (s *fakeSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (engine.FinalResult, error) {
	n := s.b.active.Add(1)
	defer s.b.active.Add(-1)
	for {
		m := s.b.maxActive.Load()
		if n <= m || s.b.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	s.b.mu.Lock()
	s.b.prompts = append(s.b.prompts, prompt)
	s.b.mu.Unlock()
	select {
	case s.b.started <- prompt:
	default:
	}
	if s.b.genErr != nil {
		return engine.FinalResult{}, s.b.genErr
	}

	var sb strings.Builder
	step := func(tok string) error {
		select {
		case <-s.abort:
			return engine.ErrAborted
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		sb.WriteString(tok)
		return onToken(tok)
	}
	tokens := s.b.tokensFor(prompt)
	if s.b.streamFor != nil && s.b.streamFor(prompt) {
		for i := 0; ; i++ {
			if err := step(tokens[i%len(tokens)]); err != nil {
				return engine.FinalResult{Content: sb.String(), FinishReason: engine.FinishAborted}, err
			}
			time.Sleep(time.Millisecond)
		}
	}
	for _, tok := range tokens {
		if err := step(tok); err != nil {
			return engine.FinalResult{Content: sb.String(), FinishReason: engine.FinishAborted}, err
		}
	}
	if s.b.holdFor != nil && s.b.holdFor(prompt) {
		select {
		case <-s.abort:
			return engine.FinalResult{Content: sb.String(), FinishReason: engine.FinishAborted}, engine.ErrAborted
		case <-ctx.Done():
			return engine.FinalResult{Content: sb.String(), FinishReason: engine.FinishAborted}, ctx.Err()
		}
	}
	return engine.FinalResult{Content: sb.String(), FinishReason: engine.FinishStop}, nil
}

func (s *fakeSession) Abort() {
	if s.closed.Load() {
		s.lateAbort.Store(true)
	}
	s.abortOnce.Do(func() { close(s.abort) })
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	s.closeCalls.Add(1)
	return nil
}

// countingRetriever returns fixed passages and counts calls.
type countingRetriever struct {
	passages []retrieval.Passage
	err      error
	panicMsg string
	calls    atomic.Int32
}

func (r *countingRetriever) Retrieve(ctx context.Context, query string) ([]retrieval.Passage, error) {
	r.calls.Add(1)
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.passages, nil
}

func threePassages() *countingRetriever {
	return &countingRetriever{passages: []retrieval.Passage{
		{Text: "Fever is a temperature above 38C.", Score: 0.9},
		{Text: "Give paracetamol for fever.", Score: 0.8},
		{Text: "Refer if fever persists beyond 7 days.", Score: 0.7},
	}}
}

// holdGate blocks WaitForInit until released.
type holdGate struct {
	release chan struct{}
	err     error
	ensured atomic.Int32
}

func newHoldGate() *holdGate { return &holdGate{release: make(chan struct{})} }

func (g *holdGate) EnsureInit() { g.ensured.Add(1) }

func (g *holdGate) WaitForInit(ctx context.Context) error {
	select {
	case <-g.release:
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recordingSink captures one job's stream.
type recordingSink struct {
	mu          sync.Mutex
	events      []Event
	errs        []*GenerationError
	outcome     *Outcome
	afterClose  int
	done        chan struct{}
	partial     chan struct{}
	partialOnce sync.Once
}

func newRecordingSink() *recordingSink {
	return &recordingSink{done: make(chan struct{}), partial: make(chan struct{})}
}

func (s *recordingSink) Deliver(e Event) {
	s.mu.Lock()
	if s.outcome != nil {
		s.afterClose++
	}
	s.events = append(s.events, e)
	s.mu.Unlock()
	if e.Kind == KindPartialText {
		s.partialOnce.Do(func() { close(s.partial) })
	}
}

func (s *recordingSink) Fail(err *GenerationError) {
	s.mu.Lock()
	if s.outcome != nil {
		s.afterClose++
	}
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *recordingSink) Close(o Outcome) {
	s.mu.Lock()
	if s.outcome != nil {
		s.afterClose++
		s.mu.Unlock()
		return
	}
	s.outcome = &o
	s.mu.Unlock()
	close(s.done)
}

func (s *recordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *recordingSink) Errors() []*GenerationError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*GenerationError(nil), s.errs...)
}

func (s *recordingSink) wait(t *testing.T) Outcome {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(waitTimeout):
		t.Fatalf("sink was not closed within %v", waitTimeout)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.outcome
}

func (s *recordingSink) waitPartial(t *testing.T) {
	t.Helper()
	select {
	case <-s.partial:
	case <-time.After(waitTimeout):
		t.Fatalf("no partial text within %v", waitTimeout)
	}
}

func newTestCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitStarted(t *testing.T, b *fakeBackend) string {
	t.Helper()
	select {
	case p := <-b.started:
		return p
	case <-time.After(waitTimeout):
		t.Fatalf("no session started within %v", waitTimeout)
	}
	return ""
}
