package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"medqa/internal/assets"
	"medqa/internal/conversation"
	"medqa/internal/coordinator"
	"medqa/internal/engine"
	"medqa/internal/readiness"
	"medqa/internal/retrieval"
	"medqa/pkg/types"
)

type fakeBackend struct {
	loadErr error
	hold    bool

	mu      sync.Mutex
	loads   int
	prompts []string
}

func (b *fakeBackend) Load(context.Context) error {
	b.mu.Lock()
	b.loads++
	b.mu.Unlock()
	return b.loadErr
}

func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) Start(engine.InferParams) (engine.Session, error) {
	return &fakeSession{b: b, abort: make(chan struct{})}, nil
}

func (b *fakeBackend) lastPrompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prompts[len(b.prompts)-1]
}

type fakeSession struct {
	b     *fakeBackend
	once  sync.Once
	abort chan struct{}
}

func (s *fakeSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (engine.FinalResult, error) {
	s.b.mu.Lock()
	s.b.prompts = append(s.b.prompts, prompt)
	s.b.mu.Unlock()
	for _, tok := range []string{"Give ", "oral ", "rehydration."} {
		if err := onToken(tok); err != nil {
			return engine.FinalResult{}, err
		}
	}
	if s.b.hold {
		select {
		case <-s.abort:
		case <-ctx.Done():
		}
		return engine.FinalResult{}, engine.ErrAborted
	}
	return engine.FinalResult{Content: "Give oral rehydration.", FinishReason: engine.FinishStop}, nil
}

func (s *fakeSession) Abort()       { s.once.Do(func() { close(s.abort) }) }
func (s *fakeSession) Close() error { return nil }

type loaderFunc func(context.Context) error

func (f loaderFunc) Load(ctx context.Context) error { return f(ctx) }

var passages = retrieval.RetrieverFunc(func(context.Context, string) ([]retrieval.Passage, error) {
	return []retrieval.Passage{{Text: "ORS for diarrhoea."}, {Text: "Zinc for 10 days."}}, nil
})

// streamSink collects a stream and signals when it ends.
type streamSink struct {
	mu      sync.Mutex
	events  []coordinator.Event
	errs    []*coordinator.GenerationError
	done    chan coordinator.Outcome
	partial chan struct{}
	once    sync.Once
}

func newStreamSink() *streamSink {
	return &streamSink{done: make(chan coordinator.Outcome, 1), partial: make(chan struct{})}
}

func (s *streamSink) Deliver(e coordinator.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	if e.Kind == coordinator.KindPartialText {
		s.once.Do(func() { close(s.partial) })
	}
}

func (s *streamSink) Fail(err *coordinator.GenerationError) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *streamSink) Close(o coordinator.Outcome) { s.done <- o }

func (s *streamSink) wait(t *testing.T) coordinator.Outcome {
	t.Helper()
	select {
	case o := <-s.done:
		return o
	case <-time.After(5 * time.Second):
		t.Fatalf("stream did not end")
	}
	return coordinator.Outcome{}
}

func newTestService(t *testing.T, b *fakeBackend) (*Service, *conversation.SQLiteStore) {
	t.Helper()
	store, err := conversation.NewSQLiteInMemory()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	svc, err := New(Deps{Backend: b, Retriever: passages, Store: store, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		_ = svc.Close()
		_ = store.Close()
	})
	return svc, store
}

func TestGenerateStoresCompletedExchange(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	svc, store := newTestService(t, b)
	conv, err := svc.CreateConversation(ctx, "  diarrhoea in children  ")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.Title != "diarrhoea in children" {
		t.Fatalf("title not trimmed: %q", conv.Title)
	}

	sink := newStreamSink()
	if _, err := svc.Generate(ctx, types.GenerateRequest{Query: "child with diarrhoea", ConversationID: conv.ID}, sink); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if o := sink.wait(t); o.State != coordinator.StateCompleted {
		t.Fatalf("unexpected outcome: %+v", o)
	}
	got, err := store.Load(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Exchanges) != 1 {
		t.Fatalf("expected 1 exchange, got %d", len(got.Exchanges))
	}
	ex := got.Exchanges[0]
	if ex.Status != conversation.StatusComplete || ex.Answer != "Give oral rehydration." || len(ex.Passages) != 2 {
		t.Fatalf("unexpected exchange: %+v", ex)
	}

	// The next question in the same conversation carries it as history.
	next := newStreamSink()
	if _, err := svc.Generate(ctx, types.GenerateRequest{Query: "and for how long", ConversationID: conv.ID}, next); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	next.wait(t)
	p := b.lastPrompt()
	if !strings.Contains(p, "child with diarrhoea") || !strings.Contains(p, "<start_of_turn>model\nGive oral rehydration.<end_of_turn>") {
		t.Fatalf("history missing from prompt:\n%s", p)
	}
}

func TestCancelledExchangeRecording(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{hold: true}
	svc, store := newTestService(t, b)
	conv, _ := svc.CreateConversation(ctx, "")

	sink := newStreamSink()
	tk, err := svc.Generate(ctx, types.GenerateRequest{Query: "fever", ConversationID: conv.ID}, sink)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	select {
	case <-sink.partial:
	case <-time.After(5 * time.Second):
		t.Fatalf("no partial text")
	}
	o, ok := svc.CancelJob(tk.JobID)
	if !ok || !o.HadPartial {
		t.Fatalf("unexpected cancel outcome %+v ok=%v", o, ok)
	}
	sink.wait(t)
	got, _ := store.Load(ctx, conv.ID)
	if len(got.Exchanges) != 1 || got.Exchanges[0].Status != conversation.StatusInterrupted {
		t.Fatalf("expected one interrupted exchange, got %+v", got.Exchanges)
	}
	if a := got.Exchanges[0].Answer; a == "" || !strings.HasPrefix("Give oral rehydration.", a) || a != o.Text {
		t.Fatalf("partial answer not stored: %q (outcome %q)", a, o.Text)
	}
}

func TestExchangeFor(t *testing.T) {
	if _, ok := ExchangeFor("q", nil, coordinator.Outcome{State: coordinator.StateCancelled}); ok {
		t.Fatalf("cancelled job without output should be discarded")
	}
	ex, ok := ExchangeFor("q", nil, coordinator.Outcome{State: coordinator.StateFailed, Text: "half"})
	if !ok || ex.Status != conversation.StatusFailed || ex.Answer != "half" {
		t.Fatalf("unexpected failed exchange: %+v ok=%v", ex, ok)
	}
}

func TestHistoryOfSkipsFailedAndEmpty(t *testing.T) {
	c := conversation.Conversation{Exchanges: []conversation.Exchange{
		{Query: "q1", Answer: "a1", Status: conversation.StatusComplete},
		{Query: "q2", Answer: "", Status: conversation.StatusFailed},
		{Query: "q3", Answer: "partial", Status: conversation.StatusInterrupted},
		{Query: "q4", Answer: "oops", Status: conversation.StatusFailed},
	}}
	h := HistoryOf(c)
	if len(h) != 4 || h[0].Text != "q1" || h[3].Text != "partial" {
		t.Fatalf("unexpected history: %+v", h)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t, &fakeBackend{})
	ctx := context.Background()
	if _, err := svc.Generate(ctx, types.GenerateRequest{Query: "   "}, newStreamSink()); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input for blank query, got %v", err)
	}
	req := types.GenerateRequest{Query: "q", History: []types.Turn{{Role: "system", Text: "x"}}}
	if _, err := svc.Generate(ctx, req, newStreamSink()); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input for bad role, got %v", err)
	}
	if _, err := svc.Generate(ctx, types.GenerateRequest{Query: "q", ConversationID: "nope"}, newStreamSink()); !conversation.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStatusAfterInit(t *testing.T) {
	b := &fakeBackend{}
	svc, _ := newTestService(t, b)
	if st := svc.Status(); st.Backend != string(readiness.StateIdle) {
		t.Fatalf("expected idle before init, got %q", st.Backend)
	}
	if err := svc.WaitForInit(context.Background()); err != nil {
		t.Fatalf("WaitForInit: %v", err)
	}
	sink := newStreamSink()
	if _, err := svc.Generate(context.Background(), types.GenerateRequest{Query: "fever"}, sink); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	sink.wait(t)
	st := svc.Status()
	if st.Backend != string(readiness.StateReady) || st.JobsSubmitted != 1 || !svc.Ready() {
		t.Fatalf("unexpected status: %+v", st)
	}
	if b.loads != 1 {
		t.Fatalf("backend loaded %d times", b.loads)
	}
}

func TestLoadFailureIsReported(t *testing.T) {
	b := &fakeBackend{loadErr: errors.New("bad weights")}
	svc, _ := newTestService(t, b)
	err := svc.WaitForInit(context.Background())
	if !readiness.IsBackendUnavailable(err) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
	if st := svc.Status(); st.Backend != string(readiness.StateFailed) || !strings.Contains(st.BackendError, "bad weights") {
		t.Fatalf("unexpected status: %+v", st)
	}
	sink := newStreamSink()
	_, _ = svc.Generate(context.Background(), types.GenerateRequest{Query: "fever"}, sink)
	if o := sink.wait(t); o.State != coordinator.StateFailed {
		t.Fatalf("expected failed job, got %+v", o)
	}
	if len(sink.errs) != 1 || sink.errs[0].Kind != coordinator.KindBackendUnavailable {
		t.Fatalf("unexpected errors: %+v", sink.errs)
	}
}

func TestLoadersRunAfterBackend(t *testing.T) {
	var order []string
	b := &fakeBackend{}
	l := loaderFunc(func(context.Context) error {
		order = append(order, "index")
		if b.loads != 1 {
			t.Errorf("index loaded before backend")
		}
		return nil
	})
	svc, err := New(Deps{Backend: b, Retriever: passages, Loaders: []Loader{l}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()
	if err := svc.WaitForInit(context.Background()); err != nil {
		t.Fatalf("WaitForInit: %v", err)
	}
	if len(order) != 1 {
		t.Fatalf("loader not run")
	}
}

func TestMissingAssetsFailInit(t *testing.T) {
	dir := t.TempDir()
	svc, err := New(Deps{
		Backend:   &fakeBackend{},
		Retriever: passages,
		Assets:    assets.Paths{Model: filepath.Join(dir, "model.gguf")},
		AssetWait: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()
	if err := svc.WaitForInit(context.Background()); !readiness.IsBackendUnavailable(err) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
}

func TestConversationsDisabledWithoutStore(t *testing.T) {
	svc, err := New(Deps{Backend: &fakeBackend{}, Retriever: passages})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()
	if _, err := svc.Conversations(context.Background()); err == nil {
		t.Fatalf("expected error without a store")
	}
	if _, err := svc.Generate(context.Background(), types.GenerateRequest{Query: "q", ConversationID: "x"}, newStreamSink()); err == nil {
		t.Fatalf("expected error for conversation id without a store")
	}
}

func TestConversationCRUD(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeBackend{})
	long := strings.Repeat("x", 100)
	c, err := svc.CreateConversation(ctx, long)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(c.Title) != titleMax {
		t.Fatalf("title not capped: %d", len(c.Title))
	}
	list, err := svc.Conversations(ctx)
	if err != nil || len(list) != 1 || list[0].ID != c.ID {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
	got, err := svc.Conversation(ctx, c.ID)
	if err != nil || got.Exchanges == nil {
		t.Fatalf("unexpected conversation %+v err=%v", got, err)
	}
	if err := svc.DeleteConversation(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Conversation(ctx, c.ID); !conversation.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
