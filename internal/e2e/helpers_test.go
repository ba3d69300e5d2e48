package e2e

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"medqa/internal/conversation"
	"medqa/internal/engine"
	"medqa/internal/httpapi"
	"medqa/internal/retrieval"
	"medqa/internal/service"
	"medqa/pkg/types"
)

// holdMarker in a question makes the scripted session stop after its first
// token and wait to be aborted.
const holdMarker = "[hold]"

type scriptedBackend struct{}

func (scriptedBackend) Load(context.Context) error { return nil }

func (scriptedBackend) Start(engine.InferParams) (engine.Session, error) {
	return &scriptedSession{abort: make(chan struct{})}, nil
}

func (scriptedBackend) Close() error { return nil }

type scriptedSession struct {
	abort chan struct{}
	once  sync.Once
}

func (s *scriptedSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (engine.FinalResult, error) {
	hold := strings.Contains(prompt, holdMarker)
	var text string
	for _, tok := range []string{"Give", " oral", " fluids"} {
		select {
		case <-s.abort:
			return engine.FinalResult{Content: text, FinishReason: engine.FinishAborted}, engine.ErrAborted
		case <-ctx.Done():
			return engine.FinalResult{Content: text, FinishReason: engine.FinishAborted}, ctx.Err()
		default:
		}
		if err := onToken(tok); err != nil {
			return engine.FinalResult{Content: text}, err
		}
		text += tok
		if hold {
			select {
			case <-s.abort:
				return engine.FinalResult{Content: text, FinishReason: engine.FinishAborted}, engine.ErrAborted
			case <-ctx.Done():
				return engine.FinalResult{Content: text, FinishReason: engine.FinishAborted}, ctx.Err()
			}
		}
	}
	return engine.FinalResult{Content: text, FinishReason: engine.FinishStop}, nil
}

func (s *scriptedSession) Abort() { s.once.Do(func() { close(s.abort) }) }

func (s *scriptedSession) Close() error { return nil }

// keywordEmbedder embeds text as keyword counts, so similarity is predictable.
type keywordEmbedder struct{}

var keywords = []string{"fever", "malaria", "cough"}

func (keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	v := make([]float32, len(keywords))
	for i, k := range keywords {
		v[i] = float32(strings.Count(lower, k))
	}
	return v, nil
}

var guidelinePassages = []retrieval.Entry{
	{ID: "p1", Source: "imci.pdf", Text: "Fever in children under five: check for danger signs.", Embedding: []float32{1, 0, 0}},
	{ID: "p2", Source: "malaria.pdf", Text: "Treat uncomplicated malaria with ACT.", Embedding: []float32{0, 1, 0}},
	{ID: "p3", Source: "imci.pdf", Text: "Cough for more than 14 days: refer.", Embedding: []float32{0, 0, 1}},
}

// newStack seeds a passage index on disk and serves the full HTTP stack over
// it with a scripted backend.
func newStack(t *testing.T) (*httptest.Server, *service.Service) {
	t.Helper()
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "guidelines.db")
	seed := retrieval.NewSQLiteIndex(indexPath, keywordEmbedder{}, retrieval.Config{})
	if err := seed.Load(context.Background()); err != nil {
		t.Fatalf("load seed index: %v", err)
	}
	if err := seed.Store(context.Background(), guidelinePassages); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	if err := seed.Close(); err != nil {
		t.Fatalf("close seed index: %v", err)
	}

	store, err := conversation.OpenSQLite(filepath.Join(dir, "conversations.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	index := retrieval.NewSQLiteIndex(indexPath, keywordEmbedder{}, retrieval.Config{TopK: 2, Cutoff: 0.5})
	svc, err := service.New(service.Deps{
		Backend:   scriptedBackend{},
		Retriever: index,
		Loaders:   []service.Loader{index},
		Store:     store,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Close()
		_ = index.Close()
		_ = store.Close()
	})
	return srv, svc
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	resp := postStream(t, url, payload)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// postStream POSTs payload and returns the open response.
func postStream(t *testing.T, url string, payload []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	return resp
}

// decodeStream parses every recognised NDJSON line of body.
func decodeStream(t *testing.T, body []byte) []types.StreamLine {
	t.Helper()
	var out []types.StreamLine
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line, ok := types.DecodeLine(sc.Bytes())
		if !ok {
			t.Fatalf("unrecognised line %q", sc.Text())
		}
		out = append(out, line)
	}
	return out
}
