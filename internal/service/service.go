// Package service wires the readiness gate, the generation coordinator and
// the conversation store behind the operations the HTTP API and CLI expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"medqa/internal/assets"
	"medqa/internal/conversation"
	"medqa/internal/coordinator"
	"medqa/internal/engine"
	"medqa/internal/prompt"
	"medqa/internal/readiness"
	"medqa/internal/retrieval"
	"medqa/pkg/types"
)

// Loader is anything loaded once during initialization.
type Loader interface {
	Load(ctx context.Context) error
}

// Deps are the collaborators of a Service. Store may be nil, which disables
// conversations.
type Deps struct {
	Backend   engine.Backend
	Retriever retrieval.Retriever
	// Loaders run after Backend.Load, in order (embedder, then index).
	Loaders []Loader
	// Assets are waited for before anything loads.
	Assets assets.Paths
	// AssetWait bounds how long initialization waits for missing assets.
	AssetWait time.Duration
	Store     conversation.Store
	Budget    prompt.Budget
	Params    engine.InferParams
	Logger    zerolog.Logger
	Publisher coordinator.LifecyclePublisher
}

// Service implements the medqa operations.
type Service struct {
	gate    *readiness.Gate
	coord   *coordinator.Coordinator
	backend engine.Backend
	store   conversation.Store
	log     zerolog.Logger
	started time.Time
}

// New builds the gate and coordinator. Loading starts on the first
// EnsureInit or Generate.
func New(d Deps) (*Service, error) {
	s := &Service{backend: d.Backend, store: d.Store, log: d.Logger, started: time.Now()}
	s.gate = readiness.New(s.loader(d), readiness.WithLogger(d.Logger))
	coord, err := coordinator.New(coordinator.Config{
		Backend:   d.Backend,
		Retriever: d.Retriever,
		Gate:      s.gate,
		Budget:    d.Budget,
		Params:    d.Params,
		Logger:    d.Logger,
		Publisher: d.Publisher,
	})
	if err != nil {
		return nil, err
	}
	s.coord = coord
	return s, nil
}

func (s *Service) loader(d Deps) readiness.LoadFunc {
	return func(ctx context.Context) error {
		if paths := d.Assets.List(); len(paths) > 0 {
			wctx := ctx
			if d.AssetWait > 0 {
				var cancel context.CancelFunc
				wctx, cancel = context.WithTimeout(ctx, d.AssetWait)
				defer cancel()
			}
			if err := assets.WaitForFiles(wctx, d.Logger, paths...); err != nil {
				return err
			}
		}
		if err := d.Backend.Load(ctx); err != nil {
			return fmt.Errorf("load model: %w", err)
		}
		for _, l := range d.Loaders {
			if err := l.Load(ctx); err != nil {
				return fmt.Errorf("load retrieval: %w", err)
			}
		}
		return nil
	}
}

// EnsureInit starts backend loading without blocking.
func (s *Service) EnsureInit() { s.gate.EnsureInit() }

// WaitForInit starts loading if needed and waits for it to resolve.
func (s *Service) WaitForInit(ctx context.Context) error {
	s.gate.EnsureInit()
	return s.gate.WaitForInit(ctx)
}

// Ready reports whether the backend finished loading successfully.
func (s *Service) Ready() bool { return s.gate.Ready() }

// Generate submits req. sink receives the job's stream on the delivery
// goroutine. When req names a conversation, its history is loaded (unless
// req carries history of its own) and the exchange is appended once the
// stream ends.
func (s *Service) Generate(ctx context.Context, req types.GenerateRequest, sink coordinator.Sink) (coordinator.Ticket, error) {
	creq := coordinator.Request{
		Query:        strings.TrimSpace(req.Query),
		UseRetrieval: req.RetrievalEnabled(),
	}
	for _, t := range req.History {
		role, ok := prompt.ParseRole(t.Role)
		if !ok {
			return coordinator.Ticket{}, invalidInputError{msg: fmt.Sprintf("invalid history role %q", t.Role)}
		}
		creq.History = append(creq.History, prompt.Turn{Role: role, Text: t.Text})
	}
	if creq.Query == "" {
		return coordinator.Ticket{}, invalidInputError{msg: coordinator.ErrEmptyQuery.Error()}
	}
	if req.ConversationID != "" {
		if s.store == nil {
			return coordinator.Ticket{}, errConversationsDisabled
		}
		conv, err := s.store.Load(ctx, req.ConversationID)
		if err != nil {
			return coordinator.Ticket{}, err
		}
		if len(creq.History) == 0 {
			creq.History = HistoryOf(conv)
		}
		sink = &recordingSink{
			next:  sink,
			store: s.store,
			id:    conv.ID,
			query: creq.Query,
			log:   s.log,
		}
	}
	return s.coord.Submit(creq, sink)
}

// Cancel cancels the live job, if any.
func (s *Service) Cancel() (coordinator.Outcome, bool) { return s.coord.Cancel() }

// CancelJob cancels id if it is still live.
func (s *Service) CancelJob(id coordinator.JobID) (coordinator.Outcome, bool) {
	return s.coord.CancelJob(id)
}

// Status reports readiness and job counters.
func (s *Service) Status() types.StatusResponse {
	snap := s.coord.Status()
	out := types.StatusResponse{
		Backend:       string(s.gate.State()),
		JobsSubmitted: snap.Submitted,
		JobsCompleted: snap.Completed,
		JobsCancelled: snap.Cancelled,
		JobsFailed:    snap.Failed,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if err := s.gate.Err(); err != nil {
		out.BackendError = err.Error()
	}
	if snap.HasLive {
		out.LiveJobID = snap.LiveJobID
		out.LiveJobState = snap.LiveState.String()
	}
	return out
}

// Close stops the coordinator and frees the backend.
func (s *Service) Close() error {
	err := s.coord.Close()
	if s.gate.Ready() {
		err = errors.Join(err, s.backend.Close())
	}
	return err
}
