package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"medqa/internal/coordinator"
	"medqa/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Generate(ctx context.Context, req types.GenerateRequest, sink coordinator.Sink) (coordinator.Ticket, error)
	Cancel() (coordinator.Outcome, bool)
	CancelJob(id coordinator.JobID) (coordinator.Outcome, bool)
	EnsureInit()
	WaitForInit(ctx context.Context) error
	Ready() bool
	Status() types.StatusResponse

	CreateConversation(ctx context.Context, title string) (types.Conversation, error)
	Conversation(ctx context.Context, id string) (types.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	Conversations(ctx context.Context) ([]types.ConversationSummary, error)
}

type server struct{ svc Service }

func NewMux(svc Service) http.Handler {
	s := &server{svc: svc}
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		origins, methods, headers := corsDefaults()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: methods,
			AllowedHeaders: headers,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// Compression would buffer the NDJSON stream, so it only wraps JSON routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/status", s.handleStatus)
		r.Get("/conversations", s.handleListConversations)
		r.Post("/conversations", s.handleCreateConversation)
		r.Get("/conversations/{id}", s.handleGetConversation)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)
	})

	r.Post("/generate", s.handleGenerate)
	r.Post("/cancel", s.handleCancel)
	r.Post("/init", s.handleInit)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return true
}

// handleGenerate streams one answer as NDJSON.
//
// @Summary  Ask a question
// @Description Streams {"results":[..]}, {"response":".."}* and {"done":true} lines. A failure is a single {"error":{..}} line; a cancelled stream ends with {"cancelled":true}.
// @Tags     generate
// @Accept   json
// @Produce  application/x-ndjson
// @Param    request body types.GenerateRequest true "Question"
// @Success  200 {object} types.StreamLine
// @Failure  400 {object} types.ErrorResponse
// @Failure  404 {object} types.ErrorResponse
// @Router   /generate [post]
func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req types.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSONError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	lvl := requestLogLevel(r)
	var extra io.Writer
	if lvl <= zerolog.DebugLevel {
		extra = &streamEcho{requestID: middleware.GetReqID(r.Context())}
	}
	ctx, cancel := streamContext(r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	sink := newNDJSONSink(w, extra)
	ticket, err := s.svc.Generate(ctx, req, sink)
	if err != nil {
		status := statusFor(err)
		writeJSONError(w, status, err.Error())
		logGenerate(r, lvl, "generate end", status, start, 0, err)
		return
	}
	logGenerate(r, lvl, "generate start", 0, start, ticket.JobID, nil)

	var o coordinator.Outcome
	select {
	case o = <-sink.done:
	case <-ctx.Done():
		// Client gone, shutdown or timeout. Once CancelJob returns nothing
		// more is written for this job; Close still arrives on done.
		s.svc.CancelJob(ticket.JobID)
		o = <-sink.done
	}
	streamsEndedTotal.WithLabelValues(o.State.String()).Inc()
	logGenerate(r, lvl, "generate end", http.StatusOK, start, ticket.JobID, nil)
}

// handleCancel cancels the live job.
//
// @Summary  Cancel the running generation
// @Tags     generate
// @Produce  json
// @Success  200 {object} types.CancelResponse
// @Router   /cancel [post]
func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	o, ok := s.svc.Cancel()
	resp := types.CancelResponse{Cancelled: ok}
	if ok {
		resp.JobID = o.JobID
		resp.HadPartial = o.HadPartial
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInit starts backend loading. With ?wait=1 it blocks until loading
// resolves and reports a failure as 503.
//
// @Summary  Warm up the model
// @Tags     lifecycle
// @Produce  json
// @Param    wait query bool false "Block until loaded"
// @Success  200 {object} types.StatusResponse
// @Success  202 {object} types.StatusResponse
// @Failure  503 {object} types.ErrorResponse
// @Router   /init [post]
func (s *server) handleInit(w http.ResponseWriter, r *http.Request) {
	wait := r.URL.Query().Get("wait")
	if wait != "1" && wait != "true" {
		s.svc.EnsureInit()
		writeJSON(w, http.StatusAccepted, s.svc.Status())
		return
	}
	if err := s.svc.WaitForInit(r.Context()); err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// @Summary  Service status
// @Tags     lifecycle
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /status [get]
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// @Summary  List conversations
// @Tags     conversations
// @Produce  json
// @Success  200 {array} types.ConversationSummary
// @Router   /conversations [get]
func (s *server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Conversations(r.Context())
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": list})
}

type createConversationRequest struct {
	Title string `json:"title"`
}

// @Summary  Start a conversation
// @Tags     conversations
// @Accept   json
// @Produce  json
// @Success  201 {object} types.Conversation
// @Router   /conversations [post]
func (s *server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if r.ContentLength != 0 {
		if !requireJSON(w, r) {
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	c, err := s.svc.CreateConversation(r.Context(), req.Title)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// @Summary  Get a conversation
// @Tags     conversations
// @Produce  json
// @Param    id path string true "Conversation id"
// @Success  200 {object} types.Conversation
// @Failure  404 {object} types.ErrorResponse
// @Router   /conversations/{id} [get]
func (s *server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Conversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// @Summary  Delete a conversation
// @Tags     conversations
// @Param    id path string true "Conversation id"
// @Success  204
// @Failure  404 {object} types.ErrorResponse
// @Router   /conversations/{id} [delete]
func (s *server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
