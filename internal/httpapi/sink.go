package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"medqa/internal/coordinator"
)

// ndjsonSink writes one job's stream as NDJSON lines. It runs on the
// coordinator's delivery goroutine while the handler waits on done.
type ndjsonSink struct {
	w      io.Writer
	flush  func()
	broken bool
	done   chan coordinator.Outcome
}

func newNDJSONSink(w http.ResponseWriter, extra io.Writer) *ndjsonSink {
	s := &ndjsonSink{w: w, done: make(chan coordinator.Outcome, 1)}
	if extra != nil {
		s.w = io.MultiWriter(w, extra)
	}
	if f, ok := w.(http.Flusher); ok {
		s.flush = f.Flush
	}
	return s
}

func (s *ndjsonSink) writeLine(v map[string]any) {
	if s.broken || v == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		// Client went away; the handler cancels the job.
		s.broken = true
		return
	}
	if s.flush != nil {
		s.flush()
	}
}

func (s *ndjsonSink) Deliver(e coordinator.Event) { s.writeLine(e.Wire()) }

func (s *ndjsonSink) Fail(err *coordinator.GenerationError) { s.writeLine(err.Wire()) }

func (s *ndjsonSink) Close(o coordinator.Outcome) {
	if o.State == coordinator.StateCancelled {
		s.writeLine(map[string]any{"cancelled": true, "had_partial": o.HadPartial})
	}
	s.done <- o
}
