package coordinator

import (
	"errors"
	"fmt"
	"strings"

	"medqa/internal/engine"
	"medqa/internal/prompt"
	"medqa/internal/readiness"
	"medqa/internal/retrieval"
)

// errNotLive stops the worker for a job that was cancelled between steps.
var errNotLive = errors.New("job no longer live")

// work is the single worker goroutine; retrieval and generation for all jobs
// run here, one job at a time.
func (c *Coordinator) work() {
	defer c.workerWG.Done()
	for {
		select {
		case <-c.stop:
			return
		case <-c.wake:
		}
		c.mu.Lock()
		j := c.next
		c.next = nil
		c.mu.Unlock()
		if j != nil {
			c.run(j)
		}
	}
}

func (c *Coordinator) run(j *job) {
	defer c.retire(j)
	err := c.execute(j)
	if err == nil {
		if !j.finish(StateCompleted) {
			return
		}
		c.observe(j, StateCompleted)
		c.log.Info().Uint64("job", j.id).Str("event", "job_completed").Msg("coordinator")
		c.pub.Publish(Lifecycle{Name: "job_completed", JobID: j.id})
		c.emit(j, Event{Kind: KindDone})
		c.events.push(item{job: j, kind: itemClose})
		return
	}
	if errors.Is(err, errNotLive) || j.State() == StateCancelled {
		return
	}
	kind := KindGenerationFailed
	if readiness.IsBackendUnavailable(err) {
		kind = KindBackendUnavailable
	}
	if !j.finish(StateFailed) {
		return
	}
	c.observe(j, StateFailed)
	c.log.Error().Err(err).Uint64("job", j.id).Str("kind", kind).Str("event", "job_failed").Msg("coordinator")
	c.pub.Publish(Lifecycle{Name: "job_failed", JobID: j.id, Fields: map[string]any{"kind": kind}})
	c.events.push(item{job: j, kind: itemFail, err: newGenerationError(j.id, kind, err)})
	c.events.push(item{job: j, kind: itemClose})
}

// execute drives one job from Queued to the end of generation. Panics from
// collaborators are recovered here and surface as failures.
func (c *Coordinator) execute(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Uint64("job", j.id).Interface("panic", r).Str("event", "job_panic").Msg("coordinator")
			err = panicError{v: r}
		}
	}()

	if c.gate != nil {
		if err := c.gate.WaitForInit(j.ctx); err != nil {
			return err
		}
	}
	if !j.advance(StateQueued, StateRetrieving) {
		return errNotLive
	}
	c.pub.Publish(Lifecycle{Name: "job_retrieving", JobID: j.id})

	var passages []retrieval.Passage
	if j.req.UseRetrieval {
		passages, err = c.retriever.Retrieve(j.ctx, j.req.Query)
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}
		c.emit(j, Event{Kind: KindRetrievedDocs, Passages: passages})
	}

	if !j.advance(StateRetrieving, StateGenerating) {
		return errNotLive
	}
	c.pub.Publish(Lifecycle{Name: "job_generating", JobID: j.id})

	contextText := prompt.JoinPassages(retrieval.Texts(passages))
	history, truncated := prompt.Truncate(j.req.History, contextText, j.req.Query, c.budget)
	if truncated {
		historyTruncationsTotal.Inc()
		c.log.Info().Uint64("job", j.id).Int("kept_turns", len(history)).Int("turns", len(j.req.History)).Str("event", "history_truncated").Msg("coordinator")
	}
	text := prompt.Assemble(contextText, history, j.req.Query)

	sess, err := c.backend.Start(c.params)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if !c.attach(j, sess) {
		_ = sess.Close()
		return errNotLive
	}
	defer c.detach(j, sess)

	var acc strings.Builder
	final, err := sess.Generate(j.ctx, text, func(delta string) error {
		if j.State() != StateGenerating {
			return engine.ErrAborted
		}
		acc.WriteString(delta)
		c.emit(j, Event{Kind: KindPartialText, Text: acc.String()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if acc.Len() == 0 && final.Content != "" {
		c.emit(j, Event{Kind: KindPartialText, Text: final.Content})
	}
	return nil
}

// attach records the session so a canceller can abort it. It fails if the
// job was cancelled while the session was being created.
func (c *Coordinator) attach(j *job, s engine.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j.State() != StateGenerating {
		return false
	}
	j.session = s
	return true
}

// detach clears the session reference under mu before closing it, so no
// canceller can abort a closed session.
func (c *Coordinator) detach(j *job, s engine.Session) {
	c.mu.Lock()
	j.session = nil
	c.mu.Unlock()
	if err := s.Close(); err != nil {
		c.log.Warn().Err(err).Uint64("job", j.id).Str("event", "session_close_failed").Msg("coordinator")
	}
}

func (c *Coordinator) emit(j *job, ev Event) {
	if j.State() == StateCancelled {
		return
	}
	ev.JobID = j.id
	c.events.push(item{job: j, kind: itemEvent, ev: ev})
}
