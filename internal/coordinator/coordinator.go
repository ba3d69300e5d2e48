package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"medqa/internal/engine"
	"medqa/internal/prompt"
	"medqa/internal/retrieval"
)

// Request is one question submitted for generation. It is not modified after
// Submit.
type Request struct {
	Query        string
	History      []prompt.Turn
	UseRetrieval bool
}

// Ticket is returned by Submit.
type Ticket struct {
	JobID JobID
	// Preempted is the final outcome of the job this submission replaced.
	Preempted *Outcome
}

// Snapshot is a point-in-time view of the coordinator.
type Snapshot struct {
	LiveJobID JobID
	LiveState State
	HasLive   bool
	Submitted uint64
	Completed uint64
	Cancelled uint64
	Failed    uint64
}

// Coordinator serializes generation onto one worker. Create with New.
type Coordinator struct {
	backend   engine.Backend
	retriever retrieval.Retriever
	gate      Initializer
	budget    prompt.Budget
	params    engine.InferParams
	log       zerolog.Logger
	pub       LifecyclePublisher

	mu     sync.Mutex
	nextID JobID
	live   *job
	next   *job
	closed bool
	counts struct{ submitted, completed, cancelled, failed uint64 }

	wake      chan struct{}
	stop      chan struct{}
	events    *queue
	deliverMu sync.Mutex

	wg        sync.WaitGroup
	workerWG  sync.WaitGroup
	closeOnce sync.Once
}

// New starts the worker and dispatcher goroutines. Call Close to stop them.
func New(cfg Config) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	c := &Coordinator{
		backend:   cfg.Backend,
		retriever: cfg.Retriever,
		gate:      cfg.Gate,
		budget:    cfg.Budget.WithDefaults(),
		params:    cfg.Params,
		log:       cfg.Logger,
		pub:       pub,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		events:    newQueue(),
	}
	c.wg.Add(1)
	go c.dispatch()
	c.workerWG.Add(1)
	go c.work()
	return c, nil
}

// Submit validates req, preempts the live job if any, and queues a new job
// whose stream goes to sink. It does not wait for retrieval or generation.
func (c *Coordinator) Submit(req Request, sink Sink) (Ticket, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Ticket{}, ErrEmptyQuery
	}
	if sink == nil {
		sink = SinkFuncs{}
	}
	req.History = append([]prompt.Turn(nil), req.History...)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Ticket{}, ErrClosed
	}
	old := c.preemptLocked()
	c.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{id: c.nextID, req: req, sink: sink, ctx: ctx, cancel: cancel, created: time.Now()}
	j.state.Store(int32(StateQueued))
	c.live = j
	c.next = j
	c.counts.submitted++
	c.mu.Unlock()

	if c.gate != nil {
		c.gate.EnsureInit()
	}
	t := Ticket{JobID: j.id}
	if old != nil {
		preemptionsTotal.Inc()
		o := c.settle(old)
		t.Preempted = &o
		c.log.Info().Uint64("job", old.id).Uint64("by", j.id).Bool("had_partial", o.HadPartial).Str("event", "job_preempted").Msg("coordinator")
		c.pub.Publish(Lifecycle{Name: "job_preempted", JobID: old.id, Fields: map[string]any{"by": j.id}})
	}
	c.log.Info().Uint64("job", j.id).Bool("use_retrieval", req.UseRetrieval).Int("history_turns", len(req.History)).Str("event", "job_submitted").Msg("coordinator")
	c.pub.Publish(Lifecycle{Name: "job_submitted", JobID: j.id})

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return t, nil
}

// Cancel cancels the live job. It reports false, and does nothing, when no
// job is live. After it returns no further event of that job is delivered.
func (c *Coordinator) Cancel() (Outcome, bool) {
	c.mu.Lock()
	j := c.preemptLocked()
	c.mu.Unlock()
	return c.finishCancel(j)
}

// CancelJob cancels id only if it is the live job.
func (c *Coordinator) CancelJob(id JobID) (Outcome, bool) {
	c.mu.Lock()
	var j *job
	if c.live != nil && c.live.id == id {
		j = c.preemptLocked()
	}
	c.mu.Unlock()
	return c.finishCancel(j)
}

func (c *Coordinator) finishCancel(j *job) (Outcome, bool) {
	if j == nil {
		return Outcome{}, false
	}
	o := c.settle(j)
	c.log.Info().Uint64("job", j.id).Bool("had_partial", o.HadPartial).Str("event", "job_cancelled").Msg("coordinator")
	c.pub.Publish(Lifecycle{Name: "job_cancelled", JobID: j.id})
	return o, true
}

// preemptLocked cancels the live job and returns it, or nil. The abort is
// issued here, under mu, so it happens before any later session is started.
func (c *Coordinator) preemptLocked() *job {
	j := c.live
	if j == nil {
		return nil
	}
	c.live = nil
	if c.next == j {
		c.next = nil
	}
	if !j.markCancelled() {
		return nil
	}
	j.cancel()
	if j.session != nil {
		j.session.Abort()
	}
	c.counts.cancelled++
	c.observe(j, StateCancelled)
	return j
}

// retire clears j as the live job after it reached a terminal state on the worker.
func (c *Coordinator) retire(j *job) {
	c.mu.Lock()
	if c.live == j {
		c.live = nil
	}
	switch j.State() {
	case StateCompleted:
		c.counts.completed++
	case StateFailed:
		c.counts.failed++
	}
	c.mu.Unlock()
}

func (c *Coordinator) observe(j *job, s State) {
	jobsTotal.WithLabelValues(s.String()).Inc()
	jobDuration.WithLabelValues(s.String()).Observe(time.Since(j.created).Seconds())
}

// Status returns a snapshot of the live job and outcome counters.
func (c *Coordinator) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Submitted: c.counts.submitted,
		Completed: c.counts.completed,
		Cancelled: c.counts.cancelled,
		Failed:    c.counts.failed,
	}
	if c.live != nil {
		s.HasLive = true
		s.LiveJobID = c.live.id
		s.LiveState = c.live.State()
	}
	return s
}

// Close cancels the live job, stops the worker and drains delivery. It is
// safe to call more than once.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		j := c.preemptLocked()
		c.mu.Unlock()
		if j != nil {
			c.settle(j)
		}
		close(c.stop)
		c.workerWG.Wait()
		c.events.close()
		c.wg.Wait()
		c.log.Info().Str("event", "closed").Msg("coordinator")
	})
	return nil
}
