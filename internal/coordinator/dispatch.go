package coordinator

import "sync"

type itemKind int

const (
	itemEvent itemKind = iota
	itemFail
	itemClose
)

type item struct {
	job  *job
	kind itemKind
	ev   Event
	err  *GenerationError
}

// queue is an unbounded FIFO between producers and the dispatcher so a slow
// sink never blocks the worker or a canceller.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []item
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(it item) {
	q.mu.Lock()
	if !q.closed {
		q.items = append(q.items, it)
		q.cond.Signal()
	}
	q.mu.Unlock()
}

// pop blocks until an item is available. It returns false once the queue is
// closed and drained.
func (q *queue) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return item{}, false
	}
	it := q.items[0]
	q.items[0] = item{}
	q.items = q.items[1:]
	return it, true
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// dispatch is the single delivery goroutine.
func (c *Coordinator) dispatch() {
	defer c.wg.Done()
	for {
		it, ok := c.events.pop()
		if !ok {
			return
		}
		c.deliver(it)
	}
}

func (c *Coordinator) deliver(it item) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	j := it.job
	if j.closed {
		return
	}
	switch it.kind {
	case itemEvent:
		if j.State() == StateCancelled {
			return
		}
		if it.ev.Kind == KindPartialText {
			j.hadPartial = true
			j.delivered = it.ev.Text
		}
		c.safely(j, func() { j.sink.Deliver(it.ev) })
	case itemFail:
		c.safely(j, func() { j.sink.Fail(it.err) })
	case itemClose:
		j.closed = true
		o := j.outcome()
		c.safely(j, func() { j.sink.Close(o) })
	}
}

// safely keeps a panicking sink from taking down the dispatcher.
func (c *Coordinator) safely(j *job, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Uint64("job", j.id).Interface("panic", r).Str("event", "sink_panic").Msg("coordinator")
		}
	}()
	fn()
}

// settle queues the Close of a job just marked Cancelled and returns its
// final Outcome. Taking deliverMu waits out any delivery in progress; every
// later delivery of j sees Cancelled and is dropped.
func (c *Coordinator) settle(j *job) Outcome {
	c.deliverMu.Lock()
	o := j.outcome()
	c.deliverMu.Unlock()
	c.events.push(item{job: j, kind: itemClose})
	return o
}
