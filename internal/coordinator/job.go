package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"medqa/internal/engine"
)

// State is a job lifecycle state.
type State int32

const (
	StateQueued State = iota
	StateRetrieving
	StateGenerating
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s >= StateCompleted }

// JobID identifies a job. IDs are assigned monotonically starting at 1.
type JobID = uint64

type job struct {
	id      JobID
	req     Request
	sink    Sink
	ctx     context.Context
	cancel  context.CancelFunc
	created time.Time

	state atomic.Int32

	// session is attached and detached under Coordinator.mu.
	session engine.Session

	// Owned by the dispatcher; read by cancellers only after the delivery barrier.
	delivered  string
	hadPartial bool
	closed     bool
}

func (j *job) State() State { return State(j.state.Load()) }

// advance moves from one live state to the next. It fails once the job has
// been cancelled, which is how the worker learns it is no longer live.
func (j *job) advance(from, to State) bool {
	return j.state.CompareAndSwap(int32(from), int32(to))
}

// markCancelled moves any non-terminal state to Cancelled.
func (j *job) markCancelled() bool {
	for {
		cur := j.State()
		if cur.Terminal() {
			return false
		}
		if j.state.CompareAndSwap(int32(cur), int32(StateCancelled)) {
			return true
		}
	}
}

// finish moves a live state to a terminal one unless the job was cancelled first.
func (j *job) finish(to State) bool {
	for {
		cur := j.State()
		if cur.Terminal() {
			return false
		}
		if j.state.CompareAndSwap(int32(cur), int32(to)) {
			return true
		}
	}
}

func (j *job) outcome() Outcome {
	return Outcome{JobID: j.id, State: j.State(), HadPartial: j.hadPartial, Text: j.delivered}
}
