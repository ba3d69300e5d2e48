package coordinator

import "medqa/internal/retrieval"

// EventKind tags an Event.
type EventKind int

const (
	KindRetrievedDocs EventKind = iota + 1
	KindPartialText
	KindDone
)

func (k EventKind) String() string {
	switch k {
	case KindRetrievedDocs:
		return "retrieved_docs"
	case KindPartialText:
		return "partial_text"
	case KindDone:
		return "done"
	}
	return "unknown"
}

// Event is one item of a job's stream. Text carries the complete answer so
// far for PartialText.
type Event struct {
	JobID    JobID
	Kind     EventKind
	Passages []retrieval.Passage
	Text     string
}

// Wire returns the map form sent to consumers.
func (e Event) Wire() map[string]any {
	switch e.Kind {
	case KindRetrievedDocs:
		return map[string]any{"results": retrieval.Texts(e.Passages)}
	case KindPartialText:
		return map[string]any{"response": e.Text}
	case KindDone:
		return map[string]any{"done": true}
	}
	return nil
}

// Outcome describes how a job's stream ended.
type Outcome struct {
	JobID JobID
	State State
	// HadPartial is true when at least one PartialText reached the sink.
	HadPartial bool
	// Text is the last PartialText delivered.
	Text string
}

// Sink receives one job's stream on the dispatcher goroutine. Close is called
// exactly once, last. Implementations must not call into the Coordinator.
type Sink interface {
	Deliver(Event)
	Fail(*GenerationError)
	Close(Outcome)
}

// SinkFuncs adapts functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnEvent func(Event)
	OnError func(*GenerationError)
	OnClose func(Outcome)
}

func (s SinkFuncs) Deliver(e Event) {
	if s.OnEvent != nil {
		s.OnEvent(e)
	}
}

func (s SinkFuncs) Fail(err *GenerationError) {
	if s.OnError != nil {
		s.OnError(err)
	}
}

func (s SinkFuncs) Close(o Outcome) {
	if s.OnClose != nil {
		s.OnClose(o)
	}
}

// Lifecycle is a coordinator lifecycle notification, separate from the
// per-job Sink stream. Minimal and stable: name + job ID and optional fields.
type Lifecycle struct {
	Name   string
	JobID  JobID
	Fields map[string]any
}

// LifecyclePublisher receives lifecycle notifications. Implementations should
// be lightweight and non-blocking; Publish must not panic.
type LifecyclePublisher interface {
	Publish(Lifecycle)
}

// noopPublisher is the default; it drops notifications.
type noopPublisher struct{}

func (noopPublisher) Publish(Lifecycle) {}
