package coordinator

import "sync"

// MemoryPublisher stores lifecycle notifications in memory for tests and the
// status endpoint's recent history.
type MemoryPublisher struct {
	mu     sync.Mutex
	limit  int
	events []Lifecycle
}

// NewMemoryPublisher keeps at most limit notifications; limit <= 0 keeps all.
func NewMemoryPublisher(limit int) *MemoryPublisher { return &MemoryPublisher{limit: limit} }

func (p *MemoryPublisher) Publish(e Lifecycle) {
	p.mu.Lock()
	p.events = append(p.events, e)
	if p.limit > 0 && len(p.events) > p.limit {
		p.events = append(p.events[:0:0], p.events[len(p.events)-p.limit:]...)
	}
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Lifecycle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Lifecycle, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the names of notifications for id, in order.
func (p *MemoryPublisher) Names(id JobID) []string {
	var out []string
	for _, e := range p.Events() {
		if e.JobID == id {
			out = append(out, e.Name)
		}
	}
	return out
}
