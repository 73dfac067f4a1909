package outbox

import (
	"sync"

	domain "github.com/tablekit/backhouse/internal/domain/outbox"
)

// Registry holds the subscriber set. It is constructed at startup so the set
// of active subscribers is inspectable and testable.
type Registry struct {
	mu   sync.RWMutex
	subs map[string][]domain.Handler
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string][]domain.Handler)}
}

func (r *Registry) Subscribe(topic string, h domain.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[topic] = append(r.subs[topic], h)
}

// HandlersFor returns a copy of the handler list for a topic.
func (r *Registry) HandlersFor(topic string) []domain.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Handler(nil), r.subs[topic]...)
}

// Topics lists every topic with at least one subscriber.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.subs))
	for topic := range r.subs {
		out = append(out, topic)
	}
	return out
}
