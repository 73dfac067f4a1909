package httppresentation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	domoutbox "github.com/tablekit/backhouse/internal/domain/outbox"
	"github.com/tablekit/backhouse/internal/observability"
)

// EventHub fans drained outbox events out to connected SSE clients. It is an
// ordinary outbox subscriber, so browser streams lag the durable log, never
// lead it.
type EventHub struct {
	mu   sync.RWMutex
	subs map[chan streamEvent]string // value: topic filter, "" = all
	log  observability.Logger
}

type streamEvent struct {
	Topic   string          `json:"topic"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

func NewEventHub(logger observability.Logger) *EventHub {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &EventHub{
		subs: map[chan streamEvent]string{},
		log:  logger.With(observability.F("component", "event_hub")),
	}
}

// Handle implements the outbox subscriber contract. A slow client drops
// events rather than blocking the consumer loop.
func (h *EventHub) Handle(ctx context.Context, e domoutbox.Event) error {
	_ = ctx
	ev := streamEvent{Topic: e.Topic, Key: e.Key, Payload: e.Payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch, topic := range h.subs {
		if topic != "" && topic != e.Topic {
			continue
		}
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (h *EventHub) subscribe(topic string) chan streamEvent {
	ch := make(chan streamEvent, 64)
	h.mu.Lock()
	h.subs[ch] = topic
	h.mu.Unlock()
	return ch
}

func (h *EventHub) unsubscribe(ch chan streamEvent) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// ServeHTTP streams events as text/event-stream. An optional ?topic= query
// narrows the stream to one topic.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.subscribe(r.URL.Query().Get("topic"))
	defer h.unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Topic, data)
			flusher.Flush()
		}
	}
}
