package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds published by the backend. Consumers key on these strings.
const (
	KindApplicationSubmitted = "application.submitted"
	KindApplicationApproved  = "application.approved"
	KindApplicationRejected  = "application.rejected"
	KindApplicationExpired   = "application.expired"
	KindApplicationReopened  = "application.reopened"
	KindRequestReopened      = "request.reopened"
)

type Event struct {
	Id      string    `json:"id"`
	Kind    string    `json:"kind"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Publisher is a fire-and-forget change-event sink. Callers may log a
// returned error but must never let it fail the operation that produced
// the event.
type Publisher interface {
	Publish(kind string, payload any) error
}

type ApplicationEvent struct {
	ApplicationId string `json:"applicationId"`
	RequestId     string `json:"requestId"`
	BidderId      string `json:"bidderId"`
}

type RequestEvent struct {
	RequestId string `json:"requestId"`
}

// Hub fans events out to in-process subscribers. Delivery is non-blocking:
// a subscriber whose channel is full misses the event rather than stalling
// the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan Event)}
}

const subscriberBuffer = 16

func (h *Hub) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		close(ch)
	}
}

func (h *Hub) Publish(kind string, payload any) error {
	evt := Event{
		Id:      uuid.NewString(),
		Kind:    kind,
		Payload: payload,
		At:      time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}

	return nil
}

// Log writes every event to the structured log. Used alongside the hub so
// change events remain visible even with no live subscriber.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Publish(kind string, payload any) error {
	l.log.Info("event published", slog.String("kind", kind), slog.Any("payload", payload))
	return nil
}

type tee []Publisher

// Tee returns a publisher that forwards each event to every given publisher.
// The first error is returned after all publishers ran.
func Tee(pubs ...Publisher) Publisher {
	return tee(pubs)
}

func (t tee) Publish(kind string, payload any) error {
	var first error
	for _, p := range t {
		if err := p.Publish(kind, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}
