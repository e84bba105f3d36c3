// Package events carries crawl and send progress from the orchestrators to
// whoever is watching: the console, a JSON-lines log, metrics.
package events

import (
	"fmt"
	"sync"
	"time"

	"cafenote/pkg/logger"
	"cafenote/pkg/models"
	"cafenote/pkg/window"
)

// Type names an event kind
type Type string

const (
	CrawlProgressType Type = "crawlProgress"
	CrawlCompleteType Type = "crawlComplete"
	SendProgressType  Type = "sendProgress"
	SendCompleteType  Type = "sendComplete"
)

// Event is one emitted notification. Data is one of the payload structs below.
type Event struct {
	Type  Type        `json:"type"`
	RunID string      `json:"runId"`
	At    time.Time   `json:"at"`
	Data  interface{} `json:"data"`
}

type CrawlProgress struct {
	Current int                 `json:"current"`
	Member  models.AuthorRecord `json:"member"`
	Source  string              `json:"source"`
	Period  window.Period       `json:"period"`
}

type CrawlComplete struct {
	Success bool                  `json:"success"`
	Count   int                   `json:"count"`
	Members []models.AuthorRecord `json:"members"`
	Period  window.Period         `json:"period"`
	Error   string                `json:"error,omitempty"`
}

type SendProgress struct {
	Current        int                  `json:"current"`
	Total          int                  `json:"total"`
	Member         *models.AuthorRecord `json:"member,omitempty"`
	Success        bool                 `json:"success"`
	Error          string               `json:"error,omitempty"`
	DailySentCount int                  `json:"dailySentCount"`
	LimitReached   bool                 `json:"limitReached,omitempty"`
	InitialInfo    bool                 `json:"initialInfo,omitempty"`
}

type SendComplete struct {
	Success bool               `json:"success"`
	Results models.SendResults `json:"results"`
	Error   string             `json:"error,omitempty"`
}

// Handler receives events synchronously on the publishing goroutine
type Handler func(Event)

// Publisher is what the orchestrators depend on
type Publisher interface {
	Publish(Event)
}

// Bus fans events out to subscribers in emission order
type Bus struct {
	mu       sync.Mutex
	pubMu    sync.Mutex
	nextID   int
	handlers map[int]Handler
	order    []int
	log      logger.Logger
	now      func() time.Time
}

// NewBus creates an empty bus
func NewBus(log logger.Logger) *Bus {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Bus{
		handlers: make(map[int]Handler),
		log:      log.WithField("component", "events"),
		now:      time.Now,
	}
}

// Subscribe registers h and returns a func that removes it
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev to every subscriber before returning. Publishes from
// different goroutines are serialized so all subscribers observe one order.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = b.now()
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.deliver(h, ev)
	}
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(map[string]interface{}{
				"event": string(ev.Type),
				"panic": fmt.Sprint(r),
			}).Error("Event subscriber panicked")
		}
	}()
	h(ev)
}

// Recorder is a subscriber that keeps every event, for tests and summaries
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Handle implements Handler
func (r *Recorder) Handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Publish lets a Recorder stand in for a Bus
func (r *Recorder) Publish(ev Event) { r.Handle(ev) }

// Events returns a copy of everything recorded
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
