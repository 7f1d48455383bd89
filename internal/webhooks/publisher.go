// Package webhooks pushes fleet events to external HTTP endpoints with
// signed payloads and retrying delivery.
package webhooks

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dronenav/internal/bus"
)

// Endpoint is one configured webhook receiver. An empty Events list matches
// every event type.
type Endpoint struct {
	URL    string   `yaml:"url" json:"url"`
	Secret string   `yaml:"secret" json:"secret"`
	Events []string `yaml:"events" json:"events"`
}

func (e Endpoint) matches(eventType string) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, t := range e.Events {
		if t == eventType {
			return true
		}
	}
	return false
}

// delivery is one pending POST to one endpoint.
type delivery struct {
	id        string
	url       string
	secret    string
	eventType string
	payload   []byte
	attempts  int
	nextAt    time.Time
}

// Queue holds pending deliveries in memory. Failed attempts go back on the
// queue with a later nextAt.
type Queue struct {
	mu    sync.Mutex
	items []*delivery
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) push(d *delivery) {
	q.mu.Lock()
	q.items = append(q.items, d)
	q.mu.Unlock()
}

// due removes and returns up to limit deliveries whose nextAt has elapsed.
func (q *Queue) due(now time.Time, limit int) []*delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*delivery
	rest := q.items[:0]
	for _, d := range q.items {
		if len(out) < limit && !d.nextAt.After(now) {
			out = append(out, d)
			continue
		}
		rest = append(rest, d)
	}
	q.items = rest
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Publisher fans fleet events out to matching endpoints as queued deliveries.
type Publisher struct {
	Endpoints []Endpoint
	Queue     *Queue
	Stop      chan struct{}
}

func NewPublisher(endpoints []Endpoint) *Publisher {
	return &Publisher{Endpoints: endpoints, Queue: NewQueue(), Stop: make(chan struct{})}
}

// Run consumes a broker topic until Stop is closed.
func (p *Publisher) Run(broker bus.Broker, topic string) {
	ch := broker.Subscribe(topic)
	go func() {
		defer broker.Unsubscribe(topic, ch)
		for {
			select {
			case <-p.Stop:
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				p.Handle(evt)
			}
		}
	}()
}

// Handle enqueues one event for every matching endpoint.
func (p *Publisher) Handle(evt bus.Event) {
	var body []byte
	for _, ep := range p.Endpoints {
		if !ep.matches(evt.Type) {
			continue
		}
		if body == nil {
			payload := map[string]any{
				"id":   fmt.Sprintf("evt_%d", time.Now().UnixNano()),
				"type": evt.Type,
				"ts":   time.Now().UTC().Format(time.RFC3339),
				"data": evt.Data,
			}
			body, _ = json.Marshal(payload)
		}
		p.Queue.push(&delivery{
			id:        fmt.Sprintf("dlv_%d", time.Now().UnixNano()),
			url:       ep.URL,
			secret:    ep.Secret,
			eventType: evt.Type,
			payload:   body,
		})
	}
}
