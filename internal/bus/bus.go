package bus

import (
    "sync"
)

// Event is one fleet occurrence: a status transition, an assignment, a
// replan. Data is kept loosely typed for downstream consumers.
type Event struct {
    Type string
    Data map[string]any
}

// Publisher is the side the engine talks to.
type Publisher interface {
    Publish(topic string, evt Event)
}

// Broker fans events out to per-topic subscribers.
type Broker interface {
    Publisher
    Subscribe(topic string) chan Event
    Unsubscribe(topic string, ch chan Event)
}

// Memory is the in-process broker. Slow subscribers drop events rather than
// block the publisher.
type Memory struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewMemory() *Memory {
    return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(topic string) chan Event {
    ch := make(chan Event, 8)
    b.mu.Lock()
    if b.subs[topic] == nil { b.subs[topic] = map[chan Event]struct{}{} }
    b.subs[topic][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

// Unsubscribe is idempotent: only a channel still registered is closed.
func (b *Memory) Unsubscribe(topic string, ch chan Event) {
    b.mu.Lock()
    if m := b.subs[topic]; m != nil {
        if _, ok := m[ch]; ok {
            delete(m, ch)
            close(ch)
        }
        if len(m) == 0 { delete(b.subs, topic) }
    }
    b.mu.Unlock()
}

func (b *Memory) Publish(topic string, evt Event) {
    b.mu.Lock()
    m := b.subs[topic]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
