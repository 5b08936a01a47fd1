package bus

import (
	"strings"
	"sync"
)

// MemoryBus delivers events in-process. Used when NATS is not configured.
type MemoryBus struct {
	mu   sync.RWMutex
	subs []memorySub
}

type memorySub struct {
	pattern string
	handler func(*Event) error
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish delivers evt synchronously to every matching subscriber.
func (m *MemoryBus) Publish(subject string, evt *Event) error {
	if m == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptyTopic
	}
	if evt == nil {
		return errNilEvent
	}
	m.mu.RLock()
	subs := append([]memorySub(nil), m.subs...)
	m.mu.RUnlock()
	for _, sub := range subs {
		if subjectMatches(sub.pattern, subject) {
			_ = sub.handler(evt)
		}
	}
	return nil
}

// Subscribe registers handler for subjects matching pattern. Queue groups are ignored.
func (m *MemoryBus) Subscribe(pattern, _ string, handler func(*Event) error) error {
	if m == nil {
		return errNilBus
	}
	if pattern == "" {
		return errEmptyTopic
	}
	if handler == nil {
		return errNilEvent
	}
	m.mu.Lock()
	m.subs = append(m.subs, memorySub{pattern: pattern, handler: handler})
	m.mu.Unlock()
	return nil
}

// subjectMatches implements NATS token wildcards: "*" matches one token, ">" the rest.
func subjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, tok := range pt {
		if tok == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
