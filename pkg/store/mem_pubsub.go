package store

import (
	"context"
	"strings"
	"sync"
)

// MemPubSub is an in-process PubSub used by tests in place of
// RedisPubSub. Pattern matching supports only the trailing "*" wildcard
// form the Store actually produces (e.g. "relayer:ambMessage:*").
type MemPubSub struct {
	mu          sync.Mutex
	subscribers map[string]map[int]func(payload []byte)
	patterns    map[string]map[int]func(channel string, payload []byte)
	nextID      int
}

// NewMemPubSub returns an empty MemPubSub.
func NewMemPubSub() *MemPubSub {
	return &MemPubSub{
		subscribers: make(map[string]map[int]func(payload []byte)),
		patterns:    make(map[string]map[int]func(channel string, payload []byte)),
	}
}

func (m *MemPubSub) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	var direct []func(payload []byte)
	for _, h := range m.subscribers[channel] {
		direct = append(direct, h)
	}
	var matched []func(channel string, payload []byte)
	for pattern, handlers := range m.patterns {
		if !patternMatch(pattern, channel) {
			continue
		}
		for _, h := range handlers {
			matched = append(matched, h)
		}
	}
	m.mu.Unlock()

	for _, h := range direct {
		h(payload)
	}
	for _, h := range matched {
		h(channel, payload)
	}
	return nil
}

func (m *MemPubSub) Subscribe(_ context.Context, channel string, handler func(payload []byte)) func() {
	m.mu.Lock()
	if m.subscribers[channel] == nil {
		m.subscribers[channel] = make(map[int]func(payload []byte))
	}
	id := m.nextID
	m.nextID++
	m.subscribers[channel][id] = handler
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers[channel], id)
		m.mu.Unlock()
	}
}

func (m *MemPubSub) PSubscribe(_ context.Context, pattern string, handler func(channel string, payload []byte)) func() {
	m.mu.Lock()
	if m.patterns[pattern] == nil {
		m.patterns[pattern] = make(map[int]func(channel string, payload []byte))
	}
	id := m.nextID
	m.nextID++
	m.patterns[pattern][id] = handler
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.patterns[pattern], id)
		m.mu.Unlock()
	}
}

func patternMatch(pattern, channel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return pattern == channel
}
