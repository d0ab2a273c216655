package transport

import (
	"strings"
	"sync"
)

// MemoryBus is an in-process Bus used by scenario and package tests: it
// supports the same MQTT wildcard matching (+, #) that a real broker
// does, and honors retained-message semantics (a late subscriber to a
// topic with a retained message receives it immediately).
type MemoryBus struct {
	mu       sync.Mutex
	subs     map[string]func(topic string, payload []byte)
	retained map[string][]byte
}

// NewMemoryBus constructs an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:     make(map[string]func(topic string, payload []byte)),
		retained: make(map[string][]byte),
	}
}

func (b *MemoryBus) Publish(topic string, qos byte, retained bool, payload []byte) error {
	b.mu.Lock()
	if retained {
		if len(payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = append([]byte(nil), payload...)
		}
	}
	handlers := make(map[string]func(string, []byte), len(b.subs))
	for pattern, h := range b.subs {
		if topicMatches(pattern, topic) {
			handlers[pattern] = h
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	b.mu.Lock()
	b.subs[topic] = handler
	var toReplay []func()
	for t, payload := range b.retained {
		if topicMatches(topic, t) {
			tCopy, payloadCopy := t, payload
			toReplay = append(toReplay, func() { handler(tCopy, payloadCopy) })
		}
	}
	b.mu.Unlock()

	for _, replay := range toReplay {
		replay()
	}
	return nil
}

func (b *MemoryBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, topic)
	return nil
}

func (b *MemoryBus) Disconnect(quiesceMillis uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string]func(topic string, payload []byte))
}

// topicMatches reports whether topic matches the MQTT subscription
// pattern, supporting the '+' single-level and '#' multi-level wildcards.
func topicMatches(pattern, topic string) bool {
	pParts := strings.Split(pattern, "/")
	tParts := strings.Split(topic, "/")

	for i, p := range pParts {
		if p == "#" {
			return true
		}
		if i >= len(tParts) {
			return false
		}
		if p != "+" && p != tParts[i] {
			return false
		}
	}
	return len(pParts) == len(tParts)
}
