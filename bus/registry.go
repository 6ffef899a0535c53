package bus

import (
	"strings"
	"sync"
	"time"
)

// Registry is the catalog of known bus messages. It owns the lock
// guarding message value state and the pending-update set drained by
// the bridge.
type Registry struct {
	mu sync.Mutex

	messages []*Message
	byKey    map[Key][]*Message

	pending map[Key]struct{}
	poll    []*Message
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:   make(map[Key][]*Message),
		pending: make(map[Key]struct{}),
	}
}

// Lock acquires the registry lock. Callers drive short critical
// sections only; publish calls made under the lock must not block
// beyond the transport's send buffering.
func (r *Registry) Lock() { r.mu.Lock() }

// Unlock releases the registry lock.
func (r *Registry) Unlock() { r.mu.Unlock() }

// Add registers a message, stamping its creation time if unset.
func (r *Registry) Add(m *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.Created.IsZero() {
		m.Created = time.Now()
	}

	r.messages = append(r.messages, m)
	key := m.Key()
	r.byKey[key] = append(r.byKey[key], m)
}

// Len returns the number of registered messages.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.messages)
}

// Find locates a message by exact circuit and name (case-insensitive)
// and direction. Unless anyLevel is set, only messages with the given
// level match.
func (r *Registry) Find(circuit, name, level string, write, anyLevel bool) *Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages {
		if m.Write != write {
			continue
		}
		if !strings.EqualFold(m.Circuit, circuit) || !strings.EqualFold(m.Name, name) {
			continue
		}
		if !anyLevel && m.Level != level {
			continue
		}

		return m
	}

	return nil
}

// FindAll enumerates messages across all levels and directions. When
// exact is set, a non-empty circuit or name restricts the result to
// case-insensitive exact matches; otherwise every message is returned
// and the caller applies its own filtering.
func (r *Registry) FindAll(circuit, name string, exact bool) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Message, 0, len(r.messages))

	for _, m := range r.messages {
		if exact {
			if circuit != "" && !strings.EqualFold(m.Circuit, circuit) {
				continue
			}
			if name != "" && !strings.EqualFold(m.Name, name) {
				continue
			}
		}

		out = append(out, m)
	}

	return out
}

// ByKey returns the messages sharing the given key. The caller must
// hold the registry lock.
func (r *Registry) ByKey(key Key) []*Message {
	return r.byKey[key]
}

// MarkUpdated records that the messages under key have new data
// awaiting publication. Safe to call from the bus-side producer.
func (r *Registry) MarkUpdated(key Key) {
	r.mu.Lock()
	r.pending[key] = struct{}{}
	r.mu.Unlock()
}

// HasPending reports whether any update awaits publication.
func (r *Registry) HasPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending) > 0
}

// DrainPending calls fn under the registry lock for every pending key
// with the messages sharing that key, then clears the set. A nil fn
// discards the pending updates without observing them.
func (r *Registry) DrainPending(fn func(key Key, msgs []*Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.pending {
		if fn != nil {
			fn(key, r.byKey[key])
		}
		delete(r.pending, key)
	}
}

// SetValues stores decoded values for m, updating the change timestamp
// only when the values differ, and marks the message pending.
func (r *Registry) SetValues(m *Message, values []string) {
	r.mu.Lock()

	now := time.Now()
	changed := len(values) != len(m.Values)
	if !changed {
		for i := range values {
			if values[i] != m.Values[i] {
				changed = true
				break
			}
		}
	}

	m.Values = values
	m.LastUpdate = now
	if changed {
		m.LastChange = now
	}
	key := m.Key()
	r.pending[key] = struct{}{}

	r.mu.Unlock()
}

// SetPollPriority adjusts the message's poll priority, reporting
// whether it changed.
func (r *Registry) SetPollPriority(m *Message, priority int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if priority <= 0 || m.PollPriority == priority {
		return false
	}

	m.PollPriority = priority

	return true
}

// AddPoll re-enqueues a message for scheduled polling.
func (r *Registry) AddPoll(m *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, q := range r.poll {
		if q == m {
			return
		}
	}

	r.poll = append(r.poll, m)
}

// PollQueue returns the messages enqueued for polling.
func (r *Registry) PollQueue() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Message, len(r.poll))
	copy(out, r.poll)

	return out
}
