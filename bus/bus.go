package bus

import (
	"errors"
	"strings"
	"sync/atomic"
)

var (
	// ErrNotFound is returned for requests naming an unknown message.
	ErrNotFound = errors.New("bus: message not found")
	// ErrNoData is returned when a message has no observed data to
	// decode.
	ErrNoData = errors.New("bus: no data")
)

// A Handler carries read and write requests to the heating bus. Both
// request kinds go through ReadFromBus, distinguished by the message's
// direction.
type Handler interface {
	// ReadFromBus issues a read (or, for a write message, a write) of
	// the given message with the given payload. On success the
	// message's values have been refreshed.
	ReadFromBus(m *Message, data string) error
	// HasSignal reports whether the bus currently has a live signal.
	HasSignal() bool
}

// Local is an in-process Handler that satisfies requests from the
// registry itself: writes store the payload as the message's values
// and reads refresh the update timestamp. It stands in for a real bus
// transport in tests and stand-alone runs.
type Local struct {
	reg    *Registry
	signal atomic.Bool
}

// NewLocal returns a Local handler over the given registry with the
// signal initially present.
func NewLocal(reg *Registry) *Local {
	l := &Local{reg: reg}
	l.signal.Store(true)

	return l
}

// SetSignal flips the reported bus signal.
func (l *Local) SetSignal(ok bool) { l.signal.Store(ok) }

// HasSignal implements [Handler].
func (l *Local) HasSignal() bool { return l.signal.Load() }

// ReadFromBus implements [Handler].
func (l *Local) ReadFromBus(m *Message, data string) error {
	if m == nil {
		return ErrNotFound
	}

	if m.Write || data != "" {
		values := strings.Split(data, FieldSeparator)
		l.reg.SetValues(m, values)
		return nil
	}

	l.reg.Lock()
	values := m.Values
	l.reg.Unlock()

	if values == nil {
		return ErrNoData
	}

	l.reg.SetValues(m, values)

	return nil
}
