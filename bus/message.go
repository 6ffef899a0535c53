// Package bus holds the heating-bus side collaborators of the bridge:
// the message catalog, the registry guarding it, and the handler
// interface the bridge issues read and write requests through.
package bus

import (
	"fmt"
	"strings"
	"time"
)

// FieldSeparator separates field values in bus payloads and in the
// value part of inbound requests.
const FieldSeparator = ";"

// DataKind classifies a field's decoded data, replacing runtime type
// inspection with a closed enumeration.
type DataKind int

const (
	KindString DataKind = iota
	KindNumber
	KindDate
	KindTime
	KindDateTime
)

var kindNames = map[string]DataKind{
	"string":   KindString,
	"number":   KindNumber,
	"date":     KindDate,
	"time":     KindTime,
	"datetime": KindDateTime,
}

func (k DataKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindDateTime:
		return "datetime"
	default:
		return "string"
	}
}

// UnmarshalYAML implements yaml unmarshalling from the kind name.
func (k *DataKind) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	kind, ok := kindNames[strings.ToLower(s)]
	if !ok {
		return fmt.Errorf("bus: unknown data kind %q", s)
	}
	*k = kind

	return nil
}

// A Field describes one decoded value of a message.
type Field struct {
	Name    string   `yaml:"name"`
	Kind    DataKind `yaml:"kind"`
	Bits    int      `yaml:"bits,omitempty"`
	Unit    string   `yaml:"unit,omitempty"`
	Comment string   `yaml:"comment,omitempty"`
	Ignored bool     `yaml:"ignored,omitempty"`
}

// TypeSuffix returns the fixed type suffix used to select payload
// templates for the field: a numeric field narrower than 8 bits is
// "bits", any other numeric field is "number", and date or time fields
// map to "date", "time", or "datetime".
func (f *Field) TypeSuffix() string {
	switch f.Kind {
	case KindNumber:
		if f.Bits > 0 && f.Bits < 8 {
			return "bits"
		}
		return "number"
	case KindDateTime:
		return "datetime"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	default:
		return "string"
	}
}

// A Key groups messages that share a bus identity across levels and
// directions.
type Key string

// A Message is one entry of the bus message catalog. The value state
// (Values and the update timestamps) is guarded by the owning
// registry's lock.
type Message struct {
	Circuit string  `yaml:"circuit"`
	Name    string  `yaml:"name"`
	Level   string  `yaml:"level,omitempty"`
	ID      string  `yaml:"id,omitempty"`
	Write   bool    `yaml:"write,omitempty"`
	Passive bool    `yaml:"passive,omitempty"`
	Fields  []Field `yaml:"fields"`

	PollPriority int `yaml:"priority,omitempty"`

	Created    time.Time `yaml:"-"`
	LastUpdate time.Time `yaml:"-"`
	LastChange time.Time `yaml:"-"`
	Values     []string  `yaml:"-"`
}

// Key returns the grouping key of the message: the explicit ID when
// set, else the case-folded circuit/name pair.
func (m *Message) Key() Key {
	if m.ID != "" {
		return Key(m.ID)
	}

	return Key(strings.ToLower(m.Circuit) + "/" + strings.ToLower(m.Name))
}

// Direction returns the direction code published in definition
// records: "w" for an active write, "uw" for a passive write, "r" for
// a passive read, and "u" for an active read.
func (m *Message) Direction() string {
	if m.Write {
		if m.Passive {
			return "uw"
		}
		return "w"
	}
	if m.Passive {
		return "r"
	}

	return "u"
}

// Available reports whether the message has observed data.
func (m *Message) Available() bool {
	return !m.LastUpdate.IsZero()
}

// FieldName returns the name of field i, or "0" for a single unnamed
// field.
func (m *Message) FieldName(i int) string {
	if i < 0 || i >= len(m.Fields) {
		return ""
	}

	name := m.Fields[i].Name
	if name == "" && len(m.Fields) == 1 {
		name = "0"
	}

	return name
}

// Value returns the decoded value of field i, or "" if no data has
// been observed for it.
func (m *Message) Value(i int) string {
	if i < 0 || i >= len(m.Values) {
		return ""
	}

	return m.Values[i]
}
