package bridge

import (
	"strconv"
	"strings"

	"github.com/faelwyn/busmq/bus"
	"github.com/faelwyn/busmq/log"
)

// getTopic renders the outbound topic for a message. A nil message
// renders the template up to its first empty field, which yields the
// literal namespace prefix used for the global topics.
func (b *Bridge) getTopic(m *bus.Message, suffix, fieldName string) string {
	values := map[string]string{}
	if m != nil {
		values["circuit"] = m.Circuit
		values["name"] = m.Name
		if fieldName != "" {
			values["field"] = fieldName
		}
	}

	return b.topic.Render(values, true, false) + suffix
}

// publishMessage publishes the current values of a message, either as
// one combined payload or per field when the topic template addresses
// individual fields. With includeWithoutData, a message that never
// received data clears its topic instead.
func (b *Bridge) publishMessage(m *bus.Message, includeWithoutData bool) {
	noData := includeWithoutData && m.LastUpdate.IsZero()

	if !b.publishByField {
		if noData {
			b.publishEmpty(b.getTopic(m, "", ""))
			return
		}

		payload, ok := b.combinedPayload(m)
		if !ok {
			return
		}
		b.publish(b.getTopic(m, "", ""), payload, false)
		return
	}

	for i, f := range m.Fields {
		if f.Ignored {
			continue
		}

		name := m.FieldName(i)
		if noData {
			b.publishEmpty(b.getTopic(m, "", name))
			continue
		}

		payload, ok := b.fieldPayload(m, i)
		if !ok {
			return
		}
		b.publish(b.getTopic(m, "", name), payload, false)
	}
}

// combinedPayload renders all non-ignored fields into one payload.
func (b *Bridge) combinedPayload(m *bus.Message) (string, bool) {
	if !b.cfg.JSON {
		if !b.cfg.Verbose {
			return strings.Join(m.Values, bus.FieldSeparator), true
		}

		var sb strings.Builder
		for i, f := range m.Fields {
			if f.Ignored {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString(bus.FieldSeparator)
			}
			sb.WriteString(m.FieldName(i))
			sb.WriteByte('=')
			sb.WriteString(m.Value(i))
			if f.Unit != "" {
				sb.WriteByte(' ')
				sb.WriteString(f.Unit)
			}
			if f.Comment != "" {
				sb.WriteString(" [")
				sb.WriteString(f.Comment)
				sb.WriteByte(']')
			}
		}
		return sb.String(), true
	}

	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	for i, f := range m.Fields {
		if f.Ignored {
			continue
		}

		value, ok := b.jsonValue(m, i)
		if !ok {
			return "", false
		}

		if !first {
			sb.WriteString(", ")
		}
		first = false

		sb.WriteString(strconv.Quote(m.FieldName(i)))
		sb.WriteString(": ")
		if b.cfg.Verbose {
			sb.WriteString(`{"value": `)
			sb.WriteString(value)
			if f.Unit != "" {
				sb.WriteString(`, "unit": `)
				sb.WriteString(strconv.Quote(f.Unit))
			}
			if f.Comment != "" {
				sb.WriteString(`, "comment": `)
				sb.WriteString(strconv.Quote(f.Comment))
			}
			sb.WriteByte('}')
		} else {
			sb.WriteString(value)
		}
	}
	sb.WriteByte('}')

	return sb.String(), true
}

// fieldPayload renders a single field's value.
func (b *Bridge) fieldPayload(m *bus.Message, i int) (string, bool) {
	if !b.cfg.JSON {
		return m.Value(i), true
	}

	value, ok := b.jsonValue(m, i)
	if !ok {
		return "", false
	}
	if !b.cfg.Verbose {
		return value, true
	}

	var sb strings.Builder
	sb.WriteString(`{"value": `)
	sb.WriteString(value)
	if u := m.Fields[i].Unit; u != "" {
		sb.WriteString(`, "unit": `)
		sb.WriteString(strconv.Quote(u))
	}
	if c := m.Fields[i].Comment; c != "" {
		sb.WriteString(`, "comment": `)
		sb.WriteString(strconv.Quote(c))
	}
	sb.WriteByte('}')

	return sb.String(), true
}

// jsonValue renders field i as a JSON scalar: numeric kinds stay raw,
// everything else is quoted. A numeric field whose value does not
// parse cannot be emitted as valid JSON; that message is skipped.
func (b *Bridge) jsonValue(m *bus.Message, i int) (string, bool) {
	v := m.Value(i)

	if k := m.Fields[i].Kind; k == bus.KindNumber {
		if v == "" {
			return "null", true
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			log.Error("Decode "+m.Circuit+" "+m.Name+" "+m.FieldName(i), err)
			return "", false
		}
		return v, true
	}

	return strconv.Quote(v), true
}
