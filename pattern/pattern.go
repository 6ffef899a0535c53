// Package pattern implements the topic/payload template engine of the
// bridge. A template mixes literal text with named field placeholders
// introduced by '%'. Compiled patterns render against a set of values,
// reverse-match live topics back into fields, and reduce to constants
// once all referenced fields are known.
package pattern

import (
	"errors"
	"strings"
)

// The known field names, in index order. Any other field name compiles
// with index [FieldUnknown] and is discarded by [Pattern.MatchTopic].
const (
	FieldCircuit = iota
	FieldName
	FieldField

	FieldUnknown

	literal = -1
)

var knownFields = [...]string{"circuit", "name", "field"}

var (
	// ErrUnknownField is returned by [Compile] when OnlyKnownFields is
	// set and the template references a field other than circuit, name,
	// or field.
	ErrUnknownField = errors.New("pattern: unknown field")
	// ErrDuplicateField is returned by [Compile] when NoKnownDuplicates
	// is set and a known field appears more than once.
	ErrDuplicateField = errors.New("pattern: duplicate known field")
)

// A Part is a single span of a compiled template, either literal text
// (index < 0) or a field reference.
type Part struct {
	Text  string
	Index int
}

func makePart(text string, isField bool) Part {
	if !isField {
		return Part{text, literal}
	}

	for i, name := range knownFields {
		if text == name {
			return Part{text, i}
		}
	}

	return Part{text, FieldUnknown}
}

// A Pattern is a compiled template. The zero value is an empty pattern.
// Patterns are immutable once compiled and safe for concurrent use.
type Pattern struct {
	parts          []Part
	emptyIfMissing bool
}

// Options control [Compile].
type Options struct {
	// OnlyKnownFields rejects any field other than circuit, name, field.
	OnlyKnownFields bool
	// NoKnownDuplicates rejects a known field appearing twice.
	NoKnownDuplicates bool
	// EmptyIfMissing makes [Pattern.Reduce] short-circuit to an empty
	// successful result when a field is missing or blank.
	EmptyIfMissing bool
}

func isFieldChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

// Compile parses the given template. '%' introduces a field name of
// [A-Za-z_]+, "%%" is a literal '%', and everything else is literal
// text. A field name ends at the first non-identifier character,
// another '%', or the end of the template.
func Compile(template string, opts Options) (*Pattern, error) {
	var (
		parts   []Part
		stack   strings.Builder
		inField bool
	)

	end := len(template)
	for pos := 0; pos <= end; pos++ {
		var ch byte
		if pos < end {
			ch = template[pos]
		}

		empty := stack.Len() == 0

		if ch == '%' || ch == 0 {
			if inField && empty { // %% for plain %
				inField = false
				stack.WriteByte(ch)
			} else {
				if !empty {
					parts = append(parts, makePart(stack.String(), inField))
					stack.Reset()
				}
				inField = true
			}

			continue
		}

		if inField && !isFieldChar(ch) {
			// invalid field character ends the field
			if stack.Len() > 0 {
				parts = append(parts, makePart(stack.String(), true))
				stack.Reset()
			}
			inField = false
		}

		stack.WriteByte(ch)
	}

	if opts.OnlyKnownFields || opts.NoKnownDuplicates {
		var found int

		for _, p := range parts {
			if p.Index == literal {
				continue
			}
			if opts.OnlyKnownFields && p.Index >= len(knownFields) {
				return nil, ErrUnknownField
			}
			if opts.NoKnownDuplicates && p.Index < len(knownFields) {
				bit := 1 << p.Index
				if found&bit != 0 {
					return nil, ErrDuplicateField
				}
				found |= bit
			}
		}
	}

	return &Pattern{parts: parts, emptyIfMissing: opts.EmptyIfMissing}, nil
}

// MustCompile is like [Compile] but panics on error. It is intended for
// fixed templates known to be valid.
func MustCompile(template string, opts Options) *Pattern {
	p, err := Compile(template, opts)
	if err != nil {
		panic(err)
	}

	return p
}

// Normalize maps every character of s outside [A-Za-z0-9] to '_'.
func Normalize(s string) string {
	var b []byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			if b != nil {
				b = append(b, c)
			}
			continue
		}
		if b == nil {
			b = append(make([]byte, 0, len(s)), s[:i]...)
		}
		b = append(b, '_')
	}

	if b == nil {
		return s
	}

	return string(b)
}

// EnsureDefault normalizes a pattern meant to act as a topic root. An
// empty pattern becomes "<ns>/"; a single literal without a path
// separator gets a trailing '/'; missing circuit and name fields are
// appended so the result always renders a "<ns>/%circuit/%name" shaped
// root. EnsureDefault returns a new pattern, the receiver is unchanged.
func (p *Pattern) EnsureDefault(ns string) *Pattern {
	parts := make([]Part, len(p.parts), len(p.parts)+4)
	copy(parts, p.parts)

	if len(parts) == 0 {
		parts = append(parts, Part{ns + "/", literal})
	} else if len(parts) == 1 && parts[0].Index == literal && !strings.Contains(parts[0].Text, "/") {
		parts[0].Text += "/" // ensure trailing slash
	}

	q := &Pattern{parts: parts, emptyIfMissing: p.emptyIfMissing}
	if !q.Has("circuit") {
		q.parts = append(q.parts, Part{"circuit", FieldCircuit}, Part{"/", literal})
	}
	if !q.Has("name") {
		q.parts = append(q.parts, Part{"name", FieldName})
	}

	return q
}

// Has reports whether the pattern references the given field.
func (p *Pattern) Has(field string) bool {
	for _, part := range p.parts {
		if part.Index != literal && part.Text == field {
			return true
		}
	}

	return false
}

// Parts returns the compiled parts of the pattern.
func (p *Pattern) Parts() []Part { return p.parts }

// EmptyIfMissing reports the substitution-miss behavior recorded at
// compile time.
func (p *Pattern) EmptyIfMissing() bool { return p.emptyIfMissing }

// Render substitutes each field from values in order. A missing field
// is skipped, unless untilFirstEmpty is set in which case rendering
// stops at the first missing or empty-valued field. If onlyAlphanum is
// set the final result is normalized with [Normalize].
func (p *Pattern) Render(values map[string]string, untilFirstEmpty, onlyAlphanum bool) string {
	var b strings.Builder

	for _, part := range p.parts {
		if part.Index == literal {
			b.WriteString(part.Text)
			continue
		}

		v, ok := values[part.Text]
		switch {
		case !ok:
			if untilFirstEmpty {
				return finish(b.String(), onlyAlphanum)
			}
		case untilFirstEmpty && v == "":
			return finish(b.String(), onlyAlphanum)
		default:
			b.WriteString(v)
		}
	}

	return finish(b.String(), onlyAlphanum)
}

func finish(s string, onlyAlphanum bool) string {
	if onlyAlphanum {
		return Normalize(s)
	}

	return s
}

// IsReducible reports whether every field referenced by the pattern has
// an entry in values.
func (p *Pattern) IsReducible(values map[string]string) bool {
	for _, part := range p.parts {
		if part.Index == literal {
			continue
		}
		if _, ok := values[part.Text]; !ok {
			return false
		}
	}

	return true
}

// Reduce fully substitutes the pattern from values. It fails at the
// first missing field, returning the substituted-so-far prefix, unless
// the pattern was compiled with EmptyIfMissing, in which case a missing
// or blank field short-circuits to an empty successful result.
func (p *Pattern) Reduce(values map[string]string, onlyAlphanum bool) (string, bool) {
	var b strings.Builder

	for _, part := range p.parts {
		if part.Index == literal {
			b.WriteString(part.Text)
			continue
		}

		v, ok := values[part.Text]
		if !ok || (p.emptyIfMissing && v == "") {
			if p.emptyIfMissing {
				return "", true
			}
			return b.String(), false
		}

		b.WriteString(v)
	}

	return finish(b.String(), onlyAlphanum), true
}

// MatchTopic reverse-matches the given topic tail against the pattern.
// A literal part must match exactly at the current offset. A field part
// followed by a literal captures everything up to the first occurrence
// of that literal; note the captured value is not itself checked for
// further path separators. A trailing field part captures the remainder
// provided it contains no '/'. Captures are routed to the circuit,
// name, and field outputs by known-field index; unknown fields are
// discarded. On success n is the count of parts consumed; on failure
// n is -(index of the failing part)-1.
func (p *Pattern) MatchTopic(remain string) (circuit, name, field string, n int) {
	last := 0
	count := len(p.parts)

	for idx := 0; idx < count; idx++ {
		part := p.parts[idx]

		if part.Index == literal {
			if !strings.HasPrefix(remain[last:], part.Text) {
				return circuit, name, field, -idx - 1
			}
			last += len(part.Text)

			continue
		}

		var value string

		if idx+1 < count {
			// require the next literal to delimit the field
			pos := strings.Index(remain[last:], p.parts[idx+1].Text)
			if pos < 0 {
				return circuit, name, field, -idx - 1
			}
			value = remain[last : last+pos]
		} else {
			if strings.Contains(remain[last:], "/") {
				return circuit, name, field, -idx - 1
			}
			value = remain[last:]
		}

		last += len(value)

		switch part.Index {
		case FieldCircuit:
			circuit = value
		case FieldName:
			name = value
		case FieldField:
			field = value
		}
	}

	return circuit, name, field, count
}
