package pattern

import (
	"strconv"
	"strings"
)

// Vars holds named constants alongside named, not yet resolved
// patterns. A name is never both at once: promoting a pattern to a
// constant removes the pattern entry, including the derived
// upper-cased alias. Lookups never fail, they degrade to "".
type Vars struct {
	constants map[string]string
	patterns  map[string]*Pattern
}

// NewVars returns an empty store.
func NewVars() *Vars {
	return &Vars{
		constants: make(map[string]string),
		patterns:  make(map[string]*Pattern),
	}
}

// Clone returns a copy of the store that can be mutated independently.
// Patterns are shared, they are immutable.
func (v *Vars) Clone() *Vars {
	c := &Vars{
		constants: make(map[string]string, len(v.constants)),
		patterns:  make(map[string]*Pattern, len(v.patterns)),
	}
	for k, s := range v.constants {
		c.constants[k] = s
	}
	for k, p := range v.patterns {
		c.patterns[k] = p
	}

	return c
}

// Constant returns the constant stored under key, or "".
func (v *Vars) Constant(key string) string {
	return v.constants[key]
}

// Constants exposes the constant map for rendering patterns against the
// current state of the store. The caller must not mutate it.
func (v *Vars) Constants() map[string]string {
	return v.constants
}

// Set stores a constant under key. When the key contains neither '-'
// nor '_' and has a distinct upper-cased form, an upper-cased alias is
// stored as well with the value normalized, enabling case-insensitive
// use by config authors. Set reports whether the alias was stored.
// If removePattern is set, any unresolved pattern under either key
// form is dropped.
func (v *Vars) Set(key, value string, removePattern bool) bool {
	v.constants[key] = value
	if removePattern {
		delete(v.patterns, key)
	}

	if strings.ContainsAny(key, "-_") {
		return false
	}

	upper := strings.ToUpper(key)
	if upper == key {
		return false
	}

	v.constants[upper] = Normalize(value)
	if removePattern {
		delete(v.patterns, upper)
	}

	return true
}

// SetInt stores the decimal representation of value under key.
func (v *Vars) SetInt(key string, value int) {
	v.constants[key] = strconv.Itoa(value)
}

// SetPattern stores an unresolved pattern under key, replacing any
// previous pattern for the key.
func (v *Vars) SetPattern(key string, p *Pattern) {
	v.patterns[key] = p
}

// Pattern returns the unresolved pattern stored under key, or nil.
func (v *Vars) Pattern(key string) *Pattern {
	return v.patterns[key]
}

// Uses reports whether any unresolved pattern references the given
// field.
func (v *Vars) Uses(field string) bool {
	for _, p := range v.patterns {
		if p.Has(field) {
			return true
		}
	}

	return false
}

// Lookup resolves key to a string: a constant wins, else the pattern
// under key is rendered against the current constants, else both steps
// are repeated for fallbackKey, else "".
func (v *Vars) Lookup(key string, untilFirstEmpty, onlyAlphanum bool, fallbackKey string) string {
	if s, ok := v.constants[key]; ok {
		return s
	}
	if p, ok := v.patterns[key]; ok {
		return p.Render(v.constants, untilFirstEmpty, onlyAlphanum)
	}

	if fallbackKey != "" {
		if s, ok := v.constants[fallbackKey]; ok {
			return s
		}
		if p, ok := v.patterns[fallbackKey]; ok {
			return p.Render(v.constants, untilFirstEmpty, onlyAlphanum)
		}
	}

	return ""
}

// Get is shorthand for Lookup(key, false, false, "").
func (v *Vars) Get(key string) string {
	return v.Lookup(key, false, false, "")
}

// ReduceToFixedPoint repeatedly scans the unresolved patterns and
// promotes to constants all those whose fields are fully resolvable,
// until a scan resolves nothing. Each productive pass resolves at
// least one pattern, so the iteration count is bounded by the number
// of patterns initially in the store.
func (v *Vars) ReduceToFixedPoint() {
	for {
		reduced := false

		keys := make([]string, 0, len(v.patterns))
		for k := range v.patterns {
			keys = append(keys, k)
		}

		for _, k := range keys {
			p, ok := v.patterns[k]
			if !ok || !p.IsReducible(v.constants) {
				continue
			}

			s, ok := p.Reduce(v.constants, false)
			if !ok {
				continue
			}

			delete(v.patterns, k)
			if v.Set(k, s, false) {
				// drop a stale pattern hiding behind the alias
				delete(v.patterns, strings.ToUpper(k))
			}

			reduced = true
		}

		if !reduced {
			return
		}
	}
}
