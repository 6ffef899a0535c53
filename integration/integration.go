// Package integration loads the external integration file that maps
// bus messages onto an MQTT-side consumer's conventions. The file is a
// line-oriented set of key=value entries where values may be templates,
// see [Integration.Load] for the grammar.
package integration

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/faelwyn/busmq/log"
	"github.com/faelwyn/busmq/pattern"
)

// TypeSuffixes are the fixed type suffixes a field can resolve to, in
// evaluation order.
var TypeSuffixes = [...]string{"number", "bits", "string", "date", "time", "datetime"}

// A Rule is one entry of the type-switch table: the first rule whose
// glob matches the rendered "type_switch-by" value supplies the label.
type Rule struct {
	Label string
	Glob  string
}

// Integration is the loaded state of an integration file: the variable
// store seeded with the topic template, plus the optional type-switch
// rule table.
type Integration struct {
	Vars         *pattern.Vars
	TypeSwitches map[string][]Rule

	// Derived after loading.
	HasDefinitionTopic   bool
	HasFieldsPayload     bool
	ConfigRestartTopic   string
	ConfigRestartPayload string
}

// New returns an Integration whose store holds the given topic
// template under "mqtttopic". The store is usable without any file
// loaded.
func New(topic *pattern.Pattern, version string) *Integration {
	ig := &Integration{
		Vars:         pattern.NewVars(),
		TypeSwitches: make(map[string][]Rule),
	}
	ig.Vars.SetPattern("mqtttopic", topic)
	ig.Vars.Set("version", version, false)

	return ig
}

// LoadFile loads the integration file at path. A missing or unreadable
// file is logged and leaves the store unchanged; the error is returned
// for callers that need to distinguish, e.g. a reload keeping the
// previous state.
func (ig *Integration) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		log.Error("Unable to open integration file", err, "path", path)
		return err
	}
	defer f.Close()

	log.Info("Loading integration file", "path", path)

	return ig.Load(f)
}

// Load reads integration entries from r. The grammar is line oriented:
// a blank line flushes the accumulated logical line, a line starting
// with '#' is a comment and does not flush, a line starting with
// whitespace continues the current logical line with an embedded
// newline, and any other line starts a new logical line. Each logical
// line is key[?]=value; a '?' directly before '=' records the
// empty-if-missing flag. Values without '%' become constants, all
// others compile to patterns. After all lines are read the store is
// reduced to a fixed point and the type-switch table is rebuilt.
func (ig *Integration) Load(r io.Reader) error {
	prefix := ig.Vars.Lookup("mqtttopic", true, false, "")
	ig.Vars.Set("prefix", prefix, false)
	ig.Vars.Set("prefixn", strings.TrimRight(prefix, "/_"), false)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var last string

	for sc.Scan() {
		line := sc.Text()

		switch {
		case line == "":
			ig.parseLine(last)
			last = ""
		case line[0] == '#':
			// comments may sit in the middle of a payload block
		case last == "":
			last = line
		case line[0] == '\t' || line[0] == ' ':
			last += "\n" + line
		default:
			ig.parseLine(last)
			last = line
		}
	}
	ig.parseLine(last)

	if err := sc.Err(); err != nil {
		return err
	}

	ig.Vars.ReduceToFixedPoint()
	ig.loadTypeSwitches()
	ig.derive()

	return nil
}

func (ig *Integration) parseLine(line string) {
	if line == "" {
		return
	}

	pos := strings.IndexByte(line, '=')
	if pos <= 0 {
		return
	}

	var emptyIfMissing bool

	key := line[:pos]
	if key[len(key)-1] == '?' {
		emptyIfMissing = true
		key = key[:len(key)-1]
	}
	key = strings.TrimSpace(key)
	value := strings.TrimSpace(line[pos+1:])

	if !strings.Contains(value, "%") {
		ig.Vars.Set(key, value, true) // constant value
		return
	}

	p, err := pattern.Compile(value, pattern.Options{EmptyIfMissing: emptyIfMissing})
	if err != nil {
		log.WarnError("Skipping malformed integration entry", err, "key", key)
		return
	}

	ig.Vars.SetPattern(key, p)
}

func (ig *Integration) loadTypeSwitches() {
	if !ig.Vars.Uses("type_switch") {
		return
	}

	for _, suffix := range TypeSuffixes {
		str := ig.Vars.Lookup("type_switch-"+suffix, false, false, "type_switch")
		if str == "" {
			continue
		}

		var rules []Rule

		for _, line := range strings.Split(str, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			pos := strings.IndexByte(line, '=')
			if pos <= 0 {
				continue
			}

			label := strings.TrimSpace(line[:pos])
			if label == "" {
				continue
			}

			glob := strings.ToLower(strings.TrimSpace(line[pos+1:]))
			rules = append(rules, Rule{Label: label, Glob: glob})
		}

		if len(rules) > 0 {
			ig.TypeSwitches[suffix] = rules
		}
	}
}

func (ig *Integration) derive() {
	ig.HasDefinitionTopic = ig.Vars.Lookup("definition-topic", false, false, "") != ""
	ig.HasFieldsPayload = ig.Vars.Uses("fields_payload")
	ig.ConfigRestartTopic = ig.Vars.Lookup("config_restart-topic", false, false, "")
	ig.ConfigRestartPayload = ig.Vars.Lookup("config_restart-payload", false, false, "")
}

// SwitchLabel evaluates the type-switch rules for the given suffix
// against value, returning the label of the first matching rule.
func (ig *Integration) SwitchLabel(suffix, value string) string {
	for _, rule := range ig.TypeSwitches[suffix] {
		if pattern.Matches(value, rule.Glob) {
			return rule.Label
		}
	}

	return ""
}
