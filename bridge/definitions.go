package bridge

import (
	"strconv"

	"github.com/faelwyn/busmq/pattern"
)

// publishBuiltinDefinitions emits one metadata record per built-in
// global topic, keyed "def_global_<name>-" with "def_global-" as the
// shared fallback.
func (b *Bridge) publishBuiltinDefinitions(signalTopic, uptimeTopic string) {
	vars := b.ig.Vars
	b.publishDefinition(vars, "def_global_running-", b.globalTopic+"running", "global", "running", "def_global-")
	b.publishDefinition(vars, "def_global_version-", b.globalTopic+"version", "global", "version", "def_global-")
	b.publishDefinition(vars, "def_global_signal-", signalTopic, "global", "signal", "def_global-")
	b.publishDefinition(vars, "def_global_uptime-", uptimeTopic, "global", "uptime", "def_global-")
	b.publishDefinition(vars, "def_global_updatecheck-", b.globalTopic+"updatecheck", "global", "updatecheck", "def_global-")
	b.publishDefinition(vars, "def_global_scan-", b.globalTopic+"scan", "global", "scan", "def_global-")
}

// publishDefinitions scans the registry for messages created since the
// last definition pass and emits a metadata record per matching field,
// or one aggregated record per message when a fields-payload template
// is configured.
func (b *Bridge) publishDefinitions() {
	filterPriority := 0
	if s := b.ig.Vars.Constant("filter-priority"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 9 {
			filterPriority = n
		}
	}
	filterCircuit := b.ig.Vars.Constant("filter-circuit")
	filterName := b.ig.Vars.Constant("filter-name")
	filterLevel := b.ig.Vars.Constant("filter-level")
	filterField := b.ig.Vars.Constant("filter-field")
	usesTypeSwitch := len(b.ig.TypeSwitches) > 0

	for _, m := range b.reg.FindAll("", "", false) {
		if !m.Created.After(b.definitionsSince) {
			continue
		}
		if filterPriority > 0 && (m.PollPriority == 0 || m.PollPriority > filterPriority) {
			continue
		}
		if !pattern.Matches(m.Circuit, filterCircuit) ||
			!pattern.Matches(m.Name, filterName) ||
			!pattern.Matches(m.Level, filterLevel) {
			continue
		}

		// mutated per message, so work on a copy
		msgVars := b.ig.Vars.Clone()
		msgVars.Set("circuit", m.Circuit, false)
		msgVars.Set("name", m.Name, false)
		msgVars.SetInt("priority", m.PollPriority)
		msgVars.Set("level", m.Level, false)
		msgVars.Set("direction", m.Direction(), false)
		if !b.publishByField {
			msgVars.Set("topic", b.getTopic(m, "", ""), false)
		}
		msgVars.ReduceToFixedPoint()

		var fields string
		for i, f := range m.Fields {
			if f.Ignored {
				continue
			}

			fieldName := m.FieldName(i)
			if !pattern.Matches(fieldName, filterField) {
				continue
			}

			suffix := f.TypeSuffix()
			typ := msgVars.Get("type-" + suffix)
			if typ == "" {
				continue
			}

			vars := msgVars.Clone()
			vars.Set("type", typ, false)
			vars.SetInt("index", i)
			vars.Set("field", fieldName, false)
			vars.Set("fieldcomment", f.Comment, false)
			vars.Set("unit", f.Unit, false)

			if usesTypeSwitch {
				vars.ReduceToFixedPoint()
				by := vars.Get("type_switch-by")
				vars.Set("type_switch", b.ig.SwitchLabel(suffix, by), false)
			}

			vars.ReduceToFixedPoint()
			vars.Set("type_part", vars.Get("type_part-"+suffix), false)
			if b.publishByField {
				vars.Set("topic", b.getTopic(m, "", fieldName), false)
			}
			vars.ReduceToFixedPoint()

			if b.ig.HasFieldsPayload {
				if v := vars.Constant("field_payload"); v != "" {
					if fields != "" {
						fields += vars.Constant("field-separator")
					}
					fields += v
				}
				continue
			}

			b.publishDefinition(vars, "definition-", "", "", "", "")
		}

		if fields != "" {
			msgVars.Set("fields_payload", fields, false)
			b.publishDefinition(msgVars, "definition-", "", "", "", "")
		}
	}
}

// publishDefinition emits one metadata record: the topic and payload
// come from the "<prefix>topic" and "<prefix>payload" variables, with
// an optional fallback prefix, and the record is dropped silently when
// no topic resolves. Retained unless "<prefix>retain" is empty, "0",
// "no", or "false".
func (b *Bridge) publishDefinition(vars *pattern.Vars, prefix, topic, circuit, name, fallbackPrefix string) {
	reduce := false
	if topic != "" || circuit != "" || name != "" {
		vars = vars.Clone()
		reduce = true
	}
	if topic != "" {
		vars.Set("topic", topic, false)
	}
	if circuit != "" {
		vars.Set("circuit", circuit, false)
	}
	if name != "" {
		vars.Set("name", name, false)
	}
	if reduce {
		vars.ReduceToFixedPoint()
	}

	fallback := func(key string) string {
		if fallbackPrefix == "" {
			return ""
		}
		return fallbackPrefix + key
	}

	defTopic := vars.Lookup(prefix+"topic", false, false, fallback("topic"))
	if defTopic == "" {
		return
	}
	payload := vars.Lookup(prefix+"payload", false, false, fallback("payload"))
	retainStr := vars.Lookup(prefix+"retain", false, false, fallback("retain"))
	retain := retainStr != "" && retainStr != "0" && retainStr != "no" && retainStr != "false"

	b.publish(defTopic, payload, retain)
}
