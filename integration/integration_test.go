package integration

import (
	"strings"
	"testing"

	"github.com/faelwyn/busmq/pattern"
)

func newTest(t *testing.T, src string) *Integration {
	t.Helper()

	topic := pattern.MustCompile("heat/%circuit/%name", pattern.Options{})
	ig := New(topic, "1.2.3")

	if err := ig.Load(strings.NewReader(src)); err != nil {
		t.Fatal(err)
	}

	return ig
}

func TestLoadConstants(t *testing.T) {
	ig := newTest(t, `
network=homeassistant
type-number=number payload
`)

	if got := ig.Vars.Constant("network"); got != "homeassistant" {
		t.Errorf("Wanted homeassistant, got %s", got)
	}
	// seeded values
	if got := ig.Vars.Constant("version"); got != "1.2.3" {
		t.Errorf("Wanted 1.2.3, got %s", got)
	}
	if got := ig.Vars.Constant("prefix"); got != "heat/" {
		t.Errorf("Wanted heat/, got %s", got)
	}
	if got := ig.Vars.Constant("prefixn"); got != "heat" {
		t.Errorf("Wanted heat, got %s", got)
	}
}

func TestLoadContinuationLines(t *testing.T) {
	ig := newTest(t, "config=first line\n\tsecond line\n")

	want := "first line\n\tsecond line"
	if got := ig.Vars.Constant("config"); got != want {
		t.Errorf("Wanted %q, got %q", want, got)
	}
}

func TestLoadCommentDoesNotFlush(t *testing.T) {
	ig := newTest(t, "config=first\n# a comment\n\tsecond\n")

	want := "first\n\tsecond"
	if got := ig.Vars.Constant("config"); got != want {
		t.Errorf("Wanted %q, got %q", want, got)
	}
}

func TestLoadBlankLineReplaces(t *testing.T) {
	ig := newTest(t, "foo=%circuit bar\n\nfoo=%circuit baz\n")

	p := ig.Vars.Pattern("foo")
	if p == nil {
		t.Fatal("Wanted pattern foo")
	}

	got := p.Render(map[string]string{"circuit": "hwc"}, false, false)
	if got != "hwc baz" {
		t.Errorf("Wanted hwc baz, got %s", got)
	}
}

func TestLoadEmptyIfMissing(t *testing.T) {
	ig := newTest(t, "unit_text?=, \"unit\": \"%unit\"\n")

	p := ig.Vars.Pattern("unit_text")
	if p == nil {
		t.Fatal("Wanted pattern unit_text")
	}
	if !p.EmptyIfMissing() {
		t.Error("Wanted EmptyIfMissing set")
	}

	if got, ok := p.Reduce(map[string]string{"unit": "°C"}, false); !ok || got != `, "unit": "°C"` {
		t.Errorf("Wanted unit rendered, got %q (%v)", got, ok)
	}
	if got, ok := p.Reduce(map[string]string{"unit": ""}, false); !ok || got != "" {
		t.Errorf("Wanted empty success on blank unit, got %q (%v)", got, ok)
	}
}

func TestLoadReducesToFixedPoint(t *testing.T) {
	ig := newTest(t, "base=%prefixn/config\nrestart=%base/restart\n")

	if got := ig.Vars.Constant("restart"); got != "heat/config/restart" {
		t.Errorf("Wanted heat/config/restart, got %s", got)
	}
}

func TestDerived(t *testing.T) {
	ig := newTest(t, `
definition-topic=homeassistant/sensor/%prefixn-%CIRCUIT-%NAME/config
definition-payload={"fields": [%fields_payload]}
field_payload={"name": "%field"}
config_restart-topic=homeassistant/status
config_restart-payload=online
`)

	if !ig.HasDefinitionTopic {
		t.Error("Wanted HasDefinitionTopic")
	}
	if !ig.HasFieldsPayload {
		t.Error("Wanted HasFieldsPayload")
	}
	if ig.ConfigRestartTopic != "homeassistant/status" {
		t.Errorf("Wanted homeassistant/status, got %s", ig.ConfigRestartTopic)
	}
	if ig.ConfigRestartPayload != "online" {
		t.Errorf("Wanted online, got %s", ig.ConfigRestartPayload)
	}
}

func TestTypeSwitches(t *testing.T) {
	ig := newTest(t, `
type-number={"class": "%type_switch", "unit": "%unit"}
type_switch-number=temperature=*temp*
	power=*power*
type_switch=fallback=*
`)

	if got := ig.SwitchLabel("number", "OutsideTemp"); got != "temperature" {
		t.Errorf("Wanted temperature, got %s", got)
	}
	if got := ig.SwitchLabel("number", "HeatingPower"); got != "power" {
		t.Errorf("Wanted power, got %s", got)
	}
	if got := ig.SwitchLabel("number", "other"); got != "" {
		t.Errorf("Wanted no label, got %s", got)
	}
	// suffixes without their own table fall back to type_switch
	if got := ig.SwitchLabel("string", "anything"); got != "fallback" {
		t.Errorf("Wanted fallback, got %s", got)
	}
}
