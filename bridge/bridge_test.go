package bridge

import (
	"strings"
	"testing"
	"time"

	"github.com/faelwyn/busmq/bus"
	"github.com/faelwyn/busmq/config"
	"github.com/faelwyn/busmq/integration"
	"github.com/faelwyn/busmq/mock"
	"github.com/faelwyn/busmq/pattern"
)

func testBridge(t *testing.T, cfg *config.Config, opts ...Option) (*Bridge, *mock.Client) {
	t.Helper()

	if cfg == nil {
		cfg = config.Default()
		cfg.Topic = "heat"
	}

	client := mock.NewClient()
	reg := bus.NewRegistry()
	reg.Add(&bus.Message{Circuit: "hwc", Name: "temp", Fields: []bus.Field{{Name: "temp", Kind: bus.KindNumber, Unit: "°C"}}})
	reg.Add(&bus.Message{Circuit: "hwc", Name: "temp", Write: true, Fields: []bus.Field{{Name: "temp", Kind: bus.KindNumber}}})
	reg.Add(&bus.Message{Circuit: "hwc", Name: "mode", Fields: []bus.Field{{Name: "mode", Kind: bus.KindString}}})
	reg.Add(&bus.Message{Circuit: "mc", Name: "temp", Fields: []bus.Field{{Name: "temp", Kind: bus.KindNumber}}})

	opts = append([]Option{WithClient(client), WithRegistry(reg)}, opts...)

	b, err := New(cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	b.connected = true

	return b, client
}

func TestNewTopics(t *testing.T) {
	b, _ := testBridge(t, nil)

	if b.globalTopic != "heat/global/" {
		t.Errorf("Wanted heat/global/, got %s", b.globalTopic)
	}
	if b.subscribeTopic != "heat/#" {
		t.Errorf("Wanted heat/#, got %s", b.subscribeTopic)
	}
	if b.publishByField {
		t.Error("Wanted combined publishing for a plain prefix")
	}
}

func TestNewRejectsBadTemplates(t *testing.T) {
	for _, topic := range []string{"heat/#", "heat/+/%name", "heat/", "heat/%circuit/%circuit", "heat/%value"} {
		cfg := config.Default()
		cfg.Topic = topic
		if _, err := New(cfg); err == nil {
			t.Errorf("%q: Wanted error", topic)
		}
	}
}

func TestNewMissingIntegrationFile(t *testing.T) {
	cfg := config.Default()
	cfg.Topic = "heat"
	cfg.Integration = "/nonexistent/busmq.cfg"

	b, err := New(cfg, WithClient(mock.NewClient()))
	if err != nil {
		t.Fatalf("Wanted degraded start without integration, got %v", err)
	}
	if b.ig.HasDefinitionTopic {
		t.Error("Wanted no definition topic without integration settings")
	}
}

func TestGetTopic(t *testing.T) {
	b, _ := testBridge(t, nil)
	m := &bus.Message{Circuit: "hwc", Name: "temp"}

	if got := b.getTopic(m, "", ""); got != "heat/hwc/temp" {
		t.Errorf("Wanted heat/hwc/temp, got %s", got)
	}
	if got := b.getTopic(nil, "global/", ""); got != "heat/global/" {
		t.Errorf("Wanted heat/global/, got %s", got)
	}
}

func TestNotifyConnected(t *testing.T) {
	b, client := testBridge(t, nil)

	b.handleEvent(event{kind: evConnected})

	if got, ok := client.LastPayload("heat/global/running"); !ok || got != "true" {
		t.Errorf("Wanted running=true, got %q (%v)", got, ok)
	}
	if _, ok := client.LastPayload("heat/global/version"); !ok {
		t.Error("Wanted version published")
	}

	subs := client.Subscriptions()
	if len(subs) != 1 || subs[0] != "heat/#" {
		t.Errorf("Wanted [heat/#], got %v", subs)
	}
}

func TestSetRequest(t *testing.T) {
	b, client := testBridge(t, nil)

	b.notifyTopic("heat/hwc/temp/set", "21.5")

	if got, ok := client.LastPayload("heat/hwc/temp"); !ok || got != "21.5" {
		t.Errorf("Wanted republished 21.5, got %q (%v)", got, ok)
	}

	m := b.reg.Find("hwc", "temp", "", true, false)
	if got := m.Value(0); got != "21.5" {
		t.Errorf("Wanted written value 21.5, got %s", got)
	}
}

func TestGetRequest(t *testing.T) {
	b, client := testBridge(t, nil)

	m := b.reg.Find("hwc", "temp", "", false, false)
	b.reg.SetValues(m, []string{"20.0"})
	client.Reset()

	b.notifyTopic("heat/hwc/temp/get", "")

	if got, ok := client.LastPayload("heat/hwc/temp"); !ok || got != "20.0" {
		t.Errorf("Wanted 20.0, got %q (%v)", got, ok)
	}
}

func TestGetRequestPollPriority(t *testing.T) {
	b, _ := testBridge(t, nil)

	m := b.reg.Find("hwc", "temp", "", false, false)
	b.reg.SetValues(m, []string{"20.0"})

	b.notifyTopic("heat/hwc/temp/get", "?5")

	if m.PollPriority != 5 {
		t.Errorf("Wanted poll priority 5, got %d", m.PollPriority)
	}
	if got := len(b.reg.PollQueue()); got != 1 {
		t.Errorf("Wanted poll queue of 1, got %d", got)
	}
}

func TestUnknownVerbIgnored(t *testing.T) {
	b, client := testBridge(t, nil)

	b.notifyTopic("heat/hwc/temp/listen", "")
	b.notifyTopic("heat/hwc/temp", "")

	if got := len(client.Published()); got != 0 {
		t.Errorf("Wanted nothing published, got %d", got)
	}
}

func TestUnknownMessageDropped(t *testing.T) {
	b, client := testBridge(t, nil)

	b.notifyTopic("heat/hwc/missing/get", "")

	if got := len(client.Published()); got != 0 {
		t.Errorf("Wanted nothing published, got %d", got)
	}
}

func TestListPrefix(t *testing.T) {
	b, client := testBridge(t, nil)

	b.notifyTopic("heat/hwc*/temp/list", "")

	pubs := client.Published()
	if len(pubs) != 2 {
		t.Fatalf("Wanted the read and write hwc/temp entries, got %d: %v", len(pubs), pubs)
	}
	for _, p := range pubs {
		if p.Topic != "heat/hwc/temp" {
			t.Errorf("Wanted heat/hwc/temp, got %s", p.Topic)
		}
		if p.Payload != "" { // no data observed yet
			t.Errorf("Wanted empty payload, got %q", p.Payload)
		}
	}
}

func TestListOnlyWithData(t *testing.T) {
	b, client := testBridge(t, nil)

	m := b.reg.Find("hwc", "temp", "", false, false)
	b.reg.SetValues(m, []string{"20.0"})
	client.Reset()

	b.notifyTopic("heat/hwc*/temp/list", "1")

	pubs := client.Published()
	if len(pubs) != 1 {
		t.Fatalf("Wanted only the entry with data, got %d: %v", len(pubs), pubs)
	}
	if pubs[0].Payload != "20.0" {
		t.Errorf("Wanted 20.0, got %q", pubs[0].Payload)
	}
}

func TestListNamePrefix(t *testing.T) {
	b, client := testBridge(t, nil)

	b.notifyTopic("heat/hwc/*/list", "")

	pubs := client.Published()
	if len(pubs) != 3 { // hwc/temp read+write, hwc/mode
		t.Fatalf("Wanted 3 entries, got %d: %v", len(pubs), pubs)
	}
}

func TestConfigRestartResetsDefinitions(t *testing.T) {
	cfg := config.Default()
	cfg.Topic = "heat"

	topic := mustTopic(cfg.Topic)
	ig := integration.New(topic, "test")
	if err := ig.Load(strings.NewReader("config_restart-topic=homeassistant/status\nconfig_restart-payload=online\n")); err != nil {
		t.Fatal(err)
	}

	b, _ := testBridge(t, cfg, WithIntegration(ig))
	b.definitionsSince = time.Now()

	b.notifyTopic("homeassistant/status", "offline")
	if b.definitionsSince.IsZero() {
		t.Fatal("Wanted mismatched payload ignored")
	}

	b.notifyTopic("homeassistant/status", "online")
	if !b.definitionsSince.IsZero() {
		t.Fatal("Wanted definitions reset")
	}
}

func TestJSONPayload(t *testing.T) {
	cfg := config.Default()
	cfg.Topic = "heat"
	cfg.JSON = true

	b, client := testBridge(t, cfg)

	m := b.reg.Find("hwc", "temp", "", false, false)
	b.reg.SetValues(m, []string{"21.5"})
	client.Reset()

	b.publishMessage(m, false)
	if got, _ := client.LastPayload("heat/hwc/temp"); got != `{"temp": 21.5}` {
		t.Errorf(`Wanted {"temp": 21.5}, got %s`, got)
	}

	b.cfg.Verbose = true
	b.publishMessage(m, false)
	want := `{"temp": {"value": 21.5, "unit": "°C"}}`
	if got, _ := client.LastPayload("heat/hwc/temp"); got != want {
		t.Errorf("Wanted %s, got %s", want, got)
	}
}

func TestJSONPayloadStringQuoted(t *testing.T) {
	cfg := config.Default()
	cfg.Topic = "heat"
	cfg.JSON = true

	b, client := testBridge(t, cfg)

	m := b.reg.Find("hwc", "mode", "", false, false)
	b.reg.SetValues(m, []string{"auto"})
	client.Reset()

	b.publishMessage(m, false)
	if got, _ := client.LastPayload("heat/hwc/mode"); got != `{"mode": "auto"}` {
		t.Errorf(`Wanted {"mode": "auto"}, got %s`, got)
	}
}

func TestPublishByField(t *testing.T) {
	cfg := config.Default()
	cfg.Topic = "heat/%circuit/%name/%field"

	b, client := testBridge(t, cfg)
	if !b.publishByField {
		t.Fatal("Wanted per-field publishing")
	}

	m := b.reg.Find("hwc", "temp", "", false, false)
	b.reg.SetValues(m, []string{"21.5"})
	client.Reset()

	b.publishMessage(m, false)
	if got, ok := client.LastPayload("heat/hwc/temp/temp"); !ok || got != "21.5" {
		t.Errorf("Wanted 21.5 on the field topic, got %q (%v)", got, ok)
	}
}

func TestFlushPendingOnlyChanges(t *testing.T) {
	cfg := config.Default()
	cfg.Topic = "heat"
	cfg.OnlyChanges = true

	b, client := testBridge(t, cfg)

	m := b.reg.Find("hwc", "temp", "", false, false)
	b.reg.SetValues(m, []string{"21.5"})
	b.flushPending()

	if _, ok := client.LastPayload("heat/hwc/temp"); !ok {
		t.Fatal("Wanted changed value published")
	}
	client.Reset()

	// same value again: updated but not changed
	b.reg.SetValues(m, []string{"21.5"})
	b.flushPending()

	if got := len(client.Published()); got != 0 {
		t.Errorf("Wanted unchanged value suppressed, got %d publications", got)
	}
}

func TestFlushPendingDisconnectedDiscards(t *testing.T) {
	b, client := testBridge(t, nil)
	b.connected = false

	m := b.reg.Find("hwc", "temp", "", false, false)
	b.reg.SetValues(m, []string{"21.5"})
	b.flushPending()

	if got := len(client.Published()); got != 0 {
		t.Errorf("Wanted nothing published while disconnected, got %d", got)
	}
	if b.reg.HasPending() {
		t.Error("Wanted pending set cleared")
	}
}

func mustTopic(template string) *pattern.Pattern {
	return pattern.MustCompile(template, pattern.Options{
		OnlyKnownFields:   true,
		NoKnownDuplicates: true,
	}).EnsureDefault("busmq")
}
