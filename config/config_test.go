package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/faelwyn/busmq/log"
)

const testConfig = `
topic: heat/%circuit/%name
json: true
only_changes: true
integration: /etc/busmq/hassio.cfg
mqtt:
  broker: tcp://broker.local:1883
  username: busmq
  password: $TEST_BUSMQ_PASSWORD
  keep_alive: 30s
  log_level: warn
log:
  level: debug
  format: json
`

func TestRead(t *testing.T) {
	t.Setenv("TEST_BUSMQ_PASSWORD", "s3cret")

	cfg, err := Read(strings.NewReader(testConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Topic != "heat/%circuit/%name" {
		t.Errorf("Wanted heat/%%circuit/%%name, got %s", cfg.Topic)
	}
	if !cfg.JSON || cfg.Verbose {
		t.Errorf("Wanted json without verbose, got %v/%v", cfg.JSON, cfg.Verbose)
	}
	if !cfg.OnlyChanges {
		t.Error("Wanted only_changes")
	}
	if cfg.MQTT.Broker != "tcp://broker.local:1883" {
		t.Errorf("Wanted tcp://broker.local:1883, got %s", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Password != "s3cret" {
		t.Errorf("Wanted expanded password, got %s", cfg.MQTT.Password)
	}
	if cfg.MQTT.KeepAlive != 30*time.Second {
		t.Errorf("Wanted 30s keep alive, got %s", cfg.MQTT.KeepAlive)
	}
	if cfg.MQTT.LogLevel != log.LevelWarn {
		t.Errorf("Wanted warn, got %s", cfg.MQTT.LogLevel)
	}
	if cfg.Log.Level != log.LevelDebug || cfg.Log.Format != "json" {
		t.Errorf("Wanted debug/json, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("BUSMQ_BROKER_ADDRESS", "tcp://127.0.0.1:1883")
	t.Setenv("BUSMQ_BROKER_USERNAME", "")
	t.Setenv("BUSMQ_BROKER_PASSWORD", "")

	cfg := Default()
	if cfg.MQTT.Broker != "tcp://127.0.0.1:1883" {
		t.Errorf("Wanted broker from environment, got %s", cfg.MQTT.Broker)
	}
	if cfg.MQTT.KeepAlive != 60*time.Second {
		t.Errorf("Wanted 60s keep alive, got %s", cfg.MQTT.KeepAlive)
	}
	if cfg.MQTT.LogLevel != log.LevelDisabled {
		t.Errorf("Wanted disabled client logging, got %s", cfg.MQTT.LogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("BUSMQ_BROKER_ADDRESS", "")
	t.Setenv("BUSMQ_BROKER_USERNAME", "")
	t.Setenv("BUSMQ_BROKER_PASSWORD", "")

	cfg, err := Load("/nonexistent/busmq.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil {
		t.Fatal("Wanted default config")
	}
}

func TestWriteRead(t *testing.T) {
	t.Setenv("BUSMQ_BROKER_ADDRESS", "tcp://host:1883")
	t.Setenv("BUSMQ_BROKER_USERNAME", "u")
	t.Setenv("BUSMQ_BROKER_PASSWORD", "p")

	cfg := Default()
	cfg.Topic = "heat"
	cfg.Retain = true

	var buf bytes.Buffer
	if err := cfg.Write(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Topic != "heat" || !got.Retain {
		t.Errorf("Wanted heat/retain round trip, got %s/%v", got.Topic, got.Retain)
	}
	if got.MQTT.Broker != "tcp://host:1883" {
		t.Errorf("Wanted broker round trip, got %s", got.MQTT.Broker)
	}
}

func TestExpandSecret(t *testing.T) {
	// no secret file mounted, falls back to the default
	if got := Expand("!secret does-not-exist"); got != "" {
		t.Errorf("Wanted empty fallback, got %s", got)
	}
}
