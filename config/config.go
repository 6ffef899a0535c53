// Package config provides the structures used for configuration.
package config

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/faelwyn/busmq/config/secrets"
	"github.com/faelwyn/busmq/log"
)

// Config contains the configuration of the bridge. Config should be
// created with a call to [Default], [Read], or [Load]; once handed to
// the bridge it is treated as immutable.
type Config struct {
	// Topic is the topic template, either a plain prefix or a full
	// template over %circuit, %name, and %field. An incomplete value
	// is normalized to the canonical <prefix>/%circuit/%name shape.
	Topic string `yaml:"topic"`
	// Retain publishes all topics retained instead of only the
	// selected global ones.
	Retain bool `yaml:"retain"`
	// JSON publishes payloads as JSON objects instead of bare values.
	JSON bool `yaml:"json"`
	// Verbose includes all available attributes in JSON payloads.
	Verbose bool `yaml:"verbose"`
	// OnlyChanges publishes only messages whose data changed since the
	// previous flush instead of all received ones.
	OnlyChanges bool `yaml:"only_changes"`
	// Integration is the path of the integration settings file.
	Integration string `yaml:"integration,omitempty"`
	// Messages is the path of the message catalog file.
	Messages string `yaml:"messages,omitempty"`
	// IgnoreInvalid tolerates invalid connection parameters during
	// startup, e.g. a broker hostname not resolvable yet.
	IgnoreInvalid bool `yaml:"ignore_invalid"`
	// AccessLevel is the access level used when resolving messages for
	// inbound requests.
	AccessLevel string `yaml:"access_level,omitempty"`

	MQTT MQTTConfig `yaml:"mqtt,omitempty"`
	Log  LogConfig  `yaml:"log,omitempty"`
}

var defaultCfg = Config{
	MQTT: DefaultMQTT,
}

// Default returns the default Config when no config file is provided.
func Default() *Config {
	cfg := defaultCfg
	cfg.expand()

	return &cfg
}

// Read returns the Config parsed from the yaml encoded config from r.
func Read(r io.Reader) (*Config, error) {
	cfg := defaultCfg
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.expand()

	return &cfg, nil
}

// Load returns the Config parsed from the given yaml file. If the file
// does not exist, the default config is returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	defer f.Close()

	log.Info("Loading config", "path", path)

	return Read(f)
}

// Expand replaces ${var} or $var in s according to the values of the
// current environment variables, and replaces "!secret var" according
// to the file at /run/secrets/<var>.
func Expand(s string) string {
	if secret, ok := secrets.CutPrefix(s); ok {
		return secrets.MustRead(secret, "")
	}

	return os.ExpandEnv(s)
}

func (cfg *Config) expand() {
	for _, s := range []*string{
		&cfg.Topic, &cfg.Integration, &cfg.Messages,
		&cfg.MQTT.Broker, &cfg.MQTT.ClientID,
		&cfg.MQTT.Username, &cfg.MQTT.Password,
		&cfg.MQTT.CAFile, &cfg.MQTT.CertFile, &cfg.MQTT.KeyFile,
	} {
		*s = Expand(*s)
	}
}

// Write writes the yaml encoding of cfg to w.
func (cfg *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()

	enc.SetIndent(2)

	return enc.Encode(cfg)
}
