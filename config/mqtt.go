package config

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/faelwyn/busmq/log"
)

// MQTTConfig is the configuration for the MQTT client.
//
// See [mqtt.ClientOptions]
type MQTTConfig struct {
	// Broker is the URI of the broker. The format should be
	// scheme://host:port where "scheme" is one of "tcp", "ssl", or
	// "ws", "host" is the ip-address (or hostname) and "port" is the
	// port on which the broker is accepting connections.
	Broker string `yaml:"broker"`
	// ClientID is the (optional) client ID used when connecting to the
	// broker. If blank, <name>_<version>_<pid> is used.
	ClientID string `yaml:"client_id,omitempty"`
	// Username is the username used when connecting to the broker.
	Username string `yaml:"username"`
	// Password is the password used when connecting to the broker.
	Password string `yaml:"password"`
	// KeepAlive is the duration that the client should wait before
	// pinging the broker.
	KeepAlive time.Duration `yaml:"keep_alive,omitempty"`
	// CAFile is the path of the PEM-encoded CA certificate, or a
	// directory of CA certificates when ending with '/'. If blank, TLS
	// uses the system pool.
	CAFile string `yaml:"ca_file,omitempty"`
	// CertFile is the path to the PEM-encoded TLS client certificate.
	CertFile string `yaml:"cert_file,omitempty"`
	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file,omitempty"`
	// Insecure allows an insecure TLS connection, e.g. using a self
	// signed certificate.
	Insecure bool `yaml:"insecure,omitempty"`
	// ConnectTimeout is the duration that the client will wait when
	// attempting to open a connection to the broker before timing out.
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
	// LogLevel is the log level to provide to the backing MQTT client
	// package. See [mqtt.Logger]
	LogLevel log.Level `yaml:"log_level"`

	tlsCert *tls.Certificate
}

var DefaultMQTT = MQTTConfig{
	Broker:    "$BUSMQ_BROKER_ADDRESS",
	Username:  "$BUSMQ_BROKER_USERNAME",
	Password:  "$BUSMQ_BROKER_PASSWORD",
	KeepAlive: 60 * time.Second,
	LogLevel:  log.LevelDisabled,
}

// ClientOptions returns cfg formatted as [mqtt.ClientOptions] to
// provide to the backing MQTT client when calling [mqtt.NewClient].
// Automatic reconnection is disabled, the bridge session owns the
// reconnect state machine. The last will publishes "false" retained to
// the given topic.
func (cfg *MQTTConfig) ClientOptions(clientID, willTopic string) *mqtt.ClientOptions {
	o := mqtt.NewClientOptions()
	o.AddBroker(cfg.Broker)
	o.SetClientID(clientID)
	o.SetUsername(cfg.Username).SetPassword(cfg.Password)
	o.SetAutoReconnect(false)
	o.SetConnectRetry(false)
	o.SetResumeSubs(false)

	if cfg.KeepAlive > 0 {
		o.SetKeepAlive(cfg.KeepAlive)
	}

	if cfg.ConnectTimeout > 0 {
		o.SetConnectTimeout(cfg.ConnectTimeout)
	}

	o.SetWill(willTopic, "false", 0, true)

	if cfg.CAFile != "" || (cfg.CertFile != "" && cfg.KeyFile != "") {
		o.SetTLSConfig(cfg.tlsConfig())
	}

	return o
}

func (cfg *MQTTConfig) tlsConfig() *tls.Config {
	c := &tls.Config{
		InsecureSkipVerify: cfg.Insecure,
	}

	if cfg.CAFile != "" {
		if pool, err := loadCAPool(cfg.CAFile); err != nil {
			log.Error("Unable to load CA material", err, "path", cfg.CAFile)
		} else {
			c.RootCAs = pool
		}
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		c.GetClientCertificate = func(_ *tls.CertificateRequestInfo) (*tls.Certificate, error) {
			if cfg.tlsCert == nil {
				cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
				if err != nil {
					return nil, err
				}
				cfg.tlsCert = &cert
			}

			return cfg.tlsCert, nil
		}
	}

	return c
}

// loadCAPool builds a certificate pool from a PEM file, or from every
// file of a directory when path ends with '/'.
func loadCAPool(path string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()

	if path[len(path)-1] != '/' {
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		pool.AppendCertsFromPEM(pem)

		return pool, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		pem, err := os.ReadFile(filepath.Join(path, e.Name()))
		if err != nil {
			continue
		}
		pool.AppendCertsFromPEM(pem)
	}

	return pool, nil
}

// IsZero indicates whether cfg is the default value.
func (cfg MQTTConfig) IsZero() bool {
	return cfg == DefaultMQTT
}
