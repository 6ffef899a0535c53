package bridge

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/faelwyn/busmq/bus"
	"github.com/faelwyn/busmq/integration"
	"github.com/faelwyn/busmq/log"
)

type Option func(*Bridge)

// WithClient supplies a pre-built MQTT client instead of one derived
// from the config. The caller is then responsible for feeding the
// session's event channel through its own callbacks.
func WithClient(c mqtt.Client) Option {
	return func(b *Bridge) {
		b.client = c
	}
}

// WithRegistry supplies a pre-populated message registry.
func WithRegistry(reg *bus.Registry) Option {
	return func(b *Bridge) {
		b.reg = reg
	}
}

// WithBus supplies the external bus transport used to serve get and
// set requests.
func WithBus(h bus.Handler) Option {
	return func(b *Bridge) {
		b.handler = h
	}
}

// WithIntegration supplies an already-loaded integration setup.
func WithIntegration(ig *integration.Integration) Option {
	return func(b *Bridge) {
		b.ig = ig
	}
}

func WithLogLevel(level log.Level) Option {
	return func(b *Bridge) {
		if level <= log.LevelDebug {
			mqtt.ERROR = log.ErrorLogger()
			mqtt.CRITICAL = log.ErrorLogger()
			mqtt.WARN = log.WarnLogger()
			mqtt.DEBUG = log.DebugLogger()
		} else if level <= log.LevelWarn {
			mqtt.ERROR = log.ErrorLogger()
			mqtt.CRITICAL = log.ErrorLogger()
			mqtt.WARN = log.WarnLogger()
			mqtt.DEBUG = mqtt.NOOPLogger{}
		} else if level <= log.LevelError {
			mqtt.ERROR = log.ErrorLogger()
			mqtt.CRITICAL = log.ErrorLogger()
			mqtt.WARN = mqtt.NOOPLogger{}
			mqtt.DEBUG = mqtt.NOOPLogger{}
		} else {
			mqtt.ERROR = mqtt.NOOPLogger{}
			mqtt.CRITICAL = mqtt.NOOPLogger{}
			mqtt.WARN = mqtt.NOOPLogger{}
			mqtt.DEBUG = mqtt.NOOPLogger{}
		}
	}
}
