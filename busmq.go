// Package busmq bridges a heating bus to an MQTT broker: bus messages
// are published under a configurable topic namespace, and get/set/list
// requests received over MQTT are served from the message registry.
package busmq

import (
	"github.com/faelwyn/busmq/bridge"
	"github.com/faelwyn/busmq/config"
)

// New returns a bridge for the given config. The bridge must have
// [bridge.Bridge.Start] called on it before it publishes anything.
func New(cfg *config.Config, opts ...bridge.Option) (*bridge.Bridge, error) {
	return bridge.New(cfg, opts...)
}
