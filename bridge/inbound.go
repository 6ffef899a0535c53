package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/faelwyn/busmq/bus"
	"github.com/faelwyn/busmq/log"
)

// notifyTopic routes one inbound publication. The final path segment
// selects the verb: "get", "set", or "list"; anything else is ignored.
func (b *Bridge) notifyTopic(topic, data string) {
	pos := strings.LastIndexByte(topic, '/')
	if pos < 0 {
		return
	}

	if b.ig.ConfigRestartTopic != "" && topic == b.ig.ConfigRestartTopic {
		if b.ig.ConfigRestartPayload == "" || data == b.ig.ConfigRestartPayload {
			b.definitionsSince = time.Time{}
		}
		return
	}

	verb := topic[pos+1:]
	if verb == "" {
		return
	}

	isWrite := verb == "set"
	isList := !isWrite && verb == "list"
	if !isWrite && !isList && verb != "get" {
		return
	}

	log.Debug("Received topic", "topic", topic, "data", data)
	circuit, name, _, n := b.topic.MatchTopic(topic[:pos])
	if n < 0 && !isList {
		log.Warn("Received unmatchable topic", "topic", topic)
	}

	if isList {
		b.handleList(circuit, name, data)
		return
	}
	if name == "" {
		return
	}

	log.Info("Received request", "verb", verb, "circuit", circuit, "name", name)

	m := b.reg.Find(circuit, name, b.cfg.AccessLevel, isWrite, false)
	if m == nil {
		m = b.reg.Find(circuit, name, b.cfg.AccessLevel, isWrite, true)
	}
	if m == nil {
		log.Warn("Message not found", "verb", verb, "circuit", circuit, "name", name)
		return
	}

	if !m.Passive {
		useData := data
		if !isWrite && data != "" {
			useData = b.applyPollPriority(m, data)
		}
		if err := b.handler.ReadFromBus(m, useData); err != nil {
			log.Error(fmt.Sprintf("%s %s %s", verb, circuit, name), err)
			return
		}
		log.Info("Request served", "verb", verb, "circuit", circuit, "name", name, "data", data)
	}

	b.publishMessage(m, false)
}

// applyPollPriority strips a trailing "?N" poll-priority request from
// a get payload. The '?' counts only at position zero or directly
// after a field separator, which is stripped as well. A priority in
// 1..9 that actually changes the message re-enqueues it for polling.
func (b *Bridge) applyPollPriority(m *bus.Message, data string) string {
	pos := strings.LastIndexByte(data, '?')
	if pos < 0 || (pos > 0 && !strings.HasSuffix(data[:pos], bus.FieldSeparator)) {
		return data
	}

	args := data[pos+1:]
	if pos > 0 {
		data = data[:pos-1]
	} else {
		data = ""
	}

	if args != "" {
		if priority, err := strconv.Atoi(args); err == nil && priority >= 1 && priority <= 9 {
			if b.reg.SetPollPriority(m, priority) {
				b.reg.AddPoll(m)
			}
		}
	}

	return data
}

// handleList enumerates registry entries matching the requested
// circuit and name, each optionally a prefix when ending in '*', and
// publishes every match. A non-empty payload restricts the result to
// entries that have received data.
func (b *Bridge) handleList(circuit, name, data string) {
	log.Info("Received list request", "circuit", circuit, "name", name)

	circuitPrefix := circuit != "" && strings.LastIndexByte(circuit, '*') == len(circuit)-1
	if circuitPrefix {
		circuit = circuit[:len(circuit)-1]
	}
	namePrefix := name != "" && strings.LastIndexByte(name, '*') == len(name)-1
	if namePrefix {
		name = name[:len(name)-1]
	}

	messages := b.reg.FindAll(circuit, name, !(circuitPrefix || namePrefix))
	onlyWithData := data != ""

	for _, m := range messages {
		if circuitPrefix && (!strings.HasPrefix(m.Circuit, circuit) ||
			(!namePrefix && name != "" && m.Name != name)) {
			continue
		}
		if namePrefix && (!strings.HasPrefix(m.Name, name) ||
			(!circuitPrefix && circuit != "" && m.Circuit != circuit)) {
			continue
		}
		if onlyWithData && m.LastUpdate.IsZero() {
			continue
		}

		b.publishMessage(m, true)
	}
}
