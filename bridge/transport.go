package bridge

import (
	"errors"
	"net"
	"net/url"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/faelwyn/busmq/log"
)

// ErrInvalidParams marks a connect failure caused by unusable
// connection parameters (bad broker address, unresolvable hostname).
// At startup such a failure disables the bridge unless the config
// tolerates it, in which case it is retried like an ordinary
// reconnect.
var ErrInvalidParams = errors.New("bridge: invalid connection parameters")

type eventKind int

const (
	evConnected eventKind = iota
	evConnLost
	evMessage
	evReload
)

// An event is one entry of the transport's event stream. The backing
// client's callbacks only enqueue events; the session consumes them
// synchronously at the top of each loop iteration, so no foreign
// goroutine ever touches session state.
type event struct {
	kind    eventKind
	err     error
	topic   string
	payload []byte
}

// wireEvents attaches the event-stream callbacks to the client options
// and returns the channel they feed.
func wireEvents(o *mqtt.ClientOptions) chan event {
	events := make(chan event, 256)

	send := func(ev event) {
		select {
		case events <- ev:
		default:
			log.Warn("Event stream full, dropping event", "kind", int(ev.kind))
		}
	}

	o.SetOnConnectHandler(func(_ mqtt.Client) {
		send(event{kind: evConnected})
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		send(event{kind: evConnLost, err: err})
	})
	o.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		send(event{kind: evMessage, topic: msg.Topic(), payload: msg.Payload()})
	})

	return events
}

// validateBroker checks the broker address the way the backing client
// will interpret it, so unusable parameters surface before connecting.
func validateBroker(broker string) error {
	if broker == "" {
		return ErrInvalidParams
	}

	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	u, err := url.Parse(broker)
	if err != nil {
		return ErrInvalidParams
	}

	switch u.Scheme {
	case "unix":
		if u.Path != "" {
			return nil
		}
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
		if u.Hostname() != "" {
			return nil
		}
	}

	return ErrInvalidParams
}

// classifyConnectErr folds DNS resolution failures into
// [ErrInvalidParams]; a hostname that does not resolve yet is an
// invalid parameter in the startup sense.
func classifyConnectErr(err error) error {
	if err == nil {
		return nil
	}

	var dns *net.DNSError
	if errors.As(err, &dns) {
		return errors.Join(ErrInvalidParams, err)
	}

	return err
}
