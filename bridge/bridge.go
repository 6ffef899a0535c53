// Package bridge implements the session that maps the heating-bus
// message catalog onto an MQTT topic namespace: connection lifecycle,
// the periodic task loop, definition publication, and inbound request
// routing.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/faelwyn/busmq/bus"
	"github.com/faelwyn/busmq/config"
	"github.com/faelwyn/busmq/integration"
	"github.com/faelwyn/busmq/internal/build"
	"github.com/faelwyn/busmq/log"
	"github.com/faelwyn/busmq/pattern"
)

// taskInterval is the minimum wall-clock distance between periodic
// passes of the worker loop.
const taskInterval = 15 * time.Second

// Bridge is the MQTT session bridging the bus message registry to the
// broker. All session state is owned by the single worker goroutine;
// the only concurrent entry points are [Bridge.NotifyUpdateCheck],
// [Bridge.NotifyScanStatus], and the registry's pending-update set.
type Bridge struct {
	cfg     *config.Config
	client  mqtt.Client
	events  chan event
	reg     *bus.Registry
	handler bus.Handler
	ig      *integration.Integration

	topic          *pattern.Pattern
	publishByField bool
	globalTopic    string
	subscribeTopic string

	// Worker-owned state.
	connected            bool
	initialConnectFailed bool
	definitionsSince     time.Time
	lastUpdates          time.Time
	lastErrorLog         time.Time
	pumpFailed           bool

	// Guarded by mu: concurrent notify entry points.
	mu              sync.Mutex
	lastUpdateCheck string
	lastScanStatus  string

	cancel context.CancelFunc
	group  *errgroup.Group
	done   chan struct{}
}

// New returns a Bridge for the given config. The topic template is
// compiled and normalized, the integration file (if any) is loaded,
// and the MQTT client is prepared but not yet connected; call
// [Bridge.Start] to connect and run the session.
func New(cfg *config.Config, opts ...Option) (*Bridge, error) {
	if err := checkTopicTemplate(cfg.Topic); err != nil {
		return nil, err
	}

	top, err := pattern.Compile(cfg.Topic, pattern.Options{
		OnlyKnownFields:   true,
		NoKnownDuplicates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: topic template: %w", err)
	}
	top = top.EnsureDefault(build.Name)

	b := &Bridge{
		cfg:            cfg,
		topic:          top,
		publishByField: top.Has("field"),
		done:           make(chan struct{}),
	}
	b.globalTopic = b.getTopic(nil, "global/", "")
	b.subscribeTopic = b.getTopic(nil, "#", "")

	// "." forces the first notification through the changed-only filter.
	b.lastUpdateCheck = "."
	b.lastScanStatus = "."

	for _, opt := range opts {
		opt(b)
	}

	if b.ig == nil {
		b.ig = integration.New(top, build.Version())
		if cfg.Integration != "" {
			// a missing or unreadable file is logged by LoadFile; the
			// bridge runs without integration settings
			b.ig.LoadFile(cfg.Integration)
		}
	}

	if b.reg == nil {
		b.reg = bus.NewRegistry()
	}

	if b.handler == nil {
		b.handler = bus.NewLocal(b.reg)
	}

	if b.client == nil {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = fmt.Sprintf("%s_%s_%d", build.Name, build.Version(), os.Getpid())
		}

		o := cfg.MQTT.ClientOptions(clientID, b.globalTopic+"running")
		b.events = wireEvents(o)
		b.client = mqtt.NewClient(o)
	} else if b.events == nil {
		b.events = make(chan event, 256)
	}

	WithLogLevel(cfg.MQTT.LogLevel)(b)

	return b, nil
}

// checkTopicTemplate rejects template values the broker side could
// never accept as a publish topic root.
func checkTopicTemplate(topic string) error {
	if strings.ContainsAny(topic, "#+") {
		return fmt.Errorf("bridge: topic template %q contains wildcard characters", topic)
	}
	if strings.HasSuffix(topic, "/") {
		return fmt.Errorf("bridge: topic template %q ends with a separator", topic)
	}

	return nil
}

// Registry returns the bus message registry the session serves.
func (b *Bridge) Registry() *bus.Registry { return b.reg }

// Start issues the initial connect and launches the worker loop. An
// invalid-parameter failure is fatal unless the config tolerates it,
// in which case it is deferred to the reconnect path.
func (b *Bridge) Start(ctx context.Context) error {
	if err := validateBroker(b.cfg.MQTT.Broker); err != nil {
		if !b.cfg.IgnoreInvalid {
			log.Error("Unable to connect (invalid parameters)", err)
			return err
		}
		b.initialConnectFailed = true
	} else if err := b.connect(); err != nil {
		if errors.Is(classifyConnectErr(err), ErrInvalidParams) && !b.cfg.IgnoreInvalid {
			log.Error("Unable to connect (invalid parameters)", err)
			return ErrInvalidParams
		}
		log.WarnError("Unable to connect, retrying", err)
		b.connected = false
		b.initialConnectFailed = b.cfg.IgnoreInvalid
	} else {
		// assume success until the connect callback says otherwise
		b.connected = true
		log.Debug("Connection requested")
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.group, ctx = errgroup.WithContext(ctx)

	b.group.Go(func() error {
		defer close(b.done)
		b.run(ctx)
		return nil
	})

	if b.cfg.Integration != "" {
		b.group.Go(func() error {
			return b.watchIntegration(ctx)
		})
	}

	return nil
}

// Stop requests the worker loop to exit and waits for it.
func (b *Bridge) Stop() {
	if b.cancel == nil {
		return
	}

	b.cancel()
	b.group.Wait()

	if b.client.IsConnectionOpen() {
		b.client.Disconnect(250)
	}
}

// Done is closed once the worker loop has exited.
func (b *Bridge) Done() <-chan struct{} { return b.done }

func (b *Bridge) connect() error {
	t := b.client.Connect()
	if !t.WaitTimeout(30 * time.Second) {
		return fmt.Errorf("bridge: connect timed out")
	}

	return t.Error()
}

// run is the worker loop. One iteration pumps the transport for up to
// a second, performs the periodic tasks every [taskInterval], drains
// pending updates under the registry lock, and then waits; every wait
// is interruptible by ctx.
func (b *Bridge) run(ctx context.Context) {
	now := time.Now()
	start := now
	lastTaskRun := now

	var (
		lastSignal time.Time
		signal     bool
	)

	signalTopic := b.globalTopic + "signal"
	uptimeTopic := b.globalTopic + "uptime"
	allowReconnect := false

	for ctx.Err() == nil {
		wasConnected := b.connected
		needsWait := b.pump(ctx, allowReconnect)
		reconnected := !wasConnected && b.connected
		allowReconnect = false

		now = time.Now()
		sendSignal := reconnected

		if now.Before(start) {
			// clock jumped backward, re-base so the periodic pass is
			// not delayed indefinitely
			if now.Before(lastSignal) {
				lastSignal = lastSignal.Add(-lastTaskRun.Sub(now))
			}
			lastTaskRun = now
		} else if now.Sub(lastTaskRun) > taskInterval {
			allowReconnect = true

			if b.connected {
				sendSignal = true
				uptime := int(now.Sub(start) / time.Second)
				b.publish(uptimeTopic, strconv.Itoa(uptime), false)
			}

			if b.connected && b.definitionsSince.IsZero() {
				b.publishBuiltinDefinitions(signalTopic, uptimeTopic)
				b.definitionsSince = time.Unix(1, 0)
			}

			if b.connected && b.ig.HasDefinitionTopic {
				b.publishDefinitions()
				b.definitionsSince = time.Now()
				needsWait = true
			}

			lastTaskRun = now
		}

		if sendSignal {
			if b.handler.HasSignal() {
				lastSignal = now
				if !signal || reconnected {
					signal = true
					b.publish(signalTopic, "true", true)
				}
			} else if signal || reconnected {
				signal = false
				b.publish(signalTopic, "false", true)
			}
		}

		if b.reg.HasPending() {
			b.flushPending()
		}

		if !b.connected && !b.wait(ctx, 5*time.Second) {
			break
		}
		if needsWait && !b.wait(ctx, time.Second) {
			break
		}
	}

	b.publish(signalTopic, "false", true)
	b.publish(b.globalTopic+"scan", "", true) // clear the retained scan status
}

// flushPending drains the pending-update set under the registry lock.
// When disconnected the updates are discarded without publishing.
func (b *Bridge) flushPending() {
	if !b.connected {
		b.reg.DrainPending(nil)
		return
	}

	b.reg.DrainPending(func(_ bus.Key, msgs []*bus.Message) {
		for _, m := range msgs {
			if m.LastChange.IsZero() || !m.Available() {
				continue
			}
			if b.cfg.OnlyChanges && !m.LastChange.After(b.lastUpdates) {
				continue
			}
			b.publishMessage(m, false)
		}
	})

	b.lastUpdates = time.Now()
}

// pump consumes the transport's event stream, waiting up to a second
// for traffic, and performs at most one reconnection attempt when
// allowed. It reports whether the iteration should be followed by a
// wait, i.e. whether a transport failure was observed.
func (b *Bridge) pump(ctx context.Context, allowReconnect bool) bool {
	b.pumpFailed = false

	timer := time.NewTimer(time.Second)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case ev := <-b.events:
		b.handleEvent(ev)
		b.drainEvents()
	case <-timer.C:
	}

	if !b.connected && allowReconnect {
		err := b.connect()
		switch {
		case err == nil:
			b.connected = true
			b.initialConnectFailed = false
			log.Info("Connection re-established")
		case errors.Is(classifyConnectErr(err), ErrInvalidParams):
			log.Error("Unable to connect (invalid parameters), retrying", err)
		default:
			b.transportErr("connect", err)
		}
	}

	return b.pumpFailed
}

func (b *Bridge) drainEvents() {
	for {
		select {
		case ev := <-b.events:
			b.handleEvent(ev)
		default:
			return
		}
	}
}

func (b *Bridge) handleEvent(ev event) {
	switch ev.kind {
	case evConnected:
		log.Info("Connection established")
		b.connected = true
		b.notifyConnected()
	case evConnLost:
		log.WarnError("Connection lost", ev.err)
		b.connected = false
		b.pumpFailed = true
	case evMessage:
		b.notifyTopic(ev.topic, string(ev.payload))
	case evReload:
		b.reloadIntegration()
	}
}

// notifyConnected publishes the retained version and running topics
// and subscribes to the bridge's inbound topic tree.
func (b *Bridge) notifyConnected() {
	sep := ""
	if b.cfg.JSON {
		sep = `"`
	}

	b.publish(b.globalTopic+"version", sep+build.Version()+sep, true)
	b.publish(b.globalTopic+"running", "true", true)
	b.subscribe(b.subscribeTopic)

	if b.ig.ConfigRestartTopic != "" {
		b.subscribe(b.ig.ConfigRestartTopic)
	}
}

func (b *Bridge) subscribe(filter string) {
	t := b.client.Subscribe(filter, 0, nil)
	if t.WaitTimeout(time.Second) && t.Error() != nil {
		b.transportErr("subscribe "+filter, t.Error())
	}
}

// publish sends a payload without waiting for completion; delivery
// failures surface through the connection-lost event.
func (b *Bridge) publish(topic, payload string, retain bool) {
	log.Debug("Publish", "topic", topic, "payload", payload)
	b.client.Publish(topic, 0, b.cfg.Retain || retain, payload)
}

func (b *Bridge) publishEmpty(topic string) {
	log.Debug("Publish empty", "topic", topic)
	b.client.Publish(topic, 0, b.cfg.Retain, []byte{})
}

// transportErr logs a transport failure, rate-limited to one log every
// ten seconds to avoid flooding while the broker is down.
func (b *Bridge) transportErr(op string, err error) {
	b.pumpFailed = true

	now := time.Now()
	if now.Sub(b.lastErrorLog) < 10*time.Second {
		return
	}
	b.lastErrorLog = now

	log.Error("Communication error: "+op, err)
}

// wait sleeps up to d, returning false if the stop request arrived.
func (b *Bridge) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// reloadIntegration re-reads the integration file and forces a full
// definition republish on the next periodic pass.
func (b *Bridge) reloadIntegration() {
	ig := integration.New(b.topic, build.Version())
	if err := ig.LoadFile(b.cfg.Integration); err != nil {
		return
	}

	b.ig = ig
	b.definitionsSince = time.Time{}
	log.Info("Integration reloaded", "path", b.cfg.Integration)
}

// watchIntegration feeds a reload event into the session whenever the
// integration file changes on disk.
func (b *Bridge) watchIntegration(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.WarnError("Unable to watch integration file", err)
		return nil
	}
	defer w.Close()

	if err := w.Add(b.cfg.Integration); err != nil {
		log.WarnError("Unable to watch integration file", err, "path", b.cfg.Integration)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				select {
				case b.events <- event{kind: evReload}:
				case <-ctx.Done():
					return nil
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WarnError("Integration watcher", err)
		}
	}
}

// NotifyUpdateCheck publishes the retained updatecheck topic when the
// result changed. Safe to call from any goroutine.
func (b *Bridge) NotifyUpdateCheck(result string) {
	b.mu.Lock()
	changed := result != b.lastUpdateCheck
	if changed {
		b.lastUpdateCheck = result
	}
	b.mu.Unlock()

	if !changed {
		return
	}

	if result == "" {
		result = "OK"
	}

	sep := ""
	if b.cfg.JSON {
		sep = `"`
	}

	b.publish(b.globalTopic+"updatecheck", sep+result+sep, true)
}

// NotifyScanStatus publishes the retained scan topic when the status
// changed. Safe to call from any goroutine.
func (b *Bridge) NotifyScanStatus(status string) {
	b.mu.Lock()
	changed := status != b.lastScanStatus
	if changed {
		b.lastScanStatus = status
	}
	b.mu.Unlock()

	if !changed {
		return
	}

	if status == "" {
		status = "OK"
	}

	sep := ""
	if b.cfg.JSON {
		sep = `"`
	}

	b.publish(b.globalTopic+"scan", sep+status+sep, true)
}
