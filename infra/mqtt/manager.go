package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/mqttbridge/core/logger"
	coremetrics "github.com/kilianp07/mqttbridge/core/metrics"
	"github.com/kilianp07/mqttbridge/core/monitoring"
	coremqtt "github.com/kilianp07/mqttbridge/core/mqtt"
	"github.com/kilianp07/mqttbridge/core/router"
	"github.com/kilianp07/mqttbridge/core/topic"
	"github.com/kilianp07/mqttbridge/internal/eventbus"
)

// Handler receives decoded inbound messages. It is called from the manager
// loop, one message at a time.
type Handler interface {
	OnMessage(ctx context.Context, topic string, payload map[string]any) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, topic string, payload map[string]any) error

func (f HandlerFunc) OnMessage(ctx context.Context, t string, payload map[string]any) error {
	return f(ctx, t, payload)
}

// subscriptions made after every successful connect, all at QoS 0.
var subscriptions = []string{topic.BootstrapFilter, topic.DeviceFilter}

const (
	disconnectQuiesce = 250
	subackFailure     = 0x80
)

// Manager owns the bridge's connection to the broker. All state transitions
// happen on the goroutine running Run; paho callbacks and the watchdog post
// work to it. Each client handle gets a generation number and callbacks from
// an older generation are dropped.
type Manager struct {
	cfg     Config
	handler Handler
	log     logger.Logger
	metrics coremetrics.MetricsSink
	bus     *eventbus.TypedBus[coremqtt.StateChange]
	now     func() time.Time

	ops  chan func()
	done chan struct{}

	// owned by the loop
	ctx   context.Context
	gen   uint64
	state coremqtt.State

	// snapshot for readers outside the loop
	mu       sync.RWMutex
	client   pahoClient
	snapshot coremqtt.State
}

var _ coremqtt.Publisher = (*Manager)(nil)

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

func WithHandler(h Handler) ManagerOption { return func(m *Manager) { m.handler = h } }

func WithLogger(l logger.Logger) ManagerOption { return func(m *Manager) { m.log = l } }

func WithMetrics(s coremetrics.MetricsSink) ManagerOption {
	return func(m *Manager) { m.metrics = s }
}

// WithStateBus publishes every state transition on bus.
func WithStateBus(bus *eventbus.TypedBus[coremqtt.StateChange]) ManagerOption {
	return func(m *Manager) { m.bus = bus }
}

// NewManager validates cfg and returns a stopped manager. Call Run to start it.
func NewManager(cfg Config, opts ...ManagerOption) (*Manager, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:  cfg,
		now:  time.Now,
		ops:  make(chan func(), 256),
		done: make(chan struct{}),
		ctx:  context.Background(),
	}
	for _, o := range opts {
		o(m)
	}
	m.log = logger.OrNop(m.log)
	m.metrics = coremetrics.OrNop(m.metrics)
	return m, nil
}

// SetHandler installs the inbound message handler. It must be called before Run.
func (m *Manager) SetHandler(h Handler) { m.handler = h }

// Run connects and then serves callbacks and watchdog ticks until ctx is
// cancelled. The connection is closed on return.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)
	m.ctx = ctx
	ticker := time.NewTicker(m.cfg.WatchdogInterval)
	defer ticker.Stop()

	m.connect()
	for {
		select {
		case <-ctx.Done():
			if old := m.drop(nil); old != nil {
				old.Disconnect(disconnectQuiesce)
			}
			return nil
		case <-ticker.C:
			m.tick()
		case op := <-m.ops:
			op()
		}
	}
}

// Connect starts a connection attempt unless one is pending or established.
func (m *Manager) Connect() { m.post(m.connect) }

// Disconnect drops the current connection. Calling it while disconnected is a no-op.
func (m *Manager) Disconnect() { m.post(func() { m.disconnect(nil) }) }

// Tick runs one watchdog check.
func (m *Manager) Tick() { m.post(m.tick) }

// Status returns the last published connection state.
func (m *Manager) Status() coremqtt.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// SendMessage JSON-encodes payload and publishes it at QoS 0, not retained.
// The outcome is logged when the publish completes; it is never retried.
func (m *Manager) SendMessage(t string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", t, err)
	}
	m.mu.RLock()
	cli, live := m.client, m.snapshot.Live()
	m.mu.RUnlock()
	kind := topic.Classify(t).String()
	if cli == nil || !live {
		m.recordOutbound(kind, true)
		return ErrNotConnected
	}
	token := cli.Publish(t, 0, false, b)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			m.log.Errorf("publish to %s failed: %v", t, err)
			m.recordOutbound(kind, true)
			return
		}
		m.log.Debugf("published %d bytes to %s", len(b), t)
		m.recordOutbound(kind, false)
	}()
	return nil
}

func (m *Manager) recordOutbound(kind string, failed bool) {
	_ = m.metrics.RecordMessage(coremetrics.MessageEvent{
		Direction: coremetrics.Outbound,
		Kind:      kind,
		Failed:    failed,
		Time:      m.now(),
	})
}

// post hands op to the loop. Once Run has returned, ops are discarded.
func (m *Manager) post(op func()) {
	select {
	case m.ops <- op:
	case <-m.done:
	}
}

func (m *Manager) tick() {
	if m.state == coremqtt.Disconnected {
		m.log.Debugf("watchdog: not connected, reconnecting")
		m.connect()
	}
}

func (m *Manager) connect() {
	if m.state != coremqtt.Disconnected {
		return
	}
	opts, err := NewClientOptions(m.cfg)
	if err != nil {
		m.log.Errorf("mqtt options: %v", err)
		return
	}
	m.gen++
	gen := m.gen
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		m.post(func() { m.onConnectionLost(gen, err) })
	})
	cli := newMQTTClient(opts)
	m.setClient(cli)
	m.setState(coremqtt.Connecting, nil)
	m.log.Infof("connecting to %s as %s", m.cfg.Broker, m.cfg.ClientID)

	token := cli.Connect()
	go func() {
		<-token.Done()
		err := token.Error()
		m.post(func() { m.onConnect(gen, cli, err) })
	}()
}

func (m *Manager) onConnect(gen uint64, cli pahoClient, err error) {
	if gen != m.gen {
		if err == nil {
			m.log.Debugf("closing stale connection (generation %d)", gen)
			go cli.Disconnect(disconnectQuiesce)
		}
		return
	}
	if err != nil {
		m.log.Errorf("connect to %s failed: %v", m.cfg.Broker, err)
		m.setClient(nil)
		m.setState(coremqtt.Disconnected, err)
		return
	}
	m.log.Infof("connected to %s", m.cfg.Broker)
	m.setState(coremqtt.Connected, nil)
	m.subscribe(gen, cli)
}

func (m *Manager) subscribe(gen uint64, cli pahoClient) {
	m.setState(coremqtt.Subscribing, nil)
	handler := func(_ paho.Client, msg paho.Message) {
		t, payload := msg.Topic(), append([]byte(nil), msg.Payload()...)
		m.post(func() { m.onMessage(gen, t, payload) })
	}
	tokens := make([]paho.Token, len(subscriptions))
	for i, filter := range subscriptions {
		tokens[i] = cli.Subscribe(filter, 0, handler)
	}
	go func() {
		var errs []error
		for i, tok := range tokens {
			<-tok.Done()
			if err := tok.Error(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", subscriptions[i], err))
				continue
			}
			if st, ok := tok.(*paho.SubscribeToken); ok {
				for filter, code := range st.Result() {
					if code == subackFailure {
						errs = append(errs, fmt.Errorf("%s: rejected by broker", filter))
					}
				}
			}
		}
		err := errors.Join(errs...)
		m.post(func() { m.onSubscribed(gen, err) })
	}()
}

func (m *Manager) onSubscribed(gen uint64, err error) {
	if gen != m.gen || m.state != coremqtt.Subscribing {
		return
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
		m.log.Errorf("%v", err)
		m.disconnect(err)
		return
	}
	m.log.Infof("subscribed to %v", subscriptions)
	m.setState(coremqtt.Subscribed, nil)
}

func (m *Manager) onConnectionLost(gen uint64, err error) {
	if gen != m.gen {
		return
	}
	m.log.Warnf("connection lost: %v", err)
	m.disconnect(err)
}

func (m *Manager) disconnect(cause error) {
	if old := m.drop(cause); old != nil {
		go old.Disconnect(disconnectQuiesce)
	}
}

// drop invalidates the current handle and returns it for closing.
func (m *Manager) drop(cause error) pahoClient {
	m.gen++
	old := m.client
	m.setClient(nil)
	if m.state != coremqtt.Disconnected {
		m.setState(coremqtt.Disconnected, cause)
	}
	return old
}

func (m *Manager) onMessage(gen uint64, t string, payload []byte) {
	if gen != m.gen {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("panic handling message on %s: %v", t, r)
			monitoring.CapturePanic(r, map[string]string{"module": "mqtt", "topic": t})
		}
	}()
	decoded, err := router.DecodePayload(payload)
	if err != nil {
		m.log.Warnf("dropping message on %s: %v", t, err)
		_ = m.metrics.RecordMessage(coremetrics.MessageEvent{
			Direction: coremetrics.Inbound,
			Kind:      topic.Classify(t).String(),
			Failed:    true,
			Time:      m.now(),
		})
		return
	}
	if m.handler == nil {
		return
	}
	if err := m.handler.OnMessage(m.ctx, t, decoded); err != nil {
		m.log.Debugf("message on %s: %v", t, err)
	}
}

func (m *Manager) setClient(c pahoClient) {
	m.mu.Lock()
	m.client = c
	m.mu.Unlock()
}

func (m *Manager) setState(to coremqtt.State, cause error) {
	from := m.state
	m.state = to
	m.mu.Lock()
	m.snapshot = to
	m.mu.Unlock()
	m.log.Debugf("mqtt state %s -> %s", from, to)
	if m.bus != nil {
		m.bus.Publish(coremqtt.StateChange{From: from, To: to, Generation: m.gen, Err: cause, Time: m.now()})
	}
}
