package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// ctlToken is a paho.Token completed by the test.
type ctlToken struct {
	once sync.Once
	mu   sync.Mutex
	done chan struct{}
	err  error
}

func newToken() *ctlToken { return &ctlToken{done: make(chan struct{})} }

func doneToken(err error) *ctlToken {
	t := newToken()
	t.complete(err)
	return t
}

func (t *ctlToken) complete(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *ctlToken) Wait() bool { <-t.done; return true }
func (t *ctlToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *ctlToken) Done() <-chan struct{} { return t.done }
func (t *ctlToken) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests.
type mockClient struct {
	mu           sync.Mutex
	opts         *paho.ClientOptions
	connectToken *ctlToken
	subErrs      map[string]error
	subscribed   map[string]byte
	handlers     map[string]paho.MessageHandler
	published    []publishCall
	publishErr   error
	disconnects  int
}

func newMockClient(opts *paho.ClientOptions) *mockClient {
	return &mockClient{
		opts:         opts,
		connectToken: doneToken(nil),
		subErrs:      map[string]error{},
		subscribed:   map[string]byte{},
		handlers:     map[string]paho.MessageHandler{},
	}
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectToken
}
func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	m.disconnects++
	m.mu.Unlock()
}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, _ := payload.([]byte)
	m.published = append(m.published, publishCall{topic, qos, retained, b})
	return doneToken(m.publishErr)
}
func (m *mockClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed[topic] = qos
	m.handlers[topic] = cb
	return doneToken(m.subErrs[topic])
}

func (m *mockClient) deliver(filter, topic string, payload []byte) {
	m.mu.Lock()
	h := m.handlers[filter]
	m.mu.Unlock()
	if h != nil {
		h(nil, mockMessage{topic: topic, p: payload})
	}
}

func (m *mockClient) disconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

func (m *mockClient) publishes() []publishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishCall(nil), m.published...)
}

func (m *mockClient) subscriptions() map[string]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]byte, len(m.subscribed))
	for k, v := range m.subscribed {
		out[k] = v
	}
	return out
}

// mockFactory records every client handed out through newMQTTClient.
type mockFactory struct {
	mu      sync.Mutex
	clients []*mockClient
	setup   func(i int, c *mockClient)
}

func (f *mockFactory) new(opts *paho.ClientOptions) pahoClient {
	c := newMockClient(opts)
	f.mu.Lock()
	i := len(f.clients)
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	if f.setup != nil {
		f.setup(i, c)
	}
	return c
}

func (f *mockFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *mockFactory) client(i int) *mockClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

func installFactory(t interface{ Cleanup(func()) }, f *mockFactory) {
	prev := newMQTTClient
	newMQTTClient = f.new
	t.Cleanup(func() { newMQTTClient = prev })
}

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
