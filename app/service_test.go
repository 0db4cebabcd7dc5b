package app

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/mqttbridge/config"
	"github.com/kilianp07/mqttbridge/core/bootstrap"
	"github.com/kilianp07/mqttbridge/core/device"
	coremqtt "github.com/kilianp07/mqttbridge/core/mqtt"
	"github.com/kilianp07/mqttbridge/core/router"
	"github.com/kilianp07/mqttbridge/core/topic"
	"github.com/kilianp07/mqttbridge/infra/mqtt"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	svc, err := New(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		assert.NoError(t, svc.Close())
	})
	require.Eventually(t, func() bool { return svc.Manager.Status() == coremqtt.Subscribed },
		5*time.Second, 20*time.Millisecond)
	return svc
}

func embeddedConfig(t *testing.T) (*config.Config, string) {
	addr := freeAddr(t)
	cfg := config.Default()
	cfg.Broker.Address = addr
	cfg.MQTT.Broker = "tcp://" + addr
	cfg.MQTT.WatchdogInterval = time.Second
	cfg.Logging.Level = "error"
	return cfg, "tcp://" + addr
}

func TestServiceBootstrapAndData(t *testing.T) {
	cfg, broker := embeddedConfig(t)
	svc := startService(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := mqtt.RequestBootstrap(ctx, mqtt.Config{Broker: broker}, router.BootstrapRequest{DeviceID: "thermo-1", Name: "Kitchen"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Secret)
	require.NotNil(t, resp.Topics)

	d, ok := svc.Directory.Get("thermo-1")
	require.True(t, ok)
	assert.Equal(t, device.StatePending, d.State)
	assert.Equal(t, "Kitchen", d.Name)

	require.NoError(t, mqtt.PublishDeviceData(ctx, mqtt.Config{Broker: broker}, resp.Topics.Data, resp.Secret,
		map[string]any{"temperature": 72.5, "humidity": 30.1}))
	assert.Eventually(t, func() bool {
		d, _ := svc.Directory.Get("thermo-1")
		return d.State == device.StateActive && d.Variables["temperature"] == 72.5
	}, 5*time.Second, 20*time.Millisecond)

	err = mqtt.PublishDeviceData(ctx, mqtt.Config{Broker: broker}, resp.Topics.Data, "wrong-secret", map[string]any{"x": 1.0})
	assert.Error(t, err)
}

func TestServiceRejectsForeignDataTopic(t *testing.T) {
	cfg, broker := embeddedConfig(t)
	svc := startService(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a, err := mqtt.RequestBootstrap(ctx, mqtt.Config{Broker: broker}, router.BootstrapRequest{DeviceID: "a"})
	require.NoError(t, err)
	b, err := mqtt.RequestBootstrap(ctx, mqtt.Config{Broker: broker}, router.BootstrapRequest{DeviceID: "b"})
	require.NoError(t, err)

	// authenticated as a, publishing on b's topic
	aID, ok := topic.NamespaceID(a.Topics.Data)
	require.True(t, ok)
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("a-client").SetUsername(aID).SetPassword(a.Secret)
	cli := paho.NewClient(opts)
	tok := cli.Connect()
	require.True(t, tok.WaitTimeout(3*time.Second))
	require.NoError(t, tok.Error())
	defer cli.Disconnect(50)
	cli.Publish(b.Topics.Data, 0, false, []byte(`{"spoofed":true}`)).WaitTimeout(time.Second)

	time.Sleep(200 * time.Millisecond)
	d, ok := svc.Directory.Get("b")
	require.True(t, ok)
	assert.Equal(t, device.StatePending, d.State)
	assert.Empty(t, d.Variables)
}

func TestNewWithSQLiteStore(t *testing.T) {
	cfg, _ := embeddedConfig(t)
	cfg.Bootstrap.Store = "sqlite"
	cfg.Bootstrap.Path = t.TempDir() + "/bootstrap.db"
	svc, err := New(cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()

	rec, err := svc.Registry.Register(context.Background(), "dev1")
	require.NoError(t, err)
	got, err := svc.Registry.Lookup(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Secret, got.Secret)
	assert.NotEmpty(t, svc.Admin.Username)
	assert.Len(t, svc.Admin.Password, 32)
}

func TestNewUsesConfiguredCredentials(t *testing.T) {
	cfg, _ := embeddedConfig(t)
	cfg.MQTT.Username, cfg.MQTT.Password = "bridge", "pw"
	cfg.Bootstrap.Policy = bootstrap.PolicyReuse
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()
	assert.Equal(t, "bridge", svc.Admin.Username)
	assert.NotNil(t, svc.Broker)
}

func TestAnnounceCarriesDeviceAndBootstrapIDs(t *testing.T) {
	cfg, broker := embeddedConfig(t)
	svc := startService(t, cfg)

	notices := make(chan router.ActivationNotice, 1)
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("auth-backend").
		SetUsername(svc.Admin.Username).SetPassword(svc.Admin.Password)
	cli := paho.NewClient(opts)
	tok := cli.Connect()
	require.True(t, tok.WaitTimeout(3*time.Second))
	require.NoError(t, tok.Error())
	defer cli.Disconnect(50)
	tok = cli.Subscribe(topic.Activations, 1, func(_ paho.Client, m paho.Message) {
		var n router.ActivationNotice
		if json.Unmarshal(m.Payload(), &n) == nil {
			notices <- n
		}
	})
	require.True(t, tok.WaitTimeout(3*time.Second))
	require.NoError(t, tok.Error())

	rec, err := svc.Registry.Register(context.Background(), "thermo-1")
	require.NoError(t, err)
	svc.announce(device.Device{ID: "thermo-1", BootstrapID: rec.ID})

	select {
	case n := <-notices:
		assert.Equal(t, "thermo-1", n.DeviceID)
		assert.Equal(t, rec.ID, n.BootstrapID)
		assert.Equal(t, rec.Secret, n.DeviceSecret)
	case <-time.After(3 * time.Second):
		t.Fatal("no activation notice")
	}
}
