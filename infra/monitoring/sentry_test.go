package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/mqttbridge/config"
	coremon "github.com/kilianp07/mqttbridge/core/monitoring"
)

func TestNewSentryMonitorDisabled(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestSentryMonitorTags(t *testing.T) {
	var mu sync.Mutex
	var events []*sentry.Event
	capture := func(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		return nil
	}
	m, err := newSentryMonitor(config.SentryConfig{DSN: "https://public@example.invalid/1", Environment: "test"}, capture)
	require.NoError(t, err)

	m.CaptureException(errors.New("registry down"), map[string]string{"module": "router", "device_id": "dev1"})
	m.CaptureException(nil, nil)
	m.CapturePanic("bad handler", map[string]string{"module": "mqtt"})
	m.Flush(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, "router", events[0].Tags["module"])
	assert.Equal(t, "dev1", events[0].Tags["device_id"])
	assert.Equal(t, "mqtt", events[1].Tags["module"])
	assert.Equal(t, sentry.LevelFatal, events[1].Level)
}
