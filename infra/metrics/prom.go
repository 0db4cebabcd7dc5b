package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/mqttbridge/core/metrics"
)

// PromSink records bridge activity in Prometheus metrics.
type PromSink struct {
	messages      *prometheus.CounterVec
	connects      prometheus.Counter
	connected     prometheus.Gauge
	state         *prometheus.GaugeVec
	registrations *prometheus.CounterVec
	authFailures  *prometheus.CounterVec
	updates       prometheus.Counter
}

var connectionStates = []string{"disconnected", "connecting", "connected", "subscribing", "subscribed"}

// NewPromSink registers bridge metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// that are already registered are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.messages, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mqttbridge_messages_total",
		Help: "MQTT messages handled by the bridge",
	}, []string{"direction", "kind", "failed"})); err != nil {
		return nil, err
	}
	if s.connects, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mqttbridge_connect_attempts_total",
		Help: "Connection attempts made by the bridge client",
	})); err != nil {
		return nil, err
	}
	if s.connected, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mqttbridge_connected",
		Help: "1 while the bridge client has a live broker session",
	})); err != nil {
		return nil, err
	}
	if s.state, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mqttbridge_connection_state",
		Help: "Current connection state of the bridge client, one series per state",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	if s.registrations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mqttbridge_bootstrap_registrations_total",
		Help: "Bootstrap requests by outcome",
	}, []string{"success"})); err != nil {
		return nil, err
	}
	if s.authFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mqttbridge_auth_failures_total",
		Help: "Rejected connects and denied publish or subscribe requests",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if s.updates, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mqttbridge_device_variable_updates_total",
		Help: "Variable updates reported by devices",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (s *PromSink) RecordMessage(ev coremetrics.MessageEvent) error {
	s.messages.WithLabelValues(string(ev.Direction), ev.Kind, strconv.FormatBool(ev.Failed)).Inc()
	return nil
}

func (s *PromSink) RecordConnection(ev coremetrics.ConnectionEvent) error {
	if ev.Attempt {
		s.connects.Inc()
	}
	if ev.Connected {
		s.connected.Set(1)
	} else {
		s.connected.Set(0)
	}
	for _, st := range connectionStates {
		v := 0.0
		if st == ev.State {
			v = 1
		}
		s.state.WithLabelValues(st).Set(v)
	}
	return nil
}

func (s *PromSink) RecordRegistration(ev coremetrics.RegistrationEvent) error {
	s.registrations.WithLabelValues(strconv.FormatBool(ev.Success)).Inc()
	return nil
}

func (s *PromSink) RecordAuthFailure(ev coremetrics.AuthFailureEvent) error {
	s.authFailures.WithLabelValues(ev.Reason).Inc()
	return nil
}

func (s *PromSink) RecordDeviceData(ev coremetrics.DeviceDataEvent) error {
	s.updates.Add(float64(len(ev.Updates)))
	return nil
}
