package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/mqttbridge/core/bootstrap"
	"github.com/kilianp07/mqttbridge/core/logger"
	"github.com/kilianp07/mqttbridge/core/metrics"
	"github.com/kilianp07/mqttbridge/core/model"
	"github.com/kilianp07/mqttbridge/core/monitoring"
	"github.com/kilianp07/mqttbridge/core/topic"
)

// Registry issues and resolves bootstrap records.
type Registry interface {
	Register(ctx context.Context, deviceID string) (model.BootstrapRecord, error)
	Lookup(ctx context.Context, bootstrapID string) (model.BootstrapRecord, error)
}

// Sink publishes a JSON-encodable payload. Delivery is best effort.
type Sink interface {
	SendMessage(topic string, payload any) error
}

// Listener consumes router events. OnEvent is called exactly once per event,
// from the goroutine that called OnMessage.
type Listener interface {
	OnEvent(ev model.Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(model.Event)

func (f ListenerFunc) OnEvent(ev model.Event) { f(ev) }

// Listeners fans an event out to each listener in order.
type Listeners []Listener

func (ls Listeners) OnEvent(ev model.Event) {
	for _, l := range ls {
		l.OnEvent(ev)
	}
}

// Router dispatches inbound messages by topic.
type Router struct {
	registry Registry
	sink     Sink
	listener Listener
	metrics  metrics.MetricsSink
	log      logger.Logger
	now      func() time.Time
}

// Option customises a Router.
type Option func(*Router)

func WithLogger(l logger.Logger) Option { return func(r *Router) { r.log = l } }

func WithMetrics(m metrics.MetricsSink) Option { return func(r *Router) { r.metrics = m } }

func WithClock(now func() time.Time) Option { return func(r *Router) { r.now = now } }

// New returns a router. A nil listener drops events.
func New(registry Registry, sink Sink, listener Listener, opts ...Option) *Router {
	r := &Router{registry: registry, sink: sink, listener: listener, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	if r.listener == nil {
		r.listener = ListenerFunc(func(model.Event) {})
	}
	r.log = logger.OrNop(r.log)
	r.metrics = metrics.OrNop(r.metrics)
	return r
}

// OnMessage handles one inbound message. Messages on topics the router does
// not own are ignored. The returned error is informational; the router has
// already replied or logged as appropriate.
func (r *Router) OnMessage(ctx context.Context, t string, payload map[string]any) error {
	kind := topic.Classify(t)
	var err error
	switch kind {
	case topic.KindBootstrapRequest:
		err = r.handleBootstrap(ctx, payload)
	case topic.KindDeviceData:
		err = r.handleDeviceData(ctx, t, payload)
	default:
		return nil
	}
	_ = r.metrics.RecordMessage(metrics.MessageEvent{
		Direction: metrics.Inbound,
		Kind:      kind.String(),
		Failed:    err != nil,
		Time:      r.now(),
	})
	return err
}

func (r *Router) handleBootstrap(ctx context.Context, payload map[string]any) error {
	req, ok := parseBootstrapRequest(payload)
	if !ok {
		r.log.Errorf("device registration missing device ID or nonce")
		return ErrMalformedRequest
	}
	replyTopic := topic.BootstrapResponse(req.DeviceID, req.Nonce)

	rec, err := r.registry.Register(ctx, req.DeviceID)
	r.recordRegistration(req.DeviceID, rec.ID, err == nil)
	if err != nil {
		r.log.Errorf("bootstrap of %s failed: %v", req.DeviceID, err)
		monitoring.CaptureException(err, map[string]string{"module": "router", "device_id": req.DeviceID})
		r.send(replyTopic, BootstrapResponse{Error: BootstrapFailure})
		return fmt.Errorf("register %s: %w", req.DeviceID, err)
	}

	r.listener.OnEvent(req.event(rec))
	r.log.Debugf("registration from %s; responding on %s", req.DeviceID, replyTopic)
	r.send(replyTopic, BootstrapResponse{
		Secret: rec.Secret,
		Topics: &ResponseTopics{
			Data:    topic.DeviceData(rec.ID),
			Command: topic.DeviceCommand(rec.ID),
		},
	})
	return nil
}

func (r *Router) handleDeviceData(ctx context.Context, t string, payload map[string]any) error {
	id, _ := topic.NamespaceID(t)
	rec, err := r.registry.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, bootstrap.ErrNotFound) {
			r.log.Errorf("received data from device with invalid bootstrap identifier %s", id)
			return fmt.Errorf("%w: %s", ErrUnknownBootstrapID, id)
		}
		r.log.Errorf("lookup of bootstrap %s failed: %v", id, err)
		monitoring.CaptureException(err, map[string]string{"module": "router", "bootstrap_id": id})
		return fmt.Errorf("lookup %s: %w", id, err)
	}

	ev := model.DeviceDataReceived{
		DeviceID:    rec.DeviceID,
		BootstrapID: rec.ID,
		Updates:     model.UpdatesFromMap(payload),
	}
	r.listener.OnEvent(ev)
	if rr, ok := r.metrics.(metrics.DeviceDataRecorder); ok {
		if err := rr.RecordDeviceData(metrics.DeviceDataEvent{
			DeviceID:    ev.DeviceID,
			BootstrapID: ev.BootstrapID,
			Updates:     ev.Updates,
			Time:        r.now(),
		}); err != nil {
			r.log.Warnf("record device data: %v", err)
		}
	}
	return nil
}

func (r *Router) send(t string, payload any) {
	if err := r.sink.SendMessage(t, payload); err != nil {
		r.log.Errorf("publish to %s failed: %v", t, err)
	}
}

func (r *Router) recordRegistration(deviceID, bootstrapID string, ok bool) {
	rr, isRec := r.metrics.(metrics.RegistrationRecorder)
	if !isRec {
		return
	}
	_ = rr.RecordRegistration(metrics.RegistrationEvent{
		DeviceID:    deviceID,
		BootstrapID: bootstrapID,
		Success:     ok,
		Time:        r.now(),
	})
}
