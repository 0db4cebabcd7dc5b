package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/mqttbridge/core/metrics"
	"github.com/kilianp07/mqttbridge/core/model"
	"github.com/kilianp07/mqttbridge/infra/logger"
)

// InfluxConfig points the sink at an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes device telemetry and bridge events to InfluxDB using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordMessage counts a handled message.
func (s *InfluxSink) RecordMessage(ev coremetrics.MessageEvent) error {
	p := write.NewPointWithMeasurement("mqtt_message").
		AddTag("direction", string(ev.Direction)).
		AddTag("kind", ev.Kind).
		AddTag("failed", strconv.FormatBool(ev.Failed)).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordConnection writes a connection state transition.
func (s *InfluxSink) RecordConnection(ev coremetrics.ConnectionEvent) error {
	p := write.NewPointWithMeasurement("mqtt_connection").
		AddTag("state", ev.State).
		AddField("connected", ev.Connected).
		AddField("attempt", ev.Attempt).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordRegistration writes the outcome of a bootstrap request.
func (s *InfluxSink) RecordRegistration(ev coremetrics.RegistrationEvent) error {
	p := write.NewPointWithMeasurement("bootstrap_registration").
		AddTag("device_id", ev.DeviceID).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("bootstrap_id", ev.BootstrapID).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordAuthFailure writes a rejected connect or ACL denial.
func (s *InfluxSink) RecordAuthFailure(ev coremetrics.AuthFailureEvent) error {
	p := write.NewPointWithMeasurement("auth_failure").
		AddTag("reason", ev.Reason).
		AddField("username", ev.Username).
		AddField("client_id", ev.ClientID).
		AddField("topic", ev.Topic).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDeviceData writes one point per message with a field per variable.
// Messages without usable variables are skipped.
func (s *InfluxSink) RecordDeviceData(ev coremetrics.DeviceDataEvent) error {
	if len(ev.Updates) == 0 {
		return nil
	}
	p := write.NewPointWithMeasurement("device_data").
		AddTag("device_id", ev.DeviceID).
		AddTag("bootstrap_id", ev.BootstrapID).
		SetTime(ev.Time)
	for _, u := range ev.Updates {
		p = p.AddField(u.Name, fieldValue(u))
	}
	return s.write(p)
}

// Close flushes and closes the client.
func (s *InfluxSink) Close() { s.client.Close() }

// fieldValue keeps scalars as is and encodes anything else as JSON text.
func fieldValue(u model.VariableUpdate) any {
	switch v := u.Value.(type) {
	case float64, int64, bool, string:
		return v
	case nil:
		return ""
	}
	b, err := json.Marshal(u.Value)
	if err != nil {
		return u.String()
	}
	return string(b)
}
