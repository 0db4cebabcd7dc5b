package metrics

import "github.com/kilianp07/mqttbridge/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr enables the HTTP endpoint serving /metrics and
	// /api/devices when set.
	PrometheusAddr string `json:"prometheus_addr"`
}
