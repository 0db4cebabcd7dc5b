package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/mqttbridge/core/bootstrap"
	"github.com/kilianp07/mqttbridge/core/metrics"
	"github.com/kilianp07/mqttbridge/infra/broker"
	"github.com/kilianp07/mqttbridge/infra/logger"
	"github.com/kilianp07/mqttbridge/infra/mqtt"
)

// EnvPrefix marks environment variables that override file values.
// BRIDGE_MQTT__BROKER overrides mqtt.broker.
const EnvPrefix = "BRIDGE_"

type Config struct {
	MQTT      mqtt.Config      `json:"mqtt"`
	Broker    broker.Config    `json:"broker"`
	Bootstrap bootstrap.Config `json:"bootstrap"`
	Metrics   metrics.Config   `json:"metrics"`
	Logging   logger.Config    `json:"logging"`
	Sentry    SentryConfig     `json:"sentry"`
}

// Default returns a configuration with every section defaulted: embedded
// broker allowing anonymous bootstrap, in-memory registry, info json logs.
func Default() *Config {
	cfg := &Config{Broker: broker.Config{Embedded: true, AllowAnonymous: true}}
	cfg.SetDefaults()
	return cfg
}

// Load reads path (yaml or json, chosen by extension), applies BRIDGE_
// environment overrides, then defaults and validation. An empty path loads
// defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Set("broker.embedded", true); err != nil {
		return nil, err
	}
	if err := k.Set("broker.allow_anonymous", true); err != nil {
		return nil, err
	}
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section. With an embedded broker and no
// mqtt.broker, the bridge dials the embedded listener.
func (c *Config) SetDefaults() {
	c.Broker.SetDefaults()
	if c.Broker.Embedded && c.MQTT.Broker == "" {
		c.MQTT.Broker = c.Broker.ClientURL()
	}
	c.MQTT.SetDefaults()
	c.Bootstrap.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section and the combinations between them.
func (c Config) Validate() error {
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.Broker.Validate(); err != nil {
		return err
	}
	if err := c.Bootstrap.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if !c.Broker.Embedded && c.MQTT.Username == "" {
		return fmt.Errorf("mqtt.username and mqtt.password are required with an external broker")
	}
	if (c.MQTT.Username == "") != (c.MQTT.Password == "") {
		return fmt.Errorf("mqtt.username and mqtt.password must be set together")
	}
	return nil
}
