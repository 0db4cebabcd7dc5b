// Package broker embeds a mochi-mqtt broker whose connect and topic checks
// are delegated to the bridge's Authenticator and Authorizator.
package broker

import (
	"errors"
	"fmt"
	"net"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/kilianp07/mqttbridge/core/auth"
	"github.com/kilianp07/mqttbridge/core/logger"
	"github.com/kilianp07/mqttbridge/core/metrics"
)

// Config controls the embedded broker.
type Config struct {
	Embedded bool   `json:"embedded"`
	Address  string `json:"address"`
	// AllowAnonymous lets devices connect without credentials so they can
	// request a bootstrap. Anonymous clients only reach the bootstrap topics.
	AllowAnonymous bool `json:"allow_anonymous"`
}

func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":1883"
	}
}

// ClientURL is the address a local MQTT client dials to reach the broker.
// Wildcard hosts resolve to localhost.
func (c Config) ClientURL() string {
	host, port, err := net.SplitHostPort(c.Address)
	if err != nil {
		return "tcp://" + c.Address
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "tcp://" + net.JoinHostPort(host, port)
}

func (c Config) Validate() error {
	if c.Embedded && c.Address == "" {
		return errors.New("broker.address is required when broker.embedded is set")
	}
	return nil
}

// Broker wraps the mochi-mqtt server.
type Broker struct {
	cfg    Config
	server *mqtt.Server
	log    logger.Logger
	errs   chan error
}

// New builds a broker listening on cfg.Address. It does not accept
// connections until Serve is called.
func New(cfg Config, authn *auth.Authenticator, authz *auth.Authorizator, log logger.Logger, sink metrics.MetricsSink) (*Broker, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrNop(log)
	server := mqtt.New(&mqtt.Options{InlineClient: true})
	h := &authHook{
		authn:     authn,
		authz:     authz,
		anonymous: cfg.AllowAnonymous,
		log:       log,
		metrics:   metrics.OrNop(sink),
		now:       time.Now,
	}
	if err := server.AddHook(h, nil); err != nil {
		return nil, fmt.Errorf("add auth hook: %w", err)
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: cfg.Address})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	return &Broker{cfg: cfg, server: server, log: log, errs: make(chan error, 1)}, nil
}

// Serve starts accepting connections in the background. Errors from the
// listeners are reported on Errors.
func (b *Broker) Serve() {
	go func() {
		if err := b.server.Serve(); err != nil {
			b.log.Errorf("broker stopped: %v", err)
			b.errs <- err
		}
	}()
	b.log.Infof("embedded broker listening on %s", b.cfg.Address)
}

// Errors returns a channel receiving the error that stopped the broker, if any.
func (b *Broker) Errors() <-chan error { return b.errs }

// Clients returns the number of connected clients.
func (b *Broker) Clients() int { return b.server.Clients.Len() }

// Close disconnects every client and stops the listeners.
func (b *Broker) Close() error { return b.server.Close() }
