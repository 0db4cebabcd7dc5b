package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/mqttbridge/api/devices"
	"github.com/kilianp07/mqttbridge/config"
	"github.com/kilianp07/mqttbridge/core/auth"
	"github.com/kilianp07/mqttbridge/core/bootstrap"
	"github.com/kilianp07/mqttbridge/core/device"
	coremetrics "github.com/kilianp07/mqttbridge/core/metrics"
	"github.com/kilianp07/mqttbridge/core/model"
	"github.com/kilianp07/mqttbridge/core/monitoring"
	coremqtt "github.com/kilianp07/mqttbridge/core/mqtt"
	"github.com/kilianp07/mqttbridge/core/router"
	"github.com/kilianp07/mqttbridge/core/topic"
	"github.com/kilianp07/mqttbridge/infra/broker"
	"github.com/kilianp07/mqttbridge/infra/logger"
	"github.com/kilianp07/mqttbridge/infra/metrics"
	inframon "github.com/kilianp07/mqttbridge/infra/monitoring"
	"github.com/kilianp07/mqttbridge/infra/mqtt"
	"github.com/kilianp07/mqttbridge/infra/storage"
	"github.com/kilianp07/mqttbridge/internal/eventbus"
)

// Service wires the bridge: registry, optional embedded broker, connection
// manager, router and device directory.
type Service struct {
	Registry  *bootstrap.Registry
	Directory *device.Directory
	Manager   *mqtt.Manager
	Broker    *broker.Broker
	Admin     model.Credentials

	cfg      *config.Config
	store    bootstrap.Store
	sink     coremetrics.MetricsSink
	bus      *eventbus.TypedBus[coremqtt.StateChange]
	log      logger.Logger
	promAddr string
}

// New builds a Service from cfg. Nothing connects or listens until Run.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.Configure(cfg.Logging); err != nil {
		return nil, err
	}
	log := logger.New("service")

	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, err
	}
	monitoring.Init(mon)

	store, err := openStore(cfg.Bootstrap)
	if err != nil {
		return nil, err
	}
	registry := bootstrap.NewRegistry(store,
		bootstrap.WithPolicy(cfg.Bootstrap.Policy),
		bootstrap.WithLogger(logger.New("bootstrap")),
	)

	admin := model.Credentials{Username: cfg.MQTT.Username, Password: cfg.MQTT.Password}
	if admin.Username == "" {
		if admin, err = auth.NewAdminCredentials(); err != nil {
			closeStore(store)
			return nil, err
		}
	}
	mqttCfg := cfg.MQTT
	mqttCfg.Username, mqttCfg.Password = admin.Username, admin.Password

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("metrics: %w", err)
	}

	svc := &Service{
		Registry: registry,
		Admin:    admin,
		cfg:      cfg,
		store:    store,
		sink:     sink,
		bus:      eventbus.NewTyped[coremqtt.StateChange](),
		log:      log,
		promAddr: cfg.Metrics.PrometheusAddr,
	}

	if cfg.Broker.Embedded {
		b, err := broker.New(cfg.Broker,
			auth.NewAuthenticator(admin, registry),
			auth.NewAuthorizator(admin.Username),
			logger.New("broker"), sink)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("embedded broker: %w", err)
		}
		svc.Broker = b
	}

	mgr, err := mqtt.NewManager(mqttCfg,
		mqtt.WithLogger(logger.New("mqtt")),
		mqtt.WithMetrics(sink),
		mqtt.WithStateBus(svc.bus),
	)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("mqtt manager: %w", err)
	}
	svc.Manager = mgr

	var dirOpts []device.Option
	if !cfg.Broker.Embedded {
		dirOpts = append(dirOpts, device.WithActivation(svc.announce))
	}
	svc.Directory = device.NewDirectory(dirOpts...)

	mgr.SetHandler(router.New(registry, mgr, router.Listeners{svc.Directory},
		router.WithLogger(logger.New("router")),
		router.WithMetrics(sink),
	))
	return svc, nil
}

// Run starts the broker, the metrics endpoint and the connection manager
// and blocks until ctx is cancelled or the embedded broker fails.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var brokerErrs <-chan error
	if s.Broker != nil {
		s.Broker.Serve()
		brokerErrs = s.Broker.Errors()
	}
	metrics.StartStateCollector(ctx, s.bus, s.sink)
	if s.promAddr != "" {
		go func() {
			mountDevices := func(mux *http.ServeMux) { devices.Register(mux, s.Directory) }
			if err := metrics.StartPromServer(ctx, s.promAddr, mountDevices); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	done := make(chan error, 1)
	go func() { done <- s.Manager.Run(ctx) }()
	s.log.Infof("bridge running as %s", s.Admin.Username)

	var err error
	select {
	case <-ctx.Done():
	case err = <-brokerErrs:
		err = fmt.Errorf("embedded broker: %w", err)
	}
	cancel()
	return errors.Join(err, <-done)
}

// Close releases the broker listener, the store and metric sinks.
func (s *Service) Close() error {
	var errs []error
	if s.Broker != nil {
		errs = append(errs, s.Broker.Close())
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	s.bus.Close()
	errs = append(errs, closeStore(s.store))
	monitoring.Flush(2 * time.Second)
	return errors.Join(errs...)
}

// announce publishes a device's secret for an external broker's auth backend.
func (s *Service) announce(d device.Device) {
	rec, err := s.Registry.Lookup(context.Background(), d.BootstrapID)
	if err != nil {
		s.log.Warnf("activation notice for %s skipped: %v", d.ID, err)
		return
	}
	notice := router.NewActivationNotice(rec)
	if err := s.Manager.SendMessage(topic.Activations, notice); err != nil {
		s.log.Warnf("activation notice for %s: %v", d.ID, err)
	}
}

func openStore(cfg bootstrap.Config) (bootstrap.Store, error) {
	switch cfg.Store {
	case "sqlite":
		st, err := storage.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap store: %w", err)
		}
		return st, nil
	default:
		return bootstrap.NewMemoryStore(), nil
	}
}

func closeStore(st bootstrap.Store) error {
	if c, ok := st.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
