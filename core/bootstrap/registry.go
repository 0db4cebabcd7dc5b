package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/mqttbridge/core/auth"
	"github.com/kilianp07/mqttbridge/core/logger"
	"github.com/kilianp07/mqttbridge/core/model"
)

// Policy controls what a repeated registration for the same device does.
type Policy string

const (
	// PolicyReissue mints a new record on every registration. The newest
	// record supersedes older ones for device ID lookups.
	PolicyReissue Policy = "reissue"
	// PolicyReuse hands back the latest record of the device when one exists.
	PolicyReuse Policy = "reuse"
)

// Config holds registry settings.
type Config struct {
	Policy Policy `json:"policy"`
	// Store selects the backend: "memory" or "sqlite".
	Store string `json:"store"`
	Path  string `json:"path"`
}

func (c *Config) SetDefaults() {
	if c.Policy == "" {
		c.Policy = PolicyReissue
	}
	if c.Store == "" {
		c.Store = "memory"
	}
	if c.Store == "sqlite" && c.Path == "" {
		c.Path = "bootstrap.db"
	}
}

func (c Config) Validate() error {
	switch c.Policy {
	case PolicyReissue, PolicyReuse:
	default:
		return fmt.Errorf("bootstrap.policy: unknown policy %q", c.Policy)
	}
	switch c.Store {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("bootstrap.store: unknown store %q", c.Store)
	}
	return nil
}

// Registry issues and resolves bootstrap records. It is safe for concurrent
// use and implements auth.SecretProvider.
type Registry struct {
	mu     sync.Mutex
	store  Store
	policy Policy
	now    func() time.Time
	log    logger.Logger
}

var _ auth.SecretProvider = (*Registry)(nil)

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// WithPolicy sets the reissue policy.
func WithPolicy(p Policy) Option { return func(r *Registry) { r.policy = p } }

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option { return func(r *Registry) { r.log = l } }

// NewRegistry returns a registry backed by store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{store: store, policy: PolicyReissue, now: time.Now, log: logger.NopLogger{}}
	for _, o := range opts {
		o(r)
	}
	r.log = logger.OrNop(r.log)
	return r
}

// Register issues a bootstrap record for deviceID.
func (r *Registry) Register(ctx context.Context, deviceID string) (model.BootstrapRecord, error) {
	if deviceID == "" {
		return model.BootstrapRecord{}, fmt.Errorf("register: empty device id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.policy == PolicyReuse {
		rec, err := r.store.Latest(ctx, deviceID)
		switch {
		case err == nil:
			r.log.Debugf("reusing bootstrap %s for device %s", rec.ID, deviceID)
			return rec, nil
		case !errors.Is(err, ErrNotFound):
			return model.BootstrapRecord{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
		}
	}

	secret, err := auth.NewSecret()
	if err != nil {
		return model.BootstrapRecord{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	rec := model.BootstrapRecord{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Secret:    secret,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.Put(ctx, rec); err != nil {
		return model.BootstrapRecord{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	r.log.Infof("issued bootstrap %s for device %s", rec.ID, deviceID)
	return rec, nil
}

// Lookup returns the record with the given bootstrap ID. A record superseded
// by a newer registration of the same device is reported as ErrNotFound.
func (r *Registry) Lookup(ctx context.Context, bootstrapID string) (model.BootstrapRecord, error) {
	if bootstrapID == "" {
		return model.BootstrapRecord{}, ErrNotFound
	}
	rec, err := r.current(ctx, bootstrapID)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, ErrNotFound):
		return model.BootstrapRecord{}, err
	default:
		return model.BootstrapRecord{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
}

// current fetches the record with bootstrapID and checks it is still the
// newest one issued for its device.
func (r *Registry) current(ctx context.Context, bootstrapID string) (model.BootstrapRecord, error) {
	rec, err := r.store.Get(ctx, bootstrapID)
	if err != nil {
		return model.BootstrapRecord{}, err
	}
	latest, err := r.store.Latest(ctx, rec.DeviceID)
	if err != nil {
		return model.BootstrapRecord{}, err
	}
	if latest.ID != rec.ID {
		return model.BootstrapRecord{}, fmt.Errorf("%w: bootstrap %s superseded by %s", ErrNotFound, rec.ID, latest.ID)
	}
	return rec, nil
}

// Secret resolves id as a bootstrap ID first and falls back to the latest
// record of a device ID. Superseded bootstrap IDs resolve to nothing.
func (r *Registry) Secret(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	ctx := context.Background()
	rec, err := r.store.Get(ctx, id)
	switch {
	case err == nil:
		rec, err = r.current(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				r.log.Warnf("secret lookup for %s: %v", id, err)
			}
			return "", false
		}
		return rec.Secret, rec.Secret != ""
	case !errors.Is(err, ErrNotFound):
		r.log.Warnf("secret lookup for %s: %v", id, err)
		return "", false
	}
	rec, err = r.store.Latest(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.Warnf("secret lookup for %s: %v", id, err)
		}
		return "", false
	}
	return rec.Secret, rec.Secret != ""
}
