package bootstrap

import (
	"context"

	"github.com/kilianp07/mqttbridge/core/model"
)

// Store persists bootstrap records. Get and Latest return ErrNotFound when no
// record matches.
type Store interface {
	Put(ctx context.Context, rec model.BootstrapRecord) error
	Get(ctx context.Context, bootstrapID string) (model.BootstrapRecord, error)
	Latest(ctx context.Context, deviceID string) (model.BootstrapRecord, error)
}
