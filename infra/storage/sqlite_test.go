package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/mqttbridge/core/bootstrap"
	"github.com/kilianp07/mqttbridge/core/model"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bootstrap.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	old := model.BootstrapRecord{ID: "b1", DeviceID: "dev1", Secret: "s1", CreatedAt: ts}
	newer := model.BootstrapRecord{ID: "b2", DeviceID: "dev1", Secret: "s2", CreatedAt: ts.Add(time.Minute)}
	require.NoError(t, s.Put(ctx, old))
	require.NoError(t, s.Put(ctx, newer))

	got, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, old, got)

	latest, err := s.Latest(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, newer, latest)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, bootstrap.ErrNotFound)
	_, err = s.Latest(ctx, "missing")
	assert.ErrorIs(t, err, bootstrap.ErrNotFound)

	assert.Error(t, s.Put(ctx, old), "duplicate id must be rejected")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bootstrap.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	reg := bootstrap.NewRegistry(s)
	rec, err := reg.Register(ctx, "dev1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	reg = bootstrap.NewRegistry(s)
	secret, ok := reg.Secret(rec.ID)
	assert.True(t, ok)
	assert.Equal(t, rec.Secret, secret)
}
