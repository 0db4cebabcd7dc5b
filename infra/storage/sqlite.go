package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/mqttbridge/core/bootstrap"
	"github.com/kilianp07/mqttbridge/core/model"
)

// SQLiteStore persists bootstrap records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ bootstrap.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS bootstrap_records (
        id TEXT PRIMARY KEY,
        device_id TEXT NOT NULL,
        secret TEXT NOT NULL,
        created_at INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS bootstrap_records_device ON bootstrap_records(device_id, created_at);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Put inserts the record. Records are immutable, so a duplicate ID is an error.
func (s *SQLiteStore) Put(ctx context.Context, rec model.BootstrapRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO bootstrap_records (id, device_id, secret, created_at)
        VALUES (?, ?, ?, ?)`,
		rec.ID, rec.DeviceID, rec.Secret, rec.CreatedAt.UnixNano())
	return err
}

// Get returns the record with the given bootstrap ID.
func (s *SQLiteStore) Get(ctx context.Context, bootstrapID string) (model.BootstrapRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, device_id, secret, created_at
        FROM bootstrap_records WHERE id = ?`, bootstrapID)
	return scanRecord(row)
}

// Latest returns the most recently created record of a device.
func (s *SQLiteStore) Latest(ctx context.Context, deviceID string) (model.BootstrapRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, device_id, secret, created_at
        FROM bootstrap_records WHERE device_id = ?
        ORDER BY created_at DESC, rowid DESC LIMIT 1`, deviceID)
	return scanRecord(row)
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bootstrap_records`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanRecord(row *sql.Row) (model.BootstrapRecord, error) {
	var rec model.BootstrapRecord
	var ts int64
	if err := row.Scan(&rec.ID, &rec.DeviceID, &rec.Secret, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BootstrapRecord{}, bootstrap.ErrNotFound
		}
		return model.BootstrapRecord{}, err
	}
	rec.CreatedAt = time.Unix(0, ts).UTC()
	return rec, nil
}
