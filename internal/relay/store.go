// Package relay implements the HTTP relay: a publish/resolve bridge for
// clients that cannot speak to the DHT directly.
//
// A relay stores the most recent signed packet per public key and serves it
// back over plain HTTP. The wire format is the relay payload: a full signed
// packet minus the leading public key, which the URL already carries. The
// relay verifies every uploaded payload against the key it is published
// under and only accepts packets newer than the one it already holds, so a
// relay can never be used to roll an identity back to an older record set.
package relay

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jroosing/pkarr/internal/keys"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound indicates the store holds no packet for the key.
	ErrNotFound = errors.New("no packet stored for key")

	// ErrStale indicates a publish carried an older timestamp than the
	// packet already stored for the key.
	ErrStale = errors.New("stored packet is newer")
)

// Store persists one relay payload per public key in SQLite.
type Store struct {
	conn *sql.DB
}

// OpenStore opens or creates the packet database at path and brings its
// schema up to date.
func OpenStore(path string) (*Store, error) {
	// Use WAL mode for better concurrency
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{conn: conn}, nil
}

// runMigrations applies the embedded schema migrations.
func runMigrations(conn *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Health checks database connectivity.
func (s *Store) Health() error {
	return s.conn.Ping()
}

// Get returns the stored relay payload for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key keys.PublicKey) ([]byte, error) {
	var payload []byte
	err := s.conn.QueryRowContext(ctx,
		"SELECT payload FROM packets WHERE public_key = ?", key.String(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load packet for %s: %w", key, err)
	}
	return payload, nil
}

// Put stores payload under key if timestamp is strictly newer than any
// stored packet's. Returns ErrStale otherwise; equal timestamps are stale.
func (s *Store) Put(ctx context.Context, key keys.PublicKey, payload []byte, timestamp uint64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx,
		"SELECT timestamp FROM packets WHERE public_key = ?", key.String(),
	).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First packet for this key.
	case err != nil:
		return fmt.Errorf("failed to check stored timestamp for %s: %w", key, err)
	case uint64(existing) >= timestamp:
		return fmt.Errorf("%w: stored %d, got %d", ErrStale, existing, timestamp)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO packets (public_key, payload, timestamp, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(public_key) DO UPDATE SET
			payload = excluded.payload,
			timestamp = excluded.timestamp,
			updated_at = CURRENT_TIMESTAMP
	`, key.String(), payload, int64(timestamp))
	if err != nil {
		return fmt.Errorf("failed to store packet for %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit packet for %s: %w", key, err)
	}
	return nil
}

// Count returns the number of stored packets.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM packets").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count packets: %w", err)
	}
	return n, nil
}
