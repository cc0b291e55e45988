// Package store implements C2 MessageStore on PostgreSQL. It is the sole
// owner of persistent state: every other component reaches entities only
// through this package's operations.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stoik/mailhouse/internal/vault"
)

// PostgresStore implements ports.Storage.
type PostgresStore struct {
	db    *sql.DB
	vault *vault.Vault
	log   zerolog.Logger
}

// New opens a connection pool against connStr and wires the credential
// vault used to encrypt/decrypt on every read and write.
func New(connStr string, v *vault.Vault, logger zerolog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	// Single-writer-per-transaction semantics are enforced at the query
	// level (upserts, WHERE guards); the pool itself stays small since
	// this prototype does not need write parallelism beyond Postgres's own.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db, vault: v, log: logger.With().Str("component", "store").Logger()}, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InitSchema creates every table if it does not already exist.
func (s *PostgresStore) InitSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
