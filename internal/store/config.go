package store

import (
	"context"
	"database/sql"
	"strconv"
)

// GetConfigBool returns def if the key has never been set.
func (s *PostgresStore) GetConfigBool(ctx context.Context, key string, def bool) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def, nil
	}
	return b, nil
}

func (s *PostgresStore) SetConfigBool(ctx context.Context, key string, val bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_config (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, strconv.FormatBool(val),
	)
	return err
}
