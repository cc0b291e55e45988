package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailhouse/internal/domain"
)

// AddMailbox inserts a mailbox, encrypting credential fields that arrive
// plaintext (spec §4.2: "if false, it encrypts before writing").
func (s *PostgresStore) AddMailbox(ctx context.Context, m *domain.Mailbox) error {
	password, err := s.vault.EncryptIfPlain(m.Password)
	if err != nil {
		return fmt.Errorf("store: encrypt password: %w", err)
	}
	clientID, err := s.vault.EncryptIfPlain(m.ClientID)
	if err != nil {
		return fmt.Errorf("store: encrypt client_id: %w", err)
	}
	refreshToken, err := s.vault.EncryptIfPlain(m.RefreshToken)
	if err != nil {
		return fmt.Errorf("store: encrypt refresh_token: %w", err)
	}

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := `
		INSERT INTO emails (id, user_id, address, kind, password, client_id, refresh_token,
			server, port, ssl, last_check_time, last_error, realtime_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.db.ExecContext(ctx, query,
		m.ID, m.UserID, m.Address, m.Kind, password, clientID, refreshToken,
		m.Server, m.Port, m.SSL, nullableTime(m.LastCheckTime), m.LastError, m.RealtimeEnabled,
		m.CreatedAt, m.UpdatedAt,
	)
	return err
}

// UpdateMailbox rewrites mutable fields. Credential fields are
// re-encrypted only if the caller passed plaintext (EncryptIfPlain is a
// no-op on already-ciphertext values), so round-tripping a mailbox read
// back through Update never double-encrypts.
func (s *PostgresStore) UpdateMailbox(ctx context.Context, m *domain.Mailbox) error {
	password, err := s.vault.EncryptIfPlain(m.Password)
	if err != nil {
		return fmt.Errorf("store: encrypt password: %w", err)
	}
	clientID, err := s.vault.EncryptIfPlain(m.ClientID)
	if err != nil {
		return fmt.Errorf("store: encrypt client_id: %w", err)
	}
	refreshToken, err := s.vault.EncryptIfPlain(m.RefreshToken)
	if err != nil {
		return fmt.Errorf("store: encrypt refresh_token: %w", err)
	}

	query := `
		UPDATE emails SET address=$2, kind=$3, password=$4, client_id=$5, refresh_token=$6,
			server=$7, port=$8, ssl=$9, realtime_enabled=$10, updated_at=$11
		WHERE id=$1
	`
	_, err = s.db.ExecContext(ctx, query,
		m.ID, m.Address, m.Kind, password, clientID, refreshToken,
		m.Server, m.Port, m.SSL, m.RealtimeEnabled, time.Now().UTC(),
	)
	return err
}

func (s *PostgresStore) DeleteMailbox(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM emails WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) BatchDeleteMailboxes(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM emails WHERE id = $1`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListMailboxesByUser(ctx context.Context, userID uuid.UUID) ([]domain.Mailbox, error) {
	rows, err := s.db.QueryContext(ctx, mailboxSelectBase+` WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanMailboxes(rows)
}

func (s *PostgresStore) GetMailbox(ctx context.Context, id uuid.UUID, scopeUserID *uuid.UUID) (*domain.Mailbox, error) {
	var row *sql.Row
	if scopeUserID != nil {
		row = s.db.QueryRowContext(ctx, mailboxSelectBase+` WHERE id = $1 AND user_id = $2`, id, *scopeUserID)
	} else {
		row = s.db.QueryRowContext(ctx, mailboxSelectBase+` WHERE id = $1`, id)
	}
	m, err := s.scanMailbox(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// GetMailboxByAddress resolves a mailbox by its address, case-insensitively,
// optionally scoped to a single owning user (spec §4.9 step 1).
func (s *PostgresStore) GetMailboxByAddress(ctx context.Context, address string, scopeUserID *uuid.UUID) (*domain.Mailbox, error) {
	var row *sql.Row
	if scopeUserID != nil {
		row = s.db.QueryRowContext(ctx, mailboxSelectBase+` WHERE LOWER(address) = LOWER($1) AND user_id = $2`, address, *scopeUserID)
	} else {
		row = s.db.QueryRowContext(ctx, mailboxSelectBase+` WHERE LOWER(address) = LOWER($1)`, address)
	}
	m, err := s.scanMailbox(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (s *PostgresStore) ListOutlookMailboxes(ctx context.Context) ([]domain.Mailbox, error) {
	rows, err := s.db.QueryContext(ctx, mailboxSelectBase+` WHERE kind = 'outlook' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanMailboxes(rows)
}

// ListAllMailboxes returns every mailbox regardless of owner or kind, used
// by the offline credential migration tool.
func (s *PostgresStore) ListAllMailboxes(ctx context.Context) ([]domain.Mailbox, error) {
	rows, err := s.db.QueryContext(ctx, mailboxSelectBase+` ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanMailboxes(rows)
}

func (s *PostgresStore) SetCheckTime(ctx context.Context, id uuid.UUID, when time.Time) error {
	// Monotone high-water mark: never move last_check_time backwards
	// (spec §5 ordering guarantee, testable property #3).
	_, err := s.db.ExecContext(ctx,
		`UPDATE emails SET last_check_time = $2, updated_at = NOW()
		 WHERE id = $1 AND (last_check_time IS NULL OR last_check_time < $2)`,
		id, when.UTC())
	return err
}

func (s *PostgresStore) SetError(ctx context.Context, id uuid.UUID, message string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE emails SET last_error = $2, updated_at = NOW() WHERE id = $1`, id, message)
	return err
}

func (s *PostgresStore) SetRealtime(ctx context.Context, id uuid.UUID, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE emails SET realtime_enabled = $2, updated_at = NOW() WHERE id = $1`, id, enabled)
	return err
}

const mailboxSelectBase = `
	SELECT id, user_id, address, kind, password, client_id, refresh_token,
		server, port, ssl, last_check_time, last_error, realtime_enabled, created_at, updated_at
	FROM emails
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanMailboxRow(r rowScanner) (domain.Mailbox, error) {
	var m domain.Mailbox
	var lastCheck sql.NullTime
	err := r.Scan(
		&m.ID, &m.UserID, &m.Address, &m.Kind, &m.Password, &m.ClientID, &m.RefreshToken,
		&m.Server, &m.Port, &m.SSL, &lastCheck, &m.LastError, &m.RealtimeEnabled, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, err
	}
	m.LastCheckTime = timePtr(lastCheck)
	m.Password = s.vault.Decrypt(m.Password)
	m.ClientID = s.vault.Decrypt(m.ClientID)
	m.RefreshToken = s.vault.Decrypt(m.RefreshToken)
	return m, nil
}

func (s *PostgresStore) scanMailbox(row *sql.Row) (*domain.Mailbox, error) {
	m, err := s.scanMailboxRow(row)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) scanMailboxes(rows *sql.Rows) ([]domain.Mailbox, error) {
	out := make([]domain.Mailbox, 0)
	for rows.Next() {
		m, err := s.scanMailboxRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
