package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailhouse/internal/domain"
)

// AddMessage performs the idempotent upsert keyed by (email_id, sender,
// subject, received_time): two concurrent pushes for the same logical
// message resolve to exactly one stored row (spec §4.2, testable property
// #1). Postgres's ON CONFLICT DO NOTHING makes the uniqueness probe atomic
// with the insert — no separate SELECT-then-INSERT race window.
func (s *PostgresStore) AddMessage(ctx context.Context, emailID uuid.UUID, subject, sender, recipient string, receivedTime time.Time, content string, folder domain.Folder, hasAttachments bool) (bool, uuid.UUID, error) {
	id := uuid.New()
	query := `
		INSERT INTO mail_records (id, email_id, subject, sender, recipient, content, received_time, folder, has_attachments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (email_id, sender, subject, received_time) DO NOTHING
		RETURNING id
	`
	var returnedID uuid.UUID
	err := s.db.QueryRowContext(ctx, query, id, emailID, subject, sender, recipient, content, receivedTime.UTC(), folder, hasAttachments).Scan(&returnedID)
	if err == sql.ErrNoRows {
		// Conflict hit: row already exists, fetch its id for callers that
		// need mail_id regardless of whether this call inserted it.
		existing, ferr := s.findExistingMessage(ctx, emailID, sender, subject, receivedTime)
		if ferr != nil {
			return false, uuid.Nil, ferr
		}
		return false, existing, nil
	}
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("store: add message: %w", err)
	}
	return true, returnedID, nil
}

func (s *PostgresStore) findExistingMessage(ctx context.Context, emailID uuid.UUID, sender, subject string, receivedTime time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM mail_records WHERE email_id=$1 AND sender=$2 AND subject=$3 AND received_time=$4`,
		emailID, sender, subject, receivedTime.UTC(),
	).Scan(&id)
	return id, err
}

const messageSelectBase = `
	SELECT id, email_id, subject, sender, recipient, content, received_time, folder, has_attachments
	FROM mail_records
`

func scanMessage(r rowScanner) (domain.Message, error) {
	var m domain.Message
	err := r.Scan(&m.ID, &m.EmailID, &m.Subject, &m.Sender, &m.Recipient, &m.Content, &m.ReceivedTime, &m.Folder, &m.HasAttachments)
	if err == nil {
		m.ReceivedTime = m.ReceivedTime.UTC()
	}
	return m, err
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	out := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListMessagesByMailbox(ctx context.Context, emailID uuid.UUID) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelectBase+` WHERE email_id = $1 ORDER BY received_time DESC`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PostgresStore) GetMailCountByEmailID(ctx context.Context, emailID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mail_records WHERE email_id = $1`, emailID).Scan(&count)
	return count, err
}

// LatestForUser returns messages received within windowMinutes across the
// user's mailboxes, falling back to the limit most recent if none qualify
// (spec §4.2).
func (s *PostgresStore) LatestForUser(ctx context.Context, userID uuid.UUID, limit int, windowMinutes int) ([]domain.Message, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(windowMinutes) * time.Minute)
	query := messageSelectBase + `
		WHERE email_id IN (SELECT id FROM emails WHERE user_id = $1) AND received_time >= $2
		ORDER BY received_time DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, cutoff)
	if err != nil {
		return nil, err
	}
	within, err := scanMessages(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(within) > 0 {
		return within, nil
	}

	fallback := messageSelectBase + `
		WHERE email_id IN (SELECT id FROM emails WHERE user_id = $1)
		ORDER BY received_time DESC
		LIMIT $2
	`
	rows, err = s.db.QueryContext(ctx, fallback, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// SearchMessages does a case-insensitive substring match across whichever
// columns the caller selects.
func (s *PostgresStore) SearchMessages(ctx context.Context, userEmailIDs []uuid.UUID, query string, inSubject, inSender, inRecipient, inContent bool) ([]domain.Message, error) {
	if len(userEmailIDs) == 0 {
		return []domain.Message{}, nil
	}

	var clauses []string
	if inSubject {
		clauses = append(clauses, "subject ILIKE $1")
	}
	if inSender {
		clauses = append(clauses, "sender ILIKE $1")
	}
	if inRecipient {
		clauses = append(clauses, "recipient ILIKE $1")
	}
	if inContent {
		clauses = append(clauses, "content ILIKE $1")
	}
	if len(clauses) == 0 {
		clauses = []string{"subject ILIKE $1"}
	}

	placeholders := make([]string, len(userEmailIDs))
	args := make([]interface{}, 0, len(userEmailIDs)+1)
	args = append(args, "%"+query+"%")
	for i, id := range userEmailIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	sqlQuery := fmt.Sprintf(`%s WHERE (%s) AND email_id IN (%s) ORDER BY received_time DESC`,
		messageSelectBase, strings.Join(clauses, " OR "), strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}
