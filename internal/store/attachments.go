package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/stoik/mailhouse/internal/domain"
)

func (s *PostgresStore) AddAttachment(ctx context.Context, a *domain.Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (id, mail_id, filename, content_type, size, content)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.MailID, a.Filename, a.ContentType, a.Size, a.Content,
	)
	return err
}

func (s *PostgresStore) ListAttachmentsByMail(ctx context.Context, mailID uuid.UUID) ([]domain.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mail_id, filename, content_type, size, content FROM attachments WHERE mail_id = $1`, mailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Attachment, 0)
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.MailID, &a.Filename, &a.ContentType, &a.Size, &a.Content); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetAttachment(ctx context.Context, id uuid.UUID) (*domain.Attachment, error) {
	var a domain.Attachment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, mail_id, filename, content_type, size, content FROM attachments WHERE id = $1`, id,
	).Scan(&a.ID, &a.MailID, &a.Filename, &a.ContentType, &a.Size, &a.Content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
