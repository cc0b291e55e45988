package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/mailhouse/internal/domain"
	"github.com/stoik/mailhouse/internal/ports"
)

type fakeStorage struct {
	ports.Storage
	mailboxes []domain.Mailbox
	updated   []uuid.UUID
	failOn    uuid.UUID
}

func (f *fakeStorage) ListAllMailboxes(ctx context.Context) ([]domain.Mailbox, error) {
	return f.mailboxes, nil
}

func (f *fakeStorage) UpdateMailbox(ctx context.Context, m *domain.Mailbox) error {
	if m.ID == f.failOn {
		return errors.New("boom")
	}
	f.updated = append(f.updated, m.ID)
	return nil
}

func TestCredentials_MigratesMailboxesWithCredentials(t *testing.T) {
	withCreds := uuid.New()
	empty := uuid.New()
	storage := &fakeStorage{mailboxes: []domain.Mailbox{
		{ID: withCreds, Password: "plain-password"},
		{ID: empty},
	}}

	result, err := Credentials(context.Background(), storage, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Migrated)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []uuid.UUID{withCreds}, storage.updated)
}

func TestCredentials_RecordsFailures(t *testing.T) {
	bad := uuid.New()
	storage := &fakeStorage{
		mailboxes: []domain.Mailbox{{ID: bad, RefreshToken: "tok"}},
		failOn:    bad,
	}

	result, err := Credentials(context.Background(), storage, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{bad.String()}, result.FailedIDs)
}

func TestCredentials_EmptyFleet(t *testing.T) {
	storage := &fakeStorage{}
	result, err := Credentials(context.Background(), storage, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
}
