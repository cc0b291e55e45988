package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/mailhouse/internal/domain"
	"github.com/stoik/mailhouse/internal/fanout"
	"github.com/stoik/mailhouse/internal/ports"
)

type fakeStorage struct {
	ports.Storage
	mu        sync.Mutex
	mailboxes map[uuid.UUID]domain.Mailbox
	messages  map[uuid.UUID]int
	added     int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{mailboxes: make(map[uuid.UUID]domain.Mailbox), messages: make(map[uuid.UUID]int)}
}

func (f *fakeStorage) GetMailbox(ctx context.Context, id uuid.UUID, scopeUserID *uuid.UUID) (*domain.Mailbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mailboxes[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeStorage) GetMailCountByEmailID(ctx context.Context, emailID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[emailID], nil
}

func (f *fakeStorage) AddMessage(ctx context.Context, emailID uuid.UUID, subject, sender, recipient string, receivedTime time.Time, content string, folder domain.Folder, hasAttachments bool) (bool, uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[emailID]++
	f.added++
	return true, uuid.New(), nil
}

func (f *fakeStorage) SetCheckTime(ctx context.Context, id uuid.UUID, when time.Time) error { return nil }
func (f *fakeStorage) SetError(ctx context.Context, id uuid.UUID, message string) error     { return nil }

type fakeGraphAPI struct {
	ports.GraphAPI
	messages []ports.FetchedMessage
}

func (f *fakeGraphAPI) RefreshAccessToken(ctx context.Context, refreshToken, clientID string) (string, error) {
	return "tok", nil
}

func (f *fakeGraphAPI) ListMessages(ctx context.Context, accessToken string, folder string, limit int, since *time.Time) ([]ports.FetchedMessage, error) {
	if folder == "inbox" {
		return f.messages, nil
	}
	return nil, nil
}

type fakeIMAPFetcher struct {
	messages []ports.FetchedMessage
}

func (f *fakeIMAPFetcher) Fetch(ctx context.Context, mailbox domain.Mailbox, since *time.Time, stop func() bool, progress func(int, string)) ([]ports.FetchedMessage, error) {
	return f.messages, nil
}

func TestCheckOne_SavesGraphMessages(t *testing.T) {
	storage := newFakeStorage()
	mailboxID := uuid.New()
	storage.mailboxes[mailboxID] = domain.Mailbox{ID: mailboxID, Kind: domain.KindOutlook, UserID: uuid.New()}

	g := &fakeGraphAPI{messages: []ports.FetchedMessage{{Subject: "hi", ReceivedTime: time.Now()}}}
	checker := New(storage, g, &fakeIMAPFetcher{}, fanout.New(), time.Second, zerolog.Nop())

	result := checker.CheckOne(context.Background(), mailboxID, nil)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Saved)
}

func TestCheckOne_SkipsInFlightMailbox(t *testing.T) {
	storage := newFakeStorage()
	mailboxID := uuid.New()
	storage.mailboxes[mailboxID] = domain.Mailbox{ID: mailboxID, Kind: domain.KindIMAP}

	checker := New(storage, &fakeGraphAPI{}, &fakeIMAPFetcher{}, fanout.New(), time.Second, zerolog.Nop())
	require.True(t, checker.claim(mailboxID))

	result := checker.CheckOne(context.Background(), mailboxID, nil)
	assert.False(t, result.Success)
}

func TestCheckFromNotification_SavesRecentInboxMessages(t *testing.T) {
	storage := newFakeStorage()
	mailboxID := uuid.New()
	storage.mailboxes[mailboxID] = domain.Mailbox{ID: mailboxID, Kind: domain.KindOutlook, UserID: uuid.New()}

	g := &fakeGraphAPI{messages: []ports.FetchedMessage{
		{Subject: "one", ReceivedTime: time.Now()},
		{Subject: "two", ReceivedTime: time.Now()},
	}}
	checker := New(storage, g, &fakeIMAPFetcher{}, fanout.New(), time.Second, zerolog.Nop())

	result := checker.CheckFromNotification(context.Background(), mailboxID)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Saved)
}

func TestCheckFromNotification_SkipsInFlightMailbox(t *testing.T) {
	storage := newFakeStorage()
	mailboxID := uuid.New()
	storage.mailboxes[mailboxID] = domain.Mailbox{ID: mailboxID, Kind: domain.KindOutlook}

	checker := New(storage, &fakeGraphAPI{}, &fakeIMAPFetcher{}, fanout.New(), time.Second, zerolog.Nop())
	require.True(t, checker.claim(mailboxID))

	result := checker.CheckFromNotification(context.Background(), mailboxID)
	assert.False(t, result.Success)
	assert.Equal(t, "mailbox is already being processed", result.Message)
}

func TestCheckMany_SkipsAlreadyProcessing(t *testing.T) {
	storage := newFakeStorage()
	a, b := uuid.New(), uuid.New()
	storage.mailboxes[a] = domain.Mailbox{ID: a, Kind: domain.KindIMAP}
	storage.mailboxes[b] = domain.Mailbox{ID: b, Kind: domain.KindIMAP}

	checker := New(storage, &fakeGraphAPI{}, &fakeIMAPFetcher{}, fanout.New(), time.Second, zerolog.Nop())
	require.True(t, checker.claim(a))

	results, skipped := checker.CheckMany(context.Background(), []uuid.UUID{a, b}, nil)
	require.Len(t, skipped, 1)
	assert.Equal(t, a, skipped[0])
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
}
