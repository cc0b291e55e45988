package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/mailhouse/internal/apperr"
	"github.com/stoik/mailhouse/internal/domain"
	"github.com/stoik/mailhouse/internal/ports"
)

type fakeStorage struct {
	ports.Storage
	subsByEmail map[uuid.UUID]*domain.Subscription
	added       []domain.Subscription
	mailboxes   map[uuid.UUID]domain.Mailbox
	outlook     []domain.Mailbox
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		subsByEmail: make(map[uuid.UUID]*domain.Subscription),
		mailboxes:   make(map[uuid.UUID]domain.Mailbox),
	}
}

func (f *fakeStorage) GetSubscriptionByEmail(ctx context.Context, emailID uuid.UUID) (*domain.Subscription, error) {
	return f.subsByEmail[emailID], nil
}

func (f *fakeStorage) AddSubscription(ctx context.Context, s *domain.Subscription) error {
	f.subsByEmail[s.EmailID] = s
	f.added = append(f.added, *s)
	return nil
}

func (f *fakeStorage) ListOutlookMailboxes(ctx context.Context) ([]domain.Mailbox, error) {
	return f.outlook, nil
}

func (f *fakeStorage) GetMailbox(ctx context.Context, id uuid.UUID, scopeUserID *uuid.UUID) (*domain.Mailbox, error) {
	m, ok := f.mailboxes[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeStorage) UpdateSubscriptionExpiration(ctx context.Context, subscriptionID string, newTime time.Time) error {
	return nil
}

func (f *fakeStorage) DeleteSubscriptionByID(ctx context.Context, subscriptionID string) error {
	for emailID, s := range f.subsByEmail {
		if s.SubscriptionID == subscriptionID {
			delete(f.subsByEmail, emailID)
		}
	}
	return nil
}

type fakeGraphAPI struct {
	ports.GraphAPI
	createCalls   int
	failCreate    bool
	throttleFirst bool
	retryAfter    time.Duration
}

func (f *fakeGraphAPI) RefreshAccessToken(ctx context.Context, refreshToken, clientID string) (string, error) {
	return "token-123", nil
}

func (f *fakeGraphAPI) CreateSubscription(ctx context.Context, accessToken, notificationURL, resource string, expiresAt time.Time, clientState string) (string, error) {
	f.createCalls++
	if f.throttleFirst && f.createCalls == 1 {
		return "", apperr.NewThrottled(f.retryAfter)
	}
	if f.failCreate {
		return "", assert.AnError
	}
	return "sub-" + clientState, nil
}

func TestCreateForMailbox_RegistersNewSubscription(t *testing.T) {
	storage := newFakeStorage()
	g := &fakeGraphAPI{}
	mgr := New(storage, g, "https://example.com/webhook", zerolog.Nop())

	mailbox := domain.Mailbox{ID: uuid.New(), ClientID: "client", RefreshToken: "refresh"}
	sub, err := mgr.CreateForMailbox(context.Background(), mailbox)
	require.NoError(t, err)
	assert.Equal(t, mailbox.ID, sub.EmailID)
	assert.Equal(t, 1, g.createCalls)
}

func TestCreateForMailbox_ReturnsExistingWithoutCallingGraph(t *testing.T) {
	storage := newFakeStorage()
	mailbox := domain.Mailbox{ID: uuid.New()}
	existing := &domain.Subscription{SubscriptionID: "already-there", EmailID: mailbox.ID}
	storage.subsByEmail[mailbox.ID] = existing

	g := &fakeGraphAPI{}
	mgr := New(storage, g, "https://example.com/webhook", zerolog.Nop())

	sub, err := mgr.CreateForMailbox(context.Background(), mailbox)
	require.NoError(t, err)
	assert.Equal(t, "already-there", sub.SubscriptionID)
	assert.Equal(t, 0, g.createCalls)
}

func TestBulkCreateForAllOutlook_CountsFailures(t *testing.T) {
	storage := newFakeStorage()
	storage.outlook = []domain.Mailbox{{ID: uuid.New()}, {ID: uuid.New()}}
	g := &fakeGraphAPI{failCreate: true}
	mgr := New(storage, g, "https://example.com/webhook", zerolog.Nop())

	created, failed, err := mgr.BulkCreateForAllOutlook(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 2, failed)
}

func TestBulkCreateForAllOutlook_PausesBetweenCreates(t *testing.T) {
	storage := newFakeStorage()
	storage.outlook = []domain.Mailbox{{ID: uuid.New()}, {ID: uuid.New()}}
	g := &fakeGraphAPI{}
	mgr := New(storage, g, "https://example.com/webhook", zerolog.Nop())

	start := time.Now()
	created, failed, err := mgr.BulkCreateForAllOutlook(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 0, failed)
	assert.GreaterOrEqual(t, elapsed, bulkCreatePause, "second create must wait bulkCreatePause behind the first")
}

func TestBulkCreateForAllOutlook_SkipsAlreadySubscribedWithoutPacing(t *testing.T) {
	storage := newFakeStorage()
	already := domain.Mailbox{ID: uuid.New()}
	fresh := domain.Mailbox{ID: uuid.New()}
	storage.outlook = []domain.Mailbox{already, fresh}
	storage.subsByEmail[already.ID] = &domain.Subscription{SubscriptionID: "existing", EmailID: already.ID}
	g := &fakeGraphAPI{}
	mgr := New(storage, g, "https://example.com/webhook", zerolog.Nop())

	start := time.Now()
	created, failed, err := mgr.BulkCreateForAllOutlook(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 1, g.createCalls)
	assert.Less(t, elapsed, bulkCreatePause, "skipping an already-subscribed mailbox must not consume a pacing slot")
}

func TestBulkCreateForAllOutlook_RetriesAfterThrottle(t *testing.T) {
	storage := newFakeStorage()
	storage.outlook = []domain.Mailbox{{ID: uuid.New()}}
	g := &fakeGraphAPI{throttleFirst: true, retryAfter: 20 * time.Millisecond}
	mgr := New(storage, g, "https://example.com/webhook", zerolog.Nop())

	start := time.Now()
	created, failed, err := mgr.BulkCreateForAllOutlook(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 2, g.createCalls, "first call throttled, second call after the retry-after sleep succeeds")
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestBulkCreateForAllOutlook_StopsOnContextCancellation(t *testing.T) {
	storage := newFakeStorage()
	storage.outlook = []domain.Mailbox{{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}}
	g := &fakeGraphAPI{}
	mgr := New(storage, g, "https://example.com/webhook", zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := mgr.BulkCreateForAllOutlook(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, g.createCalls, 3, "pacing sleep must abort on context cancellation instead of running to completion")
}
