package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/mailhouse/internal/batch"
	"github.com/stoik/mailhouse/internal/codewait"
	"github.com/stoik/mailhouse/internal/domain"
	"github.com/stoik/mailhouse/internal/fanout"
	"github.com/stoik/mailhouse/internal/ports"
)

type fakeGraphAPI struct{ ports.GraphAPI }

type fakeIMAPFetcher struct{}

func (fakeIMAPFetcher) Fetch(ctx context.Context, mailbox domain.Mailbox, since *time.Time, stop func() bool, progress func(int, string)) ([]ports.FetchedMessage, error) {
	return nil, nil
}

type fakeStorage struct {
	ports.Storage
	mailbox  *domain.Mailbox
	messages []domain.Message
}

func (f *fakeStorage) GetMailboxByAddress(ctx context.Context, address string, scopeUserID *uuid.UUID) (*domain.Mailbox, error) {
	if f.mailbox == nil || !strings.EqualFold(f.mailbox.Address, address) {
		return nil, nil
	}
	return f.mailbox, nil
}

func (f *fakeStorage) ListMessagesByMailbox(ctx context.Context, emailID uuid.UUID) ([]domain.Message, error) {
	return f.messages, nil
}

func (f *fakeStorage) GetMailbox(ctx context.Context, id uuid.UUID, scopeUserID *uuid.UUID) (*domain.Mailbox, error) {
	if f.mailbox == nil || f.mailbox.ID != id {
		return nil, nil
	}
	return f.mailbox, nil
}

func (f *fakeStorage) GetMailCountByEmailID(ctx context.Context, emailID uuid.UUID) (int, error) {
	return len(f.messages), nil
}

func (f *fakeStorage) SetCheckTime(ctx context.Context, id uuid.UUID, when time.Time) error { return nil }
func (f *fakeStorage) SetError(ctx context.Context, id uuid.UUID, message string) error     { return nil }

func TestGetCodeHandler_ReturnsCodeFromRecentMessage(t *testing.T) {
	mailboxID := uuid.New()
	storage := &fakeStorage{
		mailbox: &domain.Mailbox{ID: mailboxID, UserID: uuid.New(), Address: "a@outlook.com"},
		messages: []domain.Message{
			{Subject: "Your verification code is 482917", ReceivedTime: time.Now()},
		},
	}
	waiter := codewait.New(storage, fanout.New())
	handler := &GetCodeHandler{Storage: storage, Waiter: waiter, Log: zerolog.Nop()}

	body := strings.NewReader(`{"email":"a@outlook.com","timeout":1}`)
	req := httptest.NewRequest(http.MethodPost, "/api/emails/get_code", body)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp getCodeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "482917", resp.Code)
}

func TestGetCodeHandler_UnknownMailboxReturns404(t *testing.T) {
	storage := &fakeStorage{}
	waiter := codewait.New(storage, fanout.New())
	handler := &GetCodeHandler{Storage: storage, Waiter: waiter, Log: zerolog.Nop()}

	body := strings.NewReader(`{"email":"missing@outlook.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/emails/get_code", body)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckOneHandler_ReturnsOKForKnownMailbox(t *testing.T) {
	mailboxID := uuid.New()
	storage := &fakeStorage{mailbox: &domain.Mailbox{ID: mailboxID, Kind: domain.KindIMAP}}
	checker := batch.New(storage, &fakeGraphAPI{}, fakeIMAPFetcher{}, fanout.New(), time.Second, zerolog.Nop())
	handler := &CheckOneHandler{Checker: checker}

	req := httptest.NewRequest(http.MethodPost, "/api/emails/x/check", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req, mailboxID)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetCodeHandler_MissingEmailReturns400(t *testing.T) {
	storage := &fakeStorage{}
	waiter := codewait.New(storage, fanout.New())
	handler := &GetCodeHandler{Storage: storage, Waiter: waiter, Log: zerolog.Nop()}

	req := httptest.NewRequest(http.MethodPost, "/api/emails/get_code", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
