package webhook

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeHTTP_EchoesValidationToken(t *testing.T) {
	r := New(4, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/webhook?validationToken=abc123", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc123", w.Body.String())
}

func TestServeHTTP_QueuesFetchJobForKnownMailbox(t *testing.T) {
	r := New(4, zerolog.Nop())
	mailboxID := uuid.New()
	body := `{"value":[{"changeType":"created","clientState":"email_` + mailboxID.String() + `","resource":"me/mailFolders('Inbox')/messages"}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	select {
	case job := <-r.Jobs:
		assert.Equal(t, mailboxID, job.MailboxID)
	case <-time.After(time.Second):
		t.Fatal("expected a job to be queued")
	}
}

func TestServeHTTP_DebouncesDuplicateNotification(t *testing.T) {
	r := New(4, zerolog.Nop())
	mailboxID := uuid.New()
	body := `{"value":[{"changeType":"created","clientState":"email_` + mailboxID.String() + `"}]}`

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
	}

	require.Len(t, r.Jobs, 1)
}

func TestServeHTTP_IgnoresNonCreatedChangeType(t *testing.T) {
	r := New(4, zerolog.Nop())
	body := `{"value":[{"changeType":"updated","clientState":"email_` + uuid.New().String() + `"}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Len(t, r.Jobs, 0)
}

func TestParseClientState(t *testing.T) {
	id := uuid.New()
	parsed, ok := parseClientState("email_" + id.String())
	require.True(t, ok)
	assert.Equal(t, id, parsed)

	_, ok = parseClientState("garbage")
	assert.False(t, ok)
}
