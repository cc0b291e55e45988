package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/mailhouse/internal/apperr"
)

func TestDo_DecodesMessageList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":[{"id":"1","subject":"hello","from":{"emailAddress":{"name":"Bob","address":"bob@example.com"}},"receivedDateTime":"2026-01-01T10:00:00Z","body":{"contentType":"text","content":"hi"},"hasAttachments":false}]}`))
	}))
	defer srv.Close()

	client := &Client{httpClient: srv.Client(), log: zerolog.Nop()}

	req, err := client.authedRequest(context.Background(), "GET", srv.URL, "test-token", nil)
	require.NoError(t, err)
	var list graphMessageList
	require.NoError(t, client.do(req, &list))
	require.Len(t, list.Value, 1)
	assert.Equal(t, "hello", list.Value[0].Subject)
	assert.Equal(t, "Bob <bob@example.com>", formatAddress(list.Value[0].From))
}

func TestDo_DecodesSingleMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"42","subject":"single","from":{"emailAddress":{"name":"Ann","address":"ann@example.com"}},"receivedDateTime":"2026-01-02T09:30:00Z","body":{"contentType":"text","content":"body"},"hasAttachments":true}`))
	}))
	defer srv.Close()

	client := &Client{httpClient: srv.Client(), log: zerolog.Nop()}

	req, err := client.authedRequest(context.Background(), "GET", srv.URL, "test-token", nil)
	require.NoError(t, err)
	var m graphMessage
	require.NoError(t, client.do(req, &m))
	assert.Equal(t, "single", m.Subject)
	assert.Equal(t, "Ann <ann@example.com>", formatAddress(m.From))
	assert.True(t, m.HasAttachments)
}

func TestClassifyStatus_Throttled(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"30"}}}
	err := classifyStatus(resp, nil)
	require.Error(t, err)
	thr, ok := apperr.AsThrottled(err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, thr.RetryAfter)
}

func TestClassifyStatus_AuthFailed(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusUnauthorized}
	err := classifyStatus(resp, []byte("denied"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrAuthFailed)
}
