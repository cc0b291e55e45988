// Package webhook implements C6 NotificationRouter: the HTTP endpoint
// Microsoft Graph posts subscription validation requests and change
// notifications to.
package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FetchJob is enqueued for every de-duplicated "created" notification; a
// consumer (wired by cmd/mailhouse) drains Jobs and triggers a fetch.
type FetchJob struct {
	MailboxID uuid.UUID
}

type graphNotification struct {
	ChangeType  string `json:"changeType"`
	ClientState string `json:"clientState"`
	Resource    string `json:"resource"`
}

type graphNotificationEnvelope struct {
	Value []graphNotification `json:"value"`
}

// Router is an http.Handler implementing Graph's subscription validation
// handshake and change-notification delivery, with per-mailbox debounce
// and a bounded job queue so a notification burst cannot pile up unbounded
// work (spec §4.6).
type Router struct {
	Jobs chan FetchJob

	log zerolog.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]bool
}

// New builds a Router with the given job queue capacity.
func New(queueCapacity int, logger zerolog.Logger) *Router {
	if queueCapacity <= 0 {
		queueCapacity = 256
	}
	return &Router{
		Jobs:     make(chan FetchJob, queueCapacity),
		log:      logger.With().Str("component", "webhook").Logger(),
		inFlight: make(map[uuid.UUID]bool),
	}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// Subscription validation handshake: Graph calls back synchronously
	// with ?validationToken=... and expects it echoed as text/plain.
	if token := req.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(token))
		return
	}

	// Ack immediately: Graph requires a 202 within a few seconds or it
	// retries and eventually tears down the subscription. The actual
	// fetch happens asynchronously off this handler's goroutine.
	w.WriteHeader(http.StatusAccepted)

	body, err := io.ReadAll(req.Body)
	if err != nil {
		r.log.Warn().Err(err).Msg("read notification body")
		return
	}

	var envelope graphNotificationEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		r.log.Warn().Err(err).Msg("decode notification body")
		return
	}

	for _, n := range envelope.Value {
		r.handleNotification(n)
	}
}

func (r *Router) handleNotification(n graphNotification) {
	if n.ChangeType != "created" {
		return
	}

	mailboxID, ok := parseClientState(n.ClientState)
	if !ok {
		r.log.Warn().Str("client_state", n.ClientState).Msg("invalid or unrecognized clientState")
		return
	}

	r.mu.Lock()
	if r.inFlight[mailboxID] {
		r.mu.Unlock()
		r.log.Debug().Str("mailbox_id", mailboxID.String()).Msg("notification debounced, fetch already queued")
		return
	}
	r.inFlight[mailboxID] = true
	r.mu.Unlock()

	select {
	case r.Jobs <- FetchJob{MailboxID: mailboxID}:
	default:
		r.log.Warn().Str("mailbox_id", mailboxID.String()).Msg("job queue full, dropping notification")
		r.Release(mailboxID)
	}
}

// Release clears mailboxID's in-flight flag, allowing future notifications
// to enqueue a fetch again. The job consumer must call this once its fetch
// completes.
func (r *Router) Release(mailboxID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, mailboxID)
}

// parseClientState extracts the mailbox UUID from a "email_<uuid>"
// clientState string (spec §4.5/§4.6 provenance format).
func parseClientState(clientState string) (uuid.UUID, bool) {
	const prefix = "email_"
	if !strings.HasPrefix(clientState, prefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(clientState, prefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
