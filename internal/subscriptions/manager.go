// Package subscriptions implements C5 SubscriptionManager: the lifecycle
// of Microsoft Graph webhook registrations backing realtime mailboxes.
package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stoik/mailhouse/internal/apperr"
	"github.com/stoik/mailhouse/internal/domain"
	"github.com/stoik/mailhouse/internal/graph"
	"github.com/stoik/mailhouse/internal/ports"
)

const (
	maxExpiration = graph.MaxExpirationMinutes * time.Minute
	renewBefore   = graph.RenewBeforeHours * time.Hour
	graphResource = "me/mailFolders('Inbox')/messages"

	// bulkCreatePause is the mandatory gap between successive subscription
	// creates; bulkCreateBatchSize/bulkCreateBatchPause add a further
	// cooldown every 50 creates (spec §4.5, §5, testable property #6).
	bulkCreatePause      = 2 * time.Second
	bulkCreateBatchSize  = 50
	bulkCreateBatchPause = 60 * time.Second
)

// Manager owns subscription create/renew/delete against Graph and mirrors
// state into storage (spec §4.5).
type Manager struct {
	storage     ports.Storage
	graphAPI    ports.GraphAPI
	webhookURL  string
	log         zerolog.Logger
	stopRenewal chan struct{}
}

// New builds a Manager. webhookURL is the public HTTPS endpoint Graph will
// POST change notifications to.
func New(storage ports.Storage, graphAPI ports.GraphAPI, webhookURL string, logger zerolog.Logger) *Manager {
	return &Manager{
		storage:    storage,
		graphAPI:   graphAPI,
		webhookURL: webhookURL,
		log:        logger.With().Str("component", "subscriptions").Logger(),
	}
}

func clientState(mailboxID uuid.UUID) string {
	return fmt.Sprintf("email_%s", mailboxID)
}

// CreateForMailbox registers a new Graph subscription for mailbox, or
// returns the existing one if it already has one (spec §4.5: "at most one
// active subscription per (EmailID, Resource)").
func (m *Manager) CreateForMailbox(ctx context.Context, mailbox domain.Mailbox) (*domain.Subscription, error) {
	existing, err := m.storage.GetSubscriptionByEmail(ctx, mailbox.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	accessToken, err := m.graphAPI.RefreshAccessToken(ctx, mailbox.RefreshToken, mailbox.ClientID)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	expiresAt := time.Now().UTC().Add(maxExpiration)
	subID, err := m.graphAPI.CreateSubscription(ctx, accessToken, m.webhookURL, graphResource, expiresAt, clientState(mailbox.ID))
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	sub := &domain.Subscription{
		SubscriptionID: subID,
		EmailID:        mailbox.ID,
		Resource:       graphResource,
		ExpirationTime: expiresAt,
	}
	if err := m.storage.AddSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("persist subscription: %w", err)
	}
	return sub, nil
}

// Renew moves sub's expiration to maxExpiration from now, using mailbox's
// credentials to mint a fresh access token.
func (m *Manager) Renew(ctx context.Context, sub domain.Subscription, mailbox domain.Mailbox) error {
	accessToken, err := m.graphAPI.RefreshAccessToken(ctx, mailbox.RefreshToken, mailbox.ClientID)
	if err != nil {
		return fmt.Errorf("renew subscription %s: %w", sub.SubscriptionID, err)
	}

	newExpiry := time.Now().UTC().Add(maxExpiration)
	if err := m.graphAPI.RenewSubscription(ctx, accessToken, sub.SubscriptionID, newExpiry); err != nil {
		return err
	}
	return m.storage.UpdateSubscriptionExpiration(ctx, sub.SubscriptionID, newExpiry)
}

// Delete removes a subscription from Graph (best-effort) and storage.
func (m *Manager) Delete(ctx context.Context, sub domain.Subscription, mailbox *domain.Mailbox) error {
	if mailbox != nil {
		if accessToken, err := m.graphAPI.RefreshAccessToken(ctx, mailbox.RefreshToken, mailbox.ClientID); err == nil {
			if err := m.graphAPI.DeleteSubscription(ctx, accessToken, sub.SubscriptionID); err != nil {
				m.log.Warn().Err(err).Str("subscription_id", sub.SubscriptionID).Msg("graph delete failed, removing local record anyway")
			}
		}
	}
	return m.storage.DeleteSubscriptionByID(ctx, sub.SubscriptionID)
}

// BulkCreateForAllOutlook registers subscriptions for every Outlook
// mailbox lacking one. It waits bulkCreatePause between successive
// creates and an additional bulkCreateBatchPause after every
// bulkCreateBatchSize of them, and honors apperr.Throttled's RetryAfter by
// pausing and retrying once before moving on (spec §4.5, testable
// property #6, scenario S3). Mailboxes that already have a subscription
// are skipped without consuming a pacing slot.
func (m *Manager) BulkCreateForAllOutlook(ctx context.Context) (created int, failed int, err error) {
	mailboxes, err := m.storage.ListOutlookMailboxes(ctx)
	if err != nil {
		return 0, 0, err
	}

	attempts := 0
	for _, mailbox := range mailboxes {
		if ctx.Err() != nil {
			return created, failed, ctx.Err()
		}

		existing, err := m.storage.GetSubscriptionByEmail(ctx, mailbox.ID)
		if err != nil {
			m.log.Warn().Err(err).Str("mailbox", mailbox.Address).Msg("bulk subscription lookup failed")
			failed++
			continue
		}
		if existing != nil {
			continue
		}

		if attempts > 0 {
			if err := sleepCtx(ctx, bulkCreatePause); err != nil {
				return created, failed, err
			}
			if attempts%bulkCreateBatchSize == 0 {
				if err := sleepCtx(ctx, bulkCreateBatchPause); err != nil {
					return created, failed, err
				}
			}
		}
		attempts++

		if err := m.createThrottled(ctx, mailbox); err != nil {
			m.log.Warn().Err(err).Str("mailbox", mailbox.Address).Msg("bulk subscription create failed")
			failed++
			continue
		}
		created++
	}
	return created, failed, nil
}

// createThrottled calls CreateForMailbox, and on a 429 sleeps the
// provider's Retry-After before retrying once (spec §4.5: "on HTTP 429 the
// operation yields its caller for at least Retry-After seconds").
func (m *Manager) createThrottled(ctx context.Context, mailbox domain.Mailbox) error {
	_, err := m.CreateForMailbox(ctx, mailbox)
	if t, ok := apperr.AsThrottled(err); ok {
		m.log.Warn().Dur("retry_after", t.RetryAfter).Str("mailbox", mailbox.Address).Msg("graph throttled, pausing")
		if sleepErr := sleepCtx(ctx, t.RetryAfter); sleepErr != nil {
			return sleepErr
		}
		_, err = m.CreateForMailbox(ctx, mailbox)
	}
	return err
}

// sleepCtx sleeps d or returns ctx.Err() if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StartRenewalLoop polls storage every checkInterval for subscriptions
// expiring within renewBefore and renews them, recreating on renewal
// failure (spec §4.5). It blocks until ctx is cancelled.
func (m *Manager) StartRenewalLoop(ctx context.Context, checkInterval time.Duration) {
	if checkInterval <= 0 {
		checkInterval = time.Hour
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.renewExpiring(ctx)
		}
	}
}

func (m *Manager) renewExpiring(ctx context.Context) {
	expiring, err := m.storage.ListExpiringSubscriptions(ctx, renewBefore)
	if err != nil {
		m.log.Error().Err(err).Msg("list expiring subscriptions")
		return
	}

	for _, sub := range expiring {
		mailbox, err := m.storage.GetMailbox(ctx, sub.EmailID, nil)
		if err != nil || mailbox == nil {
			m.log.Warn().Str("subscription_id", sub.SubscriptionID).Msg("mailbox gone, dropping subscription")
			_ = m.storage.DeleteSubscriptionByID(ctx, sub.SubscriptionID)
			continue
		}

		if err := m.Renew(ctx, sub, *mailbox); err != nil {
			m.log.Warn().Err(err).Str("subscription_id", sub.SubscriptionID).Msg("renewal failed, recreating")
			_ = m.storage.DeleteSubscriptionByID(ctx, sub.SubscriptionID)
			if _, err := m.CreateForMailbox(ctx, *mailbox); err != nil {
				m.log.Error().Err(err).Str("mailbox", mailbox.Address).Msg("recreate subscription failed")
			}
		}
	}
}
