// Package ports defines the driven/driving interfaces the mailbox engine
// depends on: persistence, the two provider protocols, and live delivery.
// Concrete adapters live in internal/store, internal/graph,
// internal/imapfetch, and internal/fanout.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailhouse/internal/domain"
)

// Storage is the contract internal/store.PostgresStore implements (C2
// MessageStore). Reads and writes may run concurrently: the implementation
// does not serialize writes, and relies on database-level upserts and
// WHERE guards for idempotence and uniqueness.
type Storage interface {
	// Mailboxes
	AddMailbox(ctx context.Context, m *domain.Mailbox) error
	UpdateMailbox(ctx context.Context, m *domain.Mailbox) error
	DeleteMailbox(ctx context.Context, id uuid.UUID) error
	BatchDeleteMailboxes(ctx context.Context, ids []uuid.UUID) error
	ListMailboxesByUser(ctx context.Context, userID uuid.UUID) ([]domain.Mailbox, error)
	GetMailbox(ctx context.Context, id uuid.UUID, scopeUserID *uuid.UUID) (*domain.Mailbox, error)
	GetMailboxByAddress(ctx context.Context, address string, scopeUserID *uuid.UUID) (*domain.Mailbox, error)
	ListOutlookMailboxes(ctx context.Context) ([]domain.Mailbox, error)
	ListAllMailboxes(ctx context.Context) ([]domain.Mailbox, error)
	SetCheckTime(ctx context.Context, id uuid.UUID, when time.Time) error
	SetError(ctx context.Context, id uuid.UUID, message string) error
	SetRealtime(ctx context.Context, id uuid.UUID, enabled bool) error

	// Messages
	AddMessage(ctx context.Context, emailID uuid.UUID, subject, sender, recipient string, receivedTime time.Time, content string, folder domain.Folder, hasAttachments bool) (inserted bool, mailID uuid.UUID, err error)
	ListMessagesByMailbox(ctx context.Context, emailID uuid.UUID) ([]domain.Message, error)
	GetMailCountByEmailID(ctx context.Context, emailID uuid.UUID) (int, error)
	LatestForUser(ctx context.Context, userID uuid.UUID, limit int, windowMinutes int) ([]domain.Message, error)
	SearchMessages(ctx context.Context, userEmailIDs []uuid.UUID, query string, inSubject, inSender, inRecipient, inContent bool) ([]domain.Message, error)

	// Attachments
	AddAttachment(ctx context.Context, a *domain.Attachment) error
	ListAttachmentsByMail(ctx context.Context, mailID uuid.UUID) ([]domain.Attachment, error)
	GetAttachment(ctx context.Context, id uuid.UUID) (*domain.Attachment, error)

	// Platform tags/rules/corrections
	AddPlatformTag(ctx context.Context, emailID uuid.UUID, platformName string) error
	ListPlatformTags(ctx context.Context, emailID uuid.UUID) ([]string, error)
	AddPlatformRule(ctx context.Context, r *domain.PlatformRule) error
	UpdatePlatformRule(ctx context.Context, r *domain.PlatformRule) error
	DeletePlatformRule(ctx context.Context, id uuid.UUID) error
	ListPlatformRules(ctx context.Context, userID uuid.UUID) ([]domain.PlatformRule, error)
	UpsertPlatformCorrection(ctx context.Context, c *domain.PlatformCorrection) error
	GetPlatformCorrection(ctx context.Context, userID uuid.UUID, senderDomain string) (*domain.PlatformCorrection, error)
	MatchRules(ctx context.Context, userID uuid.UUID, sender, subject, content string) ([]string, error)

	// Subscriptions
	AddSubscription(ctx context.Context, s *domain.Subscription) error
	GetSubscriptionByEmail(ctx context.Context, emailID uuid.UUID) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	ListExpiringSubscriptions(ctx context.Context, within time.Duration) ([]domain.Subscription, error)
	UpdateSubscriptionExpiration(ctx context.Context, subscriptionID string, newTime time.Time) error
	DeleteSubscriptionByID(ctx context.Context, subscriptionID string) error
	DeleteSubscriptionByEmail(ctx context.Context, emailID uuid.UUID) error

	// SystemConfig
	GetConfigBool(ctx context.Context, key string, def bool) (bool, error)
	SetConfigBool(ctx context.Context, key string, val bool) error

	Close() error
}
