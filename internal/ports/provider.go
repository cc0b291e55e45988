package ports

import (
	"context"
	"time"

	"github.com/stoik/mailhouse/internal/domain"
)

// FetchedMessage is the normalized shape both GraphClient and IMAPFetcher
// return, ready for MessageStore.AddMessage.
type FetchedMessage struct {
	Subject        string
	Sender         string
	Content        string
	ReceivedTime   time.Time
	HasAttachments bool
	Folder         domain.Folder
}

// GraphAPI is the contract internal/graph.Client implements (C3).
type GraphAPI interface {
	RefreshAccessToken(ctx context.Context, refreshToken, clientID string) (accessToken string, err error)
	ListMessages(ctx context.Context, accessToken string, folder string, limit int, since *time.Time) ([]FetchedMessage, error)
	GetMessage(ctx context.Context, accessToken, messageID string) (FetchedMessage, error)
	ListAttachments(ctx context.Context, accessToken, messageID string) ([]domain.Attachment, error)

	CreateSubscription(ctx context.Context, accessToken, notificationURL, resource string, expiresAt time.Time, clientState string) (subscriptionID string, err error)
	RenewSubscription(ctx context.Context, accessToken, subscriptionID string, expiresAt time.Time) error
	DeleteSubscription(ctx context.Context, accessToken, subscriptionID string) error
}

// IMAPFetcher is the contract internal/imapfetch.Fetcher implements (C4).
type IMAPFetcher interface {
	// Fetch connects to the mailbox and pulls everything newer than since
	// (nil means first-sync: pull the provider's default window). The
	// stop func, when non-nil, is polled between folder/page boundaries
	// for cooperative cancellation. A folder that fails to fetch is skipped,
	// and messages from the other folders are returned with a nil err; a
	// failed connect or login returns no messages and a non-nil err.
	Fetch(ctx context.Context, mailbox domain.Mailbox, since *time.Time, stop func() bool, progress func(percent int, status string)) ([]FetchedMessage, error)
}
