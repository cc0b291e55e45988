// Package domain holds the entities shared by every mailbox-aggregation
// component: mailboxes, messages, attachments, platform tags/rules, and
// push subscriptions. It has no dependency on storage, transport, or
// provider packages.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MailboxKind identifies which provider protocol a mailbox speaks.
type MailboxKind string

const (
	KindOutlook MailboxKind = "outlook"
	KindIMAP    MailboxKind = "imap"
	KindGmail   MailboxKind = "gmail"
	KindQQ      MailboxKind = "qq"
)

// Folder is the normalized source folder a message was fetched from.
type Folder string

const (
	FolderInbox    Folder = "INBOX"
	FolderJunk     Folder = "JUNK"
	FolderImported Folder = "IMPORTED"
)

// Mailbox is a credentialed endpoint the service keeps synchronized.
//
// Credential fields (Password, ClientID, RefreshToken) are plaintext in
// this struct; internal/store encrypts them at rest via internal/vault and
// decrypts on read, so callers outside the store always see plaintext.
type Mailbox struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Address         string
	Kind            MailboxKind
	Password        string // imap/gmail/qq
	ClientID        string // outlook
	RefreshToken    string // outlook
	Server          string // imap/gmail/qq, e.g. "imap.gmail.com"
	Port            int
	SSL             bool
	LastCheckTime   *time.Time // high-water mark over received_time, monotone
	LastError       string
	RealtimeEnabled bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Message is an email retrieved from a provider and persisted verbatim.
//
// Uniqueness of (EmailID, Sender, Subject, ReceivedTime) is enforced by
// internal/store; a duplicate insert is a no-op, not an error.
type Message struct {
	ID             uuid.UUID
	EmailID        uuid.UUID
	Subject        string
	Sender         string
	Recipient      string
	Content        string
	ReceivedTime   time.Time
	Folder         Folder
	HasAttachments bool
}

// Attachment belongs to exactly one Message.
type Attachment struct {
	ID          uuid.UUID
	MailID      uuid.UUID
	Filename    string
	ContentType string
	Size        int
	Content     []byte
}

// PlatformTag is a set member: one mailbox carries many distinct (case-
// insensitively deduplicated) platform names.
type PlatformTag struct {
	EmailID      uuid.UUID
	PlatformName string
}

// PlatformRule matches inbound messages to a platform name when every
// supplied pattern matches. An empty pattern is treated as "don't care";
// a rule whose patterns are all empty never matches.
type PlatformRule struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	PlatformName  string
	SenderRegex   string
	SubjectRegex  string
	ContentRegex  string
	IsEnabled     bool
}

// PlatformCorrection overrides heuristic classification for a given sender
// domain, scoped to one user.
type PlatformCorrection struct {
	UserID        uuid.UUID
	SenderDomain  string
	CorrectedName string
}

// Subscription is a provider-side push registration mirrored locally.
// At most one active Subscription exists per (EmailID, Resource).
type Subscription struct {
	SubscriptionID string
	EmailID        uuid.UUID
	Resource       string
	ExpirationTime time.Time
}

// SystemConfig is a flat key/value store; only two keys matter to the
// core engine: "allow_register" and "use_graph_api".
type SystemConfig struct {
	Key   string
	Value string
}
