package imapfetch

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/mailhouse/internal/domain"
)

func TestServerAddr_ExplicitOverridesDefault(t *testing.T) {
	f := &Fetcher{}
	addr, err := f.serverAddr(domain.Mailbox{Kind: domain.KindIMAP, Server: "mail.example.com", Port: 1993})
	require.NoError(t, err)
	assert.Equal(t, "mail.example.com:1993", addr)
}

func TestServerAddr_GmailDefault(t *testing.T) {
	f := &Fetcher{}
	addr, err := f.serverAddr(domain.Mailbox{Kind: domain.KindGmail})
	require.NoError(t, err)
	assert.Equal(t, "imap.gmail.com:993", addr)
}

func TestServerAddr_UnknownKindNoDefault(t *testing.T) {
	f := &Fetcher{}
	_, err := f.serverAddr(domain.Mailbox{Kind: domain.KindIMAP})
	require.Error(t, err)
}

func TestToFetchedMessage_FiltersByHighWaterMark(t *testing.T) {
	since := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := &imap.Message{
		Envelope: &imap.Envelope{
			Subject: "old",
			Date:    since.Add(-time.Hour),
		},
	}
	_, ok := toFetchedMessage(msg, &imap.BodySectionName{}, domain.FolderInbox, &since)
	assert.False(t, ok)
}

func TestToFetchedMessage_PassesNewerMessage(t *testing.T) {
	since := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := &imap.Message{
		Envelope: &imap.Envelope{
			Subject: "new",
			Date:    since.Add(time.Hour),
			From:    []*imap.Address{{MailboxName: "bob", HostName: "example.com"}},
		},
	}
	fm, ok := toFetchedMessage(msg, &imap.BodySectionName{}, domain.FolderInbox, &since)
	require.True(t, ok)
	assert.Equal(t, "new", fm.Subject)
	assert.Equal(t, domain.FolderInbox, fm.Folder)
}
