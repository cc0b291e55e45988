// Package imapfetch implements C4 IMAPFetcher: connecting to non-Outlook
// mailboxes (Gmail, QQ, and generic IMAP) over IMAP4rev1 and pulling
// messages newer than a high-water mark.
package imapfetch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"github.com/stoik/mailhouse/internal/apperr"
	"github.com/stoik/mailhouse/internal/domain"
	"github.com/stoik/mailhouse/internal/ports"
)

// defaultServers maps a mailbox kind to its IMAP host/port when the caller
// leaves Server/Port unset (spec §4.4).
var defaultServers = map[domain.MailboxKind]struct {
	host string
	port int
}{
	domain.KindGmail: {"imap.gmail.com", 993},
	domain.KindQQ:    {"imap.qq.com", 993},
}

// foldersToWalk lists the mailbox folders fetched per run, paired with the
// normalized domain.Folder tag applied to messages found there.
var foldersToWalk = []struct {
	imapName string
	folder   domain.Folder
}{
	{"INBOX", domain.FolderInbox},
	{"Junk", domain.FolderJunk},
}

// Fetcher implements ports.IMAPFetcher.
type Fetcher struct {
	log     zerolog.Logger
	dialer  func(addr string) (*client.Client, error)
	timeout time.Duration
}

// New builds a Fetcher that dials plain TLS IMAP servers.
func New(logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		log: logger.With().Str("component", "imapfetch").Logger(),
		dialer: func(addr string) (*client.Client, error) {
			return client.DialTLS(addr, nil)
		},
		timeout: 30 * time.Second,
	}
}

func (f *Fetcher) serverAddr(m domain.Mailbox) (string, error) {
	host, port := m.Server, m.Port
	if host == "" {
		d, ok := defaultServers[m.Kind]
		if !ok {
			return "", fmt.Errorf("%w: no default imap server for kind %q", apperr.ErrValidation, m.Kind)
		}
		host, port = d.host, d.port
	}
	if port == 0 {
		port = 993
	}
	return fmt.Sprintf("%s:%d", host, port), nil
}

// Fetch connects, logs in, and walks INBOX and Junk for messages received
// after since (nil pulls everything IMAP SEARCH will return). stop is
// polled between folders for cooperative cancellation.
func (f *Fetcher) Fetch(ctx context.Context, m domain.Mailbox, since *time.Time, stop func() bool, progress func(percent int, status string)) ([]ports.FetchedMessage, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	if stop == nil {
		stop = func() bool { return false }
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, f.timeout)
	defer cancel()

	addr, err := f.serverAddr(m)
	if err != nil {
		return nil, err
	}

	progress(5, "connecting")
	c, err := f.dialer(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: imap dial %s: %s", apperr.ErrTransient, addr, err)
	}
	defer c.Logout()

	if err := c.Login(m.Address, m.Password); err != nil {
		return nil, fmt.Errorf("%w: imap login: %s", apperr.ErrAuthFailed, err)
	}
	progress(15, "authenticated")

	var all []ports.FetchedMessage
	perFolder := 80 / len(foldersToWalk)
	for i, fw := range foldersToWalk {
		if stop() || ctx.Err() != nil {
			break
		}
		msgs, err := f.fetchFolder(ctx, c, fw.imapName, fw.folder, since)
		if err != nil {
			f.log.Warn().Err(err).Str("folder", fw.imapName).Str("mailbox", m.Address).Msg("folder fetch failed")
			continue
		}
		all = append(all, msgs...)
		progress(15+perFolder*(i+1), fmt.Sprintf("fetched %s", fw.imapName))
	}

	progress(100, "done")
	return all, nil
}

func (f *Fetcher) fetchFolder(ctx context.Context, c *client.Client, folderName string, folder domain.Folder, since *time.Time) ([]ports.FetchedMessage, error) {
	mbox, err := c.Select(folderName, true)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", folderName, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	criteria := imap.NewSearchCriteria()
	if since != nil {
		criteria.Since = since.UTC()
	}
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", folderName, err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, section.FetchItem()}

	messages := make(chan *imap.Message, len(seqNums))
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- c.Fetch(seqSet, items, messages)
	}()

	var out []ports.FetchedMessage
	for msg := range messages {
		fm, ok := toFetchedMessage(msg, section, folder, since)
		if ok {
			out = append(out, fm)
		}
	}
	if err := <-doneCh; err != nil {
		return out, fmt.Errorf("fetch %s: %w", folderName, err)
	}
	return out, nil
}

func toFetchedMessage(msg *imap.Message, section *imap.BodySectionName, folder domain.Folder, since *time.Time) (ports.FetchedMessage, bool) {
	if msg.Envelope == nil {
		return ports.FetchedMessage{}, false
	}

	received := msg.Envelope.Date.UTC()
	// IMAP SEARCH SINCE is date-granularity only; apply the exact
	// high-water mark client-side so a mailbox checked twice in one day
	// does not re-ingest its own earlier fetch (spec §4.4).
	if since != nil && !received.After(since.UTC()) {
		return ports.FetchedMessage{}, false
	}

	sender := ""
	if len(msg.Envelope.From) > 0 {
		sender = msg.Envelope.From[0].Address()
	}

	body := ""
	r := msg.GetBody(section)
	if r != nil {
		body = readPlainText(r)
	}

	return ports.FetchedMessage{
		Subject:        msg.Envelope.Subject,
		Sender:         sender,
		Content:        body,
		ReceivedTime:   received,
		HasAttachments: false,
		Folder:         folder,
	}, true
}

// readPlainText extracts the first text part of a MIME message, falling
// back to the raw body when MIME parsing fails (plenty of real-world mail
// is malformed just enough to trip a strict parser).
func readPlainText(r io.Reader) string {
	mr, err := mail.CreateReader(r)
	if err != nil {
		raw, _ := io.ReadAll(r)
		return string(raw)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		switch part.Header.(type) {
		case *mail.InlineHeader:
			b, err := io.ReadAll(part.Body)
			if err == nil {
				return string(b)
			}
		}
	}
	return ""
}
