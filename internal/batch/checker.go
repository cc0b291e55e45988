// Package batch implements C7 BatchChecker: fetching new mail for one or
// many mailboxes, with per-mailbox mutual exclusion so a slow check never
// overlaps a concurrent one for the same mailbox.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stoik/mailhouse/internal/domain"
	"github.com/stoik/mailhouse/internal/fanout"
	"github.com/stoik/mailhouse/internal/ports"
)

// ProgressFunc reports percent-complete and a human status string, mirrored
// out to callers (e.g. a UI progress bar).
type ProgressFunc func(mailboxID uuid.UUID, percent int, status string)

// Classifier tags a newly stored message with its originating platform.
// Satisfied by *internal/platform.Classifier; kept as an interface here so
// batch does not import platform directly.
type Classifier interface {
	ClassifyAndTag(ctx context.Context, userID uuid.UUID, msg domain.Message) (string, error)
}

// CheckResult summarizes one mailbox's check.
type CheckResult struct {
	MailboxID uuid.UUID
	Success   bool
	Saved     int
	Message   string
}

// Checker implements BatchChecker. One Checker instance is shared across
// all mailboxes in the fleet; in-flight tracking is keyed per mailbox.
type Checker struct {
	storage     ports.Storage
	graphAPI    ports.GraphAPI
	imapFetcher ports.IMAPFetcher
	fanout      *fanout.Fanout
	classifier  Classifier
	log         zerolog.Logger

	checkTimeout time.Duration

	mu       sync.Mutex
	inFlight map[uuid.UUID]bool
}

// New builds a Checker. checkTimeout bounds a single mailbox's check (it
// replaces the original's future.result(timeout=...) construct with
// context.WithTimeout). classifier may be nil, which disables platform
// tagging of newly stored messages.
func New(storage ports.Storage, graphAPI ports.GraphAPI, imapFetcher ports.IMAPFetcher, fo *fanout.Fanout, checkTimeout time.Duration, logger zerolog.Logger) *Checker {
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Minute
	}
	return &Checker{
		storage:      storage,
		graphAPI:     graphAPI,
		imapFetcher:  imapFetcher,
		fanout:       fo,
		checkTimeout: checkTimeout,
		log:          logger.With().Str("component", "batch").Logger(),
		inFlight:     make(map[uuid.UUID]bool),
	}
}

// WithClassifier attaches a platform classifier, returning the same
// Checker for chaining at wiring time.
func (c *Checker) WithClassifier(classifier Classifier) *Checker {
	c.classifier = classifier
	return c
}

// IsProcessing reports whether mailboxID currently has a check in flight.
func (c *Checker) IsProcessing(mailboxID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[mailboxID]
}

func (c *Checker) claim(mailboxID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[mailboxID] {
		return false
	}
	c.inFlight[mailboxID] = true
	return true
}

func (c *Checker) release(mailboxID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, mailboxID)
}

// CheckOne checks a single mailbox, bounded by c.checkTimeout. It refuses
// to run if the mailbox already has a check in flight (spec §4.7).
func (c *Checker) CheckOne(ctx context.Context, mailboxID uuid.UUID, progress ProgressFunc) CheckResult {
	if !c.claim(mailboxID) {
		return CheckResult{MailboxID: mailboxID, Success: false, Message: "mailbox is already being processed"}
	}
	defer c.release(mailboxID)

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	return c.checkMailbox(ctx, mailboxID, progress)
}

func (c *Checker) checkMailbox(ctx context.Context, mailboxID uuid.UUID, progress ProgressFunc) CheckResult {
	if progress == nil {
		progress = func(uuid.UUID, int, string) {}
	}

	mailbox, err := c.storage.GetMailbox(ctx, mailboxID, nil)
	if err != nil || mailbox == nil {
		return CheckResult{MailboxID: mailboxID, Success: false, Message: "mailbox not found"}
	}

	isFirstSync := false
	count, err := c.storage.GetMailCountByEmailID(ctx, mailboxID)
	if err == nil && count == 0 {
		isFirstSync = true
	}

	var since *time.Time
	if !isFirstSync {
		since = mailbox.LastCheckTime
	}

	progress(mailboxID, 5, "fetching")
	fetched, err := c.fetch(ctx, *mailbox, since, progress)
	if err != nil {
		_ = c.storage.SetError(ctx, mailboxID, err.Error())
		return CheckResult{MailboxID: mailboxID, Success: false, Message: err.Error()}
	}

	saved := c.storeAndFanOut(ctx, *mailbox, fetched)

	_ = c.storage.SetCheckTime(ctx, mailboxID, time.Now().UTC())
	progress(mailboxID, 100, fmt.Sprintf("saved %d new messages", saved))

	return CheckResult{MailboxID: mailboxID, Success: true, Saved: saved, Message: fmt.Sprintf("saved %d new messages", saved)}
}

// storeAndFanOut persists fetched messages, skipping ones AddMessage
// reports as duplicates, and for each actually-new message publishes to
// LiveFanout and feeds PlatformClassifier (spec §4.6, §4.8). It returns
// the count of newly inserted messages.
func (c *Checker) storeAndFanOut(ctx context.Context, mailbox domain.Mailbox, fetched []ports.FetchedMessage) int {
	saved := 0
	for _, fm := range fetched {
		inserted, mailID, err := c.storage.AddMessage(ctx, mailbox.ID, fm.Subject, fm.Sender, "", fm.ReceivedTime, fm.Content, fm.Folder, fm.HasAttachments)
		if err != nil {
			c.log.Warn().Err(err).Str("mailbox", mailbox.Address).Msg("store message failed")
			continue
		}
		if !inserted {
			continue
		}
		saved++
		msg := domain.Message{
			ID:             mailID,
			EmailID:        mailbox.ID,
			Subject:        fm.Subject,
			Sender:         fm.Sender,
			Content:        fm.Content,
			ReceivedTime:   fm.ReceivedTime,
			Folder:         fm.Folder,
			HasAttachments: fm.HasAttachments,
		}
		c.fanout.Publish(mailbox.UserID, msg)
		if c.classifier != nil {
			if _, err := c.classifier.ClassifyAndTag(ctx, mailbox.UserID, msg); err != nil {
				c.log.Warn().Err(err).Str("mailbox", mailbox.Address).Msg("platform classification failed")
			}
		}
	}
	return saved
}

// notifyFetchLimit is the fixed INBOX page size pulled per push
// notification (spec §4.6); unlike the pull path it ignores since
// entirely and leans on idempotent insert to absorb duplicates.
const notifyFetchLimit = 5

// CheckFromNotification runs the push-path fetch job: refresh the token,
// pull the notifyFetchLimit most recent INBOX messages with no since
// filter, store them, advance last_check_time, and fan out/classify
// whatever is actually new (spec §4.6). It shares CheckOne's per-mailbox
// mutual exclusion, so a notification never overlaps a concurrent pull
// check for the same mailbox (spec §4.7).
func (c *Checker) CheckFromNotification(ctx context.Context, mailboxID uuid.UUID) CheckResult {
	if !c.claim(mailboxID) {
		return CheckResult{MailboxID: mailboxID, Success: false, Message: "mailbox is already being processed"}
	}
	defer c.release(mailboxID)

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	mailbox, err := c.storage.GetMailbox(ctx, mailboxID, nil)
	if err != nil || mailbox == nil {
		return CheckResult{MailboxID: mailboxID, Success: false, Message: "mailbox not found"}
	}

	accessToken, err := c.graphAPI.RefreshAccessToken(ctx, mailbox.RefreshToken, mailbox.ClientID)
	if err != nil {
		_ = c.storage.SetError(ctx, mailboxID, err.Error())
		return CheckResult{MailboxID: mailboxID, Success: false, Message: err.Error()}
	}

	fetched, err := c.graphAPI.ListMessages(ctx, accessToken, "inbox", notifyFetchLimit, nil)
	if err != nil {
		_ = c.storage.SetError(ctx, mailboxID, err.Error())
		return CheckResult{MailboxID: mailboxID, Success: false, Message: err.Error()}
	}

	saved := c.storeAndFanOut(ctx, *mailbox, fetched)
	_ = c.storage.SetCheckTime(ctx, mailboxID, time.Now().UTC())

	return CheckResult{MailboxID: mailboxID, Success: true, Saved: saved, Message: fmt.Sprintf("saved %d new messages", saved)}
}

func (c *Checker) fetch(ctx context.Context, mailbox domain.Mailbox, since *time.Time, progress ProgressFunc) ([]ports.FetchedMessage, error) {
	if mailbox.Kind == domain.KindOutlook {
		return c.fetchGraph(ctx, mailbox, since, progress)
	}
	return c.imapFetcher.Fetch(ctx, mailbox, since, func() bool { return ctx.Err() != nil }, func(pct int, status string) {
		progress(mailbox.ID, pct, status)
	})
}

func (c *Checker) fetchGraph(ctx context.Context, mailbox domain.Mailbox, since *time.Time, progress ProgressFunc) ([]ports.FetchedMessage, error) {
	accessToken, err := c.graphAPI.RefreshAccessToken(ctx, mailbox.RefreshToken, mailbox.ClientID)
	if err != nil {
		return nil, err
	}
	progress(mailbox.ID, 20, "authenticated")

	var all []ports.FetchedMessage
	for i, folder := range []string{"inbox", "junkemail"} {
		msgs, err := c.graphAPI.ListMessages(ctx, accessToken, folder, 100, since)
		if err != nil {
			c.log.Warn().Err(err).Str("folder", folder).Msg("list messages failed")
			continue
		}
		all = append(all, msgs...)
		progress(mailbox.ID, 20+40*(i+1), fmt.Sprintf("fetched %s", folder))
	}
	return all, nil
}

// CheckManyUnchecked checks every mailbox in mailboxIDs concurrently,
// skipping ones already in flight, and returns one result per mailbox
// (spec §4.7 batch semantics: partial failure never aborts the batch).
func (c *Checker) CheckManyUnchecked(ctx context.Context, mailboxIDs []uuid.UUID, progress ProgressFunc) []CheckResult {
	results := make([]CheckResult, len(mailboxIDs))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, id := range mailboxIDs {
		i, id := i, id
		group.Go(func() error {
			// One mailbox's failure never aborts the batch (spec §4.7), so
			// the result is recorded directly and the group always sees nil.
			results[i] = c.CheckOne(groupCtx, id, progress)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// CheckMany filters out mailboxes already in flight before dispatching,
// matching the original's pre-filter of processing_ids from valid_ids.
func (c *Checker) CheckMany(ctx context.Context, mailboxIDs []uuid.UUID, progress ProgressFunc) (results []CheckResult, skipped []uuid.UUID) {
	var toRun []uuid.UUID
	for _, id := range mailboxIDs {
		if c.IsProcessing(id) {
			skipped = append(skipped, id)
			continue
		}
		toRun = append(toRun, id)
	}
	return c.CheckManyUnchecked(ctx, toRun, progress), skipped
}
