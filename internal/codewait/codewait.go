// Package codewait implements C9 CodeWaiter: synchronous, timeout-bounded
// retrieval of a verification code sent to a mailbox, first scanning
// recently received messages and then waiting for the next one to arrive.
package codewait

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stoik/mailhouse/internal/apperr"
	"github.com/stoik/mailhouse/internal/domain"
	"github.com/stoik/mailhouse/internal/domain/codepatterns"
	"github.com/stoik/mailhouse/internal/fanout"
	"github.com/stoik/mailhouse/internal/ports"
)

const (
	// recentWindow bounds how far back an already-stored message may have
	// arrived and still count as "fresh enough" for an immediate hit.
	recentWindow = 30 * time.Second
	// pollInterval is the fallback cadence when no fanout event arrives
	// before it (e.g. if Publish raced Subscribe).
	pollInterval = 2 * time.Second
	defaultTimeout = 120 * time.Second
)

// Result is what WaitForCode returns on a successful match.
type Result struct {
	Code         string
	Subject      string
	Sender       string
	ReceivedTime time.Time
}

// Waiter implements CodeWaiter.
type Waiter struct {
	storage ports.Storage
	fanout  *fanout.Fanout
}

// New builds a Waiter backed by storage for history scans and fanout for
// live delivery while waiting.
func New(storage ports.Storage, fo *fanout.Fanout) *Waiter {
	return &Waiter{storage: storage, fanout: fo}
}

// WaitForCode looks for a verification code addressed to mailboxID. It
// first scans messages already stored within the last 30 seconds,
// newest-first; if none qualify, it waits up to timeout (defaulting to
// 120s) for a new message to arrive via fanout, polling storage every 2s
// as a fallback (spec §4.9).
func (w *Waiter) WaitForCode(ctx context.Context, userID, mailboxID uuid.UUID, keyword string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now().UTC()

	if res := w.scanRecent(ctx, mailboxID, keyword, time.Time{}); res != nil {
		return res, nil
	}

	ch, unsubscribe := w.fanout.Subscribe(userID, 8)
	defer unsubscribe()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	waitCutoff := startTime.Add(-10 * time.Second)

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: no verification code for mailbox within %s", apperr.ErrTimeout, timeout)
		case msg := <-ch:
			if msg.EmailID != mailboxID {
				continue
			}
			if msg.ReceivedTime.Before(waitCutoff) {
				continue
			}
			if res := extractFromMessage(msg, keyword); res != nil {
				return res, nil
			}
		case <-ticker.C:
			if res := w.scanRecent(ctx, mailboxID, keyword, waitCutoff); res != nil {
				return res, nil
			}
		}
	}
}

func (w *Waiter) scanRecent(ctx context.Context, mailboxID uuid.UUID, keyword string, cutoff time.Time) *Result {
	messages, err := w.storage.ListMessagesByMailbox(ctx, mailboxID)
	if err != nil {
		return nil
	}
	recentCutoff := time.Now().UTC().Add(-recentWindow)
	if cutoff.After(recentCutoff) {
		recentCutoff = cutoff
	}

	for _, msg := range messages {
		if msg.ReceivedTime.Before(recentCutoff) {
			continue
		}
		if res := extractFromMessage(msg, keyword); res != nil {
			return res
		}
	}
	return nil
}

func extractFromMessage(msg domain.Message, keyword string) *Result {
	haystack := msg.Subject + " " + msg.Content

	if keyword != "" {
		if !codepatterns.HasKeyword(haystack, []string{keyword}) {
			return nil
		}
	} else if !codepatterns.HasKeyword(haystack, codepatterns.DefaultKeywords) {
		return nil
	}

	code, ok := codepatterns.Extract(haystack)
	if !ok {
		return nil
	}

	return &Result{
		Code:         code,
		Subject:      msg.Subject,
		Sender:       msg.Sender,
		ReceivedTime: msg.ReceivedTime,
	}
}
