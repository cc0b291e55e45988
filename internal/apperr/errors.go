// Package apperr defines the typed error kinds shared across the mailbox
// engine (spec §7): auth failures, throttling, not-found, conflicts,
// permission, timeout, validation, and the transient/permanent split used
// to decide whether an operation may be retried.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAuthFailed       = errors.New("auth_failed")
	ErrNotFound         = errors.New("not_found")
	ErrConflict         = errors.New("conflict")
	ErrPermissionDenied = errors.New("permission_denied")
	ErrTimeout          = errors.New("timeout")
	ErrValidation       = errors.New("validation")
	ErrTransient        = errors.New("transient")
	ErrPermanent        = errors.New("permanent")
)

// Throttled wraps a provider 429 response, carrying the Retry-After
// duration the caller must respect before issuing the next request.
type Throttled struct {
	RetryAfter time.Duration
}

func (t *Throttled) Error() string {
	return fmt.Sprintf("throttled: retry after %s", t.RetryAfter)
}

// AsThrottled reports whether err is (or wraps) a *Throttled, returning it.
func AsThrottled(err error) (*Throttled, bool) {
	var t *Throttled
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}

// NewThrottled builds a throttled error, defaulting to 60s when the
// provider omits Retry-After (spec §4.5's rate-limit policy).
func NewThrottled(retryAfter time.Duration) error {
	if retryAfter <= 0 {
		retryAfter = 60 * time.Second
	}
	return &Throttled{RetryAfter: retryAfter}
}
