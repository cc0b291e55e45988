package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailhouse/internal/domain"
)

const subscriptionSelectBase = `
	SELECT subscription_id, email_id, resource, expiration_time FROM subscriptions
`

func scanSubscription(r rowScanner) (domain.Subscription, error) {
	var sub domain.Subscription
	err := r.Scan(&sub.SubscriptionID, &sub.EmailID, &sub.Resource, &sub.ExpirationTime)
	if err == nil {
		sub.ExpirationTime = sub.ExpirationTime.UTC()
	}
	return sub, err
}

// AddSubscription upserts on (email_id, resource): a mailbox may only ever
// hold one active subscription per resource (spec §4.5, testable property
// #4), so re-registering replaces the prior row instead of conflicting.
func (s *PostgresStore) AddSubscription(ctx context.Context, sub *domain.Subscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (subscription_id, email_id, resource, expiration_time)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email_id, resource) DO UPDATE SET
			subscription_id = EXCLUDED.subscription_id,
			expiration_time = EXCLUDED.expiration_time`,
		sub.SubscriptionID, sub.EmailID, sub.Resource, sub.ExpirationTime.UTC(),
	)
	return err
}

func (s *PostgresStore) GetSubscriptionByEmail(ctx context.Context, emailID uuid.UUID) (*domain.Subscription, error) {
	row := s.db.QueryRowContext(ctx, subscriptionSelectBase+` WHERE email_id = $1`, emailID)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, subscriptionSelectBase+` ORDER BY expiration_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ListExpiringSubscriptions returns every subscription whose expiration
// falls within the next `within` duration, the renewal loop's poll query
// (spec §4.5 RENEW_BEFORE_HOURS).
func (s *PostgresStore) ListExpiringSubscriptions(ctx context.Context, within time.Duration) ([]domain.Subscription, error) {
	cutoff := time.Now().UTC().Add(within)
	rows, err := s.db.QueryContext(ctx, subscriptionSelectBase+` WHERE expiration_time <= $1 ORDER BY expiration_time`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateSubscriptionExpiration(ctx context.Context, subscriptionID string, newTime time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET expiration_time = $2 WHERE subscription_id = $1`,
		subscriptionID, newTime.UTC(),
	)
	return err
}

func (s *PostgresStore) DeleteSubscriptionByID(ctx context.Context, subscriptionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE subscription_id = $1`, subscriptionID)
	return err
}

func (s *PostgresStore) DeleteSubscriptionByEmail(ctx context.Context, emailID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE email_id = $1`, emailID)
	return err
}
