package store

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/stoik/mailhouse/internal/domain"
)

// AddPlatformTag dedups case-insensitively on insert (spec §3 PlatformTag).
func (s *PostgresStore) AddPlatformTag(ctx context.Context, emailID uuid.UUID, platformName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_platforms (email_id, platform_name, platform_name_lower)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (email_id, platform_name_lower) DO NOTHING`,
		emailID, platformName, strings.ToLower(platformName),
	)
	return err
}

func (s *PostgresStore) ListPlatformTags(ctx context.Context, emailID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT platform_name FROM email_platforms WHERE email_id = $1 ORDER BY platform_name`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddPlatformRule(ctx context.Context, r *domain.PlatformRule) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO platform_rules (id, user_id, platform_name, sender_regex, subject_regex, content_regex, is_enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.UserID, r.PlatformName, r.SenderRegex, r.SubjectRegex, r.ContentRegex, r.IsEnabled,
	)
	return err
}

func (s *PostgresStore) UpdatePlatformRule(ctx context.Context, r *domain.PlatformRule) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE platform_rules SET platform_name=$2, sender_regex=$3, subject_regex=$4, content_regex=$5, is_enabled=$6
		 WHERE id = $1`,
		r.ID, r.PlatformName, r.SenderRegex, r.SubjectRegex, r.ContentRegex, r.IsEnabled,
	)
	return err
}

func (s *PostgresStore) DeletePlatformRule(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM platform_rules WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) ListPlatformRules(ctx context.Context, userID uuid.UUID) ([]domain.PlatformRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, platform_name, sender_regex, subject_regex, content_regex, is_enabled
		 FROM platform_rules WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PlatformRule, 0)
	for rows.Next() {
		var r domain.PlatformRule
		if err := rows.Scan(&r.ID, &r.UserID, &r.PlatformName, &r.SenderRegex, &r.SubjectRegex, &r.ContentRegex, &r.IsEnabled); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertPlatformCorrection(ctx context.Context, c *domain.PlatformCorrection) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO platform_corrections (user_id, sender_domain, corrected_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, sender_domain) DO UPDATE SET corrected_name = EXCLUDED.corrected_name`,
		c.UserID, strings.ToLower(c.SenderDomain), c.CorrectedName,
	)
	return err
}

func (s *PostgresStore) GetPlatformCorrection(ctx context.Context, userID uuid.UUID, senderDomain string) (*domain.PlatformCorrection, error) {
	var c domain.PlatformCorrection
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, sender_domain, corrected_name FROM platform_corrections WHERE user_id=$1 AND sender_domain=$2`,
		userID, strings.ToLower(senderDomain),
	).Scan(&c.UserID, &c.SenderDomain, &c.CorrectedName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MatchRules evaluates every enabled rule for userID and returns the
// platform names of every rule whose supplied patterns all match (spec
// §4.8 step 3). A rule with no patterns at all never matches — there is
// nothing to test it against.
func (s *PostgresStore) MatchRules(ctx context.Context, userID uuid.UUID, sender, subject, content string) ([]string, error) {
	rules, err := s.ListPlatformRules(ctx, userID)
	if err != nil {
		return nil, err
	}

	var matched []string
	for _, r := range rules {
		if !r.IsEnabled {
			continue
		}
		if ruleMatches(r, sender, subject, content) {
			matched = append(matched, r.PlatformName)
		}
	}
	return matched, nil
}

func ruleMatches(r domain.PlatformRule, sender, subject, content string) bool {
	tested := false
	for _, pair := range []struct {
		pattern string
		value   string
	}{
		{r.SenderRegex, sender},
		{r.SubjectRegex, subject},
		{r.ContentRegex, content},
	} {
		if pair.pattern == "" {
			continue
		}
		tested = true
		re, err := regexp.Compile(pair.pattern)
		if err != nil || !re.MatchString(pair.value) {
			return false
		}
	}
	return tested
}
