// Package platform implements C8 PlatformClassifier: tagging a message
// with the service/platform it came from. Classification is staged:
// a user's manual correction always wins, then their own regex rules,
// then a built-in sender-domain heuristic.
//
// The pipeline follows a Strategy pattern: each stage is an independent
// ClassificationStrategy tried in priority order, stopping at the first
// match. This generalizes the pluggable-strategy shape used for fraud
// signal detection elsewhere in the stack, swapped from "does this email
// look fraudulent" to "what platform does this email belong to".
package platform

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/stoik/mailhouse/internal/domain"
	"github.com/stoik/mailhouse/internal/ports"
)

// ClassificationStrategy returns a platform name for msg, or ok=false if
// this stage has no opinion.
type ClassificationStrategy interface {
	Classify(ctx context.Context, userID uuid.UUID, msg domain.Message) (platformName string, ok bool)
	Name() string
}

// Classifier runs its strategies in order and tags the first match.
type Classifier struct {
	storage    ports.Storage
	strategies []ClassificationStrategy
}

// New builds a Classifier with the standard correction -> rule ->
// heuristic pipeline (spec §4.8).
func New(storage ports.Storage) *Classifier {
	return &Classifier{
		storage: storage,
		strategies: []ClassificationStrategy{
			&correctionStrategy{storage: storage},
			&ruleStrategy{storage: storage},
			&heuristicStrategy{},
		},
	}
}

// ClassifyAndTag runs the pipeline against msg and, if a platform is
// found, persists it via AddPlatformTag. Returns the matched platform
// name, or "" if nothing matched.
func (c *Classifier) ClassifyAndTag(ctx context.Context, userID uuid.UUID, msg domain.Message) (string, error) {
	for _, strategy := range c.strategies {
		if name, ok := strategy.Classify(ctx, userID, msg); ok {
			if err := c.storage.AddPlatformTag(ctx, msg.EmailID, name); err != nil {
				return "", err
			}
			return name, nil
		}
	}
	return "", nil
}

// ScanAllHistory re-runs classification over every stored message for a
// mailbox, used after a user adds a new rule or correction and wants it
// applied retroactively.
func (c *Classifier) ScanAllHistory(ctx context.Context, userID, mailboxID uuid.UUID) (tagged int, err error) {
	messages, err := c.storage.ListMessagesByMailbox(ctx, mailboxID)
	if err != nil {
		return 0, err
	}
	for _, msg := range messages {
		name, err := c.ClassifyAndTag(ctx, userID, msg)
		if err != nil {
			continue
		}
		if name != "" {
			tagged++
		}
	}
	return tagged, nil
}

// correctionStrategy applies a user's manual sender-domain override.
type correctionStrategy struct {
	storage ports.Storage
}

func (s *correctionStrategy) Name() string { return "correction" }

func (s *correctionStrategy) Classify(ctx context.Context, userID uuid.UUID, msg domain.Message) (string, bool) {
	domainName := extractSenderDomain(msg.Sender)
	if domainName == "" {
		return "", false
	}
	correction, err := s.storage.GetPlatformCorrection(ctx, userID, domainName)
	if err != nil || correction == nil {
		return "", false
	}
	return correction.CorrectedName, true
}

// ruleStrategy applies the user's own regex rules.
type ruleStrategy struct {
	storage ports.Storage
}

func (s *ruleStrategy) Name() string { return "rule" }

func (s *ruleStrategy) Classify(ctx context.Context, userID uuid.UUID, msg domain.Message) (string, bool) {
	matches, err := s.storage.MatchRules(ctx, userID, msg.Sender, msg.Subject, msg.Content)
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// heuristicStrategy recognizes well-known platforms by sender domain,
// with no per-user configuration required.
type heuristicStrategy struct{}

func (s *heuristicStrategy) Name() string { return "heuristic" }

// knownDomains maps a sender domain suffix to its display platform
// name. Checked as a suffix match so subdomains (e.g.
// notifications.github.com) still hit.
var knownDomains = map[string]string{
	"github.com":    "GitHub",
	"gitlab.com":    "GitLab",
	"slack.com":     "Slack",
	"atlassian.com": "Atlassian",
	"notion.so":     "Notion",
	"google.com":    "Google",
	"microsoft.com": "Microsoft",
	"amazon.com":    "Amazon",
	"paypal.com":    "PayPal",
	"stripe.com":    "Stripe",
	"linkedin.com":  "LinkedIn",
}

func (s *heuristicStrategy) Classify(ctx context.Context, userID uuid.UUID, msg domain.Message) (string, bool) {
	domainName := extractSenderDomain(msg.Sender)
	if domainName == "" {
		return "", false
	}
	for suffix, name := range knownDomains {
		if strings.HasSuffix(domainName, suffix) {
			return name, true
		}
	}
	return "", false
}

// extractSenderDomain pulls the domain out of a "Name <user@domain>" or
// bare "user@domain" sender string.
func extractSenderDomain(sender string) string {
	addr := sender
	if start := strings.Index(sender, "<"); start != -1 {
		end := strings.Index(sender, ">")
		if end > start {
			addr = sender[start+1 : end]
		}
	}
	parts := strings.Split(addr, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(parts[1]))
}
