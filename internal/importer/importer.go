// Package importer implements the bulk mailbox import/export line format
// (spec §6): "email----password----client_id----refresh_token" for
// Outlook mailboxes, or "email----password----<kind>" for IMAP-family
// mailboxes. It mirrors app.py's import_emails/export_emails handlers,
// generalized to infer the mailbox kind per line instead of taking a
// single batch-wide mail_type parameter.
package importer

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/stoik/mailhouse/internal/domain"
)

const fieldSep = "----"

// ParsedLine is one successfully parsed import line, not yet persisted.
type ParsedLine struct {
	LineNumber int
	Mailbox    domain.Mailbox
}

// FailedLine reports a line that could not be parsed, with its original
// 1-based position and the reason, matching the original's failed_details
// shape.
type FailedLine struct {
	LineNumber int
	Content    string
	Reason     string
}

// Result is the outcome of parsing an entire import payload.
type Result struct {
	Total  int
	Parsed []ParsedLine
	Failed []FailedLine
}

// Parse splits data into lines and parses each one independently. Blank
// lines are skipped and do not count toward Total. userID is stamped onto
// every parsed mailbox.
func Parse(data string, userID uuid.UUID) Result {
	rawLines := strings.Split(data, "\n")

	var result Result
	for i, raw := range rawLines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		result.Total++

		mailbox, reason := parseLine(line, userID)
		if reason != "" {
			result.Failed = append(result.Failed, FailedLine{LineNumber: i + 1, Content: line, Reason: reason})
			continue
		}
		result.Parsed = append(result.Parsed, ParsedLine{LineNumber: i + 1, Mailbox: mailbox})
	}
	return result
}

func parseLine(line string, userID uuid.UUID) (domain.Mailbox, string) {
	parts := strings.Split(line, fieldSep)

	switch len(parts) {
	case 4:
		email, password, clientID, refreshToken := parts[0], parts[1], parts[2], parts[3]
		if email == "" || password == "" || clientID == "" || refreshToken == "" {
			return domain.Mailbox{}, "blank field in outlook record"
		}
		return domain.Mailbox{
			UserID:       userID,
			Address:      email,
			Kind:         domain.KindOutlook,
			Password:     password,
			ClientID:     clientID,
			RefreshToken: refreshToken,
		}, ""
	case 3:
		email, password, kind := parts[0], parts[1], parts[2]
		if email == "" || password == "" || kind == "" {
			return domain.Mailbox{}, "blank field in record"
		}
		mailboxKind, ok := parseKind(kind)
		if !ok {
			return domain.Mailbox{}, fmt.Sprintf("unknown mailbox kind %q", kind)
		}
		return domain.Mailbox{
			UserID:   userID,
			Address:  email,
			Kind:     mailboxKind,
			Password: password,
		}, ""
	default:
		return domain.Mailbox{}, "malformed line, expected 3 or 4 fields"
	}
}

func parseKind(s string) (domain.MailboxKind, bool) {
	switch domain.MailboxKind(strings.ToLower(s)) {
	case domain.KindIMAP:
		return domain.KindIMAP, true
	case domain.KindGmail:
		return domain.KindGmail, true
	case domain.KindQQ:
		return domain.KindQQ, true
	default:
		return "", false
	}
}

// Export renders mailboxes back into the same line format, adding the
// mail_type column for non-Outlook kinds (spec §6 export format).
func Export(mailboxes []domain.Mailbox) string {
	lines := make([]string, 0, len(mailboxes))
	for _, m := range mailboxes {
		if m.Kind == domain.KindOutlook {
			lines = append(lines, strings.Join([]string{m.Address, m.Password, m.ClientID, m.RefreshToken}, fieldSep))
		} else {
			lines = append(lines, strings.Join([]string{m.Address, m.Password, string(m.Kind)}, fieldSep))
		}
	}
	return strings.Join(lines, "\n")
}
