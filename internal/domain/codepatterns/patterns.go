// Package codepatterns holds the verification-code extraction rules used
// by internal/codewait. The pattern list is ordered by descending
// priority: localized and English phrasings are tried before the bare
// digit-token fallback.
package codepatterns

import (
	"regexp"
	"strings"
)

// DefaultKeywords are the substrings that mark a message as code-bearing
// when the caller supplies no explicit keyword.
var DefaultKeywords = []string{
	"验证码", "verification", "code", "verify", "确认码", "OTP", "pin",
}

// Ladder is the descending-priority list of patterns tried against
// "subject + content". Each must have exactly one capture group around
// the candidate code.
var Ladder = []*regexp.Regexp{
	regexp.MustCompile(`(?i)验证码[：:\s]*([0-9]{4,8})`),
	regexp.MustCompile(`(?i)code\s*[:：]?\s*is\s*[:：]?\s*([0-9]{4,8})`),
	regexp.MustCompile(`(?i)code[：:\s]*([0-9]{4,8})`),
	regexp.MustCompile(`(?i)verification\s*code\s*is\s*([0-9]{4,8})`),
	regexp.MustCompile(`(?i)verification[：:\s]*([0-9]{4,8})`),
	regexp.MustCompile(`([0-9]{4,8})\s*(?:是您的|为您的|is your)`),
	regexp.MustCompile(`\b([0-9]{4,8})\b`),
}

// Extract returns the first code matched by the ladder in text, or ""
// with ok=false if nothing qualifies. A qualifying match is a pure-digit
// string of length 4-8, already guaranteed by the patterns above, but
// re-checked here in case a future pattern's capture group is looser.
func Extract(text string) (code string, ok bool) {
	for _, pattern := range Ladder {
		matches := pattern.FindStringSubmatch(text)
		if len(matches) < 2 {
			continue
		}
		candidate := matches[1]
		if isPureDigits(candidate) && len(candidate) >= 4 && len(candidate) <= 8 {
			return candidate, true
		}
	}
	return "", false
}

func isPureDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// HasKeyword reports whether text contains any of the given keywords,
// case-insensitively. Used when the caller supplies no explicit keyword
// to fall back to DefaultKeywords.
func HasKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
