// Package errclass turns raw automation error strings into a short, stable, user-facing
// classification. Everything here is a pure function of its input.
package errclass

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/socialpilot/api/schemas"
)

const maxUnknownLen = 80

var (
	itemWrapper = regexp.MustCompile(`(?s)^Failed to process ([^:]+): (.+)$`)
	syncWrapper = regexp.MustCompile(`(?s)^([A-Za-z][\w ./-]{0,60}?) failed: (.+)$`)

	retryAfter = regexp.MustCompile(`(?i)retry[- ]after:? ?(\d+) ?s`)
)

// rule is one entry of the ordered pattern table. The first matching rule wins.
type rule struct {
	category schemas.ErrorCategory
	pattern  *regexp.Regexp
	title    string
	detail   string
}

var rules = []rule{
	{
		category: schemas.CategoryRateLimit,
		pattern:  regexp.MustCompile(`(?i)rate[ -]?limit|too many requests|\b429\b`),
	},
	{
		category: schemas.CategoryTier,
		pattern:  regexp.MustCompile(`(?i)\btier\b|upgrade (your|to)|premium|not available on your plan`),
		title:    "Plan restriction",
		detail:   "This action is not available on the connected account's plan",
	},
	{
		category: schemas.CategoryBatchLimit,
		pattern:  regexp.MustCompile(`(?i)batch limit`),
		title:    "Batch limit reached",
	},
	{
		category: schemas.CategoryChallenge,
		pattern:  regexp.MustCompile(`(?i)captcha|challenge|checkpoint|arkose|verify you are (a )?human`),
		title:    "Verification challenge",
		detail:   "Complete the challenge in the browser, then retry",
	},
	{
		category: schemas.CategorySession,
		pattern:  regexp.MustCompile(`(?i)session (has )?(expired|invalid)|no stored session|redirected to (sign-in|login)|login redirect|not logged in|logged out`),
		title:    "Session expired",
		detail:   "Reconnect the account with session setup",
	},
	{
		category: schemas.CategoryCredentials,
		pattern:  regexp.MustCompile(`(?i)no credentials|credentials not found|missing credentials|invalid credentials|unauthori[sz]ed`),
		title:    "Account not connected",
	},
	{
		category: schemas.CategoryNetwork,
		pattern:  regexp.MustCompile(`(?i)net::err_|econnrefused|econnreset|etimedout|enotfound|no such host|connection (refused|reset)|network|dns|timed? ?out|deadline exceeded`),
		title:    "Network error",
		detail:   "The platform could not be reached",
	},
}

// Classify maps a raw error string to a category, title and optional detail. Wrapped
// messages are unwrapped first and their inner message classified recursively.
func Classify(raw string) schemas.ErrorClassification {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return schemas.ErrorClassification{Category: schemas.CategoryUnknown, Title: "Unknown error"}
	}

	if m := itemWrapper.FindStringSubmatch(raw); m != nil {
		inner := Classify(m[2])
		return schemas.ErrorClassification{
			Category: schemas.CategoryItemError,
			Title:    "Failed to process " + strings.TrimSpace(m[1]),
			Detail:   inner.Title,
		}
	}
	if m := syncWrapper.FindStringSubmatch(raw); m != nil {
		inner := Classify(m[2])
		return schemas.ErrorClassification{
			Category: schemas.CategorySyncError,
			Title:    strings.TrimSpace(m[1]) + " failed",
			Detail:   inner.Title,
		}
	}

	for _, r := range rules {
		if !r.pattern.MatchString(raw) {
			continue
		}
		c := schemas.ErrorClassification{Category: r.category, Title: r.title, Detail: r.detail}
		switch r.category {
		case schemas.CategoryRateLimit:
			c.Title = rateLimitTitle(raw)
		case schemas.CategoryBatchLimit:
			c.Detail = raw
		}
		return c
	}

	return schemas.ErrorClassification{Category: schemas.CategoryUnknown, Title: truncate(raw, maxUnknownLen)}
}

// PublishCode maps a raw error onto the publish failure taxonomy.
func PublishCode(raw string) schemas.PublishErrorCode {
	inner := unwrap(strings.TrimSpace(raw))
	switch Classify(inner).Category {
	case schemas.CategoryChallenge:
		return schemas.ErrCodeCaptcha
	case schemas.CategorySession, schemas.CategoryCredentials:
		return schemas.ErrCodeSessionExpired
	}
	lower := strings.ToLower(inner)
	switch {
	case strings.Contains(lower, "upload"):
		return schemas.ErrCodeUploadFailed
	case strings.Contains(lower, "timed out"), strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return schemas.ErrCodeTimeout
	}
	return schemas.ErrCodeUnknown
}

// unwrap strips wrapper prefixes until the innermost message remains.
func unwrap(raw string) string {
	for {
		if m := itemWrapper.FindStringSubmatch(raw); m != nil {
			raw = strings.TrimSpace(m[2])
			continue
		}
		if m := syncWrapper.FindStringSubmatch(raw); m != nil {
			raw = strings.TrimSpace(m[2])
			continue
		}
		return raw
	}
}

func rateLimitTitle(raw string) string {
	m := retryAfter.FindStringSubmatch(raw)
	if m == nil {
		return "Rate limited — try again later"
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil || secs <= 0 {
		return "Rate limited — try again later"
	}
	minutes := (secs + 59) / 60
	if minutes == 1 {
		return "Rate limited — try again in 1 minute"
	}
	return fmt.Sprintf("Rate limited — try again in %d minutes", minutes)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
