// Package security keeps credentials out of log output.
package security

import (
	"fmt"
	"regexp"
	"strings"
)

const redacted = "***REDACTED***"

type Sanitizer struct {
	patterns []*regexp.Regexp
	secrets  []string
}

// NewSanitizer compiles patterns and remembers literal secrets, such as the
// configured bot token, that are replaced wherever they appear.
func NewSanitizer(patterns []string, secrets ...string) (*Sanitizer, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid security pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}

	s := &Sanitizer{patterns: compiled}
	for _, secret := range secrets {
		if secret = strings.TrimSpace(secret); secret != "" {
			s.secrets = append(s.secrets, secret)
		}
	}
	return s, nil
}

func (s *Sanitizer) Sanitize(text string) string {
	if s == nil {
		return text
	}
	result := text
	for _, secret := range s.secrets {
		result = strings.ReplaceAll(result, secret, redacted)
	}
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, redacted)
	}
	return result
}

var DefaultPatterns = []string{
	// Bot API tokens, which tgbotapi embeds in request URLs and so in
	// transport errors.
	`\d{6,12}:[A-Za-z0-9_-]{30,}`,
	`(?i)(?:api[_-]?key|token|password|secret)s?\s*[:=]\s*["']?[^"'\s]+`,
	`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`,
}
