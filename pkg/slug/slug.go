// Package slug builds URL-safe identifiers from human-readable names.
package slug

import (
	"strings"
	"unicode"
)

// Option configures slug generation.
type Option func(*config)

type config struct {
	maxLength int
	separator string
}

// MaxLength truncates the slug to at most n runes.
func MaxLength(n int) Option {
	return func(c *config) { c.maxLength = n }
}

// Separator overrides the default "-" separator.
func Separator(s string) Option {
	return func(c *config) { c.separator = s }
}

// Make converts s into a lowercase slug: ASCII letters and digits pass
// through, every other run of characters collapses into a single separator,
// and leading/trailing separators are stripped.
func Make(s string, opts ...Option) string {
	cfg := &config{separator: "-"}
	for _, opt := range opts {
		opt(cfg)
	}

	var b strings.Builder
	b.Grow(len(s))

	lastWasSep := true // suppresses a leading separator
	count := 0

	for _, r := range s {
		if cfg.maxLength > 0 && count >= cfg.maxLength {
			break
		}

		r = unicode.ToLower(r)

		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastWasSep = false
			count++
			continue
		}

		if !lastWasSep {
			if cfg.maxLength > 0 && count+len(cfg.separator) > cfg.maxLength {
				break
			}
			b.WriteString(cfg.separator)
			lastWasSep = true
			count += len([]rune(cfg.separator))
		}
	}

	return strings.TrimSuffix(b.String(), cfg.separator)
}
