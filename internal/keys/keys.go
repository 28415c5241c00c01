// Package keys derives storage identifiers (tables, views, collections, aliases) from layer codes.
package keys

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

const (
	CollectionPrefix = "geo_"
	ViewPrefix       = "view_"
	ColumnPrefix     = "F_"
	// ColumnsCollection holds one ColumnMetadata document per layer code.
	ColumnsCollection = "layer_columns"

	maxCodeLen = 48
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidCode reports whether code can be used verbatim inside table, view and collection names.
func ValidCode(code string) error {
	if code == "" {
		return fmt.Errorf("layer code is required")
	}
	if len(code) > maxCodeLen {
		return fmt.Errorf("layer code longer than %d characters", maxCodeLen)
	}
	if !codePattern.MatchString(code) {
		return fmt.Errorf("layer code %q may only contain letters, digits and underscores", code)
	}
	return nil
}

func Table(code string) string      { return code }
func View(code string) string       { return ViewPrefix + code }
func Collection(code string) string { return CollectionPrefix + code }

// Prefixed returns the external alias of a raw column, shortened to max bytes when needed.
func Prefixed(col string, max int) string {
	return Shorten(ColumnPrefix+col, max)
}

// Shorten keeps names within max bytes by truncating on a rune boundary and
// appending a 16 hex digit xxhash of the full name. max <= 0 disables it.
func Shorten(name string, max int) string {
	if max <= 0 || len(name) <= max {
		return name
	}
	const suffixLen = 17 // "_" + 16 hex
	keep := max - suffixLen
	if keep < 1 {
		return fmt.Sprintf("%016x", xxhash.Sum64String(name))[:max]
	}
	for keep > 0 && !utf8.RuneStart(name[keep]) {
		keep--
	}
	return fmt.Sprintf("%s_%016x", name[:keep], xxhash.Sum64String(name))
}

// RedisKey joins sanitized parts with ':'.
func RedisKey(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := sanitize(strings.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, ":")
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// any other rune (including non-ASCII and ':') becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
