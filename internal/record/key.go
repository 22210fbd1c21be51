package record

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/colegioprep/prepsync/internal/calendar"
)

// ErrMissingWeek is returned when a key is requested before a week has been
// resolved. Cache and remote operations must never run without one.
var ErrMissingWeek = errors.New("week start is required to derive a record key")

// slugTransformer decomposes to NFKD, drops combining marks, and recomposes.
// This is what strips diacritics ("É" -> "E"); compatibility decomposition
// also folds ordinal indicators ("3º" -> "3o"), which show up in real class
// names.
var slugTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug normalizes free-text class names into a key-safe token: diacritics
// stripped, lowercased, runs of non-alphanumerics collapsed to a single "-",
// leading/trailing separators trimmed.
//
// Idempotent: Slug(Slug(x)) == Slug(x). Class names differing only by case
// or accents collide to the same slug on purpose, to tolerate the free-text
// class-name history in the remote store.
func Slug(s string) string {
	if out, _, err := transform.String(slugTransformer, s); err == nil {
		s = out
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('-')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DeriveKey builds the deterministic identity key for a lesson record:
// term + "_" + ISO(weekStart) + "_" + Slug(className).
func DeriveKey(term, className string, weekStart time.Time) (string, error) {
	if weekStart.IsZero() {
		return "", ErrMissingWeek
	}
	return term + "_" + calendar.ISODate(weekStart) + "_" + Slug(className), nil
}
