// Package timestamp normalizes the textual timestamps seen on the feed, in the
// store and in query parameters into UTC instants.
//
// Supported shapes:
//   - ISO-8601: 2024-01-01T00:00:00[.fraction][Z|+00:00|+00] (also with a space separator)
//   - RFC 1123 with a trailing zone name: Mon, 01 Jan 2024 00:00:00 GMT
//
// A missing zone means UTC. Everything else is a parse error.
package timestamp

import (
	"strings"
	"time"

	"github.com/rickgao/coinbase-data/internal/apperr"
)

const op = "normalize timestamp"

// isoLayouts are tried in order after the date/time separator is rewritten to a space.
// Fractional seconds are accepted by time.Parse without being named in the layout.
var isoLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z07",
	"2006-01-02 15:04:05",
}

// zoneSuffixes are zone names stripped from the RFC 1123 shape. All denote UTC.
var zoneSuffixes = []string{" GMT", " UTC"}

const rfc1123NoZone = "Mon, 02 Jan 2006 15:04:05"

// Normalize converts raw into a UTC instant.
func Normalize(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, apperr.Errorf(apperr.ErrParse, op, "empty timestamp")
	}

	for _, suffix := range zoneSuffixes {
		if strings.HasSuffix(s, suffix) {
			return parseZoneName(strings.TrimSpace(strings.TrimSuffix(s, suffix)), raw)
		}
	}

	if isISO(s) {
		return parseISO(s[:10]+" "+s[11:], raw)
	}

	return time.Time{}, apperr.Errorf(apperr.ErrParse, op, "unrecognized format %q", raw)
}

// isISO reports whether s starts with YYYY-MM-DD followed by 'T' or ' '.
func isISO(s string) bool {
	if len(s) < len("2006-01-02T15:04:05") {
		return false
	}
	if s[4] != '-' || s[7] != '-' {
		return false
	}
	return s[10] == 'T' || s[10] == ' '
}

func parseISO(s, raw string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.Errorf(apperr.ErrParse, op, "invalid ISO-8601 timestamp %q", raw)
}

func parseZoneName(s, raw string) (time.Time, error) {
	t, err := time.Parse(rfc1123NoZone, s)
	if err != nil {
		return time.Time{}, apperr.E(apperr.ErrParse, op, err)
	}
	return t.UTC(), nil
}
