package feed

import (
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var ErrNoTimestamp = errors.New("no parseable timestamp")

// Layouts tried in order before falling back to dateparse. Layouts without a
// zone are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp converts a raw feed timestamp into a zone-aware instant.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrNoTimestamp
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return fixZoneOffset(t), nil
		}
	}

	if t, err := dateparse.ParseIn(raw, time.UTC); err == nil {
		return fixZoneOffset(t), nil
	}

	return time.Time{}, ErrNoTimestamp
}

// Offsets in seconds east of UTC for the zone abbreviations feeds use.
// time.Parse only knows the local zone's abbreviations and gives any other
// one a zero offset.
var zoneOffsets = map[string]int{
	"UT": 0, "UTC": 0, "GMT": 0, "Z": 0,
	"EST": -5 * 3600, "EDT": -4 * 3600,
	"CST": -6 * 3600, "CDT": -5 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600,
	"AKST": -9 * 3600, "AKDT": -8 * 3600,
	"HST": -10 * 3600,
	"BST": 1 * 3600, "CET": 1 * 3600, "CEST": 2 * 3600,
	"EET": 2 * 3600, "EEST": 3 * 3600,
	"MSK": 3 * 3600,
	"JST": 9 * 3600, "KST": 9 * 3600, "HKT": 8 * 3600, "SGT": 8 * 3600,
	"AEST": 10 * 3600, "AEDT": 11 * 3600,
}

// fixZoneOffset rebuilds t in the real offset of its zone abbreviation when
// parsing left a known non-UTC abbreviation at offset zero.
func fixZoneOffset(t time.Time) time.Time {
	name, offset := t.Zone()
	if offset != 0 {
		return t
	}
	actual, ok := zoneOffsets[strings.ToUpper(name)]
	if !ok || actual == 0 {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		time.FixedZone(strings.ToUpper(name), actual))
}

// namedZone reports whether raw ends in a known abbreviation with a non-zero
// offset.
func namedZone(raw string) bool {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return false
	}
	offset, ok := zoneOffsets[strings.ToUpper(fields[len(fields)-1])]
	return ok && offset != 0
}

// ResolvePublished picks the entry's publication instant: the parsed
// published time, then the parsed updated time, then the raw strings. A raw
// value ending in a zone abbreviation is parsed again, since gofeed drops the
// abbreviation's offset.
func ResolvePublished(entry Entry) (time.Time, error) {
	if entry.Published != nil && !entry.Published.IsZero() {
		return reparseNamedZone(*entry.Published, entry.PublishedRaw), nil
	}
	if entry.Updated != nil && !entry.Updated.IsZero() {
		return reparseNamedZone(*entry.Updated, entry.UpdatedRaw), nil
	}
	if t, err := ParseTimestamp(entry.PublishedRaw); err == nil {
		return t, nil
	}
	return ParseTimestamp(entry.UpdatedRaw)
}

func reparseNamedZone(parsed time.Time, raw string) time.Time {
	if !namedZone(raw) {
		return parsed
	}
	if t, err := ParseTimestamp(raw); err == nil {
		return t
	}
	return parsed
}
