package domain

import (
	"fmt"
	"strings"
	"time"
)

// watermarkLayout matches JavaScript's Date.toISOString, which terminals echo back.
const watermarkLayout = "2006-01-02T15:04:05.000Z07:00"

// ParseWatermark turns a terminal's last sync timestamp into an instant.
// An empty value means epoch zero, i.e. a full resync.
func ParseWatermark(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Unix(0, 0).UTC(), nil
	}

	// a timestamp without an offset is read as UTC
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: invalid lastSyncTimestamp format %q", ErrInvalidArgument, raw)
}

// FormatWatermark renders the server watermark with millisecond precision,
// truncating so the returned instant never runs ahead of what was read.
func FormatWatermark(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(watermarkLayout)
}
