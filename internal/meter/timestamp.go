package meter

import (
	"errors"
	"fmt"
	"time"
)

// compactLayout is the meter's 12-character timestamp format: YYMMDDHHmmss,
// local civil time with no zone indicator.
const compactLayout = "060102150405"

// ErrAmbiguousTime reports a civil-time value that does not map to exactly
// one absolute instant in the configured zone (a clock reading inside a DST
// gap, or one that occurs twice at a DST rollback).
var ErrAmbiguousTime = errors.New("civil time does not map to exactly one UTC instant")

// ParseTimestamp parses a compact meter timestamp interpreted in loc and
// returns the corresponding UTC instant.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if len(s) != 12 {
		return time.Time{}, fmt.Errorf("timestamp %q: want 12 characters, got %d", s, len(s))
	}
	t, err := time.ParseInLocation(compactLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	// A wall time inside a DST gap gets normalized to a different clock
	// reading, so a round-trip mismatch means the input never existed.
	if t.Format(compactLayout) != s {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, ErrAmbiguousTime)
	}
	// A wall time repeated at a DST rollback maps to two instants an hour
	// apart; whichever one the zone lookup picked, the other reads the same.
	if t.Add(-time.Hour).Format(compactLayout) == s || t.Add(time.Hour).Format(compactLayout) == s {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, ErrAmbiguousTime)
	}
	return t.UTC(), nil
}
