package domain

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Timestamps and durations are stored as decimal seconds.

// FormatSeconds renders seconds for storage.
func FormatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseSeconds parses a stored seconds value.
func ParseSeconds(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse seconds %q: %w", raw, err)
	}
	return v, nil
}

// FormatUnix renders t as unix seconds with sub-second precision.
func FormatUnix(t time.Time) string {
	return FormatSeconds(float64(t.UnixNano()) / float64(time.Second))
}

// ParseUnix is the inverse of FormatUnix.
func ParseUnix(raw string) (time.Time, error) {
	v, err := ParseSeconds(raw)
	if err != nil {
		return time.Time{}, err
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*float64(time.Second)))), nil
}
