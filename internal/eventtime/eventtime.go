// Package eventtime normalizes the timestamp encodings found in job lifecycle
// payloads into absolute UTC instants.
package eventtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned for values that cannot be read as a timestamp.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// millisThreshold separates epoch seconds from epoch milliseconds in untyped numbers.
const millisThreshold = 1e12

// Largest epoch values whose instant still fits in int64 nanoseconds.
const (
	maxEpochSeconds = math.MaxInt64 / 1e9
	maxEpochMillis  = math.MaxInt64 / 1e6
)

// Timestamp is one of Instant, ISO8601, EpochSeconds or EpochMillis.
// A nil Timestamp means the value is absent.
type Timestamp interface {
	isTimestamp()
}

// Instant is an already absolute point in time.
type Instant time.Time

// ISO8601 is a textual timestamp.
type ISO8601 string

// EpochSeconds is a (possibly fractional) number of seconds since the Unix epoch.
type EpochSeconds float64

// EpochMillis is a number of milliseconds since the Unix epoch.
type EpochMillis float64

func (Instant) isTimestamp()      {}
func (ISO8601) isTimestamp()      {}
func (EpochSeconds) isTimestamp() {}
func (EpochMillis) isTimestamp()  {}

// layouts accepted for ISO8601 besides RFC 3339.
var layouts = []string{
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Normalize converts ts to an instant in UTC.
func Normalize(ts Timestamp) (time.Time, error) {
	switch v := ts.(type) {
	case Instant:
		return time.Time(v).UTC(), nil
	case ISO8601:
		return parseText(string(v))
	case EpochSeconds:
		f := float64(v)
		if math.IsNaN(f) || math.Abs(f) > maxEpochSeconds {
			return time.Time{}, fmt.Errorf("%w: epoch seconds %v", ErrInvalidTimestamp, f)
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
	case EpochMillis:
		f := float64(v)
		if math.IsNaN(f) || math.Abs(f) > maxEpochMillis {
			return time.Time{}, fmt.Errorf("%w: epoch millis %v", ErrInvalidTimestamp, f)
		}
		return time.UnixMilli(int64(math.Round(f))).UTC(), nil
	case nil:
		return time.Time{}, fmt.Errorf("%w: missing value", ErrInvalidTimestamp)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidTimestamp, ts)
	}
}

func parseText(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := time.Parse(zoneLayout, s); err == nil {
		return resolveZone(t, s)
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// zoneLayout is Ruby's Time#to_s with a zone abbreviation instead of an offset.
const zoneLayout = "2006-01-02 15:04:05.999999999 MST"

// zoneOffsets maps the abbreviations accepted in zoneLayout to their UTC
// offset in seconds.
var zoneOffsets = map[string]int{
	"UTC": 0, "GMT": 0,
	"EST": -5 * 3600, "EDT": -4 * 3600,
	"CST": -6 * 3600, "CDT": -5 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600,
	"AKST": -9 * 3600, "AKDT": -8 * 3600,
	"HST": -10 * 3600,
	"WET": 0, "WEST": 3600, "BST": 3600,
	"CET": 3600, "CEST": 2 * 3600,
	"EET": 2 * 3600, "EEST": 3 * 3600,
	"MSK": 3 * 3600,
	"IST": 5*3600 + 1800,
	"JST": 9 * 3600,
	"AEST": 10 * 3600, "AEDT": 11 * 3600,
}

// resolveZone reinterprets the wall clock of t in the zone named by its
// abbreviation. time.Parse gives unknown abbreviations a zero offset, so
// those are rejected here.
func resolveZone(t time.Time, s string) (time.Time, error) {
	name, _ := t.Zone()
	if len(name) > 3 && strings.HasPrefix(name, "GMT") {
		// "GMT+3" carries its own offset.
		return t.UTC(), nil
	}
	off, ok := zoneOffsets[strings.ToUpper(name)]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown zone %q in %q", ErrInvalidTimestamp, name, s)
	}
	y, mo, d := t.Date()
	h, mi, sec := t.Clock()
	return time.Date(y, mo, d, h, mi, sec, t.Nanosecond(), time.FixedZone(name, off)).UTC(), nil
}

// FromNumber types an untyped epoch number. Values above 1e12 are
// milliseconds, everything else is seconds.
func FromNumber(v float64) Timestamp {
	if v > millisThreshold {
		return EpochMillis(v)
	}
	return EpochSeconds(v)
}

// FromJSON reads a timestamp from a raw JSON value. null gives a nil Timestamp.
func FromJSON(raw json.RawMessage) (Timestamp, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
		}
		return ISO8601(s), nil
	default:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTimestamp, raw)
		}
		return FromNumber(f), nil
	}
}
