package util

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// secondsCutoff separates epoch seconds from epoch milliseconds. Values below
// it are read as seconds (it corresponds to the year 5138 in seconds and
// 1973 in milliseconds).
const secondsCutoff = 1e11

// FromEpoch converts a numeric wire timestamp in seconds or milliseconds.
func FromEpoch(v float64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	if v < secondsCutoff {
		sec := int64(v)
		return time.Unix(sec, int64((v-float64(sec))*1e9)).UTC()
	}
	return time.UnixMilli(int64(v)).UTC()
}

// ParseTime tries RFC3339, RFC3339Nano, a bare ISO form and epoch
// seconds/milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	// Python isoformat() without offset
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", s); err == nil {
		return t.UTC(), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return FromEpoch(f), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// ParseRawTime decodes a JSON timestamp that may be a string or a number.
func ParseRawTime(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseTime(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && f > 0 {
		return FromEpoch(f), true
	}
	return time.Time{}, false
}

// AlignToTimeframe truncates t to the start of its timeframe bucket.
func AlignToTimeframe(t time.Time, tf string) time.Time {
	switch tf {
	case "5m":
		return t.Truncate(5 * time.Minute)
	case "15m":
		return t.Truncate(15 * time.Minute)
	case "1h":
		return t.Truncate(time.Hour)
	case "4h":
		return t.Truncate(4 * time.Hour)
	case "1d":
		return t.Truncate(24 * time.Hour)
	default:
		return t.Truncate(time.Minute)
	}
}
