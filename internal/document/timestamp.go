package document

import (
	"math"
	"time"
)

// EncodeTime renders t in the stored timestamp form.
func EncodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime reads a stored timestamp. It accepts RFC 3339 strings,
// milliseconds since the epoch, and {"seconds", "nanoseconds"} objects.
// Missing values, empty objects and anything unparsable report false.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	case string:
		if t == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z07:00", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), !parsed.IsZero()
			}
		}
		return time.Time{}, false
	case float64:
		return fromMillis(t)
	case int64:
		return fromMillis(float64(t))
	case int:
		return fromMillis(float64(t))
	case map[string]any:
		secs, ok := number(t["seconds"])
		if !ok {
			secs, ok = number(t["_seconds"])
		}
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := number(t["nanoseconds"])
		return time.Unix(int64(secs), int64(nanos)).UTC(), true
	}
	return time.Time{}, false
}

func fromMillis(ms float64) (time.Time, bool) {
	if ms <= 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

// timeOr parses v, falling back to def when it is missing or malformed.
func timeOr(v any, def time.Time) time.Time {
	if t, ok := ParseTime(v); ok {
		return t
	}
	return def
}

func timePtr(v any) *time.Time {
	if t, ok := ParseTime(v); ok {
		return &t
	}
	return nil
}
