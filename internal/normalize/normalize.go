// Package normalize coerces the loosely-typed date values the booking
// collaborator hands over into store-comparable instants.
package normalize

import (
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Date coerces v into a UTC instant. It accepts native times, Mongo datetime
// values, RFC 3339 / ISO-8601 strings and epoch milliseconds; anything else
// (including zero times and blank strings) reports ok false.
func Date(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case bson.DateTime:
		return t.Time().UTC(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	case int64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(t).UTC(), true
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)).UTC(), true
	}
	return time.Time{}, false
}

// Partition splits session dates into upcoming (soonest first) and past (most
// recent first) relative to now. Values Date cannot coerce are dropped.
func Partition(now time.Time, values []any) (upcoming, past []time.Time) {
	for _, v := range values {
		d, ok := Date(v)
		if !ok {
			continue
		}
		if d.Before(now) {
			past = append(past, d)
		} else {
			upcoming = append(upcoming, d)
		}
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].Before(upcoming[j]) })
	sort.Slice(past, func(i, j int) bool { return past[j].Before(past[i]) })
	return upcoming, past
}
