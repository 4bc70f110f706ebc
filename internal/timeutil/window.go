package timeutil

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
)

var windowPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-zA-Z]+)$`)

var windowUnits = map[string]time.Duration{
	"ns":      time.Nanosecond,
	"us":      time.Microsecond,
	"ms":      time.Millisecond,
	"l":       time.Millisecond,
	"s":       time.Second,
	"sec":     time.Second,
	"secs":    time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"m":       time.Minute,
	"t":       time.Minute,
	"min":     time.Minute,
	"mins":    time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"d":       24 * time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
}

// ParseWindow parses an aggregation window. Go durations ("500ms", "1m30s") are accepted, as are the
// single-unit spellings used by uploaders ("1min", "30S", "1T"). The result must be positive.
func ParseWindow(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		m := windowPattern.FindStringSubmatch(trimmed)
		if m == nil {
			return 0, &perferrors.ErrInvalidArgument{Name: "aggregationWindow", Value: s, Message: "not a duration"}
		}
		unit, ok := windowUnits[strings.ToLower(m[2])]
		if !ok {
			return 0, &perferrors.ErrInvalidArgument{Name: "aggregationWindow", Value: s, Message: "unknown unit " + m[2]}
		}
		n, _ := strconv.ParseFloat(m[1], 64)
		d = time.Duration(n * float64(unit))
	}
	if d <= 0 {
		return 0, &perferrors.ErrInvalidArgument{Name: "aggregationWindow", Value: s, Message: "must be positive"}
	}
	return d, nil
}

const autoWindowBuckets = 500

// AutoWindow picks a read-side aggregation window for the range [start, end): roughly
// autoWindowBuckets buckets, rounded up to a whole second and never below floor.
func AutoWindow(start, end time.Time, floor time.Duration) time.Duration {
	if floor <= 0 {
		floor = time.Second
	}
	span := end.Sub(start)
	if span <= 0 {
		return floor
	}
	w := (span / autoWindowBuckets).Round(time.Second)
	if w < span/autoWindowBuckets {
		w += time.Second
	}
	if w < floor {
		return floor
	}
	return w
}
