// Package query holds the helpers shared by the Flux and InfluxQL query builders.
package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/schema"
)

// Options configures a query builder. Bucket is the Flux bucket or the InfluxQL database.
type Options struct {
	Bucket       string
	TestTitleTag string
	// Regex optionally restricts transactions (or pages) to names matching it.
	Regex      string
	CustomVars []string
}

// Validate checks the options and fills in defaults.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.Bucket) == "" {
		return &perferrors.ErrInvalidArgument{Name: "bucketOrDatabase", Value: o.Bucket, Message: "must not be empty"}
	}
	if o.TestTitleTag == "" {
		o.TestTitleTag = schema.DefaultTestTitleTag
	}
	if o.Regex != "" {
		if _, err := regexp.Compile(AnchorRegex(o.Regex)); err != nil {
			return &perferrors.ErrInvalidArgument{Name: "regex", Value: o.Regex, Message: err.Error()}
		}
	}
	return nil
}

// Range is a half-open [Start, Stop) time interval.
type Range struct {
	Start time.Time
	Stop  time.Time
}

func (r Range) Validate() error {
	if r.Start.IsZero() || r.Stop.IsZero() {
		return errors.WithStack(&perferrors.ErrInvalidArgument{Name: "range", Value: r.String(), Message: "start and stop are required"})
	}
	if !r.Stop.After(r.Start) {
		return errors.WithStack(&perferrors.ErrInvalidArgument{Name: "range", Value: r.String(), Message: "stop must be after start"})
	}
	return nil
}

func (r Range) String() string {
	return r.Start.UTC().Format(time.RFC3339) + "/" + r.Stop.UTC().Format(time.RFC3339)
}

// Minutes is the length of the range in minutes.
func (r Range) Minutes() float64 {
	return r.Stop.Sub(r.Start).Minutes()
}

// NamedQuery is one query of a multi-series request together with the logical column its result fills.
type NamedQuery struct {
	Query  string
	Column string
}

// AnchorRegex anchors pattern with ^ and $ unless it already is, and escapes the / delimiter used by
// both dialects' regex literals.
func AnchorRegex(pattern string) string {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(pattern, "$") || strings.HasSuffix(pattern, `\$`) {
		pattern += "$"
	}
	return escapeSlashes(pattern)
}

func escapeSlashes(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		if r == '/' && !escaped {
			b.WriteString(`\/`)
			continue
		}
		escaped = r == '\\' && !escaped
		b.WriteRune(r)
	}
	return b.String()
}

// DurationLiteral renders d in the duration literal syntax shared by Flux and InfluxQL, using the largest
// unit that represents it exactly.
func DurationLiteral(d time.Duration) string {
	units := []struct {
		unit   time.Duration
		suffix string
	}{
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
		{time.Millisecond, "ms"},
		{time.Microsecond, "us"},
	}
	for _, u := range units {
		if d%u.unit == 0 {
			return strconv.FormatInt(int64(d/u.unit), 10) + u.suffix
		}
	}
	return strconv.FormatInt(int64(d), 10) + "ns"
}

// FormatFloat renders f in the shortest form that parses back to f.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
