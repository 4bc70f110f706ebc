// Package influxql builds the InfluxQL queries used against the legacy engine generation.
//
// The legacy schema stores statistics precomputed over the aggregation window chosen at upload
// time, so the queries here only re-aggregate stored fields (mean and median of the stored
// percentiles) rather than computing exact percentiles over the requested range.
package influxql

import (
	"fmt"
	"strings"
	"time"

	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/timeutil"
)

// Ident quotes an identifier.
func Ident(name string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name) + `"`
}

// Literal quotes a string literal.
func Literal(value string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value) + "'"
}

func eq(tag, value string) string {
	return fmt.Sprintf("%s = %s", Ident(tag), Literal(value))
}

func neq(tag, value string) string {
	return fmt.Sprintf("%s != %s", Ident(tag), Literal(value))
}

func matches(tag, pattern string) string {
	return fmt.Sprintf("%s =~ /%s/", Ident(tag), query.AnchorRegex(pattern))
}

func timeRange(r query.Range) string {
	return fmt.Sprintf("time >= %s AND time < %s", Literal(timeutil.FormatQueryTime(r.Start)), Literal(timeutil.FormatQueryTime(r.Stop)))
}

func groupByTime(every time.Duration) string {
	return fmt.Sprintf("time(%s)", query.DurationLiteral(every))
}

func where(conds ...string) string {
	nonEmpty := make([]string, 0, len(conds))
	for _, c := range conds {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	if len(nonEmpty) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(nonEmpty, " AND ")
}

func validEvery(every time.Duration) time.Duration {
	if every <= 0 {
		return time.Second
	}
	return every
}

// meta holds the identity queries shared by the backend and frontend builders.
type meta struct {
	opts query.Options
	// representative is the measurement whose first/last points bound a test.
	representative string
	// boundsField is the field read from the representative measurement.
	boundsField string
	// boundsConds restricts the representative measurement to one series per test.
	boundsConds []string
}

func (m meta) title(title string) string {
	return eq(m.opts.TestTitleTag, title)
}

// TestsTitles lists the distinct test titles found in any of measurements.
func (m meta) TestsTitles(measurements ...string) string {
	quoted := make([]string, 0, len(measurements))
	for _, measurement := range measurements {
		quoted = append(quoted, Ident(measurement))
	}
	return fmt.Sprintf("SHOW TAG VALUES ON %s FROM %s WITH KEY = %s", Ident(m.opts.Bucket), strings.Join(quoted, ", "), Ident(m.opts.TestTitleTag))
}

func (m meta) bound(fn, title string) string {
	conds := append([]string{m.title(title)}, m.boundsConds...)
	return fmt.Sprintf(`SELECT %s(%s) AS "value" FROM %s%s`, fn, Ident(m.boundsField), Ident(m.representative), where(conds...))
}

// StartTime selects the first point of the test; its time column is the start instant.
func (m meta) StartTime(title string) string {
	return m.bound("first", title)
}

// EndTime selects the last point of the test; its time column is the end instant.
func (m meta) EndTime(title string) string {
	return m.bound("last", title)
}

// CustomVar lists the values of a custom variable tag for a test.
func (m meta) CustomVar(title, tag string) string {
	return fmt.Sprintf("SHOW TAG VALUES FROM %s WITH KEY = %s%s", Ident(m.representative), Ident(tag), where(m.title(title)))
}
