// Package flux builds the Flux queries used against the token-authenticated engine generation.
package flux

import (
	"fmt"
	"strings"
	"time"

	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/timeutil"
)

// String quotes a Flux string literal.
func String(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "${", `\${`).Replace(s) + `"`
}

// Float renders f as a Flux float literal.
func Float(f float64) string {
	s := query.FormatFloat(f)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func column(name string) string {
	return "r[" + String(name) + "]"
}

func eq(tag, value string) string {
	return fmt.Sprintf("%s == %s", column(tag), String(value))
}

func neq(tag, value string) string {
	return fmt.Sprintf("%s != %s", column(tag), String(value))
}

func matches(tag, pattern string) string {
	return fmt.Sprintf("%s =~ /%s/", column(tag), query.AnchorRegex(pattern))
}

func columns(names ...string) string {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, String(n))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func validEvery(every time.Duration) time.Duration {
	if every <= 0 {
		return time.Second
	}
	return every
}

// pipeline is a chain of Flux calls joined with the pipe-forward operator.
type pipeline []string

func from(bucket string) pipeline {
	return pipeline{fmt.Sprintf("from(bucket: %s)", String(bucket))}
}

func (p pipeline) pipe(format string, args ...interface{}) pipeline {
	next := make(pipeline, len(p), len(p)+1)
	copy(next, p)
	return append(next, fmt.Sprintf(format, args...))
}

func (p pipeline) between(r query.Range) pipeline {
	return p.pipe("range(start: %s, stop: %s)", timeutil.FormatQueryTime(r.Start), timeutil.FormatQueryTime(r.Stop))
}

// always covers every point ever written.
func (p pipeline) always() pipeline {
	return p.pipe("range(start: 0)")
}

func (p pipeline) filter(conds ...string) pipeline {
	if len(conds) == 0 {
		return p
	}
	return p.pipe("filter(fn: (r) => %s)", strings.Join(conds, " and "))
}

func (p pipeline) group(names ...string) pipeline {
	if len(names) == 0 {
		return p.pipe("group()")
	}
	return p.pipe("group(columns: %s)", columns(names...))
}

func (p pipeline) window(every time.Duration, fn string) pipeline {
	return p.pipe("aggregateWindow(every: %s, fn: %s, timeSrc: \"_start\", createEmpty: false)", query.DurationLiteral(every), fn)
}

func (p pipeline) divide(divisor float64) pipeline {
	return p.pipe("map(fn: (r) => ({r with _value: float(v: r._value) / %s}))", Float(divisor))
}

// sorted orders rows by time. group() merges series in series-key order, so first() and last()
// on a merged table need it.
func (p pipeline) sorted() pipeline {
	return p.pipe(`sort(columns: ["_time"])`)
}

func (p pipeline) keep(names ...string) pipeline {
	return p.pipe("keep(columns: %s)", columns(names...))
}

func (p pipeline) String() string {
	return strings.Join(p, "\n  |> ")
}

// meta holds the identity queries shared by the backend and frontend builders.
type meta struct {
	opts           query.Options
	representative string
	boundsField    string
	boundsConds    []string
}

func (m meta) title(title string) string {
	return eq(m.opts.TestTitleTag, title)
}

func (m meta) tagValues(tag, predicate string) string {
	return fmt.Sprintf("import \"influxdata/influxdb/schema\"\n\nschema.tagValues(bucket: %s, tag: %s, predicate: (r) => %s, start: time(v: 0))",
		String(m.opts.Bucket), String(tag), predicate)
}

// TestsTitles lists the distinct test titles found in any of measurements.
func (m meta) TestsTitles(measurements ...string) string {
	conds := make([]string, 0, len(measurements))
	for _, measurement := range measurements {
		conds = append(conds, eq("_measurement", measurement))
	}
	return m.tagValues(m.opts.TestTitleTag, strings.Join(conds, " or "))
}

// bounds returns the start_time and end_time queries over tests, which must already be grouped per test.
func bounds(tests pipeline, keep ...string) []query.NamedQuery {
	kept := append([]string{"_time"}, keep...)
	return []query.NamedQuery{
		{Query: tests.sorted().pipe("first()").keep(kept...).String(), Column: "start_time"},
		{Query: tests.sorted().pipe("last()").keep(kept...).String(), Column: "end_time"},
	}
}

func (m meta) representativeConds(title string) []string {
	conds := []string{eq("_measurement", m.representative), eq("_field", m.boundsField)}
	if title != "" {
		conds = append(conds, m.title(title))
	}
	return append(conds, m.boundsConds...)
}

func (m meta) bound(fn, title string) string {
	return from(m.opts.Bucket).always().
		filter(m.representativeConds(title)...).
		group().
		sorted().
		pipe("%s()", fn).
		keep("_time", "_value").
		String()
}

// StartTime selects the first point of the test.
func (m meta) StartTime(title string) string {
	return m.bound("first", title)
}

// EndTime selects the last point of the test.
func (m meta) EndTime(title string) string {
	return m.bound("last", title)
}

// CustomVar lists the values of a custom variable tag for a test.
func (m meta) CustomVar(title, tag string) string {
	return m.tagValues(strings.TrimSpace(tag), m.title(title))
}
