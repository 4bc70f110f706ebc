package flux

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/schema"
)

// BackendQueries builds Flux queries over the load-test (JMeter backend listener) schema.
type BackendQueries struct {
	meta
}

func NewBackendQueries(opts query.Options) (*BackendQueries, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "options are invalid")
	}
	return &BackendQueries{
		meta: meta{
			opts:           opts,
			representative: schema.MeasurementAggregated,
			boundsField:    schema.FieldCount,
			boundsConds:    []string{eq(schema.TagTransaction, schema.TransactionAll), eq(schema.TagStatus, schema.StatusAll)},
		},
	}, nil
}

func (q *BackendQueries) TestsTitles() string {
	return q.meta.TestsTitles(schema.MeasurementEvents, q.representative)
}

// TestLog returns the queries whose tables, grouped by test title, make up the test log. Each
// result row carries the test title tag, the application tag and _time (or _value for max_threads).
// Bounds are read from the events and from the aggregated series, since events are optional.
func (q *BackendQueries) TestLog() []query.NamedQuery {
	events := from(q.opts.Bucket).always().
		filter(eq("_measurement", schema.MeasurementEvents), eq("_field", schema.FieldEventText)).
		group(q.opts.TestTitleTag, schema.TagApplication)
	aggregated := from(q.opts.Bucket).always().
		filter(q.representativeConds("")...).
		group(q.opts.TestTitleTag, schema.TagApplication)
	threads := from(q.opts.Bucket).always().
		filter(eq("_measurement", schema.MeasurementAggregated), eq("_field", schema.FieldMaxActiveThreads),
			eq(schema.TagTransaction, schema.ConcurrencyTransactionV2)).
		group(q.opts.TestTitleTag).
		pipe("max()")
	queries := bounds(events, q.opts.TestTitleTag, schema.TagApplication)
	queries = append(queries, bounds(aggregated, q.opts.TestTitleTag, schema.TagApplication)...)
	return append(queries, query.NamedQuery{Query: threads.keep("_value", q.opts.TestTitleTag).String(), Column: "max_threads"})
}

// TestName selects the application tag of the test.
func (q *BackendQueries) TestName(title string, r query.Range) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return from(q.opts.Bucket).between(r).
		filter(q.representativeConds(title)...).
		group().
		pipe("last()").
		keep(schema.TagApplication).
		String(), nil
}

// activeThreads merges the per-node concurrency series: the per-window maximum of each node is
// summed across nodes.
func (q *BackendQueries) activeThreads(title string, r query.Range, every time.Duration) pipeline {
	return from(q.opts.Bucket).between(r).
		filter(eq("_measurement", schema.MeasurementAggregated), eq("_field", schema.FieldMaxActiveThreads),
			q.title(title), eq(schema.TagTransaction, schema.ConcurrencyTransactionV2)).
		group(schema.TagNodeName).
		window(every, "max").
		group("_time").
		pipe("sum()").
		group().
		sorted()
}

// MaxActiveUsers selects the highest merged concurrency of the test.
func (q *BackendQueries) MaxActiveUsers(title string, r query.Range, every time.Duration) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return q.activeThreads(title, r, validEvery(every)).pipe("max()").keep("_value").String(), nil
}

// ActiveThreads selects the merged concurrency series.
func (q *BackendQueries) ActiveThreads(title string, r query.Range, every time.Duration) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return q.activeThreads(title, r, validEvery(every)).keep("_time", "_value").String(), nil
}

func (q *BackendQueries) overallPipeline(field, title string, r query.Range) pipeline {
	return from(q.opts.Bucket).between(r).
		filter(eq("_measurement", schema.MeasurementAggregated), eq("_field", field), q.title(title),
			eq(schema.TagTransaction, schema.TransactionAll), eq(schema.TagStatus, schema.StatusAll)).
		group()
}

func (q *BackendQueries) overall(field, fn, title string, r query.Range, every time.Duration) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return q.overallPipeline(field, title, r).window(validEvery(every), fn).keep("_time", "_value").String(), nil
}

// RPS selects requests per second for every window.
func (q *BackendQueries) RPS(title string, r query.Range, every time.Duration) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	every = validEvery(every)
	return q.overallPipeline(schema.FieldCount, title, r).
		window(every, "sum").
		divide(every.Seconds()).
		keep("_time", "_value").
		String(), nil
}

func (q *BackendQueries) AverageResponseTime(title string, r query.Range, every time.Duration) (string, error) {
	return q.overall(schema.FieldAvg, "mean", title, r, every)
}

func (q *BackendQueries) MedianResponseTime(title string, r query.Range, every time.Duration) (string, error) {
	return q.overall(schema.FieldPct50, "median", title, r, every)
}

func (q *BackendQueries) Pct90ResponseTime(title string, r query.Range, every time.Duration) (string, error) {
	return q.overall(schema.FieldPct90, "mean", title, r, every)
}

// ErrorCount selects the failed request count for every window from the global grouping.
func (q *BackendQueries) ErrorCount(title string, r query.Range, every time.Duration) (string, error) {
	return q.overall(schema.FieldCountError, "sum", title, r, every)
}

func (q *BackendQueries) transactions() []string {
	conds := []string{neq(schema.TagTransaction, schema.TransactionAll)}
	if q.opts.Regex != "" {
		conds = append(conds, matches(schema.TagTransaction, q.opts.Regex))
	}
	return conds
}

func (q *BackendQueries) perTransaction(field, status, title string, r query.Range) pipeline {
	conds := []string{eq("_measurement", schema.MeasurementAggregated), eq("_field", field), q.title(title), eq(schema.TagStatus, status)}
	return from(q.opts.Bucket).between(r).
		filter(append(conds, q.transactions()...)...).
		group(schema.TagTransaction)
}

func (q *BackendQueries) perReq(field, fn, status, title string, r query.Range, every time.Duration) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return q.perTransaction(field, status, title, r).
		window(validEvery(every), fn).
		keep("_time", "_value", schema.TagTransaction).
		String(), nil
}

func (q *BackendQueries) AverageResponseTimePerReq(title string, r query.Range, every time.Duration) (string, error) {
	return q.perReq(schema.FieldAvg, "mean", schema.StatusAll, title, r, every)
}

func (q *BackendQueries) MedianResponseTimePerReq(title string, r query.Range, every time.Duration) (string, error) {
	return q.perReq(schema.FieldPct50, "median", schema.StatusAll, title, r, every)
}

func (q *BackendQueries) Pct90ResponseTimePerReq(title string, r query.Range, every time.Duration) (string, error) {
	return q.perReq(schema.FieldPct90, "mean", schema.StatusAll, title, r, every)
}

func (q *BackendQueries) ThroughputPerReq(title string, r query.Range, every time.Duration) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	every = validEvery(every)
	return q.perTransaction(schema.FieldCount, schema.StatusAll, title, r).
		window(every, "sum").
		divide(every.Seconds()).
		keep("_time", "_value", schema.TagTransaction).
		String(), nil
}

func (q *BackendQueries) ErrorCountPerReq(title string, r query.Range, every time.Duration) (string, error) {
	return q.perReq(schema.FieldCount, "sum", schema.StatusKO, title, r, every)
}

func (q *BackendQueries) table(field, fn, status, title string, r query.Range) string {
	return q.perTransaction(field, status, title, r).
		pipe("%s()", fn).
		keep("_value", schema.TagTransaction).
		String()
}

// AggregatedTable returns one query per column of the per-transaction summary table.
func (q *BackendQueries) AggregatedTable(title string, r query.Range) ([]query.NamedQuery, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	queries := []query.NamedQuery{
		{Query: q.table(schema.FieldCount, "sum", schema.StatusAll, title, r), Column: schema.FieldCount},
		{Query: q.table(schema.FieldCount, "sum", schema.StatusKO, title, r), Column: "errors"},
		{Query: q.table(schema.FieldAvg, "mean", schema.StatusAll, title, r), Column: schema.FieldAvg},
		{Query: q.table(schema.FieldMin, "min", schema.StatusAll, title, r), Column: schema.FieldMin},
		{Query: q.table(schema.FieldMax, "max", schema.StatusAll, title, r), Column: schema.FieldMax},
	}
	for _, p := range schema.Percentiles {
		queries = append(queries, query.NamedQuery{Query: q.table(p.Field, "median", schema.StatusAll, title, r), Column: p.Field})
	}
	queries = append(queries, query.NamedQuery{Query: q.table(schema.FieldAvg, "stddev", schema.StatusAll, title, r), Column: "stddev"})
	return queries, nil
}

// ErrorsTable selects the response-code histogram grouped by transaction, code and message.
func (q *BackendQueries) ErrorsTable(title string, r query.Range) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	conds := []string{eq("_measurement", schema.MeasurementErrors), eq("_field", schema.FieldCount), q.title(title)}
	return from(q.opts.Bucket).between(r).
		filter(append(conds, q.transactions()...)...).
		group(schema.TagTransaction, schema.TagResponseCode, schema.TagResponseMessage).
		pipe("sum()").
		keep("_value", schema.TagTransaction, schema.TagResponseCode, schema.TagResponseMessage).
		String(), nil
}

func (q *BackendQueries) stat(field, fn, title string, r query.Range) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return q.overallPipeline(field, title, r).pipe("%s()", fn).keep("_value").String(), nil
}

// AverageRPS selects the mean request rate over the whole range.
func (q *BackendQueries) AverageRPS(title string, r query.Range) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return q.overallPipeline(schema.FieldCount, title, r).
		pipe("sum()").
		divide(r.Stop.Sub(r.Start).Seconds()).
		keep("_value").
		String(), nil
}

func (q *BackendQueries) AverageResponseTimeStats(title string, r query.Range) (string, error) {
	return q.stat(schema.FieldAvg, "mean", title, r)
}

func (q *BackendQueries) MedianResponseTimeStats(title string, r query.Range) (string, error) {
	return q.stat(schema.FieldPct50, "median", title, r)
}

func (q *BackendQueries) Pct90ResponseTimeStats(title string, r query.Range) (string, error) {
	return q.stat(schema.FieldPct90, "median", title, r)
}

// ErrorsPct selects the percentage of failed requests in a single query; it yields 0 when no
// request was recorded.
func (q *BackendQueries) ErrorsPct(title string, r query.Range) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	status := fmt.Sprintf("(%s or %s)", eq(schema.TagStatus, schema.StatusKO), eq(schema.TagStatus, schema.StatusAll))
	conds := append([]string{eq("_measurement", schema.MeasurementAggregated), eq("_field", schema.FieldCount), q.title(title), status}, q.transactions()...)
	return from(q.opts.Bucket).between(r).
		filter(conds...).
		group(schema.TagStatus).
		pipe("sum()").
		group().
		pipe(`set(key: "_row", value: "total")`).
		pipe(`pivot(rowKey: ["_row"], columnKey: [%s], valueColumn: "_value")`, String(schema.TagStatus)).
		pipe(`map(fn: (r) => ({_value: if exists r.%s and exists r.%s and float(v: r.%s) > 0.0 then float(v: r.%s) / float(v: r.%s) * 100.0 else 0.0}))`,
			schema.StatusKO, schema.StatusAll, schema.StatusAll, schema.StatusKO, schema.StatusAll).
		String(), nil
}

// Overview returns the named summary queries of a backend test.
func (q *BackendQueries) Overview(title string, r query.Range, every time.Duration) (map[string]string, error) {
	builders := map[string]func(string, query.Range) (string, error){
		"avg_rps":              q.AverageRPS,
		"avg_response_time":    q.AverageResponseTimeStats,
		"median_response_time": q.MedianResponseTimeStats,
		"pct90_response_time":  q.Pct90ResponseTimeStats,
		"errors_pct":           q.ErrorsPct,
	}
	overview := make(map[string]string, len(builders)+1)
	for name, build := range builders {
		s, err := build(title, r)
		if err != nil {
			return nil, err
		}
		overview[name] = s
	}
	users, err := q.MaxActiveUsers(title, r, every)
	if err != nil {
		return nil, err
	}
	overview["max_active_users"] = users
	return overview, nil
}
