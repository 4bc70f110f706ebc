package influxql

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/schema"
)

// BackendQueries builds queries over the load-test (JMeter backend listener) schema.
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

// TestLog returns the queries whose results, grouped by test title, make up the test log. Bounds
// are read from the events and from the aggregated series, since events are optional.
func (q *BackendQueries) TestLog() []query.NamedQuery {
	groupBy := fmt.Sprintf(" GROUP BY %s, %s", Ident(q.opts.TestTitleTag), Ident(schema.TagApplication))
	aggregated := where(q.boundsConds...) + groupBy
	return []query.NamedQuery{
		{
			Query:  fmt.Sprintf(`SELECT first(%s) AS "value" FROM %s%s`, Ident(schema.FieldEventText), Ident(schema.MeasurementEvents), groupBy),
			Column: "start_time",
		},
		{
			Query:  fmt.Sprintf(`SELECT last(%s) AS "value" FROM %s%s`, Ident(schema.FieldEventText), Ident(schema.MeasurementEvents), groupBy),
			Column: "end_time",
		},
		{
			Query:  fmt.Sprintf(`SELECT first(%s) AS "value" FROM %s%s`, Ident(q.boundsField), Ident(q.representative), aggregated),
			Column: "start_time",
		},
		{
			Query:  fmt.Sprintf(`SELECT last(%s) AS "value" FROM %s%s`, Ident(q.boundsField), Ident(q.representative), aggregated),
			Column: "end_time",
		},
		{
			Query: fmt.Sprintf(`SELECT max(%s) AS "value" FROM %s%s GROUP BY %s`,
				Ident(schema.FieldMaxActiveThreads), Ident(schema.MeasurementAggregated),
				where(eq(schema.TagTransaction, schema.ConcurrencyTransactionV1)), Ident(q.opts.TestTitleTag)),
			Column: "max_threads",
		},
	}
}

// TestName selects the application tag of the test.
func (q *BackendQueries) TestName(title string, r query.Range) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf(`SELECT last(%s) AS "value" FROM %s%s GROUP BY %s`,
		Ident(schema.FieldCount), Ident(schema.MeasurementAggregated),
		where(q.title(title), eq(schema.TagTransaction, schema.TransactionAll), eq(schema.TagStatus, schema.StatusAll), timeRange(r)),
		Ident(schema.TagApplication)), nil
}

// activeThreads merges the per-node concurrency series: the per-window maximum of each node is
// summed across nodes.
func (q *BackendQueries) activeThreads(title string, r query.Range, every time.Duration) string {
	inner := fmt.Sprintf(`SELECT max(%s) AS "threads" FROM %s%s GROUP BY %s, %s fill(none)`,
		Ident(schema.FieldMaxActiveThreads), Ident(schema.MeasurementAggregated),
		where(q.title(title), eq(schema.TagTransaction, schema.ConcurrencyTransactionV1), timeRange(r)),
		groupByTime(every), Ident(schema.TagNodeName))
	return fmt.Sprintf(`SELECT sum("threads") AS "value" FROM (%s)%s GROUP BY %s fill(none)`, inner, where(timeRange(r)), groupByTime(every))
}

// MaxActiveUsers selects the highest merged concurrency of the test.
func (q *BackendQueries) MaxActiveUsers(title string, r query.Range, every time.Duration) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf(`SELECT max("value") AS "value" FROM (%s)`, q.activeThreads(title, r, validEvery(every))), nil
}

// ActiveThreads selects the merged concurrency series.
func (q *BackendQueries) ActiveThreads(title string, r query.Range, every time.Duration) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return q.activeThreads(title, r, validEvery(every)), nil
}

func (q *BackendQueries) overall(selection, status, title string, r query.Range, every time.Duration) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	every = validEvery(every)
	return fmt.Sprintf(`SELECT %s AS "value" FROM %s%s GROUP BY %s fill(none)`,
		selection, Ident(schema.MeasurementAggregated),
		where(q.title(title), eq(schema.TagTransaction, schema.TransactionAll), eq(schema.TagStatus, status), timeRange(r)),
		groupByTime(every)), nil
}

// RPS selects requests per second for every window.
func (q *BackendQueries) RPS(title string, r query.Range, every time.Duration) (string, error) {
	every = validEvery(every)
	return q.overall(fmt.Sprintf("sum(%s) / %s", Ident(schema.FieldCount), query.FormatFloat(every.Seconds())), schema.StatusAll, title, r, every)
}

func (q *BackendQueries) AverageResponseTime(title string, r query.Range, every time.Duration) (string, error) {
	return q.overall(fmt.Sprintf("mean(%s)", Ident(schema.FieldAvg)), schema.StatusAll, title, r, every)
}

func (q *BackendQueries) MedianResponseTime(title string, r query.Range, every time.Duration) (string, error) {
	return q.overall(fmt.Sprintf("median(%s)", Ident(schema.FieldPct50)), schema.StatusAll, title, r, every)
}

func (q *BackendQueries) Pct90ResponseTime(title string, r query.Range, every time.Duration) (string, error) {
	return q.overall(fmt.Sprintf("mean(%s)", Ident(schema.FieldPct90)), schema.StatusAll, title, r, every)
}

// ErrorCount selects the failed request count for every window from the global grouping.
func (q *BackendQueries) ErrorCount(title string, r query.Range, every time.Duration) (string, error) {
	return q.overall(fmt.Sprintf("sum(%s)", Ident(schema.FieldCountError)), schema.StatusAll, title, r, every)
}

// transactions restricts a query to named transactions, optionally matching the configured regex.
func (q *BackendQueries) transactions() []string {
	conds := []string{neq(schema.TagTransaction, schema.TransactionAll)}
	if q.opts.Regex != "" {
		conds = append(conds, matches(schema.TagTransaction, q.opts.Regex))
	}
	return conds
}

func (q *BackendQueries) perReq(selection, status, title string, r query.Range, every time.Duration) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	every = validEvery(every)
	conds := append([]string{q.title(title), eq(schema.TagStatus, status)}, q.transactions()...)
	conds = append(conds, timeRange(r))
	return fmt.Sprintf(`SELECT %s AS "value" FROM %s%s GROUP BY %s, %s fill(none)`,
		selection, Ident(schema.MeasurementAggregated), where(conds...), groupByTime(every), Ident(schema.TagTransaction)), nil
}

func (q *BackendQueries) AverageResponseTimePerReq(title string, r query.Range, every time.Duration) (string, error) {
	return q.perReq(fmt.Sprintf("mean(%s)", Ident(schema.FieldAvg)), schema.StatusAll, title, r, every)
}

func (q *BackendQueries) MedianResponseTimePerReq(title string, r query.Range, every time.Duration) (string, error) {
	return q.perReq(fmt.Sprintf("median(%s)", Ident(schema.FieldPct50)), schema.StatusAll, title, r, every)
}

func (q *BackendQueries) Pct90ResponseTimePerReq(title string, r query.Range, every time.Duration) (string, error) {
	return q.perReq(fmt.Sprintf("mean(%s)", Ident(schema.FieldPct90)), schema.StatusAll, title, r, every)
}

func (q *BackendQueries) ThroughputPerReq(title string, r query.Range, every time.Duration) (string, error) {
	every = validEvery(every)
	return q.perReq(fmt.Sprintf("sum(%s) / %s", Ident(schema.FieldCount), query.FormatFloat(every.Seconds())), schema.StatusAll, title, r, every)
}

func (q *BackendQueries) ErrorCountPerReq(title string, r query.Range, every time.Duration) (string, error) {
	return q.perReq(fmt.Sprintf("sum(%s)", Ident(schema.FieldCount)), schema.StatusKO, title, r, every)
}

func (q *BackendQueries) table(selection, status, title string, r query.Range) string {
	conds := append([]string{q.title(title), eq(schema.TagStatus, status)}, q.transactions()...)
	conds = append(conds, timeRange(r))
	return fmt.Sprintf(`SELECT %s AS "value" FROM %s%s GROUP BY %s`,
		selection, Ident(schema.MeasurementAggregated), where(conds...), Ident(schema.TagTransaction))
}

// AggregatedTable returns one query per column of the per-transaction summary table; each result
// is grouped by transaction.
func (q *BackendQueries) AggregatedTable(title string, r query.Range) ([]query.NamedQuery, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	queries := []query.NamedQuery{
		{Query: q.table(fmt.Sprintf("sum(%s)", Ident(schema.FieldCount)), schema.StatusAll, title, r), Column: schema.FieldCount},
		{Query: q.table(fmt.Sprintf("sum(%s)", Ident(schema.FieldCount)), schema.StatusKO, title, r), Column: "errors"},
		{Query: q.table(fmt.Sprintf("mean(%s)", Ident(schema.FieldAvg)), schema.StatusAll, title, r), Column: schema.FieldAvg},
		{Query: q.table(fmt.Sprintf("min(%s)", Ident(schema.FieldMin)), schema.StatusAll, title, r), Column: schema.FieldMin},
		{Query: q.table(fmt.Sprintf("max(%s)", Ident(schema.FieldMax)), schema.StatusAll, title, r), Column: schema.FieldMax},
	}
	for _, p := range schema.Percentiles {
		queries = append(queries, query.NamedQuery{
			Query:  q.table(fmt.Sprintf("median(%s)", Ident(p.Field)), schema.StatusAll, title, r),
			Column: p.Field,
		})
	}
	queries = append(queries, query.NamedQuery{
		Query:  q.table(fmt.Sprintf("stddev(%s)", Ident(schema.FieldAvg)), schema.StatusAll, title, r),
		Column: "stddev",
	})
	return queries, nil
}

// ErrorsTable selects the response-code histogram grouped by transaction, code and message.
func (q *BackendQueries) ErrorsTable(title string, r query.Range) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	conds := append([]string{q.title(title)}, q.transactions()...)
	conds = append(conds, timeRange(r))
	return fmt.Sprintf(`SELECT sum(%s) AS "value" FROM %s%s GROUP BY %s, %s, %s`,
		Ident(schema.FieldCount), Ident(schema.MeasurementErrors), where(conds...),
		Ident(schema.TagTransaction), Ident(schema.TagResponseCode), Ident(schema.TagResponseMessage)), nil
}

func (q *BackendQueries) stat(selection, title string, r query.Range) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf(`SELECT %s AS "value" FROM %s%s`,
		selection, Ident(schema.MeasurementAggregated),
		where(q.title(title), eq(schema.TagTransaction, schema.TransactionAll), eq(schema.TagStatus, schema.StatusAll), timeRange(r))), nil
}

// AverageRPS selects the mean request rate over the whole range.
func (q *BackendQueries) AverageRPS(title string, r query.Range) (string, error) {
	return q.stat(fmt.Sprintf("sum(%s) / %s", Ident(schema.FieldCount), query.FormatFloat(r.Stop.Sub(r.Start).Seconds())), title, r)
}

func (q *BackendQueries) AverageResponseTimeStats(title string, r query.Range) (string, error) {
	return q.stat(fmt.Sprintf("mean(%s)", Ident(schema.FieldAvg)), title, r)
}

func (q *BackendQueries) MedianResponseTimeStats(title string, r query.Range) (string, error) {
	return q.stat(fmt.Sprintf("median(%s)", Ident(schema.FieldPct50)), title, r)
}

func (q *BackendQueries) Pct90ResponseTimeStats(title string, r query.Range) (string, error) {
	return q.stat(fmt.Sprintf("median(%s)", Ident(schema.FieldPct90)), title, r)
}

// ErrorsPct returns the numerator ("errors") and denominator ("total") queries of the error rate;
// the ratio is computed by the caller.
func (q *BackendQueries) ErrorsPct(title string, r query.Range) ([]query.NamedQuery, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	count := func(status string) string {
		conds := append([]string{q.title(title), eq(schema.TagStatus, status)}, q.transactions()...)
		conds = append(conds, timeRange(r))
		return fmt.Sprintf(`SELECT sum(%s) AS "value" FROM %s%s`, Ident(schema.FieldCount), Ident(schema.MeasurementAggregated), where(conds...))
	}
	return []query.NamedQuery{
		{Query: count(schema.StatusKO), Column: "errors"},
		{Query: count(schema.StatusAll), Column: "total"},
	}, nil
}

// Overview returns the named summary queries of a backend test.
func (q *BackendQueries) Overview(title string, r query.Range, every time.Duration) (map[string]string, error) {
	overview := map[string]string{}
	builders := map[string]func(string, query.Range) (string, error){
		"avg_rps":              q.AverageRPS,
		"avg_response_time":    q.AverageResponseTimeStats,
		"median_response_time": q.MedianResponseTimeStats,
		"pct90_response_time":  q.Pct90ResponseTimeStats,
	}
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
	errorsPct, err := q.ErrorsPct(title, r)
	if err != nil {
		return nil, err
	}
	for _, nq := range errorsPct {
		overview[nq.Column] = nq.Query
	}
	return overview, nil
}

// CustomVar lists the values of a custom variable tag for a test.
func (q *BackendQueries) CustomVar(title, tag string) string {
	return q.meta.CustomVar(title, strings.TrimSpace(tag))
}
