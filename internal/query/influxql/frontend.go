package influxql

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/schema"
)

// FrontendQueries builds queries over the browser-timing (sitespeed) schema, where every metric is
// stored as its own measurement of page summaries.
type FrontendQueries struct {
	meta
}

func NewFrontendQueries(opts query.Options) (*FrontendQueries, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "options are invalid")
	}
	return &FrontendQueries{
		meta: meta{
			opts:           opts,
			representative: schema.FirstContentfulPaint,
			boundsField:    schema.FieldMedian,
			boundsConds:    []string{eq(schema.TagSummaryType, schema.SummaryTypePage)},
		},
	}, nil
}

func (q *FrontendQueries) TestsTitles() string {
	return q.meta.TestsTitles(q.representative)
}

// TestLog returns the start and end queries of every frontend test, grouped by test title.
func (q *FrontendQueries) TestLog() []query.NamedQuery {
	groupBy := fmt.Sprintf(" GROUP BY %s", Ident(q.opts.TestTitleTag))
	from := Ident(q.representative) + where(q.boundsConds...)
	return []query.NamedQuery{
		{Query: fmt.Sprintf(`SELECT first(%s) AS "value" FROM %s%s`, Ident(q.boundsField), from, groupBy), Column: "start_time"},
		{Query: fmt.Sprintf(`SELECT last(%s) AS "value" FROM %s%s`, Ident(q.boundsField), from, groupBy), Column: "end_time"},
	}
}

func (q *FrontendQueries) pages(title string, r query.Range) []string {
	conds := []string{q.title(title), eq(schema.TagSummaryType, schema.SummaryTypePage)}
	if q.opts.Regex != "" {
		conds = append(conds, matches(schema.TagPage, q.opts.Regex))
	}
	return append(conds, timeRange(r))
}

func (q *FrontendQueries) perPage(measurement, title string, r query.Range, extra ...string) string {
	conds := append(q.pages(title, r), extra...)
	return fmt.Sprintf(`SELECT median(%s) AS "value" FROM %s%s GROUP BY %s`,
		Ident(schema.FieldMedian), Ident(measurement), where(conds...), Ident(schema.TagPage))
}

func (q *FrontendQueries) perPageAll(measurements []string, title string, r query.Range) ([]query.NamedQuery, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	queries := make([]query.NamedQuery, 0, len(measurements))
	for _, m := range measurements {
		queries = append(queries, query.NamedQuery{Query: q.perPage(m, title, r), Column: m})
	}
	return queries, nil
}

// Overview returns per-page median queries of the key page metrics keyed by metric name.
func (q *FrontendQueries) Overview(title string, r query.Range) (map[string]string, error) {
	queries, err := q.perPageAll(schema.OverviewPages, title, r)
	if err != nil {
		return nil, err
	}
	overview := make(map[string]string, len(queries))
	for _, nq := range queries {
		overview[nq.Column] = nq.Query
	}
	return overview, nil
}

func (q *FrontendQueries) GoogleWebVitals(title string, r query.Range) ([]query.NamedQuery, error) {
	return q.perPageAll(schema.WebVitals, title, r)
}

func (q *FrontendQueries) PageTimings(title string, r query.Range) ([]query.NamedQuery, error) {
	return q.perPageAll(schema.PageTimings, title, r)
}

func (q *FrontendQueries) CPULongTasks(title string, r query.Range) ([]query.NamedQuery, error) {
	return q.perPageAll(schema.CPUMetrics, title, r)
}

// ContentTypeTransferSize returns one transfer size query per content type.
func (q *FrontendQueries) ContentTypeTransferSize(title string, r query.Range) ([]query.NamedQuery, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	queries := make([]query.NamedQuery, 0, len(schema.ContentTypes))
	for _, contentType := range schema.ContentTypes {
		queries = append(queries, query.NamedQuery{
			Query:  q.perPage(schema.TransferSize, title, r, eq(schema.TagContentType, contentType)),
			Column: contentType,
		})
	}
	return queries, nil
}

// PageLoadTime selects the page load time averaged over pages for every window.
func (q *FrontendQueries) PageLoadTime(title string, r query.Range, every time.Duration) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf(`SELECT mean(%s) AS "value" FROM %s%s GROUP BY %s fill(none)`,
		Ident(schema.FieldMedian), Ident(schema.PageLoadTime), where(q.pages(title, r)...), groupByTime(validEvery(every))), nil
}
