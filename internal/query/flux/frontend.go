package flux

import (
	"time"

	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/schema"
)

// FrontendQueries builds Flux queries over the browser-timing (sitespeed) schema.
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
	tests := from(q.opts.Bucket).always().
		filter(q.representativeConds("")...).
		group(q.opts.TestTitleTag)
	return bounds(tests, q.opts.TestTitleTag)
}

func (q *FrontendQueries) pages(measurement, title string, r query.Range, extra ...string) pipeline {
	conds := []string{eq("_measurement", measurement), eq("_field", schema.FieldMedian), q.title(title), eq(schema.TagSummaryType, schema.SummaryTypePage)}
	if q.opts.Regex != "" {
		conds = append(conds, matches(schema.TagPage, q.opts.Regex))
	}
	return from(q.opts.Bucket).between(r).filter(append(conds, extra...)...)
}

func (q *FrontendQueries) perPage(measurement, title string, r query.Range, extra ...string) string {
	return q.pages(measurement, title, r, extra...).
		group(schema.TagPage).
		pipe("median()").
		keep("_value", schema.TagPage).
		String()
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
	return q.pages(schema.PageLoadTime, title, r).
		group().
		window(validEvery(every), "mean").
		keep("_time", "_value").
		String(), nil
}
