// Package engine implements the read half of extraction.Source on top of a query builder and a
// function that runs one query. The engine generations only differ in how queries run and in
// how the error percentage is obtained.
package engine

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/extraction"
	"github.com/perfreporter/perfreporter/internal/listener"
	"github.com/perfreporter/perfreporter/internal/metrics"
	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/schema"
	"github.com/perfreporter/perfreporter/internal/series"
)

// RunFunc runs one query and returns its rows.
type RunFunc func(ctx *perfcontext.Context, q string) ([]extraction.Record, error)

// ErrorsPctFunc computes the percentage of failed requests of a test.
type ErrorsPctFunc func(ctx *perfcontext.Context, title string, r query.Range) (float64, error)

// Options configures a Reader. At most one of Backend and Frontend is set; with neither, every
// query fails with extraction.ErrNoQueryBuilder.
type Options struct {
	Name       string
	Listener   listener.Kind
	Location   *time.Location
	Columns    extraction.Columns
	TitleTag   string
	CustomVars []string
	Backend    Backend
	Frontend   Frontend
	Run        RunFunc
	ErrorsPct  ErrorsPctFunc
}

type Reader struct {
	opts Options
}

func NewReader(opts Options) *Reader {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Reader{opts: opts}
}

func (r *Reader) Name() string {
	return r.opts.Name
}

func (r *Reader) Listener() listener.Kind {
	return r.opts.Listener
}

func (r *Reader) Location() *time.Location {
	return r.opts.Location
}

// Columns names the time and value columns of this engine's rows.
func (r *Reader) Columns() extraction.Columns {
	return r.opts.Columns
}

func (r *Reader) meta() (Meta, error) {
	switch {
	case r.opts.Backend != nil:
		return r.opts.Backend, nil
	case r.opts.Frontend != nil:
		return r.opts.Frontend, nil
	}
	return nil, extraction.ErrNoQueryBuilder
}

func (r *Reader) backend() (Backend, error) {
	if r.opts.Backend == nil {
		return nil, extraction.ErrNoQueryBuilder
	}
	return r.opts.Backend, nil
}

func (r *Reader) frontend() (Frontend, error) {
	if r.opts.Frontend == nil {
		return nil, extraction.ErrNoQueryBuilder
	}
	return r.opts.Frontend, nil
}

// Query runs q, recording it under operation.
func (r *Reader) Query(ctx *perfcontext.Context, operation, q string) ([]extraction.Record, error) {
	start := time.Now()
	records, err := r.opts.Run(ctx, q)
	metrics.Get().RecordQuery(r.opts.Name, operation, time.Since(start), err)
	if err != nil {
		ctx.Log.WithFields(log.Fields{"engine": r.opts.Name, "operation": operation, "query": q}).WithError(err).Debug("query failed")
		return nil, errors.WithMessagef(err, "running %s query", operation)
	}
	return records, nil
}

func (r *Reader) queryBuilt(ctx *perfcontext.Context, operation string, q string, err error) ([]extraction.Record, error) {
	if err != nil {
		return nil, err
	}
	return r.Query(ctx, operation, q)
}

// QueryNamed runs queries one after another and stops at the first failure.
func (r *Reader) QueryNamed(ctx *perfcontext.Context, operation string, queries []query.NamedQuery) ([]extraction.NamedRecords, error) {
	results := make([]extraction.NamedRecords, 0, len(queries))
	for _, nq := range queries {
		records, err := r.Query(ctx, operation, nq.Query)
		if err != nil {
			return nil, errors.WithMessagef(err, "column %s", nq.Column)
		}
		results = append(results, extraction.NamedRecords{Column: nq.Column, Records: records})
	}
	return results, nil
}

func (r *Reader) FetchTestsTitles(ctx *perfcontext.Context) ([]string, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	records, err := r.Query(ctx, "tests_titles", meta.TestsTitles())
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		ctx.Log.WithField("engine", r.opts.Name).Warn("no tests found")
	}
	return extraction.ValuesFrom(records, r.opts.Columns), nil
}

func (r *Reader) FetchTestLog(ctx *perfcontext.Context) ([]extraction.TestLogRow, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	results, err := r.QueryNamed(ctx, "test_log", meta.TestLog())
	if err != nil {
		return nil, err
	}
	return extraction.TestLogFrom(results, r.opts.Columns, r.opts.TitleTag), nil
}

func (r *Reader) bound(ctx *perfcontext.Context, operation, title string, build func(Meta, string) string) (time.Time, error) {
	meta, err := r.meta()
	if err != nil {
		return time.Time{}, err
	}
	records, err := r.Query(ctx, operation, build(meta, title))
	if err != nil {
		return time.Time{}, err
	}
	if len(records) == 0 {
		ctx.Log.WithFields(log.Fields{"engine": r.opts.Name, "testTitle": title}).Warn("no data found for test")
	}
	return extraction.FirstTime(records, r.opts.Columns)
}

func (r *Reader) FetchStartTime(ctx *perfcontext.Context, title string) (time.Time, error) {
	return r.bound(ctx, "start_time", title, Meta.StartTime)
}

func (r *Reader) FetchEndTime(ctx *perfcontext.Context, title string) (time.Time, error) {
	return r.bound(ctx, "end_time", title, Meta.EndTime)
}

func (r *Reader) FetchTestName(ctx *perfcontext.Context, title string, rng query.Range) (string, error) {
	backend, err := r.backend()
	if err != nil {
		return "", err
	}
	q, err := backend.TestName(title, rng)
	records, err := r.queryBuilt(ctx, "test_name", q, err)
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		if name := rec.String(schema.TagApplication); name != "" {
			return name, nil
		}
	}
	return "", nil
}

func (r *Reader) FetchMaxActiveUsers(ctx *perfcontext.Context, title string, rng query.Range, every time.Duration) (float64, error) {
	backend, err := r.backend()
	if err != nil {
		return 0, err
	}
	q, err := backend.MaxActiveUsers(title, rng, every)
	records, err := r.queryBuilt(ctx, "max_active_users", q, err)
	if err != nil {
		return 0, err
	}
	return extraction.FirstFloat(records, r.opts.Columns), nil
}

type seriesBuilder func(title string, r query.Range, every time.Duration) (string, error)

func (r *Reader) seriesBuilder(metric extraction.Metric, perReq bool) (seriesBuilder, error) {
	if metric == extraction.MetricPageLoadTime && !perReq {
		frontend, err := r.frontend()
		if err != nil {
			return nil, err
		}
		return frontend.PageLoadTime, nil
	}
	backend, err := r.backend()
	if err != nil {
		return nil, err
	}
	var builders map[extraction.Metric]seriesBuilder
	if perReq {
		builders = map[extraction.Metric]seriesBuilder{
			extraction.MetricAverageResponseTime: backend.AverageResponseTimePerReq,
			extraction.MetricMedianResponseTime:  backend.MedianResponseTimePerReq,
			extraction.MetricPct90ResponseTime:   backend.Pct90ResponseTimePerReq,
			extraction.MetricThroughput:          backend.ThroughputPerReq,
			extraction.MetricErrorCount:          backend.ErrorCountPerReq,
		}
	} else {
		builders = map[extraction.Metric]seriesBuilder{
			extraction.MetricRPS:                 backend.RPS,
			extraction.MetricActiveThreads:       backend.ActiveThreads,
			extraction.MetricAverageResponseTime: backend.AverageResponseTime,
			extraction.MetricMedianResponseTime:  backend.MedianResponseTime,
			extraction.MetricPct90ResponseTime:   backend.Pct90ResponseTime,
			extraction.MetricErrorCount:          backend.ErrorCount,
		}
	}
	build, ok := builders[metric]
	if !ok {
		return nil, errors.WithStack(&perferrors.ErrInvalidArgument{Name: "metric", Value: string(metric), Message: "not available for this listener"})
	}
	return build, nil
}

func (r *Reader) FetchSeries(ctx *perfcontext.Context, metric extraction.Metric, title string, rng query.Range, every time.Duration) (series.TimeSeries, error) {
	build, err := r.seriesBuilder(metric, false)
	if err != nil {
		return series.Empty(), err
	}
	q, err := build(title, rng, every)
	records, err := r.queryBuilt(ctx, string(metric), q, err)
	if err != nil {
		return series.Empty(), err
	}
	return extraction.SeriesFrom(records, r.opts.Columns)
}

func (r *Reader) FetchRequestSeries(ctx *perfcontext.Context, metric extraction.Metric, title string, rng query.Range, every time.Duration) ([]series.RequestSeries, error) {
	build, err := r.seriesBuilder(metric, true)
	if err != nil {
		return nil, err
	}
	q, err := build(title, rng, every)
	records, err := r.queryBuilt(ctx, string(metric)+"_per_req", q, err)
	if err != nil {
		return nil, err
	}
	return extraction.RequestSeriesFrom(records, r.opts.Columns)
}

func (r *Reader) FetchAggregatedTable(ctx *perfcontext.Context, title string, rng query.Range) ([]extraction.AggregatedRow, error) {
	backend, err := r.backend()
	if err != nil {
		return nil, err
	}
	queries, err := backend.AggregatedTable(title, rng)
	if err != nil {
		return nil, err
	}
	results, err := r.QueryNamed(ctx, "aggregated_table", queries)
	if err != nil {
		return nil, err
	}
	return extraction.AggregatedFrom(results, r.opts.Columns), nil
}

func (r *Reader) FetchErrorsTable(ctx *perfcontext.Context, title string, rng query.Range) ([]extraction.ErrorRow, error) {
	backend, err := r.backend()
	if err != nil {
		return nil, err
	}
	q, err := backend.ErrorsTable(title, rng)
	records, err := r.queryBuilt(ctx, "errors_table", q, err)
	if err != nil {
		return nil, err
	}
	return extraction.ErrorsFrom(records, r.opts.Columns), nil
}

func (r *Reader) FetchStat(ctx *perfcontext.Context, stat extraction.Stat, title string, rng query.Range) (float64, error) {
	backend, err := r.backend()
	if err != nil {
		return 0, err
	}
	var build func(string, query.Range) (string, error)
	switch stat {
	case extraction.StatAverageRPS:
		build = backend.AverageRPS
	case extraction.StatAverageResponseTime:
		build = backend.AverageResponseTimeStats
	case extraction.StatMedianResponseTime:
		build = backend.MedianResponseTimeStats
	case extraction.StatPct90ResponseTime:
		build = backend.Pct90ResponseTimeStats
	case extraction.StatErrorsPct:
		if r.opts.ErrorsPct == nil {
			return 0, extraction.ErrNoQueryBuilder
		}
		return r.opts.ErrorsPct(ctx, title, rng)
	default:
		return 0, errors.WithStack(&perferrors.ErrInvalidArgument{Name: "stat", Value: string(stat)})
	}
	q, err := build(title, rng)
	records, err := r.queryBuilt(ctx, string(stat), q, err)
	if err != nil {
		return 0, err
	}
	return extraction.FirstFloat(records, r.opts.Columns), nil
}

// FetchCustomVars returns the values of every configured custom variable tag, comma separated
// when a test carries several. Tags without a value are left out.
func (r *Reader) FetchCustomVars(ctx *perfcontext.Context, title string) (map[string]string, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	vars := make(map[string]string, len(r.opts.CustomVars))
	for _, tag := range r.opts.CustomVars {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		records, err := r.Query(ctx, "custom_var", meta.CustomVar(title, tag))
		if err != nil {
			return nil, errors.WithMessagef(err, "custom variable %s", tag)
		}
		if values := extraction.ValuesFrom(records, r.opts.Columns); len(values) > 0 {
			vars[tag] = strings.Join(values, ", ")
		}
	}
	return vars, nil
}

func (r *Reader) FetchPageMetrics(ctx *perfcontext.Context, group extraction.PageGroup, title string, rng query.Range) ([]extraction.PageRow, error) {
	frontend, err := r.frontend()
	if err != nil {
		return nil, err
	}
	var queries []query.NamedQuery
	switch group {
	case extraction.PageOverview:
		var overview map[string]string
		overview, err = frontend.Overview(title, rng)
		queries = extraction.NamedQueries(overview)
	case extraction.PageWebVitals:
		queries, err = frontend.GoogleWebVitals(title, rng)
	case extraction.PageTimings:
		queries, err = frontend.PageTimings(title, rng)
	case extraction.PageCPULongTasks:
		queries, err = frontend.CPULongTasks(title, rng)
	case extraction.PageContentTypes:
		queries, err = frontend.ContentTypeTransferSize(title, rng)
	default:
		return nil, errors.WithStack(&perferrors.ErrInvalidArgument{Name: "group", Value: string(group)})
	}
	if err != nil {
		return nil, err
	}
	results, err := r.QueryNamed(ctx, string(group), queries)
	if err != nil {
		return nil, err
	}
	return extraction.PagesFrom(results, r.opts.Columns), nil
}
