// Package extraction defines the metrics every engine must provide and enforces the shape of their
// output before it reaches report generation.
package extraction

import (
	"time"

	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/listener"
	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/series"
)

// ErrNoQueryBuilder is returned by engines whose listener did not select a query builder of the
// family needed by the call.
var ErrNoQueryBuilder = errors.New("no query builder configured for this listener")

// Metric names a single-series or per-request metric.
type Metric string

const (
	MetricRPS                 Metric = "rps"
	MetricActiveThreads       Metric = "active_threads"
	MetricAverageResponseTime Metric = "average_response_time"
	MetricMedianResponseTime  Metric = "median_response_time"
	MetricPct90ResponseTime   Metric = "pct90_response_time"
	MetricErrorCount          Metric = "error_count"
	MetricThroughput          Metric = "throughput"
	MetricPageLoadTime        Metric = "page_load_time"
)

// Stat names a summary statistic over a whole test range.
type Stat string

const (
	StatAverageRPS          Stat = "avg_rps"
	StatAverageResponseTime Stat = "avg_response_time"
	StatMedianResponseTime  Stat = "median_response_time"
	StatPct90ResponseTime   Stat = "pct90_response_time"
	StatErrorsPct           Stat = "errors_pct"
)

// PageGroup names a frontend composite request merged by page.
type PageGroup string

const (
	PageOverview     PageGroup = "overview"
	PageWebVitals    PageGroup = "google_web_vitals"
	PageTimings      PageGroup = "page_timings"
	PageCPULongTasks PageGroup = "cpu_long_tasks"
	PageContentTypes PageGroup = "content_type_transfer_size"
)

// Source is implemented by each engine. Methods return the raw engine results; Client applies the
// output contracts.
//
// FetchStartTime and FetchEndTime return the zero time when the test has no data.
type Source interface {
	Name() string
	Listener() listener.Kind
	// Location is the display timezone of the integration.
	Location() *time.Location

	FetchTestsTitles(ctx *perfcontext.Context) ([]string, error)
	FetchTestLog(ctx *perfcontext.Context) ([]TestLogRow, error)
	FetchStartTime(ctx *perfcontext.Context, title string) (time.Time, error)
	FetchEndTime(ctx *perfcontext.Context, title string) (time.Time, error)
	FetchTestName(ctx *perfcontext.Context, title string, r query.Range) (string, error)
	FetchMaxActiveUsers(ctx *perfcontext.Context, title string, r query.Range, every time.Duration) (float64, error)
	FetchSeries(ctx *perfcontext.Context, metric Metric, title string, r query.Range, every time.Duration) (series.TimeSeries, error)
	FetchRequestSeries(ctx *perfcontext.Context, metric Metric, title string, r query.Range, every time.Duration) ([]series.RequestSeries, error)
	FetchAggregatedTable(ctx *perfcontext.Context, title string, r query.Range) ([]AggregatedRow, error)
	FetchErrorsTable(ctx *perfcontext.Context, title string, r query.Range) ([]ErrorRow, error)
	// FetchStat returns StatErrorsPct as a percentage in [0, 100] and 0 when nothing was recorded.
	FetchStat(ctx *perfcontext.Context, stat Stat, title string, r query.Range) (float64, error)
	FetchCustomVars(ctx *perfcontext.Context, title string) (map[string]string, error)
	FetchPageMetrics(ctx *perfcontext.Context, group PageGroup, title string, r query.Range) ([]PageRow, error)

	ListBuckets(ctx *perfcontext.Context, nameRegex string) ([]string, error)
	DeleteTestData(ctx *perfcontext.Context, title string, start, end *time.Time) error
}
