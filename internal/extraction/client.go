package extraction

import (
	"math"
	"regexp"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/series"
	"github.com/perfreporter/perfreporter/internal/timeutil"
)

// minAutoWindow is the smallest read window picked when the client has no fixed window.
const minAutoWindow = time.Second

// Client wraps a Source with the output contracts of every metric. Engine failures are logged and
// degrade to empty results; malformed engine output is either rejected with ErrShapeViolation
// (scalar results) or logged and replaced by an empty result (collections).
type Client struct {
	source Source
	// window is the read aggregation window; zero picks one from the requested range.
	window time.Duration
}

func NewClient(source Source, window time.Duration) *Client {
	return &Client{source: source, window: window}
}

func (c *Client) Source() Source {
	return c.source
}

func (c *Client) logger(ctx *perfcontext.Context, operation string) *log.Entry {
	return ctx.Log.WithFields(log.Fields{
		"engine":    c.source.Name(),
		"listener":  string(c.source.Listener()),
		"operation": operation,
	})
}

func (c *Client) degrade(ctx *perfcontext.Context, operation string, err error) {
	c.logger(ctx, operation).WithError(err).Warn("extraction failed; returning an empty result")
}

func (c *Client) every(r query.Range) time.Duration {
	if c.window > 0 {
		return c.window
	}
	return timeutil.AutoWindow(r.Start, r.Stop, minAutoWindow)
}

func rangeOf(start, end time.Time) query.Range {
	return query.Range{Start: start.UTC(), Stop: end.UTC()}
}

func round2(v float64) float64 {
	return scalar.Round(v, 2)
}

func finite(operation string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.WithStack(&perferrors.ErrShapeViolation{Operation: operation, Message: "value is not finite"})
	}
	return nil
}

func (c *Client) GetTestsTitles(ctx *perfcontext.Context) []string {
	titles, err := c.source.FetchTestsTitles(ctx)
	if err != nil {
		c.degrade(ctx, "get_tests_titles", err)
		return []string{}
	}
	if len(titles) == 0 {
		c.logger(ctx, "get_tests_titles").Warn("no tests found")
		return []string{}
	}
	return titles
}

// GetTestLog returns every test, newest first.
func (c *Client) GetTestLog(ctx *perfcontext.Context) []TestLogRow {
	const operation = "get_test_log"
	rows, err := c.source.FetchTestLog(ctx)
	if err != nil {
		c.degrade(ctx, operation, err)
		return []TestLogRow{}
	}
	if len(rows) == 0 {
		c.logger(ctx, operation).Warn("no data found for any test")
		return []TestLogRow{}
	}
	if err := validateRows(operation, rows); err != nil {
		c.degrade(ctx, operation, err)
		return []TestLogRow{}
	}
	loc := c.source.Location()
	out := make([]TestLogRow, len(rows))
	for i, row := range rows {
		row.StartTime = timeutil.Localize(row.StartTime, loc)
		row.EndTime = timeutil.Localize(row.EndTime, loc)
		out[i] = row
	}
	slices.SortStableFunc(out, func(a, b TestLogRow) bool { return a.StartTime.After(b.StartTime) })
	return out
}

func (c *Client) boundary(ctx *perfcontext.Context, operation, title string, format timeutil.Format, boundary timeutil.Boundary,
	fetch func(*perfcontext.Context, string) (time.Time, error),
) (*timeutil.FormattedTime, error) {
	if _, err := timeutil.ParseFormat(string(format)); err != nil {
		return nil, err
	}
	t, err := fetch(ctx, title)
	if err != nil {
		c.degrade(ctx, operation, err)
		return nil, nil
	}
	if t.IsZero() {
		c.logger(ctx, operation).WithField("testTitle", title).Warn("no data found for test")
		return nil, nil
	}
	formatted, err := timeutil.FormatBoundary(t, c.source.Location(), format, boundary)
	if err != nil {
		return nil, err
	}
	if err := formatted.Validate(); err != nil {
		return nil, errors.WithStack(&perferrors.ErrShapeViolation{Operation: operation, Message: err.Error()})
	}
	return &formatted, nil
}

// GetStartTime returns the first instant of the test, or nil when the test has no data.
func (c *Client) GetStartTime(ctx *perfcontext.Context, title string, format timeutil.Format) (*timeutil.FormattedTime, error) {
	return c.boundary(ctx, "get_start_time", title, format, timeutil.Start, c.source.FetchStartTime)
}

// GetEndTime returns the last instant of the test, or nil when the test has no data.
func (c *Client) GetEndTime(ctx *perfcontext.Context, title string, format timeutil.Format) (*timeutil.FormattedTime, error) {
	return c.boundary(ctx, "get_end_time", title, format, timeutil.End, c.source.FetchEndTime)
}

func (c *Client) GetTestName(ctx *perfcontext.Context, title string, start, end time.Time) (string, error) {
	name, err := c.source.FetchTestName(ctx, title, rangeOf(start, end))
	if err != nil {
		c.degrade(ctx, "get_test_name", err)
		return "", nil
	}
	return name, nil
}

func (c *Client) GetMaxActiveUsers(ctx *perfcontext.Context, title string, start, end time.Time) (int, error) {
	const operation = "get_max_active_users"
	r := rangeOf(start, end)
	users, err := c.source.FetchMaxActiveUsers(ctx, title, r, c.every(r))
	if err != nil {
		c.degrade(ctx, operation, err)
		return 0, nil
	}
	if err := finite(operation, users); err != nil {
		return 0, err
	}
	if users < 0 {
		return 0, errors.WithStack(&perferrors.ErrShapeViolation{Operation: operation, Message: "negative user count"})
	}
	return int(math.Round(users)), nil
}

func (c *Client) singleSeries(ctx *perfcontext.Context, metric Metric, title string, start, end time.Time) (series.TimeSeries, error) {
	operation := "get_" + string(metric)
	r := rangeOf(start, end)
	ts, err := c.source.FetchSeries(ctx, metric, title, r, c.every(r))
	if err != nil {
		c.degrade(ctx, operation, err)
		return series.Empty(), nil
	}
	if ts.Points == nil {
		ts = series.Empty()
	}
	if err := ts.Validate(); err != nil {
		return series.Empty(), errors.WithStack(&perferrors.ErrShapeViolation{Operation: operation, Message: err.Error()})
	}
	return ts.In(c.source.Location()), nil
}

func (c *Client) GetRPS(ctx *perfcontext.Context, title string, start, end time.Time) (series.TimeSeries, error) {
	return c.singleSeries(ctx, MetricRPS, title, start, end)
}

func (c *Client) GetActiveThreads(ctx *perfcontext.Context, title string, start, end time.Time) (series.TimeSeries, error) {
	return c.singleSeries(ctx, MetricActiveThreads, title, start, end)
}

func (c *Client) GetAverageResponseTime(ctx *perfcontext.Context, title string, start, end time.Time) (series.TimeSeries, error) {
	return c.singleSeries(ctx, MetricAverageResponseTime, title, start, end)
}

func (c *Client) GetMedianResponseTime(ctx *perfcontext.Context, title string, start, end time.Time) (series.TimeSeries, error) {
	return c.singleSeries(ctx, MetricMedianResponseTime, title, start, end)
}

func (c *Client) GetPct90ResponseTime(ctx *perfcontext.Context, title string, start, end time.Time) (series.TimeSeries, error) {
	return c.singleSeries(ctx, MetricPct90ResponseTime, title, start, end)
}

func (c *Client) GetErrorCount(ctx *perfcontext.Context, title string, start, end time.Time) (series.TimeSeries, error) {
	return c.singleSeries(ctx, MetricErrorCount, title, start, end)
}

// GetPageLoadTime returns the page load time of a frontend test averaged over its pages.
func (c *Client) GetPageLoadTime(ctx *perfcontext.Context, title string, start, end time.Time) (series.TimeSeries, error) {
	return c.singleSeries(ctx, MetricPageLoadTime, title, start, end)
}

func (c *Client) perReq(ctx *perfcontext.Context, metric Metric, title string, start, end time.Time) []series.RequestSeries {
	operation := "get_" + string(metric) + "_per_req"
	r := rangeOf(start, end)
	all, err := c.source.FetchRequestSeries(ctx, metric, title, r, c.every(r))
	if err != nil {
		c.degrade(ctx, operation, err)
		return []series.RequestSeries{}
	}
	loc := c.source.Location()
	out := make([]series.RequestSeries, 0, len(all))
	for _, rs := range all {
		if rs.Data.Points == nil {
			rs.Data = series.Empty()
		}
		if err := rs.Validate(); err != nil {
			c.degrade(ctx, operation, &perferrors.ErrShapeViolation{Operation: operation, Message: err.Error()})
			return []series.RequestSeries{}
		}
		out = append(out, series.RequestSeries{Transaction: rs.Transaction, Data: rs.Data.In(loc)})
	}
	slices.SortStableFunc(out, func(a, b series.RequestSeries) bool { return a.Transaction < b.Transaction })
	return out
}

func (c *Client) GetAverageResponseTimePerReq(ctx *perfcontext.Context, title string, start, end time.Time) []series.RequestSeries {
	return c.perReq(ctx, MetricAverageResponseTime, title, start, end)
}

func (c *Client) GetMedianResponseTimePerReq(ctx *perfcontext.Context, title string, start, end time.Time) []series.RequestSeries {
	return c.perReq(ctx, MetricMedianResponseTime, title, start, end)
}

func (c *Client) GetPct90ResponseTimePerReq(ctx *perfcontext.Context, title string, start, end time.Time) []series.RequestSeries {
	return c.perReq(ctx, MetricPct90ResponseTime, title, start, end)
}

func (c *Client) GetThroughputPerReq(ctx *perfcontext.Context, title string, start, end time.Time) []series.RequestSeries {
	return c.perReq(ctx, MetricThroughput, title, start, end)
}

func (c *Client) GetErrorCountPerReq(ctx *perfcontext.Context, title string, start, end time.Time) []series.RequestSeries {
	return c.perReq(ctx, MetricErrorCount, title, start, end)
}

// GetAggregatedTable returns the per-transaction summary, sorted by transaction. RPM is derived
// from the count over the requested range.
func (c *Client) GetAggregatedTable(ctx *perfcontext.Context, title string, start, end time.Time) []AggregatedRow {
	const operation = "get_aggregated_table"
	r := rangeOf(start, end)
	rows, err := c.source.FetchAggregatedTable(ctx, title, r)
	if err != nil {
		c.degrade(ctx, operation, err)
		return []AggregatedRow{}
	}
	if err := validateRows(operation, rows); err != nil {
		c.degrade(ctx, operation, err)
		return []AggregatedRow{}
	}
	out := make([]AggregatedRow, len(rows))
	for i, row := range rows {
		if minutes := r.Minutes(); minutes > 0 {
			row.RPM = round2(row.Count / minutes)
		}
		out[i] = row
	}
	slices.SortStableFunc(out, func(a, b AggregatedRow) bool { return a.Transaction < b.Transaction })
	return out
}

// GetErrorsTable returns the response-code histogram, most frequent first.
func (c *Client) GetErrorsTable(ctx *perfcontext.Context, title string, start, end time.Time) []ErrorRow {
	const operation = "get_errors_table"
	rows, err := c.source.FetchErrorsTable(ctx, title, rangeOf(start, end))
	if err != nil {
		c.degrade(ctx, operation, err)
		return []ErrorRow{}
	}
	if err := validateRows(operation, rows); err != nil {
		c.degrade(ctx, operation, err)
		return []ErrorRow{}
	}
	out := append(make([]ErrorRow, 0, len(rows)), rows...)
	slices.SortStableFunc(out, func(a, b ErrorRow) bool { return a.Count > b.Count })
	return out
}

func (c *Client) stat(ctx *perfcontext.Context, stat Stat, title string, start, end time.Time) (float64, error) {
	operation := "get_" + string(stat) + "_stats"
	v, err := c.source.FetchStat(ctx, stat, title, rangeOf(start, end))
	if err != nil {
		c.degrade(ctx, operation, err)
		return 0, nil
	}
	if err := finite(operation, v); err != nil {
		return 0, err
	}
	return round2(v), nil
}

func (c *Client) GetAverageRPS(ctx *perfcontext.Context, title string, start, end time.Time) (float64, error) {
	return c.stat(ctx, StatAverageRPS, title, start, end)
}

func (c *Client) GetAverageResponseTimeStats(ctx *perfcontext.Context, title string, start, end time.Time) (float64, error) {
	return c.stat(ctx, StatAverageResponseTime, title, start, end)
}

func (c *Client) GetMedianResponseTimeStats(ctx *perfcontext.Context, title string, start, end time.Time) (float64, error) {
	return c.stat(ctx, StatMedianResponseTime, title, start, end)
}

func (c *Client) GetPct90ResponseTimeStats(ctx *perfcontext.Context, title string, start, end time.Time) (float64, error) {
	return c.stat(ctx, StatPct90ResponseTime, title, start, end)
}

// GetErrorsPctStats returns the percentage of failed requests rounded to two decimals.
func (c *Client) GetErrorsPctStats(ctx *perfcontext.Context, title string, start, end time.Time) (float64, error) {
	pct, err := c.stat(ctx, StatErrorsPct, title, start, end)
	if err != nil {
		return 0, err
	}
	if pct < 0 || pct > 100 {
		return 0, errors.WithStack(&perferrors.ErrShapeViolation{Operation: "get_errors_pct_stats", Message: "percentage out of range"})
	}
	return pct, nil
}

// GetCustomVars returns the value of every configured custom variable tag.
func (c *Client) GetCustomVars(ctx *perfcontext.Context, title string) map[string]string {
	vars, err := c.source.FetchCustomVars(ctx, title)
	if err != nil || vars == nil {
		if err != nil {
			c.degrade(ctx, "get_custom_vars", err)
		}
		return map[string]string{}
	}
	return vars
}

func (c *Client) pages(ctx *perfcontext.Context, group PageGroup, title string, start, end time.Time) []PageRow {
	operation := "get_" + string(group)
	rows, err := c.source.FetchPageMetrics(ctx, group, title, rangeOf(start, end))
	if err != nil {
		c.degrade(ctx, operation, err)
		return []PageRow{}
	}
	if err := validateRows(operation, rows); err != nil {
		c.degrade(ctx, operation, err)
		return []PageRow{}
	}
	out := append(make([]PageRow, 0, len(rows)), rows...)
	slices.SortStableFunc(out, func(a, b PageRow) bool { return a.Page < b.Page })
	return out
}

func (c *Client) GetFrontendOverview(ctx *perfcontext.Context, title string, start, end time.Time) []PageRow {
	return c.pages(ctx, PageOverview, title, start, end)
}

func (c *Client) GetGoogleWebVitals(ctx *perfcontext.Context, title string, start, end time.Time) []PageRow {
	return c.pages(ctx, PageWebVitals, title, start, end)
}

func (c *Client) GetPageTimings(ctx *perfcontext.Context, title string, start, end time.Time) []PageRow {
	return c.pages(ctx, PageTimings, title, start, end)
}

func (c *Client) GetCPULongTasks(ctx *perfcontext.Context, title string, start, end time.Time) []PageRow {
	return c.pages(ctx, PageCPULongTasks, title, start, end)
}

func (c *Client) GetContentTypeTransferSize(ctx *perfcontext.Context, title string, start, end time.Time) []PageRow {
	return c.pages(ctx, PageContentTypes, title, start, end)
}

// ListBuckets lists the bucket (or database) names matching nameRegex, which is anchored.
func (c *Client) ListBuckets(ctx *perfcontext.Context, nameRegex string) ([]string, error) {
	if nameRegex != "" {
		if _, err := regexp.Compile(query.AnchorRegex(nameRegex)); err != nil {
			return nil, &perferrors.ErrInvalidArgument{Name: "regex", Value: nameRegex, Message: err.Error()}
		}
	}
	buckets, err := c.source.ListBuckets(ctx, nameRegex)
	if err != nil {
		return nil, errors.WithMessage(err, "listing buckets")
	}
	if buckets == nil {
		buckets = []string{}
	}
	slices.Sort(buckets)
	return buckets, nil
}

// DeleteTestData removes every point of a test, optionally limited to [start, end].
func (c *Client) DeleteTestData(ctx *perfcontext.Context, title string, start, end *time.Time) error {
	if title == "" {
		return &perferrors.ErrInvalidArgument{Name: "testTitle", Message: "must not be empty"}
	}
	if start != nil && end != nil && end.Before(*start) {
		return &perferrors.ErrInvalidArgument{Name: "end", Value: end.String(), Message: "must not be before start"}
	}
	return errors.WithMessagef(c.source.DeleteTestData(ctx, title, start, end), "deleting test %s", title)
}

// MatchBuckets filters names with the anchored nameRegex; the empty pattern matches everything.
func MatchBuckets(names []string, nameRegex string, exclude func(string) bool) ([]string, error) {
	var re *regexp.Regexp
	if nameRegex != "" {
		var err error
		if re, err = regexp.Compile(query.AnchorRegex(nameRegex)); err != nil {
			return nil, &perferrors.ErrInvalidArgument{Name: "regex", Value: nameRegex, Message: err.Error()}
		}
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if exclude != nil && exclude(name) {
			continue
		}
		if re == nil || re.MatchString(name) {
			out = append(out, name)
		}
	}
	return out, nil
}
