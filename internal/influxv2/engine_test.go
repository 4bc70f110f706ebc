package influxv2

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/common/util"
	"github.com/perfreporter/perfreporter/internal/configuration"
	"github.com/perfreporter/perfreporter/internal/extraction"
	"github.com/perfreporter/perfreporter/internal/insertion"
	"github.com/perfreporter/perfreporter/internal/listener"
	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/schema"
)

type deleteCall struct {
	bucket    string
	start     time.Time
	stop      time.Time
	predicate string
}

type fakeClient struct {
	// respond answers a query; nil returns no rows.
	respond   func(q string) ([]map[string]interface{}, error)
	queries   []string
	written   [][]*write.Point
	failWrite int // 1-based index of the failing write call; 0 never fails
	deleteErr error
	deletes   []deleteCall
	buckets   []string
	pingErr   error
	closed    int
}

func (f *fakeClient) Query(_ context.Context, _, flux string) ([]map[string]interface{}, error) {
	f.queries = append(f.queries, flux)
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(flux)
}

func (f *fakeClient) WritePoints(_ context.Context, _, _ string, points []*write.Point) error {
	if f.failWrite > 0 && len(f.written)+1 == f.failWrite {
		return errors.New("write refused")
	}
	f.written = append(f.written, points)
	return nil
}

func (f *fakeClient) Delete(_ context.Context, _, bucket string, start, stop time.Time, predicate string) error {
	f.deletes = append(f.deletes, deleteCall{bucket: bucket, start: start, stop: stop, predicate: predicate})
	return f.deleteErr
}

func (f *fakeClient) Buckets(context.Context) ([]string, error) { return f.buckets, nil }

func (f *fakeClient) Ping(context.Context) (bool, error) { return f.pingErr == nil, f.pingErr }

func (f *fakeClient) Close() { f.closed++ }

func testConfig(l listener.Kind) configuration.SourceConfig {
	return configuration.SourceConfig{
		IntegrationConfig: configuration.IntegrationConfig{
			ID:               "main",
			Type:             configuration.TypeInfluxDBV2,
			URL:              "http://localhost:8086",
			OrgOrUsername:    "perf",
			BucketOrDatabase: "jmeter",
			Listener:         string(l),
			CustomVars:       []string{"environment"},
		},
		Credential: "token",
		Location:   time.UTC,
		BatchSize:  1000,
	}
}

func newTestEngine(t *testing.T, l listener.Kind, client *fakeClient) *Engine {
	e, err := newEngine(perfcontext.Background(), testConfig(l), client)
	require.NoError(t, err)
	return e
}

var testRange = query.Range{
	Start: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	Stop:  time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC),
}

func TestNewEngine_SelectsBuilder(t *testing.T) {
	tests := map[string]struct {
		listener     listener.Kind
		wantListener listener.Kind
		backend      bool
		frontend     bool
	}{
		"backend":                    {listener: listener.JMeterV2, wantListener: listener.JMeterV2, backend: true},
		"frontend":                   {listener: listener.SitespeedV2, wantListener: listener.SitespeedV2, frontend: true},
		"backend of v1":              {listener: listener.JMeterV1},
		"frontend of v1":             {listener: listener.SitespeedV1},
		"unknown listener":           {listener: "gatling"},
		"listener with extra spaces": {listener: " " + listener.JMeterV2 + " ", wantListener: listener.JMeterV2, backend: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e := newTestEngine(t, tc.listener, &fakeClient{})
			assert.Equal(t, tc.wantListener, e.Listener())
			assert.Equal(t, tc.backend, e.backend != nil)

			_, err := e.FetchPageMetrics(perfcontext.Background(), extraction.PageWebVitals, "smoke", testRange)
			if tc.frontend {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, extraction.ErrNoQueryBuilder)
			}
			_, err = e.FetchStat(perfcontext.Background(), extraction.StatErrorsPct, "smoke", testRange)
			if tc.backend {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, extraction.ErrNoQueryBuilder)
			}
		})
	}
}

func TestNewEngine_UnreachableServerIsNotFatal(t *testing.T) {
	e, err := newEngine(perfcontext.Background(), testConfig(listener.JMeterV2), &fakeClient{pingErr: errors.New("connection refused")})
	require.NoError(t, err)
	assert.Equal(t, Name, e.Name())
}

func TestNewEngine_InvalidOptions(t *testing.T) {
	cfg := testConfig(listener.JMeterV2)
	cfg.BucketOrDatabase = ""
	client := &fakeClient{}
	_, err := newEngine(perfcontext.Background(), cfg, client)
	assert.True(t, perferrors.IsInvalidArgument(err))
	assert.Equal(t, 1, client.closed)
}

func TestEngine_FetchSeries(t *testing.T) {
	client := &fakeClient{respond: func(string) ([]map[string]interface{}, error) {
		return []map[string]interface{}{
			{"_time": testRange.Start.Add(5 * time.Second), "_value": 4.0},
			{"_time": testRange.Start, "_value": 2.0},
		}, nil
	}}
	e := newTestEngine(t, listener.JMeterV2, client)

	ts, err := e.FetchSeries(perfcontext.Background(), extraction.MetricRPS, "smoke", testRange, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, ts.Values())
	require.Len(t, client.queries, 1)
	assert.Contains(t, client.queries[0], `r["testTitle"] == "smoke"`)
	assert.Contains(t, client.queries[0], "aggregateWindow(every: 5s")
}

func TestEngine_FetchRequestSeries(t *testing.T) {
	client := &fakeClient{respond: func(string) ([]map[string]interface{}, error) {
		return []map[string]interface{}{
			{"_time": testRange.Start, "_value": 120.0, "transaction": "login"},
			{"_time": testRange.Start, "_value": 80.0, "transaction": "home"},
		}, nil
	}}
	e := newTestEngine(t, listener.JMeterV2, client)

	perReq, err := e.FetchRequestSeries(perfcontext.Background(), extraction.MetricAverageResponseTime, "smoke", testRange, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, perReq, 2)
	assert.Equal(t, "home", perReq[0].Transaction)
	assert.Equal(t, []float64{120}, perReq[1].Data.Values())
}

func TestEngine_FetchStat_ErrorsPct(t *testing.T) {
	client := &fakeClient{respond: func(string) ([]map[string]interface{}, error) {
		return []map[string]interface{}{{"_value": 12.5}}, nil
	}}
	e := newTestEngine(t, listener.JMeterV2, client)

	pct, err := e.FetchStat(perfcontext.Background(), extraction.StatErrorsPct, "smoke", testRange)
	require.NoError(t, err)
	assert.Equal(t, 12.5, pct)
	require.Len(t, client.queries, 1)
	assert.Contains(t, client.queries[0], "pivot(")
}

func TestEngine_FetchTestLog(t *testing.T) {
	start := testRange.Start
	end := start.Add(10 * time.Minute)
	client := &fakeClient{respond: func(q string) ([]map[string]interface{}, error) {
		switch {
		case strings.Contains(q, "first()"):
			return []map[string]interface{}{{"_time": start, "testTitle": "smoke", "application": "Shop"}}, nil
		case strings.Contains(q, "last()"):
			return []map[string]interface{}{{"_time": end, "testTitle": "smoke", "application": "Shop"}}, nil
		default:
			return []map[string]interface{}{{"_value": int64(50), "testTitle": "smoke"}}, nil
		}
	}}
	e := newTestEngine(t, listener.JMeterV2, client)

	rows, err := e.FetchTestLog(perfcontext.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, extraction.TestLogRow{
		TestTitle:  "smoke",
		TestName:   "Shop",
		StartTime:  start,
		EndTime:    end,
		Duration:   600,
		MaxThreads: 50,
	}, rows[0])
}

// mergedTable answers a query the way Flux returns rows after group(): in series-key order unless
// the query sorts them by time.
func mergedTable(q string, rows []map[string]interface{}) []map[string]interface{} {
	if len(rows) == 0 {
		return nil
	}
	rows = slices.Clone(rows)
	if strings.Contains(q, `sort(columns: ["_time"])`) {
		slices.SortStableFunc(rows, func(a, b map[string]interface{}) bool {
			return a["_time"].(time.Time).Before(b["_time"].(time.Time))
		})
	}
	switch {
	case strings.Contains(q, "|> first()"):
		return rows[:1]
	case strings.Contains(q, "|> last()"):
		return rows[len(rows)-1:]
	}
	return rows
}

func TestEngine_FetchTestLog_MergedSeries(t *testing.T) {
	start := testRange.Start
	end := start.Add(10 * time.Minute)
	// "finished" sorts before "started" in series-key order.
	events := []map[string]interface{}{
		{"_time": end, "testTitle": "smoke", "application": "Shop", "type": schema.EventFinished},
		{"_time": start, "testTitle": "smoke", "application": "Shop", "type": schema.EventStarted},
	}
	aggregated := []map[string]interface{}{
		{"_time": start, "testTitle": "smoke", "application": "Shop"},
		{"_time": start.Add(5 * time.Minute), "testTitle": "smoke", "application": "Shop"},
		{"_time": end, "testTitle": "smoke", "application": "Shop"},
	}
	tests := map[string]struct {
		events     []map[string]interface{}
		aggregated []map[string]interface{}
	}{
		"events and aggregated series": {events: events, aggregated: aggregated},
		"events only":                  {events: events},
		"uploaded without events":      {aggregated: aggregated},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			client := &fakeClient{respond: func(q string) ([]map[string]interface{}, error) {
				switch {
				case strings.Contains(q, `r["_measurement"] == "events"`):
					return mergedTable(q, tc.events), nil
				case strings.Contains(q, `r["_field"] == "count"`):
					return mergedTable(q, tc.aggregated), nil
				default:
					return []map[string]interface{}{{"_value": int64(50), "testTitle": "smoke"}}, nil
				}
			}}
			e := newTestEngine(t, listener.JMeterV2, client)

			rows := extraction.NewClient(e, 0).GetTestLog(perfcontext.Background())
			require.Len(t, rows, 1)
			assert.Equal(t, extraction.TestLogRow{
				TestTitle:  "smoke",
				TestName:   "Shop",
				StartTime:  start,
				EndTime:    end,
				Duration:   600,
				MaxThreads: 50,
			}, rows[0])
		})
	}
}

func TestEngine_StartEndTime_MergedSeries(t *testing.T) {
	start := testRange.Start
	end := start.Add(10 * time.Minute)
	// Two series of the representative measurement, merged in series-key order.
	rows := []map[string]interface{}{
		{"_time": start.Add(time.Minute), "_value": int64(3)},
		{"_time": end, "_value": int64(4)},
		{"_time": start, "_value": int64(1)},
		{"_time": end.Add(-time.Minute), "_value": int64(2)},
	}
	client := &fakeClient{respond: func(q string) ([]map[string]interface{}, error) {
		return mergedTable(q, rows), nil
	}}
	e := newTestEngine(t, listener.JMeterV2, client)

	first, err := e.FetchStartTime(perfcontext.Background(), "smoke")
	require.NoError(t, err)
	assert.Equal(t, start, first)
	last, err := e.FetchEndTime(perfcontext.Background(), "smoke")
	require.NoError(t, err)
	assert.Equal(t, end, last)
}

func TestEngine_FetchCustomVars(t *testing.T) {
	client := &fakeClient{respond: func(string) ([]map[string]interface{}, error) {
		return []map[string]interface{}{{"_value": "staging"}}, nil
	}}
	e := newTestEngine(t, listener.JMeterV2, client)

	vars, err := e.FetchCustomVars(perfcontext.Background(), "smoke")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"environment": "staging"}, vars)
	assert.Contains(t, client.queries[0], `tag: "environment"`)
}

func TestEngine_FetchPageMetrics(t *testing.T) {
	client := &fakeClient{respond: func(string) ([]map[string]interface{}, error) {
		return []map[string]interface{}{{"_value": 950.0, "page": "home"}}, nil
	}}
	e := newTestEngine(t, listener.SitespeedV2, client)

	rows, err := e.FetchPageMetrics(perfcontext.Background(), extraction.PageOverview, "smoke", testRange)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "home", rows[0].Page)
	assert.Len(t, rows[0].Values, len(schema.OverviewPages))
	assert.Len(t, client.queries, len(schema.OverviewPages))
}

func TestEngine_QueryFailure(t *testing.T) {
	client := &fakeClient{respond: func(string) ([]map[string]interface{}, error) {
		return nil, errors.New("timeout")
	}}
	e := newTestEngine(t, listener.JMeterV2, client)

	_, err := e.FetchAggregatedTable(perfcontext.Background(), "smoke", testRange)
	assert.Error(t, err)
}

func TestEngine_ListBuckets(t *testing.T) {
	e := newTestEngine(t, listener.JMeterV2, &fakeClient{buckets: []string{"_monitoring", "_tasks", "jmeter", "jmeter-nightly", "sitespeed"}})

	buckets, err := e.ListBuckets(perfcontext.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"jmeter", "jmeter-nightly", "sitespeed"}, buckets)

	buckets, err = e.ListBuckets(perfcontext.Background(), "jmeter.*")
	require.NoError(t, err)
	assert.Equal(t, []string{"jmeter", "jmeter-nightly"}, buckets)
}

func TestEngine_DeleteTestData(t *testing.T) {
	client := &fakeClient{}
	e := newTestEngine(t, listener.JMeterV2, client)
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	e.clock = &util.DummyClock{T: now}
	start := testRange.Start
	end := testRange.Stop

	require.NoError(t, e.DeleteTestData(perfcontext.Background(), "smoke", &start, &end))
	require.NoError(t, e.DeleteTestData(perfcontext.Background(), `say "hi"`, nil, nil))

	require.Len(t, client.deletes, 2)
	assert.Equal(t, deleteCall{bucket: "jmeter", start: start, stop: end, predicate: `testTitle="smoke"`}, client.deletes[0])
	assert.Equal(t, time.Unix(0, 0).UTC(), client.deletes[1].start)
	assert.Equal(t, now, client.deletes[1].stop)
	assert.Equal(t, `testTitle="say \"hi\""`, client.deletes[1].predicate)
}

func uploadFrame(n int) insertion.Frame {
	f := insertion.Frame{Columns: map[string][]string{}}
	for i := 0; i < n; i++ {
		f.Index = append(f.Index, testRange.Start.Add(time.Duration(i)*time.Second))
		f.Columns[insertion.ColumnLabel] = append(f.Columns[insertion.ColumnLabel], "home")
		f.Columns[insertion.ColumnElapsed] = append(f.Columns[insertion.ColumnElapsed], strconv.Itoa(100+i))
		f.Columns[insertion.ColumnSuccess] = append(f.Columns[insertion.ColumnSuccess], strconv.FormatBool(i%4 != 0))
		f.Columns[insertion.ColumnResponseCode] = append(f.Columns[insertion.ColumnResponseCode], "200")
		f.Columns[insertion.ColumnAllThreads] = append(f.Columns[insertion.ColumnAllThreads], "2")
	}
	return f
}

func testUpload() insertion.Upload {
	return insertion.Upload{Frame: uploadFrame(20), TestTitle: "smoke", AggregationWindow: "5s"}
}

func TestEngine_WriteUpload(t *testing.T) {
	client := &fakeClient{}
	e := newTestEngine(t, listener.JMeterV2, client)

	prepared, err := insertion.Prepare(testUpload(), schema.DefaultTestTitleTag, schema.ConcurrencyTransactionV2)
	require.NoError(t, err)

	result, err := e.WriteUpload(perfcontext.Background(), testUpload())
	require.NoError(t, err)
	assert.Equal(t, len(prepared.Points), result.PointsWritten)
	require.Len(t, client.written, 1)
	assert.Len(t, client.written[0], len(prepared.Points))
	assert.Empty(t, client.deletes)
}

func TestEngine_WriteUpload_RollsBackOnFailure(t *testing.T) {
	client := &fakeClient{failWrite: 3}
	cfg := testConfig(listener.JMeterV2)
	cfg.BatchSize = 2
	e, err := newEngine(perfcontext.Background(), cfg, client)
	require.NoError(t, err)

	prepared, err := insertion.Prepare(testUpload(), schema.DefaultTestTitleTag, schema.ConcurrencyTransactionV2)
	require.NoError(t, err)
	require.Greater(t, len(prepared.Points), 4)

	result, err := e.WriteUpload(perfcontext.Background(), testUpload())
	var partial *perferrors.ErrPartialWrite
	require.True(t, errors.As(err, &partial))
	assert.True(t, partial.Rollback)
	assert.Equal(t, 4, partial.PointsWritten)
	assert.Equal(t, 4, result.PointsWritten)

	require.Len(t, client.deletes, 1)
	assert.Equal(t, deleteCall{
		bucket:    "jmeter",
		start:     prepared.First.Add(-5 * time.Second),
		stop:      prepared.Last.Add(5 * time.Second),
		predicate: `testTitle="smoke"`,
	}, client.deletes[0])
}

func TestEngine_WriteUpload_FailedRollback(t *testing.T) {
	client := &fakeClient{failWrite: 1, deleteErr: errors.New("forbidden")}
	e := newTestEngine(t, listener.JMeterV2, client)

	_, err := e.WriteUpload(perfcontext.Background(), testUpload())
	var partial *perferrors.ErrPartialWrite
	require.True(t, errors.As(err, &partial))
	assert.False(t, partial.Rollback)
	assert.Contains(t, err.Error(), "write refused")
	assert.Contains(t, err.Error(), "forbidden")
}

func TestEngine_WriteUpload_InvalidUploadWritesNothing(t *testing.T) {
	client := &fakeClient{}
	e := newTestEngine(t, listener.JMeterV2, client)

	upload := testUpload()
	upload.AggregationWindow = "0s"
	_, err := e.WriteUpload(perfcontext.Background(), upload)
	assert.True(t, perferrors.IsInvalidArgument(err))
	assert.Empty(t, client.written)
	assert.Empty(t, client.deletes)
}

func TestEngine_Close(t *testing.T) {
	client := &fakeClient{}
	e := newTestEngine(t, listener.JMeterV2, client)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, 1, client.closed)

	_, err := e.FetchTestsTitles(perfcontext.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.WriteUpload(perfcontext.Background(), testUpload())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, e.DeleteTestData(perfcontext.Background(), "smoke", nil, nil), ErrClosed)
}
