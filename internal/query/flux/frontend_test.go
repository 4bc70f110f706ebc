package flux

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/schema"
)

func newFrontend(t *testing.T, regex string) *FrontendQueries {
	t.Helper()
	q, err := NewFrontendQueries(query.Options{Bucket: "sitespeed", Regex: regex})
	require.NoError(t, err)
	return q
}

func TestFrontend_TestLog(t *testing.T) {
	queries := newFrontend(t, "").TestLog()
	require.Len(t, queries, 2)
	assert.Equal(t, lines(
		`from(bucket: "sitespeed")`,
		"range(start: 0)",
		`filter(fn: (r) => r["_measurement"] == "firstContentfulPaint" and r["_field"] == "median" and r["summaryType"] == "pageSummary")`,
		`group(columns: ["testTitle"])`,
		`sort(columns: ["_time"])`,
		"first()",
		`keep(columns: ["_time", "testTitle"])`,
	), queries[0].Query)
}

func TestFrontend_GoogleWebVitals(t *testing.T) {
	queries, err := newFrontend(t, "home").GoogleWebVitals("web", testRange)
	require.NoError(t, err)
	require.Len(t, queries, len(schema.WebVitals))
	assert.Equal(t, lines(
		`from(bucket: "sitespeed")`,
		rangeStage,
		`filter(fn: (r) => r["_measurement"] == "firstContentfulPaint" and r["_field"] == "median" and r["testTitle"] == "web" and r["summaryType"] == "pageSummary" and r["page"] =~ /^home$/)`,
		`group(columns: ["page"])`,
		"median()",
		`keep(columns: ["_value", "page"])`,
	), queries[0].Query)
}

func TestFrontend_ContentTypes(t *testing.T) {
	queries, err := newFrontend(t, "").ContentTypeTransferSize("web", testRange)
	require.NoError(t, err)
	require.Len(t, queries, len(schema.ContentTypes))
	for _, nq := range queries {
		assert.Contains(t, nq.Query, `r["contentType"] == "`+nq.Column+`"`)
	}
}

func TestFrontend_OverviewAndGroups(t *testing.T) {
	q := newFrontend(t, "")
	overview, err := q.Overview("web", testRange)
	require.NoError(t, err)
	assert.Len(t, overview, len(schema.OverviewPages))

	timings, err := q.PageTimings("web", testRange)
	require.NoError(t, err)
	assert.Len(t, timings, len(schema.PageTimings))

	cpu, err := q.CPULongTasks("web", testRange)
	require.NoError(t, err)
	assert.Len(t, cpu, len(schema.CPUMetrics))

	_, err = q.GoogleWebVitals("web", query.Range{})
	assert.Error(t, err)
}

func TestFrontend_PageLoadTime(t *testing.T) {
	s, err := newFrontend(t, "").PageLoadTime("web", testRange, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, s, `r["_measurement"] == "pageLoadTime"`)
	assert.Contains(t, s, `aggregateWindow(every: 1m, fn: mean, timeSrc: "_start", createEmpty: false)`)
}
