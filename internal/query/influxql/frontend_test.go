package influxql

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/schema"
)

func newFrontend(t *testing.T, regex string) *FrontendQueries {
	t.Helper()
	q, err := NewFrontendQueries(query.Options{Bucket: "sitespeed", TestTitleTag: "title", Regex: regex})
	require.NoError(t, err)
	return q
}

func TestFrontend_MetaQueries(t *testing.T) {
	q := newFrontend(t, "")
	assert.Equal(t, `SHOW TAG VALUES ON "sitespeed" FROM "firstContentfulPaint" WITH KEY = "title"`, q.TestsTitles())
	assert.Equal(t,
		`SELECT first("median") AS "value" FROM "firstContentfulPaint" WHERE "title" = 'web' AND "summaryType" = 'pageSummary'`,
		q.StartTime("web"))

	log := q.TestLog()
	require.Len(t, log, 2)
	assert.Equal(t, `SELECT last("median") AS "value" FROM "firstContentfulPaint" WHERE "summaryType" = 'pageSummary' GROUP BY "title"`, log[1].Query)
}

func TestFrontend_GoogleWebVitals(t *testing.T) {
	queries, err := newFrontend(t, "/checkout.*").GoogleWebVitals("web", testRange)
	require.NoError(t, err)
	require.Len(t, queries, len(schema.WebVitals))
	assert.Equal(t, schema.FirstContentfulPaint, queries[0].Column)
	assert.Equal(t,
		`SELECT median("median") AS "value" FROM "firstContentfulPaint" WHERE "title" = 'web' AND "summaryType" = 'pageSummary' AND "page" =~ /^\/checkout.*$/ AND `+timeCond+` GROUP BY "page"`,
		queries[0].Query)
}

func TestFrontend_ContentTypes(t *testing.T) {
	queries, err := newFrontend(t, "").ContentTypeTransferSize("web", testRange)
	require.NoError(t, err)
	require.Len(t, queries, len(schema.ContentTypes))
	for i, nq := range queries {
		assert.Equal(t, schema.ContentTypes[i], nq.Column)
		assert.Contains(t, nq.Query, `FROM "transferSize"`)
		assert.Contains(t, nq.Query, `"contentType" = '`+nq.Column+`'`)
	}
}

func TestFrontend_OverviewAndGroups(t *testing.T) {
	q := newFrontend(t, "")
	overview, err := q.Overview("web", testRange)
	require.NoError(t, err)
	assert.Len(t, overview, len(schema.OverviewPages))
	assert.Contains(t, overview[schema.PageLoadTime], `FROM "pageLoadTime"`)

	timings, err := q.PageTimings("web", testRange)
	require.NoError(t, err)
	assert.Len(t, timings, len(schema.PageTimings))

	cpu, err := q.CPULongTasks("web", testRange)
	require.NoError(t, err)
	assert.Equal(t, schema.CPULongTasks, cpu[0].Column)
}

func TestFrontend_PageLoadTime(t *testing.T) {
	s, err := newFrontend(t, "").PageLoadTime("web", testRange, time.Minute)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT mean("median") AS "value" FROM "pageLoadTime" WHERE "title" = 'web' AND "summaryType" = 'pageSummary' AND `+timeCond+` GROUP BY time(1m) fill(none)`,
		s)
}

func TestFrontend_GroupColumns(t *testing.T) {
	q := newFrontend(t, "")
	tests := map[string]struct {
		build   func(string, query.Range) ([]query.NamedQuery, error)
		columns []string
	}{
		"web vitals":    {build: q.GoogleWebVitals, columns: schema.WebVitals},
		"page timings":  {build: q.PageTimings, columns: schema.PageTimings},
		"cpu":           {build: q.CPULongTasks, columns: schema.CPUMetrics},
		"content types": {build: q.ContentTypeTransferSize, columns: schema.ContentTypes},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			queries, err := tc.build("web", testRange)
			require.NoError(t, err)
			columns := make([]string, len(queries))
			for i, nq := range queries {
				columns[i] = nq.Column
			}
			if diff := cmp.Diff(tc.columns, columns); diff != "" {
				t.Errorf("columns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
