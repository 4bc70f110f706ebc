package extraction

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/schema"
	"github.com/perfreporter/perfreporter/internal/series"
	"github.com/perfreporter/perfreporter/internal/timeutil"
)

// Record is one result row of an engine query keyed by column name; tags of grouped results are
// merged into the row.
type Record map[string]interface{}

// Columns names the time and value columns of an engine's records.
type Columns struct {
	Time  string
	Value string
}

func (r Record) String(column string) string {
	switch v := r[column].(type) {
	case string:
		return v
	case nil:
		return ""
	case json.Number:
		return v.String()
	default:
		f, ok := r.Float(column)
		if !ok {
			return ""
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

// Float returns the numeric value of column. Nulls and non-numeric values report false.
func (r Record) Float(column string) (float64, bool) {
	var f float64
	switch v := r[column].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int64:
		f = float64(v)
	case int:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Time returns the instant of column, accepting native times, RFC3339 strings and epoch
// milliseconds or nanoseconds.
func (r Record) Time(column string) (time.Time, bool) {
	switch v := r[column].(type) {
	case time.Time:
		return v.UTC(), !v.IsZero()
	case string:
		t, err := timeutil.ParseInstant(v)
		return t, err == nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return epoch(n), true
	case int64:
		return epoch(v), true
	}
	return time.Time{}, false
}

// epoch interprets n as nanoseconds when it is too large to be milliseconds.
func epoch(n int64) time.Time {
	if n > 1e14 || n < -1e14 {
		return time.Unix(0, n).UTC()
	}
	return time.UnixMilli(n).UTC()
}

// SeriesFrom builds a series from records. Rows without a time are rejected; rows with a null value
// are skipped.
func SeriesFrom(records []Record, cols Columns) (series.TimeSeries, error) {
	points := make([]series.Point, 0, len(records))
	for i, rec := range records {
		t, ok := rec.Time(cols.Time)
		if !ok {
			return series.Empty(), errors.Errorf("record %d has no %s column", i, cols.Time)
		}
		v, ok := rec.Float(cols.Value)
		if !ok {
			continue
		}
		points = append(points, series.Point{Timestamp: t, Value: v})
	}
	return series.New(points)
}

// RequestSeriesFrom splits records by the transaction tag and builds one series per transaction.
func RequestSeriesFrom(records []Record, cols Columns) ([]series.RequestSeries, error) {
	byTransaction := map[string][]Record{}
	for _, rec := range records {
		tx := rec.String(schema.TagTransaction)
		byTransaction[tx] = append(byTransaction[tx], rec)
	}
	names := maps.Keys(byTransaction)
	slices.Sort(names)
	out := make([]series.RequestSeries, 0, len(names))
	for _, tx := range names {
		ts, err := SeriesFrom(byTransaction[tx], cols)
		if err != nil {
			return nil, errors.WithMessagef(err, "transaction %s", tx)
		}
		out = append(out, series.RequestSeries{Transaction: tx, Data: ts})
	}
	return out, nil
}

// FirstTime returns the time of the first record, or the zero time when there is none.
func FirstTime(records []Record, cols Columns) (time.Time, error) {
	if len(records) == 0 {
		return time.Time{}, nil
	}
	t, ok := records[0].Time(cols.Time)
	if !ok {
		return time.Time{}, errors.Errorf("record has no %s column", cols.Time)
	}
	return t, nil
}

// FirstFloat returns the value of the first record, or 0 when there is none.
func FirstFloat(records []Record, cols Columns) float64 {
	if len(records) == 0 {
		return 0
	}
	v, _ := records[0].Float(cols.Value)
	return v
}

// NamedRecords are the results of one NamedQuery.
type NamedRecords struct {
	Column  string
	Records []Record
}

// TestLogFrom joins the start_time, end_time and max_threads results of a test log request on the
// test title tag. Tests without both bounds are left out.
func TestLogFrom(results []NamedRecords, cols Columns, titleTag string) []TestLogRow {
	rows := map[string]*TestLogRow{}
	row := func(title string) *TestLogRow {
		r, ok := rows[title]
		if !ok {
			r = &TestLogRow{TestTitle: title}
			rows[title] = r
		}
		return r
	}
	for _, result := range results {
		for _, rec := range result.Records {
			title := rec.String(titleTag)
			if title == "" {
				continue
			}
			r := row(title)
			if name := rec.String(schema.TagApplication); name != "" {
				r.TestName = name
			}
			switch result.Column {
			case "start_time":
				if t, ok := rec.Time(cols.Time); ok && (r.StartTime.IsZero() || t.Before(r.StartTime)) {
					r.StartTime = t
				}
			case "end_time":
				if t, ok := rec.Time(cols.Time); ok && t.After(r.EndTime) {
					r.EndTime = t
				}
			case "max_threads":
				if v, ok := rec.Float(cols.Value); ok && int(math.Round(v)) > r.MaxThreads {
					r.MaxThreads = int(math.Round(v))
				}
			}
		}
	}
	out := make([]TestLogRow, 0, len(rows))
	for _, r := range rows {
		if r.StartTime.IsZero() || r.EndTime.IsZero() {
			continue
		}
		if r.TestName == "" {
			r.TestName = r.TestTitle
		}
		r.Duration = int64(math.Round(r.EndTime.Sub(r.StartTime).Seconds()))
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b TestLogRow) bool { return a.TestTitle < b.TestTitle })
	return out
}

// AggregatedFrom joins the per-column results of an aggregated table request on the transaction tag.
func AggregatedFrom(results []NamedRecords, cols Columns) []AggregatedRow {
	rows := map[string]*AggregatedRow{}
	for _, result := range results {
		for _, rec := range result.Records {
			tx := rec.String(schema.TagTransaction)
			v, ok := rec.Float(cols.Value)
			if tx == "" || !ok {
				continue
			}
			r, exists := rows[tx]
			if !exists {
				r = &AggregatedRow{Transaction: tx}
				rows[tx] = r
			}
			switch result.Column {
			case schema.FieldCount:
				r.Count = v
			case "errors":
				r.Errors = v
			case schema.FieldAvg:
				r.Avg = v
			case schema.FieldMin:
				r.Min = v
			case schema.FieldMax:
				r.Max = v
			case schema.FieldPct50:
				r.Pct50 = v
			case schema.FieldPct75:
				r.Pct75 = v
			case schema.FieldPct90:
				r.Pct90 = v
			case schema.FieldPct95:
				r.Pct95 = v
			case schema.FieldPct99:
				r.Pct99 = v
			case "stddev":
				r.Stddev = v
			}
		}
	}
	out := make([]AggregatedRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out
}

// ErrorsFrom reads a response-code histogram.
func ErrorsFrom(records []Record, cols Columns) []ErrorRow {
	out := make([]ErrorRow, 0, len(records))
	for _, rec := range records {
		v, ok := rec.Float(cols.Value)
		if !ok {
			continue
		}
		out = append(out, ErrorRow{
			Transaction:     rec.String(schema.TagTransaction),
			ResponseCode:    rec.String(schema.TagResponseCode),
			ResponseMessage: rec.String(schema.TagResponseMessage),
			Count:           v,
		})
	}
	return out
}

// PagesFrom joins per-metric results on the page tag.
func PagesFrom(results []NamedRecords, cols Columns) []PageRow {
	rows := map[string]map[string]float64{}
	for _, result := range results {
		for _, rec := range result.Records {
			page := rec.String(schema.TagPage)
			v, ok := rec.Float(cols.Value)
			if page == "" || !ok {
				continue
			}
			if rows[page] == nil {
				rows[page] = map[string]float64{}
			}
			rows[page][result.Column] = v
		}
	}
	out := make([]PageRow, 0, len(rows))
	for page, values := range rows {
		out = append(out, PageRow{Page: page, Values: values})
	}
	return out
}

// ValuesFrom returns the distinct non-empty string values of cols.Value in record order.
func ValuesFrom(records []Record, cols Columns) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(records))
	for _, rec := range records {
		v := rec.String(cols.Value)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// NamedQueries turns a map of named queries into a list ordered by name.
func NamedQueries(named map[string]string) []query.NamedQuery {
	names := maps.Keys(named)
	slices.Sort(names)
	out := make([]query.NamedQuery, 0, len(names))
	for _, name := range names {
		out = append(out, query.NamedQuery{Query: named[name], Column: name})
	}
	return out
}

// ErrorsPct is errors / total * 100, or 0 when total is not positive.
func ErrorsPct(errorCount, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return errorCount / total * 100
}
