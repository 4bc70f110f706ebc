package insertion

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/schema"
)

// unknownResponseCode tags failed samples that carry no response code.
const unknownResponseCode = "unknown"

// Point is an engine-neutral stored point.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]interface{}
	Time        time.Time
}

// BuildOptions describes the test an upload belongs to.
type BuildOptions struct {
	TestTitle    string
	TestName     string
	TestTitleTag string
	// ConcurrencyTransaction is the transaction tag of the concurrency series of the target engine generation.
	ConcurrencyTransaction string
	Window                 time.Duration
	WriteEvents            bool
}

func (o *BuildOptions) validate() error {
	if strings.TrimSpace(o.TestTitle) == "" {
		return &perferrors.ErrInvalidArgument{Name: "testTitle", Message: "must not be empty"}
	}
	if o.Window <= 0 {
		return &perferrors.ErrInvalidArgument{Name: "aggregationWindow", Value: o.Window.String(), Message: "must be positive"}
	}
	if o.TestName == "" {
		o.TestName = o.TestTitle
	}
	if o.TestTitleTag == "" {
		o.TestTitleTag = schema.DefaultTestTitleTag
	}
	if o.ConcurrencyTransaction == "" {
		o.ConcurrencyTransaction = schema.ConcurrencyTransactionV2
	}
	return nil
}

// NormalizeResponseCode collapses numeric-looking codes to their integer form so that "500" and
// "500.0" land in the same series.
func NormalizeResponseCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return unknownResponseCode
	}
	if f, err := strconv.ParseFloat(code, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return code
}

type groupKey struct {
	window      time.Time
	transaction string
	status      string
}

type group struct {
	elapsed  []float64
	received int64
	sent     int64
	failures int64
}

type errorKey struct {
	window      time.Time
	transaction string
	code        string
	message     string
}

type nodeKey struct {
	window time.Time
	node   string
}

type nodeWindow struct {
	threads []float64
	started int64
	ended   int64
}

func status(success bool) string {
	if success {
		return schema.StatusOK
	}
	return schema.StatusKO
}

// Build aggregates samples into windows of opts.Window and returns every point of the upload:
// per-transaction and global statistics for each status class, the response-code histogram of
// failed samples, the per-node concurrency series and, optionally, the start and finish events.
// Windows without samples produce no points.
func Build(samples []Sample, opts BuildOptions) ([]Point, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, &perferrors.ErrInvalidArgument{Name: "samples", Message: "upload has no samples"}
	}
	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, func(a, b Sample) bool { return a.Timestamp.Before(b.Timestamp) })

	b := builder{opts: opts}
	points := b.aggregated(sorted)
	points = append(points, b.responseCodes(sorted)...)
	points = append(points, b.concurrency(sorted)...)
	if opts.WriteEvents {
		points = append(points, b.events(sorted)...)
	}
	return points, nil
}

type builder struct {
	opts BuildOptions
}

func (b builder) tags(extra ...string) map[string]string {
	tags := map[string]string{
		b.opts.TestTitleTag:   b.opts.TestTitle,
		schema.TagApplication: b.opts.TestName,
	}
	for i := 0; i+1 < len(extra); i += 2 {
		// Empty tag values cannot be stored.
		if extra[i+1] != "" {
			tags[extra[i]] = extra[i+1]
		}
	}
	return tags
}

var unixEpoch = time.Unix(0, 0).UTC()

// window returns the start of the window holding t. Windows are aligned on the Unix epoch.
func (b builder) window(t time.Time) time.Time {
	return unixEpoch.Add(t.Sub(unixEpoch).Truncate(b.opts.Window))
}

func (b builder) aggregated(samples []Sample) []Point {
	groups := map[groupKey]*group{}
	add := func(key groupKey, s Sample) {
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.elapsed = append(g.elapsed, s.Elapsed)
		g.received += s.Bytes
		g.sent += s.SentBytes
		if !s.Success {
			g.failures++
		}
	}
	for _, s := range samples {
		w := b.window(s.Timestamp)
		st := status(s.Success)
		add(groupKey{w, s.Label, st}, s)
		add(groupKey{w, s.Label, schema.StatusAll}, s)
		add(groupKey{w, schema.TransactionAll, st}, s)
		add(groupKey{w, schema.TransactionAll, schema.StatusAll}, s)
	}

	keys := maps.Keys(groups)
	slices.SortFunc(keys, func(a, b groupKey) bool {
		if !a.window.Equal(b.window) {
			return a.window.Before(b.window)
		}
		if a.transaction != b.transaction {
			return a.transaction < b.transaction
		}
		return a.status < b.status
	})

	points := make([]Point, 0, len(keys))
	for _, key := range keys {
		g := groups[key]
		elapsed := slices.Clone(g.elapsed)
		slices.Sort(elapsed)
		fields := map[string]interface{}{
			schema.FieldCount: int64(len(elapsed)),
			schema.FieldAvg:   stat.Mean(elapsed, nil),
			schema.FieldMin:   floats.Min(elapsed),
			schema.FieldMax:   floats.Max(elapsed),
		}
		for _, p := range schema.Percentiles {
			fields[p.Field] = stat.Quantile(p.Level/100, stat.LinInterp, elapsed, nil)
		}
		if key.status == schema.StatusAll {
			fields[schema.FieldReceived] = g.received
			fields[schema.FieldSent] = g.sent
		}
		if key.transaction == schema.TransactionAll && key.status == schema.StatusAll {
			fields[schema.FieldHit] = int64(len(elapsed))
			fields[schema.FieldCountError] = g.failures
		}
		points = append(points, Point{
			Measurement: schema.MeasurementAggregated,
			Tags:        b.tags(schema.TagTransaction, key.transaction, schema.TagStatus, key.status),
			Fields:      fields,
			Time:        key.window,
		})
	}
	return points
}

func (b builder) responseCodes(samples []Sample) []Point {
	counts := map[errorKey]int64{}
	for _, s := range samples {
		if s.Success {
			continue
		}
		w := b.window(s.Timestamp)
		code := NormalizeResponseCode(s.ResponseCode)
		counts[errorKey{w, s.Label, code, s.ResponseMessage}]++
		counts[errorKey{w, schema.TransactionAll, code, s.ResponseMessage}]++
	}
	keys := maps.Keys(counts)
	slices.SortFunc(keys, func(a, b errorKey) bool {
		if !a.window.Equal(b.window) {
			return a.window.Before(b.window)
		}
		if a.transaction != b.transaction {
			return a.transaction < b.transaction
		}
		if a.code != b.code {
			return a.code < b.code
		}
		return a.message < b.message
	})
	points := make([]Point, 0, len(keys))
	for _, key := range keys {
		points = append(points, Point{
			Measurement: schema.MeasurementErrors,
			Tags: b.tags(
				schema.TagTransaction, key.transaction,
				schema.TagResponseCode, key.code,
				schema.TagResponseMessage, key.message,
			),
			Fields: map[string]interface{}{schema.FieldCount: counts[key]},
			Time:   key.window,
		})
	}
	return points
}

// concurrency reconstructs per-node thread activity from the active-thread gauge: the deltas
// between consecutive samples of a node count threads started (positive) and ended (negative) in
// the window of the later sample.
func (b builder) concurrency(samples []Sample) []Point {
	byNode := map[string][]Sample{}
	recorded := false
	for _, s := range samples {
		byNode[s.Hostname] = append(byNode[s.Hostname], s)
		recorded = recorded || s.AllThreads != 0
	}
	if !recorded {
		return nil
	}

	windows := map[nodeKey]*nodeWindow{}
	for node, nodeSamples := range byNode {
		threads := make([]float64, len(nodeSamples))
		for i, s := range nodeSamples {
			threads[i] = float64(s.AllThreads)
		}
		deltas := make([]float64, len(threads))
		if len(threads) > 1 {
			floats.SubTo(deltas[1:], threads[1:], threads[:len(threads)-1])
		}
		for i, s := range nodeSamples {
			key := nodeKey{b.window(s.Timestamp), node}
			nw, ok := windows[key]
			if !ok {
				nw = &nodeWindow{}
				windows[key] = nw
			}
			nw.threads = append(nw.threads, threads[i])
			switch d := int64(deltas[i]); {
			case d > 0:
				nw.started += d
			case d < 0:
				nw.ended -= d
			}
		}
	}

	keys := maps.Keys(windows)
	slices.SortFunc(keys, func(a, b nodeKey) bool {
		if !a.window.Equal(b.window) {
			return a.window.Before(b.window)
		}
		return a.node < b.node
	})
	points := make([]Point, 0, len(keys))
	for _, key := range keys {
		nw := windows[key]
		points = append(points, Point{
			Measurement: schema.MeasurementAggregated,
			Tags:        b.tags(schema.TagTransaction, b.opts.ConcurrencyTransaction, schema.TagNodeName, key.node),
			Fields: map[string]interface{}{
				schema.FieldMinActiveThreads:  int64(floats.Min(nw.threads)),
				schema.FieldMaxActiveThreads:  int64(floats.Max(nw.threads)),
				schema.FieldMeanActiveThreads: stat.Mean(nw.threads, nil),
				schema.FieldStartedThreads:    nw.started,
				schema.FieldEndedThreads:      nw.ended,
			},
			Time: key.window,
		})
	}
	return points
}

// events marks the first and last sample instants of the test.
func (b builder) events(samples []Sample) []Point {
	first, last := samples[0].Timestamp, samples[len(samples)-1].Timestamp
	return []Point{
		{
			Measurement: schema.MeasurementEvents,
			Tags:        b.tags(schema.TagEventType, schema.EventStarted),
			Fields:      map[string]interface{}{schema.FieldEventText: b.opts.TestName + " started"},
			Time:        first,
		},
		{
			Measurement: schema.MeasurementEvents,
			Tags:        b.tags(schema.TagEventType, schema.EventFinished),
			Fields:      map[string]interface{}{schema.FieldEventText: b.opts.TestName + " finished"},
			Time:        last,
		},
	}
}

// Span returns the earliest and latest point instants.
func Span(points []Point) (time.Time, time.Time) {
	var first, last time.Time
	for i, p := range points {
		if i == 0 || p.Time.Before(first) {
			first = p.Time
		}
		if i == 0 || p.Time.After(last) {
			last = p.Time
		}
	}
	return first, last
}
