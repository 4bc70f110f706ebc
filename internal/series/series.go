// Package series holds the timestamp-indexed value series returned by every single-series metric.
package series

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Point is a single (timestamp, value) observation.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TimeSeries is an ordered sequence of points with strictly increasing timestamps.
// The zero value is an empty series; Points is never nil for series built by this package.
type TimeSeries struct {
	Points []Point
}

// Empty returns a correctly shaped series with no points.
func Empty() TimeSeries {
	return TimeSeries{Points: []Point{}}
}

// New sorts points by timestamp and checks the series invariants: no zero timestamps, no duplicate
// timestamps and no NaN or infinite values.
func New(points []Point) (TimeSeries, error) {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	slices.SortStableFunc(sorted, func(a, b Point) bool { return a.Timestamp.Before(b.Timestamp) })
	ts := TimeSeries{Points: sorted}
	if err := ts.Validate(); err != nil {
		return Empty(), err
	}
	return ts, nil
}

// Validate checks the series invariants.
func (ts TimeSeries) Validate() error {
	if ts.Points == nil {
		return errors.New("series has no point slice")
	}
	for i, p := range ts.Points {
		if p.Timestamp.IsZero() {
			return errors.Errorf("point %d has no timestamp", i)
		}
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return errors.Errorf("point %d at %s has non-finite value %v", i, p.Timestamp, p.Value)
		}
		if i > 0 && !ts.Points[i-1].Timestamp.Before(p.Timestamp) {
			return errors.Errorf("point %d at %s is not after point %d at %s", i, p.Timestamp, i-1, ts.Points[i-1].Timestamp)
		}
	}
	return nil
}

func (ts TimeSeries) Len() int {
	return len(ts.Points)
}

// Values returns the point values in timestamp order.
func (ts TimeSeries) Values() []float64 {
	values := make([]float64, len(ts.Points))
	for i, p := range ts.Points {
		values[i] = p.Value
	}
	return values
}

// In returns a copy of the series with every timestamp expressed in loc.
func (ts TimeSeries) In(loc *time.Location) TimeSeries {
	points := make([]Point, len(ts.Points))
	for i, p := range ts.Points {
		points[i] = Point{Timestamp: p.Timestamp.In(loc), Value: p.Value}
	}
	return TimeSeries{Points: points}
}

func (ts TimeSeries) MarshalJSON() ([]byte, error) {
	if ts.Points == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(ts.Points)
}

func (ts *TimeSeries) UnmarshalJSON(data []byte) error {
	var points []Point
	if err := json.Unmarshal(data, &points); err != nil {
		return err
	}
	if points == nil {
		points = []Point{}
	}
	parsed, err := New(points)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// RequestSeries is the series of one transaction in a per-request breakdown.
type RequestSeries struct {
	Transaction string     `json:"transaction"`
	Data        TimeSeries `json:"data"`
}

// Validate checks the transaction name and the inner series.
func (rs RequestSeries) Validate() error {
	if rs.Transaction == "" {
		return errors.New("per-request series has no transaction")
	}
	return errors.WithMessagef(rs.Data.Validate(), "transaction %s", rs.Transaction)
}
