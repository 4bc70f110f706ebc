// Package metrics instruments the queries and writes issued by the engines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "perfreporter_"

var queriesCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "queries_total",
		Help: "Number of queries issued to a time-series engine",
	},
	[]string{"engine", "operation"},
)

var queryFailuresCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "query_failures_total",
		Help: "Number of queries that failed",
	},
	[]string{"engine", "operation"},
)

var queryDurationHist = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    prefix + "query_duration_seconds",
		Help:    "Round-trip time of a query",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"engine"},
)

var pointsWrittenCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "points_written_total",
		Help: "Number of points written by uploads",
	},
	[]string{"engine"},
)

var writeBatchesCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "write_batches_total",
		Help: "Number of write batches submitted",
	},
	[]string{"engine", "result"},
)

var rollbacksCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "rollbacks_total",
		Help: "Number of compensating deletes performed after a failed upload",
	},
	[]string{"engine", "result"},
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

type Metrics struct{}

var m = &Metrics{}

func Get() *Metrics {
	return m
}

// RecordQuery records one query of operation and how long it took.
func (m *Metrics) RecordQuery(engine, operation string, duration time.Duration, err error) {
	queriesCounter.With(prometheus.Labels{"engine": engine, "operation": operation}).Inc()
	queryDurationHist.With(prometheus.Labels{"engine": engine}).Observe(duration.Seconds())
	if err != nil {
		queryFailuresCounter.With(prometheus.Labels{"engine": engine, "operation": operation}).Inc()
	}
}

func (m *Metrics) RecordBatch(engine string, points int, err error) {
	if err != nil {
		writeBatchesCounter.With(prometheus.Labels{"engine": engine, "result": ResultFailure}).Inc()
		return
	}
	writeBatchesCounter.With(prometheus.Labels{"engine": engine, "result": ResultSuccess}).Inc()
	pointsWrittenCounter.With(prometheus.Labels{"engine": engine}).Add(float64(points))
}

func (m *Metrics) RecordRollback(engine string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	rollbacksCounter.With(prometheus.Labels{"engine": engine, "result": result}).Inc()
}
