package engine

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/perfreporter/perfreporter/internal/listener"
	"github.com/perfreporter/perfreporter/internal/query"
)

// Meta is the identity part of every query builder.
type Meta interface {
	TestsTitles() string
	TestLog() []query.NamedQuery
	StartTime(title string) string
	EndTime(title string) string
	CustomVar(title, tag string) string
}

// Backend is implemented by the load-test query builders of both dialects.
type Backend interface {
	Meta
	TestName(title string, r query.Range) (string, error)
	MaxActiveUsers(title string, r query.Range, every time.Duration) (string, error)
	ActiveThreads(title string, r query.Range, every time.Duration) (string, error)
	RPS(title string, r query.Range, every time.Duration) (string, error)
	AverageResponseTime(title string, r query.Range, every time.Duration) (string, error)
	MedianResponseTime(title string, r query.Range, every time.Duration) (string, error)
	Pct90ResponseTime(title string, r query.Range, every time.Duration) (string, error)
	ErrorCount(title string, r query.Range, every time.Duration) (string, error)
	AverageResponseTimePerReq(title string, r query.Range, every time.Duration) (string, error)
	MedianResponseTimePerReq(title string, r query.Range, every time.Duration) (string, error)
	Pct90ResponseTimePerReq(title string, r query.Range, every time.Duration) (string, error)
	ThroughputPerReq(title string, r query.Range, every time.Duration) (string, error)
	ErrorCountPerReq(title string, r query.Range, every time.Duration) (string, error)
	AggregatedTable(title string, r query.Range) ([]query.NamedQuery, error)
	ErrorsTable(title string, r query.Range) (string, error)
	AverageRPS(title string, r query.Range) (string, error)
	AverageResponseTimeStats(title string, r query.Range) (string, error)
	MedianResponseTimeStats(title string, r query.Range) (string, error)
	Pct90ResponseTimeStats(title string, r query.Range) (string, error)
}

// Frontend is implemented by the browser-timing query builders of both dialects.
type Frontend interface {
	Meta
	Overview(title string, r query.Range) (map[string]string, error)
	GoogleWebVitals(title string, r query.Range) ([]query.NamedQuery, error)
	PageTimings(title string, r query.Range) ([]query.NamedQuery, error)
	CPULongTasks(title string, r query.Range) ([]query.NamedQuery, error)
	ContentTypeTransferSize(title string, r query.Range) ([]query.NamedQuery, error)
	PageLoadTime(title string, r query.Range, every time.Duration) (string, error)
}

// SelectListener parses the configured listener and reports whether an engine of generation gen
// can read it. On false, the reason has been logged and the engine runs without a query builder.
func SelectListener(logger *log.Entry, name string, gen listener.Generation) (listener.Kind, bool) {
	kind, err := listener.Parse(name)
	if err != nil {
		logger.WithError(err).Warn("unknown listener; queries are disabled")
		return "", false
	}
	if kind.Generation() != gen {
		logger.Warnf("listener %s belongs to generation %s and cannot be read by a %s engine; queries are disabled", kind, kind.Generation(), gen)
		return "", false
	}
	return kind, true
}
