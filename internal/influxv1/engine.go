// Package influxv1 is the engine for the legacy generation of the time-series database, queried
// with InfluxQL over user and password authentication.
package influxv1

import (
	"strings"
	"sync"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/configuration"
	"github.com/perfreporter/perfreporter/internal/engine"
	"github.com/perfreporter/perfreporter/internal/extraction"
	"github.com/perfreporter/perfreporter/internal/insertion"
	"github.com/perfreporter/perfreporter/internal/listener"
	"github.com/perfreporter/perfreporter/internal/metrics"
	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/query/influxql"
	"github.com/perfreporter/perfreporter/internal/schema"
	"github.com/perfreporter/perfreporter/internal/timeutil"
)

const (
	Name = "influxdb_v1"

	defaultTimeout = 60 * time.Second
	pingTimeout    = 5 * time.Second

	// internalDatabase holds the server's own monitoring data.
	internalDatabase = "_internal"
)

var (
	columns = extraction.Columns{Time: "time", Value: "value"}

	ErrClosed = errors.New("engine is closed")
)

// influxQLClient is the subset of the server API the engine uses. client.Client implements it.
type influxQLClient interface {
	Query(q client.Query) (*client.Response, error)
	Write(bp client.BatchPoints) error
	Ping(timeout time.Duration) (time.Duration, string, error)
	Close() error
}

type Engine struct {
	*engine.Reader

	cfg       configuration.SourceConfig
	titleTag  string
	batchSize int
	client    influxQLClient
	backend   *influxql.BackendQueries

	mu     sync.Mutex
	closed bool
}

// New connects to the server described by cfg.
func New(ctx *perfcontext.Context, cfg configuration.SourceConfig) (*Engine, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.URL,
		Username: cfg.OrgOrUsername,
		Password: cfg.Credential,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "creating client for %s", cfg.URL)
	}
	return newEngine(ctx, cfg, c)
}

func newEngine(ctx *perfcontext.Context, cfg configuration.SourceConfig, c influxQLClient) (*Engine, error) {
	loc := cfg.Location
	if loc == nil {
		var err error
		if loc, err = timeutil.LoadLocation(cfg.Tmz); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	opts := query.Options{
		Bucket:       cfg.BucketOrDatabase,
		TestTitleTag: cfg.TestTitleTagName,
		Regex:        cfg.Regex,
		CustomVars:   cfg.CustomVars,
	}
	if err := opts.Validate(); err != nil {
		_ = c.Close()
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		titleTag:  opts.TestTitleTag,
		batchSize: cfg.BatchSize,
		client:    c,
	}
	logger := ctx.Log.WithFields(log.Fields{"engine": Name, "listener": cfg.Listener})
	readerOpts := engine.Options{
		Name:       Name,
		Location:   loc,
		Columns:    columns,
		TitleTag:   opts.TestTitleTag,
		CustomVars: opts.CustomVars,
		Run:        e.run,
		ErrorsPct:  e.errorsPct,
	}
	if kind, ok := engine.SelectListener(logger, cfg.Listener, listener.V1); ok {
		readerOpts.Listener = kind
		// Options were validated above, so construction cannot fail.
		if kind.Family() == listener.Backend {
			e.backend, _ = influxql.NewBackendQueries(opts)
			readerOpts.Backend = e.backend
		} else {
			readerOpts.Frontend, _ = influxql.NewFrontendQueries(opts)
		}
	}
	e.Reader = engine.NewReader(readerOpts)

	if _, _, err := c.Ping(pingTimeout); err != nil {
		logger.WithError(err).Warnf("server at %s is not reachable", cfg.URL)
	}
	return e, nil
}

// WithEngine runs f with a connected engine and closes it afterwards.
func WithEngine(ctx *perfcontext.Context, cfg configuration.SourceConfig, f func(*Engine) error) error {
	e, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()
	return f(e)
}

// Close releases the connection. Closing more than once does nothing.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return errors.WithStack(e.client.Close())
}

func (e *Engine) checkOpen(ctx *perfcontext.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.WithStack(ErrClosed)
	}
	return errors.WithStack(ctx.Err())
}

func (e *Engine) exec(ctx *perfcontext.Context, database, q string) (*client.Response, error) {
	if err := e.checkOpen(ctx); err != nil {
		return nil, err
	}
	resp, err := e.client.Query(client.NewQuery(q, database, ""))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := resp.Error(); err != nil {
		return nil, errors.WithStack(err)
	}
	return resp, nil
}

func (e *Engine) run(ctx *perfcontext.Context, q string) ([]extraction.Record, error) {
	resp, err := e.exec(ctx, e.cfg.BucketOrDatabase, q)
	if err != nil {
		return nil, err
	}
	return recordsFrom(resp), nil
}

// recordsFrom flattens every row of every series, merging the series tags into each row.
func recordsFrom(resp *client.Response) []extraction.Record {
	var records []extraction.Record
	for _, result := range resp.Results {
		for _, row := range result.Series {
			for _, values := range row.Values {
				rec := make(extraction.Record, len(row.Tags)+len(row.Columns))
				for k, v := range row.Tags {
					rec[k] = v
				}
				for i, col := range row.Columns {
					if i < len(values) {
						rec[col] = values[i]
					}
				}
				records = append(records, rec)
			}
		}
	}
	return records
}

// errorsPct divides the failed request count by the total request count.
func (e *Engine) errorsPct(ctx *perfcontext.Context, title string, r query.Range) (float64, error) {
	if e.backend == nil {
		return 0, extraction.ErrNoQueryBuilder
	}
	queries, err := e.backend.ErrorsPct(title, r)
	if err != nil {
		return 0, err
	}
	results, err := e.QueryNamed(ctx, string(extraction.StatErrorsPct), queries)
	if err != nil {
		return 0, err
	}
	counts := map[string]float64{}
	for _, result := range results {
		counts[result.Column] = extraction.FirstFloat(result.Records, columns)
	}
	return extraction.ErrorsPct(counts["errors"], counts["total"]), nil
}

// ListBuckets lists the databases matching nameRegex. The internal monitoring database is left out.
func (e *Engine) ListBuckets(ctx *perfcontext.Context, nameRegex string) ([]string, error) {
	resp, err := e.exec(ctx, "", influxql.ShowDatabases)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, rec := range recordsFrom(resp) {
		if name := rec.String("name"); name != "" {
			names = append(names, name)
		}
	}
	return extraction.MatchBuckets(names, nameRegex, func(name string) bool { return name == internalDatabase })
}

// isMissing reports whether err only says that there was nothing to delete.
func isMissing(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "measurement not found") || strings.Contains(msg, "series not found")
}

// DeleteTestData deletes the test from every measurement written by uploads. Without bounds the
// test's series are dropped entirely.
func (e *Engine) DeleteTestData(ctx *perfcontext.Context, title string, start, end *time.Time) error {
	logger := ctx.Log.WithFields(log.Fields{"engine": Name, "testTitle": title})
	for _, measurement := range schema.Measurements {
		q := influxql.DropTest(measurement, e.titleTag, title)
		if start != nil || end != nil {
			q = influxql.DeleteTest(measurement, e.titleTag, title, start, end)
		}
		if _, err := e.exec(ctx, e.cfg.BucketOrDatabase, q); err != nil {
			if isMissing(err) {
				logger.Debugf("nothing to delete in %s", measurement)
				continue
			}
			return errors.WithMessagef(err, "deleting from %s", measurement)
		}
		logger.Infof("deleted test data from %s", measurement)
	}
	return nil
}

// WriteUpload aggregates the upload and writes it in batches. A failed batch is not rolled back:
// the batches before it stay stored.
func (e *Engine) WriteUpload(ctx *perfcontext.Context, upload insertion.Upload) (insertion.Result, error) {
	if err := e.checkOpen(ctx); err != nil {
		return insertion.Result{}, err
	}
	prepared, err := insertion.Prepare(upload, e.titleTag, schema.ConcurrencyTransactionV1)
	if err != nil {
		return insertion.Result{}, err
	}
	ctx = perfcontext.WithLogFields(ctx, log.Fields{"engine": Name, "testTitle": upload.TestTitle})
	ctx.Log.Infof("writing %d points", len(prepared.Points))

	written, err := insertion.Submit(ctx, prepared.Points, e.batchSize, e.writeBatch)
	if err != nil {
		ctx.Log.WithError(err).Errorf("upload failed after %d points; data may be partially stored", written)
		return insertion.Result{PointsWritten: written}, errors.WithStack(&perferrors.ErrPartialWrite{PointsWritten: written, Cause: err})
	}
	return insertion.Result{PointsWritten: written}, nil
}

func (e *Engine) writeBatch(ctx *perfcontext.Context, batch []insertion.Point) error {
	err := e.write(ctx, batch)
	metrics.Get().RecordBatch(Name, len(batch), err)
	return err
}

func (e *Engine) write(ctx *perfcontext.Context, batch []insertion.Point) error {
	if err := e.checkOpen(ctx); err != nil {
		return err
	}
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{Database: e.cfg.BucketOrDatabase, Precision: "ns"})
	if err != nil {
		return errors.WithStack(err)
	}
	for _, p := range batch {
		tags := make(map[string]string, len(p.Tags))
		for k, v := range p.Tags {
			if v != "" {
				tags[k] = v
			}
		}
		pt, err := client.NewPoint(p.Measurement, tags, p.Fields, p.Time)
		if err != nil {
			return errors.Wrapf(err, "converting %s point", p.Measurement)
		}
		bp.AddPoint(pt)
	}
	return errors.WithStack(e.client.Write(bp))
}
