// Package influxv2 is the engine for the token-authenticated generation of the time-series
// database, queried with Flux.
package influxv2

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/common/util"
	"github.com/perfreporter/perfreporter/internal/configuration"
	"github.com/perfreporter/perfreporter/internal/engine"
	"github.com/perfreporter/perfreporter/internal/extraction"
	"github.com/perfreporter/perfreporter/internal/insertion"
	"github.com/perfreporter/perfreporter/internal/listener"
	"github.com/perfreporter/perfreporter/internal/metrics"
	"github.com/perfreporter/perfreporter/internal/query"
	"github.com/perfreporter/perfreporter/internal/query/flux"
	"github.com/perfreporter/perfreporter/internal/schema"
	"github.com/perfreporter/perfreporter/internal/timeutil"
)

const (
	Name = "influxdb_v2"

	defaultTimeout = 60 * time.Second
	pingTimeout    = 5 * time.Second

	// rollbackTimeout bounds the compensating delete, which runs even if ctx was cancelled.
	rollbackTimeout = time.Minute
)

var (
	columns = extraction.Columns{Time: "_time", Value: "_value"}

	ErrClosed = errors.New("engine is closed")
)

type Engine struct {
	*engine.Reader

	cfg       configuration.SourceConfig
	titleTag  string
	batchSize int
	client    fluxClient
	backend   *flux.BackendQueries
	clock     util.Clock

	mu     sync.Mutex
	closed bool
}

// New connects to the server described by cfg.
func New(ctx *perfcontext.Context, cfg configuration.SourceConfig) (*Engine, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return newEngine(ctx, cfg, newSDKClient(cfg.URL, cfg.Credential, timeout))
}

func newEngine(ctx *perfcontext.Context, cfg configuration.SourceConfig, client fluxClient) (*Engine, error) {
	loc := cfg.Location
	if loc == nil {
		var err error
		if loc, err = timeutil.LoadLocation(cfg.Tmz); err != nil {
			client.Close()
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
		client.Close()
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		titleTag:  opts.TestTitleTag,
		batchSize: cfg.BatchSize,
		client:    client,
		clock:     &util.DefaultClock{},
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

	if kind, ok := engine.SelectListener(logger, cfg.Listener, listener.V2); ok {
		readerOpts.Listener = kind
		// Options were validated above, so construction cannot fail.
		if kind.Family() == listener.Backend {
			e.backend, _ = flux.NewBackendQueries(opts)
			readerOpts.Backend = e.backend
		} else {
			readerOpts.Frontend, _ = flux.NewFrontendQueries(opts)
		}
	}
	e.Reader = engine.NewReader(readerOpts)

	pingCtx, cancel := perfcontext.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if ok, err := client.Ping(pingCtx); err != nil || !ok {
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
	e.client.Close()
	return nil
}

func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.WithStack(ErrClosed)
	}
	return nil
}

func (e *Engine) run(ctx *perfcontext.Context, q string) ([]extraction.Record, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := e.client.Query(ctx, e.cfg.OrgOrUsername, q)
	if err != nil {
		return nil, err
	}
	records := make([]extraction.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row)
	}
	return records, nil
}

func (e *Engine) errorsPct(ctx *perfcontext.Context, title string, r query.Range) (float64, error) {
	if e.backend == nil {
		return 0, extraction.ErrNoQueryBuilder
	}
	q, err := e.backend.ErrorsPct(title, r)
	if err != nil {
		return 0, err
	}
	records, err := e.Query(ctx, string(extraction.StatErrorsPct), q)
	if err != nil {
		return 0, err
	}
	return extraction.FirstFloat(records, columns), nil
}

// ListBuckets lists the buckets matching nameRegex. System buckets are left out.
func (e *Engine) ListBuckets(ctx *perfcontext.Context, nameRegex string) ([]string, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	names, err := e.client.Buckets(ctx)
	if err != nil {
		return nil, err
	}
	return extraction.MatchBuckets(names, nameRegex, func(name string) bool { return strings.HasPrefix(name, "_") })
}

func (e *Engine) titlePredicate(title string) string {
	return fmt.Sprintf("%s=%s", e.titleTag, flux.String(title))
}

// DeleteTestData deletes every point of the test between start (default: the epoch) and end
// (default: now).
func (e *Engine) DeleteTestData(ctx *perfcontext.Context, title string, start, end *time.Time) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	from := time.Unix(0, 0).UTC()
	if start != nil {
		from = start.UTC()
	}
	to := e.clock.Now().UTC()
	if end != nil {
		to = end.UTC()
	}
	ctx.Log.WithFields(log.Fields{"engine": Name, "testTitle": title}).Infof("deleting test data between %s and %s", from, to)
	return e.client.Delete(ctx, e.cfg.OrgOrUsername, e.cfg.BucketOrDatabase, from, to, e.titlePredicate(title))
}

// WriteUpload aggregates the upload and writes it in batches. If a batch fails, the test's points
// over the span of the upload are deleted again.
func (e *Engine) WriteUpload(ctx *perfcontext.Context, upload insertion.Upload) (insertion.Result, error) {
	if err := e.checkOpen(); err != nil {
		return insertion.Result{}, err
	}
	prepared, err := insertion.Prepare(upload, e.titleTag, schema.ConcurrencyTransactionV2)
	if err != nil {
		return insertion.Result{}, err
	}
	ctx = perfcontext.WithLogFields(ctx, log.Fields{"engine": Name, "testTitle": upload.TestTitle})
	ctx.Log.Infof("writing %d points", len(prepared.Points))

	written, err := insertion.Submit(ctx, prepared.Points, e.batchSize, e.writeBatch)
	if err == nil {
		return insertion.Result{PointsWritten: written}, nil
	}
	ctx.Log.WithError(err).Warnf("upload failed after %d points; rolling back", written)
	rollbackErr := e.rollback(ctx, upload.TestTitle, prepared)
	metrics.Get().RecordRollback(Name, rollbackErr)
	partial := &perferrors.ErrPartialWrite{PointsWritten: written, Rollback: rollbackErr == nil, Cause: err}
	if rollbackErr != nil {
		ctx.Log.WithError(rollbackErr).Error("rollback failed; test data may be partially stored")
		partial.Cause = multierror.Append(err, errors.WithMessage(rollbackErr, "rolling back"))
	}
	return insertion.Result{PointsWritten: written}, errors.WithStack(partial)
}

func (e *Engine) writeBatch(ctx *perfcontext.Context, batch []insertion.Point) error {
	converted := make([]*write.Point, 0, len(batch))
	for _, p := range batch {
		converted = append(converted, toNative(p))
	}
	err := e.client.WritePoints(ctx, e.cfg.OrgOrUsername, e.cfg.BucketOrDatabase, converted)
	metrics.Get().RecordBatch(Name, len(batch), err)
	return err
}

// rollback deletes the test's points over the span of the upload widened by one window.
func (e *Engine) rollback(ctx *perfcontext.Context, title string, prepared insertion.Prepared) error {
	start := prepared.First.Add(-prepared.Window)
	stop := prepared.Last.Add(prepared.Window)
	ctx, cancel := perfcontext.WithTimeout(perfcontext.New(context.Background(), ctx.Log), rollbackTimeout)
	defer cancel()
	return e.client.Delete(ctx, e.cfg.OrgOrUsername, e.cfg.BucketOrDatabase, start, stop, e.titlePredicate(title))
}

func toNative(p insertion.Point) *write.Point {
	tags := make(map[string]string, len(p.Tags))
	for k, v := range p.Tags {
		if v != "" {
			tags[k] = v
		}
	}
	return influxdb2.NewPoint(p.Measurement, tags, p.Fields, p.Time)
}
