package insertion

import (
	"time"

	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/common/util"
	"github.com/perfreporter/perfreporter/internal/timeutil"
)

// DefaultBatchSize is the number of points submitted per write call.
const DefaultBatchSize = 5000

// Upload is one result file to store.
type Upload struct {
	Frame     Frame
	TestTitle string
	// TestName defaults to TestTitle.
	TestName string
	// SkipEvents leaves out the started and finished event points.
	SkipEvents bool
	// AggregationWindow is a duration string such as "5s", "500ms" or "1min".
	AggregationWindow string
}

// Result reports how many points an upload stored.
type Result struct {
	PointsWritten int `json:"points_written"`
}

// Writer is implemented by each engine.
type Writer interface {
	WriteUpload(ctx *perfcontext.Context, upload Upload) (Result, error)
}

// Prepared is a validated upload ready to be written.
type Prepared struct {
	Points []Point
	Window time.Duration
	First  time.Time
	Last   time.Time
}

// Prepare validates the upload and builds its points. It never performs I/O, so a rejected upload
// writes nothing.
func Prepare(upload Upload, titleTag, concurrencyTransaction string) (Prepared, error) {
	window, err := timeutil.ParseWindow(upload.AggregationWindow)
	if err != nil {
		return Prepared{}, err
	}
	samples, err := upload.Frame.Samples()
	if err != nil {
		return Prepared{}, err
	}
	points, err := Build(samples, BuildOptions{
		TestTitle:              upload.TestTitle,
		TestName:               upload.TestName,
		TestTitleTag:           titleTag,
		ConcurrencyTransaction: concurrencyTransaction,
		Window:                 window,
		WriteEvents:            !upload.SkipEvents,
	})
	if err != nil {
		return Prepared{}, err
	}
	first, last := Span(points)
	return Prepared{Points: points, Window: window, First: first, Last: last}, nil
}

// Submit writes points sequentially in batches of batchSize and stops at the first failing batch.
// It returns the number of points of the batches that succeeded.
func Submit(ctx *perfcontext.Context, points []Point, batchSize int, write func(*perfcontext.Context, []Point) error) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	written := 0
	for i, batch := range util.Batch(points, batchSize) {
		if err := ctx.Err(); err != nil {
			return written, errors.WithStack(err)
		}
		if err := write(ctx, batch); err != nil {
			return written, errors.WithMessagef(err, "writing batch %d of %d points", i, len(batch))
		}
		written += len(batch)
		ctx.Log.Debugf("wrote batch %d (%d points, %d total)", i, len(batch), written)
	}
	return written, nil
}
