package perfctl

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/configuration"
	"github.com/perfreporter/perfreporter/internal/datasource"
	"github.com/perfreporter/perfreporter/internal/insertion"
)

const defaultAggregationWindow = "1s"

// UploadArgs describes a result file to store.
type UploadArgs struct {
	File  string
	Title string
	// Name defaults to Title.
	Name string
	// Window overrides the aggregation window configured for the integration.
	Window     string
	SkipEvents bool
}

// Upload aggregates a JTL/CSV result file and writes it to the selected integration.
func (a *App) Upload(ctx *perfcontext.Context, args UploadArgs) error {
	f, err := os.Open(args.File)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	frame, err := insertion.ReadCSV(f)
	if err != nil {
		return errors.WithMessagef(err, "reading %s", args.File)
	}

	return a.withEngine(ctx, func(ctx *perfcontext.Context, engine datasource.Engine, cfg configuration.SourceConfig) error {
		window := args.Window
		if window == "" {
			window = cfg.AggregationWindow
		}
		if window == "" {
			window = defaultAggregationWindow
		}
		result, err := engine.WriteUpload(ctx, insertion.Upload{
			Frame:             frame,
			TestTitle:         args.Title,
			TestName:          args.Name,
			SkipEvents:        args.SkipEvents,
			AggregationWindow: window,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Uploaded %d points for test %s to %s\n", result.PointsWritten, args.Title, cfg.ID)
		return nil
	})
}
