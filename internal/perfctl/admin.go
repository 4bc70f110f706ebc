package perfctl

import (
	"fmt"
	"time"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/extraction"
	"github.com/perfreporter/perfreporter/internal/timeutil"
)

// Delete removes the data of a test. start and end are optional instants accepted by
// timeutil.ParseInstant; when both are empty the whole test is removed.
func (a *App) Delete(ctx *perfcontext.Context, title, start, end string) error {
	startTime, err := optionalInstant(start)
	if err != nil {
		return err
	}
	endTime, err := optionalInstant(end)
	if err != nil {
		return err
	}
	return a.withClient(ctx, func(ctx *perfcontext.Context, client *extraction.Client) error {
		if err := client.DeleteTestData(ctx, title, startTime, endTime); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Deleted data of test %s\n", title)
		return nil
	})
}

func optionalInstant(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := timeutil.ParseInstant(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Buckets prints the buckets (or databases) whose name matches nameRegex.
func (a *App) Buckets(ctx *perfcontext.Context, nameRegex string) error {
	return a.withClient(ctx, func(ctx *perfcontext.Context, client *extraction.Client) error {
		names, err := client.ListBuckets(ctx, nameRegex)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(a.Out, name)
		}
		return nil
	})
}
