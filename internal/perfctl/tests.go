package perfctl

import (
	"fmt"
	"text/tabwriter"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/extraction"
	"github.com/perfreporter/perfreporter/internal/timeutil"
)

// Tests prints the test log of the selected integration, newest first.
func (a *App) Tests(ctx *perfcontext.Context) error {
	return a.withClient(ctx, func(ctx *perfcontext.Context, client *extraction.Client) error {
		rows := client.GetTestLog(ctx)
		if len(rows) == 0 {
			fmt.Fprintln(a.Out, "No tests found")
			return nil
		}
		w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
		fmt.Fprintln(w, "TITLE\tNAME\tSTART\tEND\tDURATION\tMAX THREADS")
		for _, row := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%ds\t%d\n",
				row.TestTitle, row.TestName,
				row.StartTime.Format(timeutil.HumanLayout), row.EndTime.Format(timeutil.HumanLayout),
				row.Duration, row.MaxThreads)
		}
		return w.Flush()
	})
}
