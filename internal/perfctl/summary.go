package perfctl

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/extraction"
	"github.com/perfreporter/perfreporter/internal/listener"
	"github.com/perfreporter/perfreporter/internal/timeutil"
)

// Summary prints the headline statistics and tables of one test.
func (a *App) Summary(ctx *perfcontext.Context, title string) error {
	return a.withClient(ctx, func(ctx *perfcontext.Context, client *extraction.Client) error {
		start, end, err := testRange(ctx, client, title)
		if err != nil {
			return err
		}
		name, err := client.GetTestName(ctx, title, start, end)
		if err != nil {
			return err
		}
		loc := client.Source().Location()
		fmt.Fprintf(a.Out, "Test:  %s\n", title)
		if name != "" {
			fmt.Fprintf(a.Out, "Name:  %s\n", name)
		}
		fmt.Fprintf(a.Out, "Start: %s\n", timeutil.Localize(start, loc).Format(timeutil.HumanLayout))
		fmt.Fprintf(a.Out, "End:   %s\n", timeutil.Localize(end, loc).Format(timeutil.HumanLayout))
		vars := client.GetCustomVars(ctx, title)
		keys := maps.Keys(vars)
		slices.Sort(keys)
		for _, key := range keys {
			fmt.Fprintf(a.Out, "%s: %s\n", key, vars[key])
		}
		fmt.Fprintln(a.Out)

		if client.Source().Listener().Family() == listener.Frontend {
			return printPages(a.Out, client.GetFrontendOverview(ctx, title, start, end))
		}
		if err := a.printStats(ctx, client, title, start, end); err != nil {
			return err
		}
		fmt.Fprintln(a.Out)
		if err := printAggregated(a.Out, client.GetAggregatedTable(ctx, title, start, end)); err != nil {
			return err
		}
		if rows := client.GetErrorsTable(ctx, title, start, end); len(rows) > 0 {
			fmt.Fprintln(a.Out)
			return printErrors(a.Out, rows)
		}
		return nil
	})
}

// testRange returns the range of the test padded by timeutil.BoundaryPad on both sides.
func testRange(ctx *perfcontext.Context, client *extraction.Client, title string) (time.Time, time.Time, error) {
	start, err := client.GetStartTime(ctx, title, timeutil.FormatISO)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := client.GetEndTime(ctx, title, timeutil.FormatISO)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start == nil || end == nil {
		return time.Time{}, time.Time{}, &perferrors.ErrNotFound{Type: "test", Value: title, Message: "no data recorded"}
	}
	startTime, err := time.Parse(timeutil.ISOLayout, start.Text)
	if err != nil {
		return time.Time{}, time.Time{}, errors.WithStack(err)
	}
	endTime, err := time.Parse(timeutil.ISOLayout, end.Text)
	if err != nil {
		return time.Time{}, time.Time{}, errors.WithStack(err)
	}
	return startTime, endTime, nil
}

func (a *App) printStats(ctx *perfcontext.Context, client *extraction.Client, title string, start, end time.Time) error {
	users, err := client.GetMaxActiveUsers(ctx, title, start, end)
	if err != nil {
		return err
	}
	stats := []struct {
		name string
		get  func(*perfcontext.Context, string, time.Time, time.Time) (float64, error)
	}{
		{"Average RPS", client.GetAverageRPS},
		{"Average response time (ms)", client.GetAverageResponseTimeStats},
		{"Median response time (ms)", client.GetMedianResponseTimeStats},
		{"90th percentile (ms)", client.GetPct90ResponseTimeStats},
		{"Errors (%)", client.GetErrorsPctStats},
	}
	w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
	fmt.Fprintf(w, "Max active users:\t%d\n", users)
	for _, stat := range stats {
		value, err := stat.get(ctx, title, start, end)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s:\t%.2f\n", stat.name, value)
	}
	return w.Flush()
}

func printAggregated(out io.Writer, rows []extraction.AggregatedRow) error {
	w := tabwriter.NewWriter(out, 1, 1, 2, ' ', 0)
	fmt.Fprintln(w, "TRANSACTION\tCOUNT\tRPM\tERRORS\tAVG\tMIN\tMAX\tP50\tP75\tP90\tP95\tP99\tSTDDEV")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%.0f\t%.2f\t%.0f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			r.Transaction, r.Count, r.RPM, r.Errors, r.Avg, r.Min, r.Max, r.Pct50, r.Pct75, r.Pct90, r.Pct95, r.Pct99, r.Stddev)
	}
	return w.Flush()
}

func printErrors(out io.Writer, rows []extraction.ErrorRow) error {
	w := tabwriter.NewWriter(out, 1, 1, 2, ' ', 0)
	fmt.Fprintln(w, "TRANSACTION\tCODE\tMESSAGE\tCOUNT")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\n", r.Transaction, r.ResponseCode, r.ResponseMessage, r.Count)
	}
	return w.Flush()
}

// printPages prints one row per page with a column per metric. Metrics missing for a page are left
// blank.
func printPages(out io.Writer, rows []extraction.PageRow) error {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No page metrics found")
		return nil
	}
	var metrics []string
	for _, row := range rows {
		for metric := range row.Values {
			if !slices.Contains(metrics, metric) {
				metrics = append(metrics, metric)
			}
		}
	}
	slices.Sort(metrics)

	w := tabwriter.NewWriter(out, 1, 1, 2, ' ', 0)
	fmt.Fprint(w, "PAGE")
	for _, metric := range metrics {
		fmt.Fprintf(w, "\t%s", metric)
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		fmt.Fprint(w, row.Page)
		for _, metric := range metrics {
			if value, ok := row.Values[metric]; ok {
				fmt.Fprintf(w, "\t%.2f", value)
			} else {
				fmt.Fprint(w, "\t")
			}
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
