package cmd

import (
	"github.com/spf13/cobra"

	"github.com/perfreporter/perfreporter/internal/common/app"
	"github.com/perfreporter/perfreporter/internal/perfctl"
)

func uploadCmd() *cobra.Command {
	a := perfctl.New()
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Aggregate a JMeter result file and store it.",
		Long: `Aggregate a JMeter JTL/CSV result file into fixed windows per transaction and write the
aggregates, response codes, concurrency and events to the selected integration. A failed upload on
influxdb_v2 removes what it already wrote.`,
		Args: cobra.ExactArgs(0),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			upload := perfctl.UploadArgs{}
			var err error
			if upload.File, err = flags.GetString("file"); err != nil {
				return err
			}
			if upload.Title, err = flags.GetString("title"); err != nil {
				return err
			}
			if upload.Name, err = flags.GetString("name"); err != nil {
				return err
			}
			if upload.Window, err = flags.GetString("window"); err != nil {
				return err
			}
			if upload.SkipEvents, err = flags.GetBool("no-events"); err != nil {
				return err
			}

			ctx, cancel := app.CreateContextWithShutdown()
			defer cancel()
			defer a.StartMetrics()()
			return a.Upload(ctx, upload)
		},
	}
	cmd.Flags().String("file", "", "JTL/CSV result file")
	cmd.Flags().String("title", "", "Test title the data is stored under")
	cmd.Flags().String("name", "", "Test name (defaults to the title)")
	cmd.Flags().String("window", "", "Aggregation window, e.g. 5s or 1min (defaults to insertion.defaultAggregationWindow)")
	cmd.Flags().Bool("no-events", false, "Do not write the start and end events of the test")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
