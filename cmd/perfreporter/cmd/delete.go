package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perfreporter/perfreporter/internal/common/app"
	"github.com/perfreporter/perfreporter/internal/perfctl"
)

func deleteCmd() *cobra.Command {
	a := perfctl.New()
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the data of a test.",
		Long: `Delete every point stored for a test. --start and --end accept RFC3339 times, "2006-01-02 15:04:05"
(UTC) or epoch milliseconds and limit the deletion to that range.`,
		Args: cobra.ExactArgs(0),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			title, err := cmd.Flags().GetString("title")
			if err != nil {
				return fmt.Errorf("error reading title: %s", err)
			}
			start, err := cmd.Flags().GetString("start")
			if err != nil {
				return fmt.Errorf("error reading start: %s", err)
			}
			end, err := cmd.Flags().GetString("end")
			if err != nil {
				return fmt.Errorf("error reading end: %s", err)
			}
			ctx, cancel := app.CreateContextWithShutdown()
			defer cancel()
			return a.Delete(ctx, title, start, end)
		},
	}
	cmd.Flags().String("title", "", "Title of the test to delete")
	cmd.Flags().String("start", "", "Delete points from this time on")
	cmd.Flags().String("end", "", "Delete points up to this time")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func bucketsCmd() *cobra.Command {
	a := perfctl.New()
	cmd := &cobra.Command{
		Use:   "buckets",
		Short: "List the buckets (influxdb_v2) or databases (influxdb_v1) of an integration.",
		Args:  cobra.ExactArgs(0),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			regex, err := cmd.Flags().GetString("regex")
			if err != nil {
				return fmt.Errorf("error reading regex: %s", err)
			}
			ctx, cancel := app.CreateContextWithShutdown()
			defer cancel()
			return a.Buckets(ctx, regex)
		},
	}
	cmd.Flags().String("regex", "", "Only list names matching this regular expression")
	return cmd
}
