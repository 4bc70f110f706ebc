package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perfreporter/perfreporter/internal/common/app"
	"github.com/perfreporter/perfreporter/internal/perfctl"
)

func testsCmd() *cobra.Command {
	a := perfctl.New()
	cmd := &cobra.Command{
		Use:   "tests",
		Short: "List the tests stored in an integration, newest first.",
		Args:  cobra.ExactArgs(0),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.CreateContextWithShutdown()
			defer cancel()
			return a.Tests(ctx)
		},
	}
	return cmd
}

func summaryCmd() *cobra.Command {
	a := perfctl.New()
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the statistics and tables of a test.",
		Args:  cobra.ExactArgs(0),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			title, err := cmd.Flags().GetString("title")
			if err != nil {
				return fmt.Errorf("error reading title: %s", err)
			}
			ctx, cancel := app.CreateContextWithShutdown()
			defer cancel()
			return a.Summary(ctx, title)
		},
	}
	cmd.Flags().String("title", "", "Title of the test")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
