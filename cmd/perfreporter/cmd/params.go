package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/perfreporter/perfreporter/internal/perfctl"
)

// configFlags are the persistent flags that override a configuration key.
var configFlags = map[string]string{
	"metrics.port": "metrics-port",
}

// initParams reads the persistent flags into a.Params and loads the configuration they point at.
func initParams(cmd *cobra.Command, a *perfctl.App) error {
	flags := cmd.Flags()
	var err error
	if a.Params.ConfigPaths, err = flags.GetStringSlice("config"); err != nil {
		return errors.WithStack(err)
	}
	if a.Params.Project, err = flags.GetString("project"); err != nil {
		return errors.WithStack(err)
	}
	if a.Params.Integration, err = flags.GetString("integration"); err != nil {
		return errors.WithStack(err)
	}
	return a.LoadConfig(lookupFlags(flags))
}

func lookupFlags(flags *pflag.FlagSet) map[string]*pflag.Flag {
	bound := make(map[string]*pflag.Flag, len(configFlags))
	for key, name := range configFlags {
		if flag := flags.Lookup(name); flag != nil {
			bound[key] = flag
		}
	}
	return bound
}
