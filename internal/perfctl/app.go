// Package perfctl implements the commands of the perfreporter command line tool.
package perfctl

import (
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/perfreporter/perfreporter/internal/common"
	commonconfig "github.com/perfreporter/perfreporter/internal/common/config"
	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/common/util"
	"github.com/perfreporter/perfreporter/internal/configuration"
	"github.com/perfreporter/perfreporter/internal/datasource"
	"github.com/perfreporter/perfreporter/internal/extraction"
)

// DefaultConfigDir is searched for config.yaml before the files given with --config are merged in.
const DefaultConfigDir = "config/perfreporter"

// App is the perfreporter command line application. Commands write their output to Out.
type App struct {
	Params *Params
	Out    io.Writer
	// OpenEngine connects to a resolved integration.
	OpenEngine func(ctx *perfcontext.Context, cfg configuration.SourceConfig) (datasource.Engine, error)
}

// Params are the settings shared by every command.
type Params struct {
	ConfigPaths []string
	// Project and Integration select the integration; an empty Integration selects the project's
	// default one.
	Project     string
	Integration string
	Config      configuration.Config
}

func New() *App {
	return &App{
		Params:     &Params{},
		Out:        os.Stdout,
		OpenEngine: datasource.Open,
	}
}

// LoadConfig reads and validates the configuration files named in Params. flags maps config keys
// to the command line flags overriding them.
func (a *App) LoadConfig(flags map[string]*pflag.Flag) error {
	if _, err := common.ReadConfig(&a.Params.Config, DefaultConfigDir, a.Params.ConfigPaths, flags); err != nil {
		return err
	}
	if err := a.Params.Config.Validate(); err != nil {
		commonconfig.LogValidationErrors(err)
		return errors.WithMessage(err, "configuration is invalid")
	}
	return common.SetLogLevel(a.Params.Config.LogLevel)
}

func (a *App) resolve() (configuration.SourceConfig, error) {
	secrets, err := configuration.NewJSONSecrets(a.Params.Config.Secrets.Path)
	if err != nil {
		return configuration.SourceConfig{}, err
	}
	return configuration.NewStore(a.Params.Config, secrets).Resolve(a.Params.Project, a.Params.Integration)
}

// withEngine runs f with the engine of the selected integration and closes it afterwards.
func (a *App) withEngine(ctx *perfcontext.Context, f func(ctx *perfcontext.Context, engine datasource.Engine, cfg configuration.SourceConfig) error) error {
	cfg, err := a.resolve()
	if err != nil {
		return err
	}
	ctx = perfcontext.WithLogFields(ctx, log.Fields{"project": cfg.Project, "integration": cfg.ID})
	engine, err := a.OpenEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer util.CloseResource(ctx.Log, "engine", engine)
	return f(ctx, engine, cfg)
}

// withClient is withEngine for read-only commands.
func (a *App) withClient(ctx *perfcontext.Context, f func(ctx *perfcontext.Context, client *extraction.Client) error) error {
	return a.withEngine(ctx, func(ctx *perfcontext.Context, engine datasource.Engine, cfg configuration.SourceConfig) error {
		return f(ctx, extraction.NewClient(engine, cfg.QueryWindow))
	})
}

// StartMetrics serves /metrics while a long running command executes. It does nothing when no
// metrics port is configured.
func (a *App) StartMetrics() (stop func()) {
	if a.Params.Config.Metrics.Port == 0 {
		return func() {}
	}
	return common.ServeMetrics(a.Params.Config.Metrics.Port)
}
