// Package datasource opens the engine named by an integration's type.
package datasource

import (
	"io"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/configuration"
	"github.com/perfreporter/perfreporter/internal/extraction"
	"github.com/perfreporter/perfreporter/internal/influxv1"
	"github.com/perfreporter/perfreporter/internal/influxv2"
	"github.com/perfreporter/perfreporter/internal/insertion"
)

// Engine reads, writes and deletes the test data of one integration.
type Engine interface {
	extraction.Source
	insertion.Writer
	io.Closer
}

type Constructor func(ctx *perfcontext.Context, cfg configuration.SourceConfig) (Engine, error)

var constructors = map[string]Constructor{
	configuration.TypeInfluxDBV1: func(ctx *perfcontext.Context, cfg configuration.SourceConfig) (Engine, error) {
		return influxv1.New(ctx, cfg)
	},
	configuration.TypeInfluxDBV2: func(ctx *perfcontext.Context, cfg configuration.SourceConfig) (Engine, error) {
		return influxv2.New(ctx, cfg)
	},
}

// Types lists the supported integration types.
func Types() []string {
	types := maps.Keys(constructors)
	slices.Sort(types)
	return types
}

// Open creates the engine for cfg.Type.
func Open(ctx *perfcontext.Context, cfg configuration.SourceConfig) (Engine, error) {
	constructor, ok := constructors[cfg.Type]
	if !ok {
		return nil, errors.WithStack(&perferrors.ErrInvalidArgument{
			Name:    "type",
			Value:   cfg.Type,
			Message: "unsupported integration type",
		})
	}
	engine, err := constructor(ctx, cfg)
	if err != nil {
		return nil, errors.WithMessagef(err, "opening integration %s", cfg.ID)
	}
	return engine, nil
}

// NewClient opens the engine for cfg and wraps it in an extraction client using the configured
// read window. The caller must close the returned closer.
func NewClient(ctx *perfcontext.Context, cfg configuration.SourceConfig) (*extraction.Client, io.Closer, error) {
	engine, err := Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return extraction.NewClient(engine, cfg.QueryWindow), engine, nil
}
