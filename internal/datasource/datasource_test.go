package datasource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/configuration"
	"github.com/perfreporter/perfreporter/internal/influxv1"
	"github.com/perfreporter/perfreporter/internal/influxv2"
	"github.com/perfreporter/perfreporter/internal/listener"
)

// unreachable refuses connections immediately, so engines open in degraded mode.
const unreachable = "http://127.0.0.1:1"

func sourceConfig(typ string, l listener.Kind) configuration.SourceConfig {
	return configuration.SourceConfig{
		IntegrationConfig: configuration.IntegrationConfig{
			ID:               "main",
			Type:             typ,
			URL:              unreachable,
			BucketOrDatabase: "jmeter",
			Listener:         string(l),
			Timeout:          time.Second,
		},
		Location: time.UTC,
	}
}

func TestTypes(t *testing.T) {
	assert.Equal(t, []string{configuration.TypeInfluxDBV1, configuration.TypeInfluxDBV2}, Types())
}

func TestOpen(t *testing.T) {
	tests := map[string]struct {
		typ      string
		listener listener.Kind
		name     string
	}{
		"v1": {typ: configuration.TypeInfluxDBV1, listener: listener.JMeterV1, name: influxv1.Name},
		"v2": {typ: configuration.TypeInfluxDBV2, listener: listener.JMeterV2, name: influxv2.Name},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			engine, err := Open(perfcontext.Background(), sourceConfig(tc.typ, tc.listener))
			require.NoError(t, err)
			defer engine.Close()
			assert.Equal(t, tc.name, engine.Name())
			assert.Equal(t, tc.listener, engine.Listener())
		})
	}
}

func TestOpen_UnknownType(t *testing.T) {
	_, err := Open(perfcontext.Background(), sourceConfig("prometheus", listener.JMeterV2))
	assert.True(t, perferrors.IsInvalidArgument(err))
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := sourceConfig(configuration.TypeInfluxDBV2, listener.JMeterV2)
	cfg.Regex = "("
	_, err := Open(perfcontext.Background(), cfg)
	assert.True(t, perferrors.IsInvalidArgument(err))
}

func TestNewClient_DegradesWhenUnreachable(t *testing.T) {
	client, closer, err := NewClient(perfcontext.Background(), sourceConfig(configuration.TypeInfluxDBV2, listener.JMeterV2))
	require.NoError(t, err)
	defer closer.Close()

	assert.Empty(t, client.GetTestsTitles(perfcontext.Background()))
}
