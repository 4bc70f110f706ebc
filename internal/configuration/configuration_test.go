package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
)

func validIntegration() IntegrationConfig {
	return IntegrationConfig{
		ID:               "main",
		Project:          "shop",
		Default:          true,
		Type:             TypeInfluxDBV2,
		URL:              "http://localhost:8086",
		OrgOrUsername:    "perf",
		TokenOrPassword:  "secret:influx-token",
		BucketOrDatabase: "jmeter",
		Listener:         "org.apache.jmeter.visualizers.backend.influxdb.InfluxdbBackendListenerClient",
		Tmz:              "Europe/Paris",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := map[string]struct {
		mutate func(c *Config)
		valid  bool
	}{
		"valid": {
			mutate: func(c *Config) {},
			valid:  true,
		},
		"unknown type": {
			mutate: func(c *Config) { c.Integrations[0].Type = "prometheus" },
		},
		"missing bucket": {
			mutate: func(c *Config) { c.Integrations[0].BucketOrDatabase = "" },
		},
		"bad url": {
			mutate: func(c *Config) { c.Integrations[0].URL = "not a url" },
		},
		"negative batch size": {
			mutate: func(c *Config) { c.Insertion.BatchSize = -1 },
		},
		"duplicate id": {
			mutate: func(c *Config) {
				second := validIntegration()
				second.Default = false
				c.Integrations = append(c.Integrations, second)
			},
		},
		"two defaults": {
			mutate: func(c *Config) {
				second := validIntegration()
				second.ID = "other"
				c.Integrations = append(c.Integrations, second)
			},
		},
		"same id in another project": {
			mutate: func(c *Config) {
				second := validIntegration()
				second.Project = "billing"
				c.Integrations = append(c.Integrations, second)
			},
			valid: true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := Config{Integrations: []IntegrationConfig{validIntegration()}}
			tc.mutate(&c)
			err := c.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func writeSecrets(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestJSONSecrets(t *testing.T) {
	secrets, err := NewJSONSecrets(writeSecrets(t, `{"influx-token": "abc", "nested": {"a": 1}}`))
	require.NoError(t, err)

	value, err := secrets.Get("influx-token")
	require.NoError(t, err)
	assert.Equal(t, "abc", value)

	value, err = secrets.Get("nested")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, value)

	_, err = secrets.Get("missing")
	assert.True(t, perferrors.IsNotFound(err))
}

func TestJSONSecrets_InvalidFile(t *testing.T) {
	_, err := NewJSONSecrets(writeSecrets(t, `not json`))
	assert.Error(t, err)

	_, err = NewJSONSecrets(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	secrets := &JSONSecrets{store: map[string]interface{}{"pw": "hunter2"}}

	value, err := Resolve(secrets, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", value)

	value, err = Resolve(secrets, "secret:pw")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", value)

	_, err = Resolve(secrets, "secret:other")
	assert.True(t, perferrors.IsNotFound(err))
}

func TestStore_Resolve(t *testing.T) {
	other := validIntegration()
	other.ID = "legacy"
	other.Default = false
	other.Type = TypeInfluxDBV1
	other.TokenOrPassword = "plain-password"
	other.Tmz = ""

	config := Config{
		Insertion:    InsertionConfig{BatchSize: 100, DefaultAggregationWindow: "5s"},
		Query:        QueryConfig{Window: 10 * time.Second},
		Integrations: []IntegrationConfig{validIntegration(), other},
	}
	store := NewStore(config, &JSONSecrets{store: map[string]interface{}{"influx-token": "tok"}})

	resolved, err := store.Resolve("shop", "")
	require.NoError(t, err)
	assert.Equal(t, "main", resolved.ID)
	assert.Equal(t, "tok", resolved.Credential)
	assert.Equal(t, "Europe/Paris", resolved.Location.String())
	assert.Equal(t, 100, resolved.BatchSize)
	assert.Equal(t, "5s", resolved.AggregationWindow)
	assert.Equal(t, 10*time.Second, resolved.QueryWindow)

	resolved, err = store.Resolve("shop", "legacy")
	require.NoError(t, err)
	assert.Equal(t, "plain-password", resolved.Credential)
	assert.Equal(t, time.UTC, resolved.Location)

	_, err = store.Resolve("shop", "nope")
	assert.True(t, perferrors.IsNotFound(err))

	_, err = store.Resolve("billing", "")
	assert.True(t, perferrors.IsNotFound(err))

	assert.Len(t, store.Integrations("shop"), 2)
	assert.Empty(t, store.Integrations("billing"))
}

func TestStore_ResolveIsCached(t *testing.T) {
	secrets := &JSONSecrets{store: map[string]interface{}{"influx-token": "first"}}
	store := NewStore(Config{Integrations: []IntegrationConfig{validIntegration()}}, secrets)

	resolved, err := store.Resolve("shop", "main")
	require.NoError(t, err)
	assert.Equal(t, "first", resolved.Credential)

	secrets.store["influx-token"] = "second"
	resolved, err = store.Resolve("shop", "main")
	require.NoError(t, err)
	assert.Equal(t, "first", resolved.Credential)

	store.Invalidate()
	resolved, err = store.Resolve("shop", "main")
	require.NoError(t, err)
	assert.Equal(t, "second", resolved.Credential)
}

func TestStore_ResolveBadTimezone(t *testing.T) {
	integration := validIntegration()
	integration.TokenOrPassword = ""
	integration.Tmz = "Mars/Olympus"
	store := NewStore(Config{Integrations: []IntegrationConfig{integration}}, &JSONSecrets{store: map[string]interface{}{}})

	_, err := store.Resolve("shop", "")
	assert.True(t, perferrors.IsInvalidArgument(err))
}
