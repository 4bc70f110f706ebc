package configuration

import (
	"time"
)

const (
	TypeInfluxDBV1 = "influxdb_v1"
	TypeInfluxDBV2 = "influxdb_v2"
)

type Config struct {
	LogLevel     string
	Metrics      MetricsConfig
	Secrets      SecretsConfig
	Insertion    InsertionConfig
	Query        QueryConfig
	Integrations []IntegrationConfig `validate:"dive"`
}

type MetricsConfig struct {
	// If zero, metrics are not served.
	Port uint16
}

type SecretsConfig struct {
	// Path of a JSON object mapping secret names to values.
	Path string
}

type InsertionConfig struct {
	BatchSize                int `validate:"gte=0"`
	DefaultAggregationWindow string
}

type QueryConfig struct {
	// Read-side aggregation window. Zero picks a window from the requested range.
	Window time.Duration `validate:"gte=0"`
}

// IntegrationConfig is one configured time-series source of a project.
type IntegrationConfig struct {
	ID      string `validate:"required"`
	Project string `validate:"required"`
	Default bool
	Type    string `validate:"required,oneof=influxdb_v1 influxdb_v2"`
	URL     string `validate:"required,url"`
	// Organisation (influxdb_v2) or user name (influxdb_v1).
	OrgOrUsername string
	// Token or password; "secret:<name>" is resolved through the secret provider.
	TokenOrPassword  string
	Timeout          time.Duration `validate:"gte=0"`
	BucketOrDatabase string        `validate:"required"`
	Listener         string        `validate:"required"`
	Regex            string
	TestTitleTagName string
	Tmz              string
	CustomVars       []string
}

// SourceConfig is an integration with its credential resolved and its timezone loaded.
type SourceConfig struct {
	IntegrationConfig `mapstructure:",squash"`
	Credential        string
	Location          *time.Location
	// BatchSize is the number of points per write call.
	BatchSize int
	// AggregationWindow is the default upload window.
	AggregationWindow string
	// QueryWindow is the default read window.
	QueryWindow time.Duration
}
