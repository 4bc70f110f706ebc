package common

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	commonconfig "github.com/perfreporter/perfreporter/internal/common/config"
)

const envPrefix = "PERFREPORTER"

// ReadConfig reads config.yaml from defaultPath (if present), merges every user specified file on top
// of it and unmarshals the result into config. Environment variables prefixed with PERFREPORTER_ and
// the command line flags bound to config keys in flags override file values.
func ReadConfig(config interface{}, defaultPath string, overrideConfigs []string, flags map[string]*pflag.Flag) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.WithMessagef(err, "error reading base config from %s", defaultPath)
		}
		log.Debugf("no base config found in %s", defaultPath)
	} else {
		log.Infof("Read base config from %s", v.ConfigFileUsed())
	}

	for _, overrideConfig := range overrideConfigs {
		v.SetConfigFile(overrideConfig)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.WithMessagef(err, "error reading config from %s", overrideConfig)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	for key, flag := range flags {
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, errors.WithMessagef(err, "error binding flag to %s", key)
		}
	}

	if err := v.Unmarshal(config, commonconfig.CustomHooks...); err != nil {
		return nil, errors.WithMessage(err, "error unmarshalling config")
	}
	return v, nil
}

// ConfigureCommandLineLogging configures logging for interactive use, where output goes to stderr so it
// doesn't mix with command output.
func ConfigureCommandLineLogging() {
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	log.SetOutput(os.Stderr)
}

// SetLogLevel parses level and applies it to the standard logger, keeping the current level when the
// name is empty.
func SetLogLevel(level string) error {
	if level == "" {
		return nil
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return errors.WithMessagef(err, "invalid log level %q", level)
	}
	log.SetLevel(parsed)
	return nil
}

// ServeMetrics exposes the default prometheus registry on /metrics of port. The returned function
// stops the server.
func ServeMetrics(port uint16) (shutdown func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return ServeHttp(port, mux)
}

func ServeHttp(port uint16, mux http.Handler) (shutdown func()) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting http server listening on %d", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("http server on %d failed", port)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Infof("Stopping http server listening on %d", port)
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("http server shutdown failed")
		}
	}
}
