package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/perfreporter/perfreporter/cmd/perfreporter/cmd"
	"github.com/perfreporter/perfreporter/internal/common"
	"github.com/perfreporter/perfreporter/internal/common/logging"
)

func main() {
	common.ConfigureCommandLineLogging()
	root := cmd.RootCmd()
	if err := root.Execute(); err != nil {
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Error("command failed")
		os.Exit(1)
	}
}
