//go:build mage
// +build mage

package main

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const buildPackage = "github.com/perfreporter/perfreporter/internal/perfctl/build"

// ldflags stamps the version information printed by "perfreporter version".
func ldflags() (string, error) {
	commit, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil {
		commit = "UNKNOWN"
	}
	version, err := sh.Output("git", "describe", "--tags", "--always")
	if err != nil {
		version = "UNKNOWN"
	}
	vars := map[string]string{
		"ReleaseVersion": version,
		"GitCommit":      commit,
		"BuildTime":      time.Now().UTC().Format(time.RFC3339),
		"GoVersion":      runtime.Version(),
	}
	flags := make([]string, 0, len(vars))
	for name, value := range vars {
		flags = append(flags, fmt.Sprintf("-X '%s.%s=%s'", buildPackage, name, value))
	}
	return strings.Join(flags, " "), nil
}

// BuildPerfreporter builds the perfreporter binary into bin/.
func BuildPerfreporter() error {
	mg.Deps(goCheck)
	flags, err := ldflags()
	if err != nil {
		return err
	}
	out := filepath.Join("bin", binaryWithExt("perfreporter"))
	return goRunWith(map[string]string{"CGO_ENABLED": "0"}, "build", "-ldflags", flags, "-o", out, "./cmd/perfreporter")
}
