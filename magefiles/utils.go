//go:build mage
// +build mage

package main

import (
	"fmt"
	"runtime"

	semver "github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

func binaryWithExt(name string) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("%s.exe", name)
	}
	return name
}

func checkConstraint(version *semver.Version, constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return errors.Errorf("error parsing constraint: %v", err)
	}
	if !c.Check(version) {
		return errors.Errorf("found version %v but it failed constraint %v", version, c)
	}
	return nil
}
