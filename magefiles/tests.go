//go:build mage
// +build mage

package main

import (
	"github.com/magefile/mage/mg"
)

const coverageFile = "coverage.out"

// Tests is a mage target that runs the tests and generates a coverage report.
func Tests() error {
	mg.Deps(goCheck)
	return goRun("test", "-race", "-coverprofile="+coverageFile, "./...")
}

// Coverage prints the per-function coverage of the last Tests run.
func Coverage() error {
	mg.Deps(Tests)
	return goRun("tool", "cover", "-func="+coverageFile)
}
