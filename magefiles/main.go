//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Check dependent tools are present and the correct version.
func CheckDeps() error {
	checks := []struct {
		name  string
		check func() error
	}{
		{"go", goCheck},
		{"golangci-lint", golangciLintCheck},
	}
	failures := false
	for _, check := range checks {
		fmt.Printf("Checking %s... ", check.name)
		if err := check.check(); err != nil {
			fmt.Printf("FAILED\nReason: %v\n", err)
			failures = true
		} else {
			fmt.Println("PASSED")
		}
	}
	if failures {
		return errors.New("check(s) failed.")
	}
	return nil
}

// Clean removes build and coverage output.
func Clean() {
	fmt.Println("Cleaning...")
	for _, path := range []string{"bin", "dist", coverageFile} {
		os.RemoveAll(path)
	}
}
