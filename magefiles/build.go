//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the cellar project using Mage.
//
// Usage:
//
//	mage build          Compile the cellar binary to bin/
//	mage test:all       Run all tests
//	mage test:unit      Run unit tests with the race detector
//	mage test:scripts   Run the bundled trace scripts through the binary
//	mage lint           Run golangci-lint
//	mage clean          Remove build artifacts
//	mage install        Install cellar to GOPATH/bin
//	mage stats          Print Go LOC and trace script counts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "cellar"
	binaryDir  = "bin"
	cmdDir     = "./cmd/cellar"
)

// Build compiles the cellar binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", binaryPath(), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, binaryPath())
}

func binaryPath() string {
	return filepath.Join(binaryDir, binaryName)
}
