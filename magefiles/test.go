//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// scriptGlob matches the trace scripts bundled with the repository.
const scriptGlob = "internal/trace/testdata/*.yaml"

// Test groups test targets (all, unit, scripts).
type Test mg.Namespace

// All runs unit tests and then the bundled trace scripts.
func (Test) All() {
	mg.SerialDeps(Test.Unit, Test.Scripts)
}

// Unit runs every package's tests with the race detector.
func (Test) Unit() error {
	return sh.RunV(binGo, "test", "-race", "-count=1", "./...")
}

// Scripts builds the binary and runs each bundled trace script through it in
// a scratch data directory.
func (Test) Scripts() error {
	mg.Deps(Build)

	scripts, err := filepath.Glob(scriptGlob)
	if err != nil {
		return err
	}
	if len(scripts) == 0 {
		fmt.Println("No trace scripts found.")
		return nil
	}

	scratch, err := os.MkdirTemp("", "cellar-scripts-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	env := map[string]string{
		"CELLAR_CONFIG_DIR": filepath.Join(scratch, "config"),
		"CELLAR_DATA_DIR":   filepath.Join(scratch, "data"),
	}
	args := append([]string{"run", "--record"}, scripts...)
	if err := sh.RunWithV(env, binaryPath(), args...); err != nil {
		return err
	}
	return sh.RunWithV(env, binaryPath(), "history")
}
