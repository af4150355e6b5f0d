// Package integration provides CLI integration tests for cellar. The tests
// build the binary once and drive it as a subprocess.
package integration

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

var (
	// cellarBin is the path to the built cellar binary.
	cellarBin string
	// buildErr captures any build error.
	buildErr error
)

// BuildError wraps a build error with output.
type BuildError struct {
	Err    error
	Output string
}

func (e *BuildError) Error() string {
	return e.Err.Error() + ": " + e.Output
}

// FindProjectRoot finds the project root by walking up and looking for go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// TestEnv is an isolated config and data directory pair.
type TestEnv struct {
	t       *testing.T
	TempDir string
	Config  string
	DataDir string
	Env     []string
}

// NewTestEnv creates a new isolated test environment.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	if buildErr != nil {
		t.Fatalf("failed to build cellar: %v", buildErr)
	}
	if cellarBin == "" {
		t.Fatal("cellar binary not built (cellarBin is empty)")
	}

	tempDir := t.TempDir()
	return &TestEnv{
		t:       t,
		TempDir: tempDir,
		Config:  filepath.Join(tempDir, "config"),
		DataDir: filepath.Join(tempDir, "data"),
	}
}

// WriteScript writes a trace script into the environment and returns its path.
func (e *TestEnv) WriteScript(name, body string) string {
	e.t.Helper()
	path := filepath.Join(e.TempDir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		e.t.Fatalf("write script %s: %v", name, err)
	}
	return path
}

// CmdResult holds the result of a cellar command execution.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunCellar executes the cellar CLI with the given arguments, pointing it at
// the environment's config and data directories.
func (e *TestEnv) RunCellar(args ...string) CmdResult {
	e.t.Helper()

	allArgs := append([]string{"--config-dir", e.Config, "--data-dir", e.DataDir}, args...)
	cmd := exec.Command(cellarBin, allArgs...)
	cmd.Dir = e.TempDir
	cmd.Env = append(os.Environ(), e.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			e.t.Fatalf("failed to run cellar: %v", err)
		}
	}

	return CmdResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
}

// MustRunCellar executes the cellar CLI and fails the test if it returns non-zero.
func (e *TestEnv) MustRunCellar(args ...string) CmdResult {
	e.t.Helper()
	result := e.RunCellar(args...)
	if result.ExitCode != 0 {
		e.t.Fatalf("cellar %v failed with exit code %d:\nstdout: %s\nstderr: %s",
			args, result.ExitCode, result.Stdout, result.Stderr)
	}
	return result
}

// ParseJSON parses JSON output into the target type.
func ParseJSON[T any](t *testing.T, jsonStr string) T {
	t.Helper()
	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", jsonStr, err)
	}
	return result
}

// RunRecord is the JSON form of one run printed by "cellar run --json".
type RunRecord struct {
	RunID       string   `json:"run_id"`
	Script      string   `json:"script"`
	Status      string   `json:"status"`
	Error       string   `json:"error"`
	Outstanding []string `json:"outstanding"`
	Events      []struct {
		Seq    int    `json:"seq"`
		Op     string `json:"op"`
		Result string `json:"result"`
		Value  *int64 `json:"value"`
		State  string `json:"state"`
		Count  *int   `json:"count"`
	} `json:"events"`
}

// HistoryEntry is one element of "cellar history --json".
type HistoryEntry struct {
	RunID     string `json:"run_id"`
	Script    string `json:"script"`
	Status    string `json:"status"`
	StepCount int    `json:"step_count"`
}
