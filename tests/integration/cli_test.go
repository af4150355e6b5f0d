package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	projectRoot, err := FindProjectRoot()
	if err != nil {
		buildErr = err
		os.Exit(m.Run())
	}

	tmpDir, err := os.MkdirTemp("", "cellar-test-*")
	if err != nil {
		buildErr = err
		os.Exit(m.Run())
	}
	cellarBin = filepath.Join(tmpDir, "cellar")

	cmd := exec.Command("go", "build", "-o", cellarBin, "./cmd/cellar")
	cmd.Dir = projectRoot
	if output, err := cmd.CombinedOutput(); err != nil {
		buildErr = &BuildError{Err: err, Output: string(output)}
	}

	code := m.Run()
	os.RemoveAll(tmpDir)
	os.Exit(code)
}

const lifecycleScript = `name: lifecycle
steps:
  - {op: new_counted, as: rc, value: 7}
  - {op: clone, target: rc, as: rc1}
  - {op: drop, target: rc, expect: ok}
  - {op: count, target: rc1}
  - {op: drop, target: rc1, expect: dropped}
  - {op: new_checked, as: c, value: 1}
  - {op: borrow_mut, target: c, as: w}
  - {op: borrow, target: c, as: r, expect: busy}
  - {op: write, target: w, value: 3}
  - {op: release, target: w}
  - {op: read, target: c, expect: "3"}
`

const leakyScript = `name: leaky
steps:
  - {op: new_checked, as: c, value: 1}
  - {op: borrow, target: c, as: r1}
  - {op: borrow, target: c, as: r2, expect: "shared(2)"}
`

const fatalScript = `name: fatal
steps:
  - {op: new_checked, as: c, value: 1}
  - {op: borrow, target: c, as: r1}
  - {op: replace, target: c, value: 2}
  - {op: release, target: r1}
`

func TestCLI_VersionNeedsNoConfig(t *testing.T) {
	env := NewTestEnv(t)
	result := env.MustRunCellar("version")
	assert.True(t, strings.HasPrefix(result.Stdout, "cellar v"), result.Stdout)
	assert.NoDirExists(t, env.Config)
}

func TestCLI_Init(t *testing.T) {
	env := NewTestEnv(t)

	result := env.MustRunCellar("init")
	assert.Contains(t, result.Stdout, "cellar initialized successfully")
	assert.FileExists(t, filepath.Join(env.Config, "config.yaml"))
	assert.FileExists(t, filepath.Join(env.DataDir, "cellar.db"))

	env.MustRunCellar("init")
}

func TestCLI_RunExitCodes(t *testing.T) {
	env := NewTestEnv(t)

	tests := []struct {
		name     string
		script   string
		wantCode int
		wantOut  string
	}{
		{name: "lifecycle.yaml", script: lifecycleScript, wantCode: 0, wantOut: "passed"},
		{name: "leaky.yaml", script: leakyScript, wantCode: 0, wantOut: "outstanding: r1, r2"},
		{name: "fatal.yaml", script: fatalScript, wantCode: 1, wantOut: "aborted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := env.WriteScript(tt.name, tt.script)
			result := env.RunCellar("run", path)
			assert.Equal(t, tt.wantCode, result.ExitCode, "stdout: %s\nstderr: %s", result.Stdout, result.Stderr)
			assert.Contains(t, result.Stdout, tt.wantOut)
		})
	}
}

func TestCLI_MissingScriptIsUserError(t *testing.T) {
	env := NewTestEnv(t)
	result := env.RunCellar("run", filepath.Join(env.TempDir, "missing.yaml"))
	assert.Equal(t, 1, result.ExitCode)
	assert.NotEmpty(t, result.Stderr)
}

func TestCLI_RunJSON(t *testing.T) {
	env := NewTestEnv(t)
	path := env.WriteScript("lifecycle.yaml", lifecycleScript)

	result := env.MustRunCellar("--json", "run", path)
	rec := ParseJSON[RunRecord](t, result.Stdout)
	assert.Equal(t, "lifecycle", rec.Script)
	assert.Equal(t, "passed", rec.Status)
	require.Len(t, rec.Events, 11)

	count := rec.Events[3]
	assert.Equal(t, "count", count.Op)
	require.NotNil(t, count.Count)
	assert.Equal(t, 1, *count.Count)
	assert.Equal(t, "dropped", rec.Events[4].Result)
	assert.Equal(t, "busy", rec.Events[7].Result)
	assert.Equal(t, "exclusive", rec.Events[7].State)
}

func TestCLI_RecordAndHistory(t *testing.T) {
	env := NewTestEnv(t)
	env.MustRunCellar("init")
	pass := env.WriteScript("lifecycle.yaml", lifecycleScript)
	fatal := env.WriteScript("fatal.yaml", fatalScript)

	env.MustRunCellar("run", "--record", pass)
	result := env.RunCellar("run", "--record", fatal)
	assert.Equal(t, 1, result.ExitCode)

	result = env.MustRunCellar("--json", "history")
	runs := ParseJSON[[]HistoryEntry](t, result.Stdout)
	require.Len(t, runs, 2)
	assert.Equal(t, "fatal", runs[0].Script)
	assert.Equal(t, "aborted", runs[0].Status)
	assert.Equal(t, 3, runs[0].StepCount)
	assert.Equal(t, "lifecycle", runs[1].Script)

	result = env.MustRunCellar("--json", "history", "--limit", "1")
	assert.Len(t, ParseJSON[[]HistoryEntry](t, result.Stdout), 1)

	result = env.MustRunCellar("history", runs[1].RunID)
	assert.Contains(t, result.Stdout, "status:  passed")

	env.MustRunCellar("history", "--delete", runs[1].RunID)
	result = env.RunCellar("history", runs[1].RunID)
	assert.Equal(t, 1, result.ExitCode)
}

func TestCLI_EnvironmentOverrides(t *testing.T) {
	env := NewTestEnv(t)
	path := env.WriteScript("lifecycle.yaml", lifecycleScript)
	env.Env = []string{"CELLAR_OUTPUT=json", "CELLAR_VERBOSE=true"}

	result := env.MustRunCellar("run", path)
	rec := ParseJSON[RunRecord](t, result.Stdout)
	assert.Equal(t, "passed", rec.Status)
	assert.Contains(t, result.Stderr, "rc: dropping last reference")
}

func TestCLI_InvalidConfigIsUserError(t *testing.T) {
	env := NewTestEnv(t)
	require.NoError(t, os.MkdirAll(env.Config, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.Config, "config.yaml"), []byte("output: xml\n"), 0o644))

	result := env.RunCellar("history")
	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, result.Stderr, "invalid configuration")
}
