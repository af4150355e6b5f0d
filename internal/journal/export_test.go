package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cellar/internal/trace"
)

func TestStore_ExportImport(t *testing.T) {
	src := openStore(t)
	first, err := src.SaveRun(runScript(t,
		trace.Step{Op: trace.OpNewCounted, As: "rc", Value: val(4)},
		trace.Step{Op: trace.OpDrop, Target: "rc"},
	))
	require.NoError(t, err)
	second, err := src.SaveRun(runScript(t,
		trace.Step{Op: trace.OpNewChecked, As: "c", Value: val(1)},
		trace.Step{Op: trace.OpBorrow, Target: "c", As: "r"},
	))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "runs.jsonl")
	n, err := src.Export(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], first)
	assert.Contains(t, lines[1], second)

	dst := openStore(t)
	added, err := dst.Import(path)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	r, err := dst.GetRun(second)
	require.NoError(t, err)
	assert.Equal(t, []string{"r"}, r.Outstanding)
	assert.Equal(t, 2, r.StepCount)

	events, err := dst.Events(first)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, trace.ResultDropped, events[1].Result)
	require.NotNil(t, events[1].Count)
	assert.Equal(t, 0, *events[1].Count)

	// Importing again adds nothing.
	added, err = dst.Import(path)
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestStore_ImportSkipsMalformedLines(t *testing.T) {
	src := openStore(t)
	id, err := src.SaveRun(runScript(t, trace.Step{Op: trace.OpNewMutable, As: "m"}))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "runs.jsonl")
	_, err = src.Export(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	mangled := "not json\n\n{\"run_id\":\"\"}\n" + string(data)
	require.NoError(t, os.WriteFile(path, []byte(mangled), 0o644))

	dst := openStore(t)
	added, err := dst.Import(path)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	_, err = dst.GetRun(id)
	assert.NoError(t, err)
}

func TestStore_ExportEmpty(t *testing.T) {
	s := openStore(t)
	path := filepath.Join(t.TempDir(), "runs.jsonl")

	n, err := s.Export(path)
	require.NoError(t, err)
	assert.Zero(t, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestStore_ImportMissingFile(t *testing.T) {
	s := openStore(t)
	_, err := s.Import(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}

func TestStore_ExportClosed(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Close())

	_, err := s.Export(filepath.Join(t.TempDir(), "runs.jsonl"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Import(filepath.Join(t.TempDir(), "runs.jsonl"))
	assert.Error(t, err)
}
