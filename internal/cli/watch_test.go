package cli

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_WatchRerunsOnChange(t *testing.T) {
	e := newEnv(t)
	path := e.script(t, "pass.yaml", passingScript)

	var out, errOut syncBuffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir, "run", "--watch", path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(errOut.String(), "watching 1 scripts")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, strings.Count(out.String(), "== pass"))

	// A failing edit is reported but does not stop the watcher.
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(passingScript, `expect: "2"`, `expect: "9"`, 1)), 0o644))
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "== pass") >= 2
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "failed: ")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
