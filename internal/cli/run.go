package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cellar/internal/journal"
	"github.com/mesh-intelligence/cellar/internal/trace"
)

// settleDelay is how long the watcher waits for a burst of writes to end
// before re-running a script.
const settleDelay = 50 * time.Millisecond

type runFlags struct {
	watch  bool
	record bool
}

// runOutput is the JSON form of one run.
type runOutput struct {
	RunID string `json:"run_id,omitempty"`
	trace.Result
}

func (a *app) newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run SCRIPT...",
		Short: "Run trace scripts",
		Long: `Run each YAML trace script on a fresh machine and print the events it
produces. The command fails if any script misses an expectation or hits an
unexpected fatal error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record := a.cfg.Record
			if cmd.Flags().Changed("record") {
				record = f.record
			}
			if f.watch {
				return a.watchScripts(cmd, args, record)
			}
			return a.runScripts(cmd, args, record)
		},
	}
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "re-run scripts when they change")
	cmd.Flags().BoolVar(&f.record, "record", false, "save runs to the journal")
	return cmd
}

// runScripts runs files in order and reports every result. It returns a user
// error if at least one script failed.
func (a *app) runScripts(cmd *cobra.Command, files []string, record bool) error {
	store, err := a.openJournal(record)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	failed := 0
	for _, file := range files {
		ok, err := a.runScript(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), store, file)
		if err != nil {
			return err
		}
		if !ok {
			failed++
		}
	}
	if failed > 0 {
		return userError(fmt.Errorf("%d of %d scripts failed", failed, len(files)))
	}
	return nil
}

// runScript loads, runs and reports one script. ok is false if the run did
// not succeed; err is set only for problems outside the script itself.
func (a *app) runScript(ctx context.Context, out, errOut io.Writer, store *journal.Store, file string) (ok bool, err error) {
	s, err := trace.LoadScript(file)
	if err != nil {
		return false, userError(err)
	}

	res, runErr := trace.Run(ctx, s, a.machineOptions(errOut)...)
	if errors.Is(runErr, context.Canceled) {
		return false, runErr
	}

	var runID string
	if store != nil {
		runID, err = store.SaveRun(res)
		if err != nil {
			return false, sysError(fmt.Errorf("record run: %w", err))
		}
	}

	if a.cfg.Output == outputJSON {
		if err := writeJSON(out, runOutput{RunID: runID, Result: res}); err != nil {
			return false, sysError(err)
		}
	} else {
		printResult(out, res)
		if runID != "" {
			fmt.Fprintf(out, "recorded run %s\n", runID)
		}
	}
	return runErr == nil, nil
}

func (a *app) openJournal(record bool) (*journal.Store, error) {
	if !record {
		return nil, nil
	}
	dataDir, err := a.dataDir()
	if err != nil {
		return nil, sysError(fmt.Errorf("resolve data dir: %w", err))
	}
	store, err := journal.Open(dataDir)
	if err != nil {
		return nil, sysError(fmt.Errorf("open journal: %w", err))
	}
	return store, nil
}

// watchScripts runs every script once and then again each time its file is
// written or re-created, until the command's context is canceled.
func (a *app) watchScripts(cmd *cobra.Command, files []string, record bool) error {
	ctx := cmd.Context()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	store, err := a.openJournal(record)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sysError(fmt.Errorf("create watcher: %w", err))
	}
	defer watcher.Close()

	// Editors often replace files by rename, so the directories are watched
	// rather than the files themselves.
	targets := make(map[string]string, len(files))
	dirs := make(map[string]bool)
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return sysError(err)
		}
		targets[abs] = file
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return sysError(fmt.Errorf("watch %s: %w", dir, err))
		}
	}

	rerun := func(file string) error {
		_, err := a.runScript(ctx, out, errOut, store, file)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		var ee *exitError
		if errors.As(err, &ee) && ee.code == exitUserError {
			fmt.Fprintln(errOut, err)
			return nil
		}
		return err
	}

	for _, file := range files {
		if err := rerun(file); err != nil {
			return err
		}
	}
	fmt.Fprintf(errOut, "watching %d scripts, interrupt to stop\n", len(files))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(errOut, "watch: %v\n", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			file, watched := targets[filepath.Clean(ev.Name)]
			if !watched || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			changed := drainEvents(ctx, watcher, targets, file)
			for _, f := range changed {
				if err := rerun(f); err != nil {
					return err
				}
			}
		}
	}
}

// drainEvents collects further changes until the watcher has been quiet for
// settleDelay. It returns the changed scripts in the order first seen.
func drainEvents(ctx context.Context, watcher *fsnotify.Watcher, targets map[string]string, first string) []string {
	changed := []string{first}
	seen := map[string]bool{first: true}
	timer := time.NewTimer(settleDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return changed
		case <-timer.C:
			return changed
		case ev, ok := <-watcher.Events:
			if !ok {
				return changed
			}
			if file, watched := targets[filepath.Clean(ev.Name)]; watched && !seen[file] {
				seen[file] = true
				changed = append(changed, file)
			}
			timer.Reset(settleDelay)
		}
	}
}
