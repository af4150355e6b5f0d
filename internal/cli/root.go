// Package cli implements the cellar command-line interface: running trace
// scripts against the cells primitives, keeping a journal of runs, and an
// interactive shell.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cellar/internal/paths"
	"github.com/mesh-intelligence/cellar/internal/trace"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// exitError carries the process exit code for an error returned by a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func userError(err error) error { return &exitError{code: exitUserError, err: err} }

func sysError(err error) error { return &exitError{code: exitSysError, err: err} }

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool
}

// app is the state shared by the commands of one root command.
type app struct {
	flags     rootFlags
	configDir string
	cfg       settings
}

// NewRootCmd creates the top-level "cellar" command with global flags and all
// subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "cellar",
		Short: "Trace and explore interior-mutability primitives",
		Long: `cellar runs scripted or interactive sequences of operations against
mutable cells, counted handles and borrow-checked cells, printing the state
each step leaves behind, and keeps a journal of recorded runs.`,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: .cellar-db)")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&a.flags.verbose, "verbose", "v", false, "log handle releases to stderr")

	root.AddCommand(newVersionCmd())
	root.AddCommand(a.newInitCmd())
	root.AddCommand(a.newRunCmd())
	root.AddCommand(a.newHistoryCmd())
	root.AddCommand(a.newReplCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// load resolves the config directory and reads config.yaml before any
// subcommand runs.
func (a *app) load(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return userError(err)
	}

	if a.flags.jsonMode {
		cfg.Output = outputJSON
	}
	if a.flags.verbose {
		cfg.Verbose = true
	}
	a.configDir = configDir
	a.cfg = cfg
	return nil
}

// dataDir resolves the data directory: --data-dir > config.yaml data_dir >
// CELLAR_DATA_DIR > $(CWD)/.cellar-db.
func (a *app) dataDir() (string, error) {
	return paths.ResolveDataDir(a.flags.dataDir, a.cfg.DataDir)
}

// machineOptions returns the trace options implied by the loaded settings.
func (a *app) machineOptions(stderr io.Writer) []trace.Option {
	if !a.cfg.Verbose {
		return nil
	}
	return []trace.Option{trace.WithLogger(log.New(stderr, "cellar: ", 0))}
}
