package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cellar/internal/journal"
)

func (a *app) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize cellar configuration and journal",
		Long:  "Create the configuration directory and config.yaml, then create the run journal in the data directory.",
		Args:  cobra.NoArgs,
		RunE:  a.runInit,
	}
}

func (a *app) runInit(cmd *cobra.Command, args []string) error {
	dataDir, err := a.dataDir()
	if err != nil {
		return sysError(fmt.Errorf("resolve data dir: %w", err))
	}

	if err := os.MkdirAll(a.configDir, 0o755); err != nil {
		return sysError(fmt.Errorf("create config directory: %w", err))
	}

	// Only a data dir given on the command line is persisted; otherwise the
	// default stays relative to the working directory.
	persisted := ""
	if a.flags.dataDir != "" {
		persisted = dataDir
	}
	created, err := writeConfigIfMissing(a.configDir, persisted)
	if err != nil {
		return sysError(fmt.Errorf("write config: %w", err))
	}

	store, err := journal.Open(dataDir)
	if err != nil {
		return sysError(fmt.Errorf("initialize journal: %w", err))
	}
	if err := store.Close(); err != nil {
		return sysError(fmt.Errorf("finalize journal: %w", err))
	}

	out := cmd.OutOrStdout()
	if created {
		fmt.Fprintf(out, "wrote %s\n", configPath(a.configDir))
	}
	fmt.Fprintf(out, "journal at %s\n", store.Path())
	fmt.Fprintln(out, "cellar initialized successfully")
	return nil
}
