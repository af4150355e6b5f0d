package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cellar/internal/journal"
	"github.com/mesh-intelligence/cellar/internal/trace"
)

type historyFlags struct {
	limit      int
	delete     bool
	exportPath string
	importPath string
}

// runDetail is the JSON form of one recorded run with its events.
type runDetail struct {
	journal.Run
	Events []trace.Event `json:"events"`
}

func (a *app) newHistoryCmd() *cobra.Command {
	var f historyFlags
	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "List recorded runs or show one run",
		Long: `Without arguments, list the most recent recorded runs. With a RUN_ID,
print that run's events, or delete it when --delete is given. --export and
--import move the whole journal to and from a JSONL file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := a.cfg.HistoryLimit
			if cmd.Flags().Changed("limit") {
				limit = f.limit
			}
			if f.delete && len(args) == 0 {
				return userError(errors.New("--delete requires a RUN_ID"))
			}
			if (f.exportPath != "" || f.importPath != "") && (len(args) > 0 || f.delete) {
				return userError(errors.New("--export and --import take no RUN_ID"))
			}

			store, err := a.openJournal(true)
			if err != nil {
				return err
			}
			defer store.Close()

			if f.importPath != "" || f.exportPath != "" {
				return a.transfer(cmd, store, f)
			}

			switch {
			case len(args) == 0:
				return a.listRuns(cmd, store, limit)
			case f.delete:
				return a.deleteRun(cmd, store, args[0])
			default:
				return a.showRun(cmd, store, args[0])
			}
		},
	}
	cmd.Flags().IntVarP(&f.limit, "limit", "n", defaultHistoryLimit, "maximum number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&f.delete, "delete", false, "delete the run instead of showing it")
	cmd.Flags().StringVar(&f.exportPath, "export", "", "write every run to a JSONL file")
	cmd.Flags().StringVar(&f.importPath, "import", "", "add runs from a JSONL file written by --export")
	return cmd
}

func (a *app) listRuns(cmd *cobra.Command, store *journal.Store, limit int) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return sysError(err)
	}
	if a.cfg.Output == outputJSON {
		if runs == nil {
			runs = []journal.Run{}
		}
		return writeJSON(cmd.OutOrStdout(), runs)
	}
	return printRuns(cmd.OutOrStdout(), runs)
}

func (a *app) showRun(cmd *cobra.Command, store *journal.Store, runID string) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return lookupError(err)
	}
	events, err := store.Events(runID)
	if err != nil {
		return sysError(err)
	}
	if a.cfg.Output == outputJSON {
		if events == nil {
			events = []trace.Event{}
		}
		return writeJSON(cmd.OutOrStdout(), runDetail{Run: run, Events: events})
	}
	printRun(cmd.OutOrStdout(), run, events)
	return nil
}

func (a *app) deleteRun(cmd *cobra.Command, store *journal.Store, runID string) error {
	if err := store.DeleteRun(runID); err != nil {
		return lookupError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted run %s\n", runID)
	return nil
}

// transfer imports runs from f.importPath, then exports the journal to
// f.exportPath; either may be empty.
func (a *app) transfer(cmd *cobra.Command, store *journal.Store, f historyFlags) error {
	out := cmd.OutOrStdout()
	if f.importPath != "" {
		n, err := store.Import(f.importPath)
		if err != nil {
			return userError(err)
		}
		fmt.Fprintf(out, "imported %d runs from %s\n", n, f.importPath)
	}
	if f.exportPath != "" {
		n, err := store.Export(f.exportPath)
		if err != nil {
			return sysError(err)
		}
		fmt.Fprintf(out, "exported %d runs to %s\n", n, f.exportPath)
	}
	return nil
}

func lookupError(err error) error {
	if errors.Is(err, journal.ErrNotFound) {
		return userError(err)
	}
	return sysError(err)
}
