package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mesh-intelligence/cellar/internal/journal"
	"github.com/mesh-intelligence/cellar/internal/trace"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult writes one run's events followed by a status line.
func printResult(w io.Writer, res trace.Result) {
	fmt.Fprintf(w, "== %s\n", res.Script)
	for _, ev := range res.Events {
		fmt.Fprintln(w, ev.String())
	}
	if len(res.Outstanding) > 0 {
		fmt.Fprintf(w, "outstanding: %s\n", strings.Join(res.Outstanding, ", "))
	}
	if res.Error != "" {
		fmt.Fprintf(w, "%s: %s\n", res.Status, res.Error)
		return
	}
	fmt.Fprintln(w, res.Status)
}

func printRuns(w io.Writer, runs []journal.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSCRIPT\tSTATUS\tSTEPS\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.RunID, r.Script, r.Status, r.StepCount, r.StartedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func printRun(w io.Writer, run journal.Run, events []trace.Event) {
	fmt.Fprintf(w, "run:     %s\n", run.RunID)
	fmt.Fprintf(w, "script:  %s\n", run.Script)
	fmt.Fprintf(w, "status:  %s\n", run.Status)
	fmt.Fprintf(w, "started: %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.Error != "" {
		fmt.Fprintf(w, "error:   %s\n", run.Error)
	}
	if len(run.Outstanding) > 0 {
		fmt.Fprintf(w, "outstanding: %s\n", strings.Join(run.Outstanding, ", "))
	}
	for _, ev := range events {
		fmt.Fprintln(w, ev.String())
	}
}
