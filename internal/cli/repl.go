package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cellar/internal/trace"
)

const (
	replPrompt      = "cellar> "
	replHistoryFile = "repl_history"
)

const replHelp = `Operations (NAME is created, TARGET must exist):
  new_mutable NAME [N]        get TARGET                 set TARGET N
  new_counted NAME [N]        clone TARGET as NAME       drop TARGET
  value TARGET                count TARGET
  new_checked NAME [N]        borrow TARGET as NAME      borrow_mut TARGET as NAME
  release VIEW                read TARGET                write TARGET N
  replace TARGET N            state TARGET
Append "expect X" to any operation to check its result, value or state.
Shell commands: help, outstanding, quit.
`

// shell evaluates interactive lines against one Machine.
type shell struct {
	m   *trace.Machine
	out io.Writer
}

// eval runs one line and reports whether the shell should exit.
func (s *shell) eval(line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false
	}

	switch line {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprint(s.out, replHelp)
		return false
	case "outstanding":
		names := s.m.Outstanding()
		if len(names) == 0 {
			fmt.Fprintln(s.out, "nothing outstanding")
		} else {
			fmt.Fprintln(s.out, strings.Join(names, " "))
		}
		return false
	}

	step, err := trace.ParseCommand(line)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return false
	}
	ev, err := s.m.Exec(step)
	if ev.Result != "" {
		fmt.Fprintln(s.out, ev.String())
	}
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
	if ev.Result == trace.ResultFatal {
		fmt.Fprintln(s.out, "machine halted; quit and start a new shell")
	}
	return false
}

func (a *app) newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Explore the primitives interactively",
		Long:  "Start a shell that applies one operation per line to a single machine. Type help for the list of operations.",
		Args:  cobra.NoArgs,
		RunE:  a.runRepl,
	}
}

func (a *app) runRepl(cmd *cobra.Command, args []string) error {
	cfg := &readline.Config{
		Prompt:            replPrompt,
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
		HistorySearchFold: true,
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	}
	if info, err := os.Stat(a.configDir); err == nil && info.IsDir() {
		cfg.HistoryFile = filepath.Join(a.configDir, replHistoryFile)
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return sysError(fmt.Errorf("start shell: %w", err))
	}
	defer rl.Close()

	ctx := cmd.Context()
	return trace.Session(func(m *trace.Machine) error {
		sh := &shell{m: m, out: rl.Stdout()}
		fmt.Fprintln(sh.out, `type "help" for operations, "quit" to leave`)
	loop:
		for ctx.Err() == nil {
			line, err := rl.Readline()
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				if line == "" {
					break loop
				}
				continue
			case errors.Is(err, io.EOF):
				break loop
			case err != nil:
				return sysError(err)
			}
			if sh.eval(line) {
				break
			}
		}
		if names := m.Outstanding(); len(names) > 0 {
			fmt.Fprintf(sh.out, "left outstanding: %s\n", strings.Join(names, " "))
		}
		return nil
	}, a.machineOptions(cmd.ErrOrStderr())...)
}
