package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/output"
	"taskdeck/internal/service"
	"taskdeck/internal/state"
)

func init() {
	Register(&ListCmd{})
}

// ListCmd implements the list command.
// Handles both `taskdeck` (no args) and `taskdeck list`.
type ListCmd struct {
	pending   bool
	completed bool
}

// SetPending sets the pending-only filter (for testing).
func (c *ListCmd) SetPending(v bool) {
	c.pending = v
}

// SetCompleted sets the completed-only filter (for testing).
func (c *ListCmd) SetCompleted(v bool) {
	c.completed = v
}

func (c *ListCmd) Name() string      { return "list" }
func (c *ListCmd) Aliases() []string { return []string{"ls"} }
func (c *ListCmd) Synopsis() string  { return "List tasks" }
func (c *ListCmd) Usage() string     { return "taskdeck list [common flags] [--pending | --completed]" }
func (c *ListCmd) NeedsAuth() bool   { return true }

func (c *ListCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&c.pending, "pending", "p", false, "")
	fs.BoolVarP(&c.completed, "completed", "c", false, "")
}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, b service.Backend, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		return usageError(errOut, "unexpected argument: %s", args[0])
	}
	if c.pending && c.completed {
		return usageError(errOut, "cannot use both --pending and --completed")
	}

	tasks := newTasks(cfg, b)
	if err := tasks.Fetch(ctx); err != nil {
		return reportError(errOut, err)
	}

	printTasks(cfg, out, tasks, listFilter{pending: c.pending, completed: c.completed})
	return exitcode.Success
}

type listFilter struct {
	pending   bool
	completed bool
}

func (f listFilter) keep(t service.Task) bool {
	switch {
	case f.pending:
		return !t.Completed
	case f.completed:
		return t.Completed
	}
	return true
}

// printTasks writes the numbered list followed by a summary. Numbers are
// positions in the full list so they stay valid as task references when a
// filter hides some rows.
func printTasks(cfg *config.Config, out io.Writer, tasks *state.Tasks, f listFilter) {
	snap := tasks.Snapshot()

	shown := 0
	for i, t := range snap.Tasks {
		if !f.keep(t) {
			continue
		}
		output.FormatTask(out, i+1, t)
		shown++
	}

	if shown == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no tasks found")
		}
		return
	}
	if !cfg.Quiet {
		fmt.Fprintln(out, output.Separator)
		output.FormatSummary(out, tasks.Stats())
	}
}
