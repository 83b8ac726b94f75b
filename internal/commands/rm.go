package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/service"
)

func init() {
	Register(&RmCmd{})
}

// RmCmd implements the rm command.
type RmCmd struct {
	force bool
}

// SetForce sets the force flag (for testing).
func (c *RmCmd) SetForce(force bool) {
	c.force = force
}

func (c *RmCmd) Name() string      { return "rm" }
func (c *RmCmd) Aliases() []string { return []string{"delete"} }
func (c *RmCmd) Synopsis() string  { return "Delete tasks" }
func (c *RmCmd) Usage() string     { return "taskdeck rm [common flags] [--force] <ref>..." }
func (c *RmCmd) NeedsAuth() bool   { return true }

func (c *RmCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&c.force, "force", "f", false, "")
}

func (c *RmCmd) Run(ctx context.Context, cfg *config.Config, b service.Backend, args []string, out, errOut io.Writer) int {
	refs, err := ParseTaskRefs(args)
	if err != nil {
		return usageError(errOut, "%v", err)
	}

	tasks := newTasks(cfg, b)
	if err := tasks.Fetch(ctx); err != nil {
		return reportError(errOut, err)
	}
	targets, err := resolveAll(refs, tasks.Snapshot().Tasks)
	if err != nil {
		return usageError(errOut, "%v", err)
	}

	if !c.force && !confirm(errOut, deletePrompt(targets)) {
		if !cfg.Quiet {
			fmt.Fprintln(out, "cancelled")
		}
		return exitcode.Success
	}

	if err := forEachTask(ctx, targets, tasks.Delete); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}

func deletePrompt(targets []service.Task) string {
	if len(targets) == 1 {
		return fmt.Sprintf("Delete %q?", strings.TrimSpace(targets[0].Title))
	}
	return fmt.Sprintf("Delete %d tasks?", len(targets))
}
