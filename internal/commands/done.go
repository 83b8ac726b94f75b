package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"taskdeck/internal/config"
	"taskdeck/internal/service"
)

// maxParallel bounds concurrent requests for multi-task commands.
const maxParallel = 4

func init() {
	Register(&DoneCmd{})
}

// DoneCmd implements the done command. It flips completion, so running it
// twice on a task restores the original state.
type DoneCmd struct{}

func (c *DoneCmd) Name() string      { return "done" }
func (c *DoneCmd) Aliases() []string { return []string{"toggle"} }
func (c *DoneCmd) Synopsis() string  { return "Toggle task completion" }
func (c *DoneCmd) Usage() string     { return "taskdeck done [common flags] <ref>..." }
func (c *DoneCmd) NeedsAuth() bool   { return true }

func (c *DoneCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, b service.Backend, args []string, out, errOut io.Writer) int {
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

	if err := forEachTask(ctx, targets, tasks.Toggle); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}

// forEachTask runs fn for every target with bounded concurrency and returns
// the first error. Remaining calls are cancelled once one fails.
func forEachTask(ctx context.Context, targets []service.Task, fn func(context.Context, string) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, t := range targets {
		g.Go(func() error {
			return fn(ctx, t.ID)
		})
	}
	return g.Wait()
}

