package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"taskdeck/internal/config"
	"taskdeck/internal/form"
	"taskdeck/internal/service"
)

func init() {
	Register(&EditCmd{})
}

// optString is a string flag that remembers whether it was set, so an
// explicit empty value can be told apart from an absent flag.
type optString struct {
	value *string
}

func (o *optString) String() string {
	if o.value == nil {
		return ""
	}
	return *o.value
}

func (o *optString) Set(s string) error {
	o.value = &s
	return nil
}

func (o *optString) Type() string { return "string" }

// EditCmd implements the edit command.
type EditCmd struct {
	title       optString
	description optString
}

// SetTitle sets the new title (for testing).
func (c *EditCmd) SetTitle(t string) {
	c.title.value = &t
}

// SetDescription sets the new description (for testing).
func (c *EditCmd) SetDescription(d string) {
	c.description.value = &d
}

func (c *EditCmd) Name() string      { return "edit" }
func (c *EditCmd) Aliases() []string { return []string{"update"} }
func (c *EditCmd) Synopsis() string  { return "Change a task's title or description" }
func (c *EditCmd) Usage() string {
	return "taskdeck edit [common flags] [--title <text>] [--description <text>] <ref>"
}
func (c *EditCmd) NeedsAuth() bool { return true }

func (c *EditCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.VarP(&c.title, "title", "t", "")
	fs.VarP(&c.description, "description", "d", "")
}

func (c *EditCmd) Run(ctx context.Context, cfg *config.Config, b service.Backend, args []string, out, errOut io.Writer) int {
	if len(args) > 1 {
		return usageError(errOut, "edit takes a single task reference")
	}
	ref, err := ParseTaskRef(firstArg(args))
	if err != nil {
		return usageError(errOut, "%v", err)
	}

	patch, err := form.Patch(service.TaskPatch{
		Title:       c.title.value,
		Description: c.description.value,
	})
	if err != nil {
		return reportError(errOut, err)
	}

	tasks := newTasks(cfg, b)
	if err := tasks.Fetch(ctx); err != nil {
		return reportError(errOut, err)
	}
	task, err := ref.Resolve(tasks.Snapshot().Tasks)
	if err != nil {
		return usageError(errOut, "%v", err)
	}

	if err := tasks.Update(ctx, task.ID, patch); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
