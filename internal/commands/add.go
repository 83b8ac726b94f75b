package commands

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"taskdeck/internal/config"
	"taskdeck/internal/form"
	"taskdeck/internal/service"
)

func init() {
	Register(&AddCmd{})
	Register(&CreateCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	description string
}

// SetDescription sets the description (for testing).
func (c *AddCmd) SetDescription(d string) {
	c.description = d
}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return nil }
func (c *AddCmd) Synopsis() string  { return "Create a task" }
func (c *AddCmd) Usage() string     { return "taskdeck add [common flags] [--description <text>] <title...>" }
func (c *AddCmd) NeedsAuth() bool   { return true }

func (c *AddCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.description, "description", "d", "", "")
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, b service.Backend, args []string, out, errOut io.Writer) int {
	return runAdd(ctx, cfg, b, c.description, args, out, errOut)
}

// CreateCmd is an alias for AddCmd.
type CreateCmd struct {
	description string
}

func (c *CreateCmd) Name() string      { return "create" }
func (c *CreateCmd) Aliases() []string { return nil }
func (c *CreateCmd) Synopsis() string  { return "Create a task (alias for add)" }
func (c *CreateCmd) Usage() string {
	return "taskdeck create [common flags] [--description <text>] <title...>"
}
func (c *CreateCmd) NeedsAuth() bool { return true }

func (c *CreateCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.description, "description", "d", "", "")
}

func (c *CreateCmd) Run(ctx context.Context, cfg *config.Config, b service.Backend, args []string, out, errOut io.Writer) int {
	return runAdd(ctx, cfg, b, c.description, args, out, errOut)
}

// runAdd is the shared implementation for add and create commands.
// Input is validated before any request is made.
func runAdd(ctx context.Context, cfg *config.Config, b service.Backend, description string, args []string, out, errOut io.Writer) int {
	in, err := form.Task(strings.Join(args, " "), description)
	if err != nil {
		return reportError(errOut, err)
	}

	if err := newTasks(cfg, b).Create(ctx, in); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}
