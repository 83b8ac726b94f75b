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
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "taskdeck help [command]" }
func (c *HelpCmd) NeedsAuth() bool   { return false }

func (c *HelpCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, b service.Backend, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		printOverview(out, DefaultRegistry)
		return exitcode.Success
	}

	cmd, ok := DefaultRegistry.Find(args[0])
	if !ok {
		return usageError(errOut, "unknown command: %s", args[0])
	}
	fmt.Fprintf(out, "%s\n\nUsage:\n  %s\n", cmd.Synopsis(), cmd.Usage())
	return exitcode.Success
}

// printOverview lists every registered command with its aliases.
func printOverview(out io.Writer, r *Registry) {
	fmt.Fprint(out, "Usage:\n  taskdeck [command] [args] [common flags]\n\nRunning taskdeck with no command lists tasks.\n\nCommands:\n")
	for _, cmd := range r.All() {
		name := cmd.Name()
		if aliases := cmd.Aliases(); len(aliases) > 0 {
			name += " (" + strings.Join(aliases, ", ") + ")"
		}
		fmt.Fprintf(out, "  %-20s %s\n", name, cmd.Synopsis())
	}
	fmt.Fprint(out, helpFooter)
}

const helpFooter = `
A <ref> is a task number from the list or a task id.
Run "taskdeck help <command>" for a command's usage.

Common flags:
  --config <dir>   Override config directory
  --quiet, -q      Suppress informational output
  --debug          Print debug logs to stderr

Environment:
  TASKDECK_API_BASE_URL   API base address (default http://localhost:8000/api)
`
