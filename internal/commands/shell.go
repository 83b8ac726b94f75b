package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/form"
	"taskdeck/internal/output"
	"taskdeck/internal/service"
	"taskdeck/internal/state"
)

func init() {
	Register(&ShellCmd{})
}

// errQuit ends the shell loop.
var errQuit = errors.New("quit")

// ShellCmd implements the interactive shell. Both containers are created
// once and every line operates on the same state.
type ShellCmd struct{}

func (c *ShellCmd) Name() string      { return "shell" }
func (c *ShellCmd) Aliases() []string { return []string{"sh"} }
func (c *ShellCmd) Synopsis() string  { return "Interactive session" }
func (c *ShellCmd) Usage() string     { return "taskdeck shell [common flags]" }
func (c *ShellCmd) NeedsAuth() bool   { return true }

func (c *ShellCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *ShellCmd) Run(ctx context.Context, cfg *config.Config, b service.Backend, args []string, out, errOut io.Writer) int {
	sh := &shell{
		cfg:     cfg,
		out:     out,
		errOut:  errOut,
		session: newSession(cfg, b),
		tasks:   newTasks(cfg, b),
	}

	if code := sh.mount(ctx); code != exitcode.Success {
		return code
	}

	cancel := sh.session.Subscribe(func(st state.SessionState) {
		if !st.Loading && !st.Authenticated {
			cfg.Log().Debug("session ended")
		}
	})
	defer cancel()

	for {
		if ctx.Err() != nil {
			return exitcode.Success
		}
		line, err := promptLine(out, "taskdeck> ")
		if err != nil {
			// EOF ends the session like quit.
			fmt.Fprintln(out)
			return exitcode.Success
		}

		err = sh.exec(ctx, strings.TrimSpace(line))
		switch {
		case errors.Is(err, errQuit):
			return exitcode.Success
		case err != nil:
			code := reportError(errOut, err)
			if code == exitcode.AuthError {
				return code
			}
		}
	}
}

type shell struct {
	cfg     *config.Config
	out     io.Writer
	errOut  io.Writer
	session *state.Session
	tasks   *state.Tasks
}

// mount resolves the session and loads tasks concurrently.
func (sh *shell) mount(ctx context.Context) int {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sh.session.Init(gctx)
		return nil
	})
	g.Go(func() error {
		// A failed fetch is recorded in the container state.
		_ = sh.tasks.Fetch(gctx)
		return nil
	})
	_ = g.Wait()

	st := sh.session.Snapshot()
	if !st.Authenticated {
		fmt.Fprintf(sh.errOut, "error: %s\n", notLoggedIn)
		return exitcode.AuthError
	}
	if !sh.cfg.Quiet {
		fmt.Fprintf(sh.out, "signed in as %s\n", st.User.Email)
	}
	if msg := sh.tasks.Snapshot().Error; msg != "" {
		fmt.Fprintf(sh.errOut, "error: %s\n", msg)
	}
	return exitcode.Success
}

// exec runs one shell line.
func (sh *shell) exec(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		fmt.Fprint(sh.out, shellHelp)
		return nil
	case "list", "ls":
		sh.print()
		return nil
	case "refresh":
		if err := sh.tasks.Fetch(ctx); err != nil {
			return err
		}
		sh.print()
		return nil
	case "whoami":
		st := sh.session.Snapshot()
		if !st.Authenticated {
			return service.NotAuthenticated()
		}
		output.FormatUser(sh.out, *st.User)
		return nil
	case "logout":
		sh.session.Logout(ctx)
		fmt.Fprintln(sh.out, "ok")
		return errQuit
	case "add":
		in, err := form.Task(rest, "")
		if err != nil {
			return err
		}
		return sh.done(sh.tasks.Create(ctx, in))
	case "edit":
		refArg, title, _ := strings.Cut(rest, " ")
		task, err := sh.resolve(refArg)
		if err != nil {
			return err
		}
		patch, err := form.Patch(service.TaskPatch{Title: &title})
		if err != nil {
			return err
		}
		return sh.done(sh.tasks.Update(ctx, task.ID, patch))
	case "done", "toggle":
		targets, err := sh.resolveAll(rest)
		if err != nil {
			return err
		}
		return sh.done(forEachTask(ctx, targets, sh.tasks.Toggle))
	case "rm", "delete":
		targets, err := sh.resolveAll(rest)
		if err != nil {
			return err
		}
		if !confirm(sh.errOut, deletePrompt(targets)) {
			fmt.Fprintln(sh.out, "cancelled")
			return nil
		}
		return sh.done(forEachTask(ctx, targets, sh.tasks.Delete))
	default:
		return &form.Error{Message: fmt.Sprintf("unknown command: %s (try help)", name)}
	}
}

func (sh *shell) print() {
	printTasks(sh.cfg, sh.out, sh.tasks, listFilter{})
}

func (sh *shell) done(err error) error {
	if err != nil {
		return err
	}
	if !sh.cfg.Quiet {
		fmt.Fprintln(sh.out, "ok")
	}
	return nil
}

func (sh *shell) resolve(arg string) (service.Task, error) {
	ref, err := ParseTaskRef(arg)
	if err != nil {
		return service.Task{}, &form.Error{Message: err.Error()}
	}
	task, err := ref.Resolve(sh.tasks.Snapshot().Tasks)
	if err != nil {
		return service.Task{}, &form.Error{Message: err.Error()}
	}
	return task, nil
}

func (sh *shell) resolveAll(rest string) ([]service.Task, error) {
	refs, err := ParseTaskRefs(strings.Fields(rest))
	if err != nil {
		return nil, &form.Error{Message: err.Error()}
	}
	targets, err := resolveAll(refs, sh.tasks.Snapshot().Tasks)
	if err != nil {
		return nil, &form.Error{Message: err.Error()}
	}
	return targets, nil
}

const shellHelp = `Commands:
  list, ls                 Show tasks
  refresh                  Reload tasks from the server
  add <title...>           Create a task
  edit <ref> <title...>    Rename a task
  done <ref>...            Toggle completion
  rm <ref>...              Delete tasks
  whoami                   Show the signed-in user
  logout                   End the session and leave
  help                     Show this help
  quit, exit               Leave the shell
`
