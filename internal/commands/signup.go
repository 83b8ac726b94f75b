package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/form"
	"taskdeck/internal/service"
)

func init() {
	Register(&SignupCmd{})
}

// SignupCmd implements the signup command.
type SignupCmd struct {
	email        string
	name         string
	passwordFile string
}

// SetEmail sets the email (for testing).
func (c *SignupCmd) SetEmail(email string) {
	c.email = email
}

// SetName sets the display name (for testing).
func (c *SignupCmd) SetName(name string) {
	c.name = name
}

// SetPasswordFile sets the password file (for testing).
func (c *SignupCmd) SetPasswordFile(path string) {
	c.passwordFile = path
}

func (c *SignupCmd) Name() string      { return "signup" }
func (c *SignupCmd) Aliases() []string { return []string{"register"} }
func (c *SignupCmd) Synopsis() string  { return "Create an account and sign in" }
func (c *SignupCmd) Usage() string {
	return "taskdeck signup [common flags] [--email <email>] [--name <name>] [--password-file <path>]"
}
func (c *SignupCmd) NeedsAuth() bool { return false }

func (c *SignupCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.email, "email", "e", "", "")
	fs.StringVarP(&c.name, "name", "n", "", "")
	fs.StringVar(&c.passwordFile, "password-file", "", "")
}

func (c *SignupCmd) Run(ctx context.Context, cfg *config.Config, b service.Backend, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		return usageError(errOut, "unexpected argument: %s", args[0])
	}

	email, password, code := readCredentials(cfg, c.email, c.passwordFile, errOut)
	if code != exitcode.Success {
		return code
	}

	reg, err := form.Signup(email, password, c.name)
	if err != nil {
		return reportError(errOut, err)
	}

	session := newSession(cfg, b)
	if err := session.Signup(ctx, reg.Email, reg.Password, reg.Name); err != nil {
		return reportAuthError(errOut, err)
	}
	cfg.Log().Info("signed up", "email", reg.Email)
	return printOK(cfg, out)
}
