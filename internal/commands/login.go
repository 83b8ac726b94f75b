package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/form"
	"taskdeck/internal/service"
)

func init() {
	Register(&LoginCmd{})
}

// LoginCmd implements the login command.
type LoginCmd struct {
	email        string
	passwordFile string
}

// SetEmail sets the email (for testing).
func (c *LoginCmd) SetEmail(email string) {
	c.email = email
}

// SetPasswordFile sets the password file (for testing).
func (c *LoginCmd) SetPasswordFile(path string) {
	c.passwordFile = path
}

func (c *LoginCmd) Name() string      { return "login" }
func (c *LoginCmd) Aliases() []string { return nil }
func (c *LoginCmd) Synopsis() string  { return "Sign in with email and password" }
func (c *LoginCmd) Usage() string {
	return "taskdeck login [common flags] [--email <email>] [--password-file <path>]"
}
func (c *LoginCmd) NeedsAuth() bool { return false }

func (c *LoginCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.email, "email", "e", "", "")
	fs.StringVar(&c.passwordFile, "password-file", "", "")
}

func (c *LoginCmd) Run(ctx context.Context, cfg *config.Config, b service.Backend, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		return usageError(errOut, "unexpected argument: %s", args[0])
	}

	session := newSession(cfg, b)

	// A stored token is only trusted after the server confirms it.
	if b.Auth().IsAuthenticated() {
		session.Init(ctx)
		if st := session.Snapshot(); st.Authenticated {
			if !cfg.Quiet {
				fmt.Fprintf(out, "already logged in as %s\n", st.User.Email)
			}
			return exitcode.Success
		}
	}

	email, password, code := readCredentials(cfg, c.email, c.passwordFile, errOut)
	if code != exitcode.Success {
		return code
	}

	creds, err := form.Login(email, password)
	if err != nil {
		return reportError(errOut, err)
	}

	if err := session.Login(ctx, creds.Email, creds.Password); err != nil {
		return reportAuthError(errOut, err)
	}
	cfg.Log().Info("logged in", "email", creds.Email)
	return printOK(cfg, out)
}

// readCredentials fills in whatever the flags left out by prompting.
// Prompts go to errOut so stdout stays clean.
func readCredentials(cfg *config.Config, email, passwordFile string, errOut io.Writer) (string, string, int) {
	var err error
	if email == "" {
		email, err = promptLine(errOut, "Email: ")
		if err != nil {
			fmt.Fprintln(errOut, "error: email required")
			return "", "", exitcode.UserError
		}
	}

	var password string
	if passwordFile != "" {
		password, err = readSecretFile(passwordFile)
	} else {
		password, err = promptSecret(errOut, "Password: ")
	}
	if err != nil {
		cfg.Log().Debug("reading password failed", "error", err)
		fmt.Fprintln(errOut, "error: password required")
		return "", "", exitcode.UserError
	}
	return email, password, exitcode.Success
}
