package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/form"
	"taskdeck/internal/service"
	"taskdeck/internal/state"
)

const notLoggedIn = "not logged in (run: taskdeck login)"

// reportError prints err to errOut and maps it to an exit code.
func reportError(errOut io.Writer, err error) int {
	var ferr *form.Error
	if errors.As(err, &ferr) {
		fmt.Fprintf(errOut, "error: %s\n", ferr.Message)
		return exitcode.UserError
	}

	switch service.KindOf(err) {
	case service.KindNotAuthenticated:
		fmt.Fprintf(errOut, "error: %s\n", notLoggedIn)
		return exitcode.AuthError
	case service.KindUnauthorized:
		fmt.Fprintf(errOut, "error: %s (run: taskdeck login)\n", service.Message(err, "session expired"))
		return exitcode.AuthError
	case service.KindValidation:
		fmt.Fprintf(errOut, "error: %s\n", service.Message(err, ""))
		return exitcode.UserError
	default:
		fmt.Fprintf(errOut, "error: backend error: %s\n", service.Message(err, ""))
		return exitcode.BackendError
	}
}

// reportAuthError is reportError for login and signup, where a 401 means
// rejected credentials rather than an expired session.
func reportAuthError(errOut io.Writer, err error) int {
	if service.KindOf(err) == service.KindUnauthorized {
		fmt.Fprintf(errOut, "error: %s\n", service.Message(err, "authentication failed"))
		return exitcode.AuthError
	}
	return reportError(errOut, err)
}

// usageError prints a plain user error.
func usageError(errOut io.Writer, format string, args ...any) int {
	fmt.Fprintf(errOut, "error: "+format+"\n", args...)
	return exitcode.UserError
}

// printOK prints the success marker unless quiet.
func printOK(cfg *config.Config, out io.Writer) int {
	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}

// newSession creates the session container and, when the backend reports
// rejected tokens, drops the cached user as soon as any call sees one.
func newSession(cfg *config.Config, b service.Backend) *state.Session {
	s := state.NewSession(b.Auth(), state.WithLogger(cfg.Log()))
	if n, ok := b.(service.UnauthorizedNotifier); ok {
		n.OnUnauthorized(s.Invalidate)
	}
	return s
}

func newTasks(cfg *config.Config, b service.Backend) *state.Tasks {
	return state.NewTasks(b.Tasks(), state.WithLogger(cfg.Log()))
}

// Prompt input. Tests replace it with SetInput.
var (
	inputMu  sync.Mutex
	input    io.Reader = os.Stdin
	inputBuf *bufio.Reader
)

// SetInput replaces the prompt input (for testing) and returns a function
// restoring the previous one.
func SetInput(r io.Reader) (restore func()) {
	inputMu.Lock()
	defer inputMu.Unlock()
	prev, prevBuf := input, inputBuf
	input, inputBuf = r, nil
	return func() {
		inputMu.Lock()
		defer inputMu.Unlock()
		input, inputBuf = prev, prevBuf
	}
}

func reader() *bufio.Reader {
	if inputBuf == nil {
		inputBuf = bufio.NewReader(input)
	}
	return inputBuf
}

// promptLine writes label to w and reads one line of input.
func promptLine(w io.Writer, label string) (string, error) {
	inputMu.Lock()
	defer inputMu.Unlock()

	fmt.Fprint(w, label)
	line, err := reader().ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptSecret reads a line without echo when input is a terminal.
func promptSecret(w io.Writer, label string) (string, error) {
	inputMu.Lock()
	f, isFile := input.(*os.File)
	inputMu.Unlock()

	if isFile && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(w, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return promptLine(w, label)
}

// confirm asks a yes/no question. Anything but y or yes is no.
func confirm(w io.Writer, question string) bool {
	answer, err := promptLine(w, question+" [y/N] ")
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// readSecretFile reads a password from path ("-" is standard input).
func readSecretFile(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		inputMu.Lock()
		data, err = io.ReadAll(input)
		inputMu.Unlock()
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
