package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"vidpredict/internal/i18n"
)

var errNotLoggedIn = errors.New("not logged in")

// opError tags an error with the operation that produced it so the message
// shown to the user can fall back to the operation's own text.
type opError struct {
	op  string
	err error
}

func (e *opError) Error() string { return e.op + ": " + e.err.Error() }
func (e *opError) Unwrap() error { return e.err }

func failed(op string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{op: op, err: err}
}

func userMessage(locale *i18n.I18n, err error) string {
	if errors.Is(err, errNotLoggedIn) {
		return locale.T("auth.not_logged_in")
	}
	var oe *opError
	if errors.As(err, &oe) {
		return locale.Error(oe.op, oe.err)
	}
	return err.Error()
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	root := newRootCmd(in, out, errOut)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(errOut, userMessage(i18n.Global(), err))
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
