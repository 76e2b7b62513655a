package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"vidpredict/internal/auth"
	"vidpredict/internal/history"
	"vidpredict/internal/session"
)

type shellCommand struct {
	name  string
	usage string
}

var shellCommands = []shellCommand{
	{"/login", "/login [email]"},
	{"/register", "/register"},
	{"/me", "/me [refresh]"},
	{"/history", "/history"},
	{"/more", "/more"},
	{"/predict", "/predict FILE [duration]"},
	{"/logout", "/logout"},
	{"/help", "/help"},
	{"/exit", "/exit"},
}

func usageOf(name string) string {
	for _, c := range shellCommands {
		if c.name == name {
			return c.usage
		}
	}
	return name
}

// shell is the interactive loop. It keeps one history cursor across /history
// and /more until the session changes.
type shell struct {
	app        *app
	input      lineInput
	cursor *history.Cursor
	// quiet 为 true 时，由用户自己的 /login 或 /logout 引起的清除不再提示过期
	// quiet suppresses the expiry notice while /login or /logout runs
	quiet bool
}

func newShell(a *app, input lineInput) *shell {
	s := &shell{app: a, input: input}
	// 会话被清除（登出或 401）时丢弃游标
	// A cleared session (logout or 401) drops the cursor
	a.sessions.Subscribe(func(_ session.Session, ok bool) {
		if ok {
			return
		}
		s.cursor = nil
		if !s.quiet {
			fmt.Fprintln(a.errOut, a.locale.T("auth.session_expired"))
		}
	})
	return s
}

func (s *shell) run(ctx context.Context) error {
	a := s.app
	fmt.Fprintln(a.out, a.locale.T("shell.welcome"))
	for {
		line, err := s.input.ReadLine(s.prompt())
		if err != nil {
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				fmt.Fprintln(a.out)
				continue
			case errors.Is(err, io.EOF):
				fmt.Fprintln(a.out, a.locale.T("shell.bye"))
				return nil
			default:
				return fmt.Errorf("read input: %w", err)
			}
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		exit, err := s.handle(ctx, input)
		if err != nil {
			fmt.Fprintln(a.errOut, userMessage(a.locale, err))
		}
		if exit {
			fmt.Fprintln(a.out, a.locale.T("shell.bye"))
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *shell) prompt() string {
	if sess, ok := s.app.sessions.Get(); ok {
		return displayName(auth.UserInfo{Email: sess.Email, Name: sess.Name}) + "> "
	}
	return "> "
}

// handle runs one command line and reports whether the shell should exit.
func (s *shell) handle(ctx context.Context, line string) (bool, error) {
	a := s.app
	parts := strings.Fields(line)
	cmd, args := parts[0], parts[1:]
	if !strings.HasPrefix(cmd, "/") {
		cmd = "/" + cmd
	}

	switch cmd {
	case "/exit", "/quit":
		return true, nil
	case "/help":
		fmt.Fprintln(a.out, a.locale.T("shell.help"))
	case "/login":
		email := ""
		if len(args) > 0 {
			email = args[0]
		}
		s.cursor = nil
		s.quiet = true
		defer func() { s.quiet = false }()
		return false, a.login(ctx, s.input, email, "")
	case "/register":
		s.cursor = nil
		return false, a.register(ctx, s.input, auth.RegisterInput{})
	case "/me":
		refresh := len(args) > 0 && strings.EqualFold(args[0], "refresh")
		return false, a.me(ctx, refresh)
	case "/history":
		if _, err := a.requireSession(); err != nil {
			return false, err
		}
		s.cursor = a.newCursor(a.cfg.History.PageSize)
		return false, a.fetchMore(ctx, s.cursor)
	case "/more":
		if s.cursor == nil {
			fmt.Fprintln(a.out, a.locale.T("shell.no_cursor"))
			return false, nil
		}
		return false, a.fetchMore(ctx, s.cursor)
	case "/predict":
		if len(args) == 0 {
			fmt.Fprintln(a.out, a.locale.T("shell.usage", usageOf(cmd)))
			return false, nil
		}
		var duration time.Duration
		if len(args) > 1 {
			d, err := time.ParseDuration(args[1])
			if err != nil {
				fmt.Fprintln(a.out, a.locale.T("shell.usage", usageOf(cmd)))
				return false, nil
			}
			duration = d
		}
		return false, a.predict(ctx, args[0], duration)
	case "/logout":
		s.quiet = true
		defer func() { s.quiet = false }()
		return false, a.logout(ctx)
	default:
		fmt.Fprintln(a.out, a.locale.T("shell.unknown", cmd))
	}
	return false, nil
}
