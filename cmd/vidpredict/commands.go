package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidpredict/internal/auth"
	"vidpredict/internal/config"
	"vidpredict/internal/devserver"
	"vidpredict/internal/i18n"
	"vidpredict/internal/logging"
	"vidpredict/internal/tui"
)

func newRegisterCmd(withApp withAppFunc) *cobra.Command {
	var input auth.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return a.register(ctx, newBasicLineInput(a.in, a.errOut), input)
		}),
	}
	cmd.Flags().StringVar(&input.Email, "email", "", "Account e-mail")
	cmd.Flags().StringVar(&input.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&input.Password, "password", "", "Password (prompted when omitted)")
	cmd.Flags().StringVar(&input.PasswordConfirm, "password-confirm", "", "Password confirmation (prompted when omitted)")
	return cmd
}

func newLoginCmd(withApp withAppFunc) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session locally",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return a.login(ctx, newBasicLineInput(a.in, a.errOut), email, password)
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "Account e-mail")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(withApp withAppFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return a.logout(ctx)
		}),
	}
}

func newMeCmd(withApp withAppFunc) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return a.me(ctx, refresh)
		}),
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ask the server instead of using the stored session")
	return cmd
}

func newHistoryCmd(withApp withAppFunc) *cobra.Command {
	var (
		page, perPage int
		all, offline  bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past predictions",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			n := perPage
			if n <= 0 {
				n = a.cfg.History.PageSize
			}
			switch {
			case offline:
				return a.historyOffline()
			case all:
				return a.historyAll(ctx, n)
			default:
				return a.historyPage(ctx, page, n)
			}
		}),
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page to fetch")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "Page size (default from config)")
	cmd.Flags().BoolVar(&all, "all", false, "Fetch every page")
	cmd.Flags().BoolVar(&offline, "offline", false, "Show cached history without contacting the server")
	cmd.MarkFlagsMutuallyExclusive("all", "offline")
	cmd.MarkFlagsMutuallyExclusive("page", "all")
	return cmd
}

func newPredictCmd(withApp withAppFunc) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "predict FILE",
		Short: "Upload a video and print its prediction",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return a.predict(ctx, args[0], duration)
		}),
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "Recorded length; uploads shorter than the configured minimum are refused")
	return cmd
}

func newBrowseCmd(withApp withAppFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse the prediction history full screen",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.requireSession(); err != nil {
				return err
			}
			return tui.Run(ctx, a.newCursor(a.cfg.History.PageSize), a.sessions)
		}),
	}
}

func newShellCmd(withApp withAppFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			input, err := newLineInput(a.in, a.out, a.cfg.HistoryFile())
			if err != nil {
				fmt.Fprintf(a.errOut, "line editor unavailable, fallback to basic input: %v\n", err)
			}
			defer input.Close()
			return newShell(a, input).run(ctx)
		}),
	}
}

func newDevServerCmd(opts *globalOptions) *cobra.Command {
	var (
		addr  string
		users []string
	)
	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run an in-memory prediction API for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*opts)
			if err != nil {
				return err
			}
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Storage.LogLevel))
			srv := devserver.New(devserver.WithLogger(logger))
			for _, u := range users {
				email, password, ok := splitUser(u)
				if !ok {
					return fmt.Errorf("invalid --user %q (want email:password)", u)
				}
				if _, err := srv.AddUser(email, email, password); err != nil {
					return fmt.Errorf("seed user %s: %w", email, err)
				}
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("devserver.listening", addr))
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "Listen address")
	cmd.Flags().StringArrayVar(&users, "user", nil, "Seed an account as email:password (repeatable)")
	return cmd
}

func splitUser(s string) (string, string, bool) {
	email, password, ok := strings.Cut(s, ":")
	email = strings.TrimSpace(email)
	return email, password, ok && email != "" && password != ""
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the project config file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write .vidpredict/config.json with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve cwd: %w", err)
			}
			path, created, err := config.InitProjectConfigScaffold(cwd)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("config.created", path))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("config.exists", path))
			}
			return nil
		},
	}

	setAPICmd := &cobra.Command{
		Use:   "set-api URL",
		Short: "Point the project config at another API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve cwd: %w", err)
			}
			if err := config.WriteAPIBaseURL(cwd, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("config.api_set", args[0], ".vidpredict/config.json"))
			return nil
		},
	}

	cmd.AddCommand(initCmd, setAPICmd)
	return cmd
}
