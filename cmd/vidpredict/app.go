package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"vidpredict/internal/api"
	"vidpredict/internal/auth"
	"vidpredict/internal/config"
	"vidpredict/internal/history"
	"vidpredict/internal/i18n"
	"vidpredict/internal/logging"
	"vidpredict/internal/prediction"
	"vidpredict/internal/session"
	"vidpredict/internal/storage"
)

// globalOptions are the persistent root flags.
type globalOptions struct {
	configPath string
	apiURL     string
	output     string
}

// app is everything a command needs, built once per invocation.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	locale *i18n.I18n

	sessions    *session.Store
	store       *storage.SQLiteStore // nil with the file backend
	pipeline    *api.Pipeline
	auth        *auth.Client
	predictions *prediction.Client

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	format string

	closers []io.Closer
}

func loadConfig(opts globalOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if v := strings.TrimRight(strings.TrimSpace(opts.apiURL), "/"); v != "" {
		cfg.API.BaseURL = v
	}
	return cfg, nil
}

func openApp(opts globalOptions, in io.Reader, out, errOut io.Writer) (*app, error) {
	format, err := parseFormat(opts.output)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		locale: i18n.New(cfg.UI.Locale),
		in:     in,
		out:    out,
		errOut: errOut,
		format: format,
	}
	i18n.Init(cfg.UI.Locale)

	logger, closer, err := logging.New(cfg.LogsDir(), cfg.Storage.LogMaxMB, logging.ParseLevel(cfg.Storage.LogLevel))
	if err != nil {
		fmt.Fprintf(errOut, "log file unavailable, logging disabled: %v\n", err)
		logger = logging.Discard()
	} else {
		a.closers = append(a.closers, closer)
	}
	a.logger = logger

	backend, err := a.openBackend()
	if err != nil {
		a.Close()
		return nil, err
	}
	sessions, err := session.Open(backend)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load session: %w", err)
	}
	a.sessions = sessions

	pipeline, err := api.New(cfg.API.BaseURL,
		api.WithTimeout(cfg.Timeout()),
		api.WithBefore(
			api.BearerToken(sessions),
			api.RequestID(),
			api.UserAgent(cfg.API.UserAgent),
		),
		api.WithAfter(
			api.ClearSessionOnUnauthorized(sessions),
			api.LogResponse(logger),
		),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = pipeline
	a.auth = auth.New(pipeline, sessions,
		auth.WithRevokeOnLogout(cfg.API.RevokeOnLogout),
		auth.WithLogger(logger),
	)
	a.predictions = prediction.NewClient(pipeline,
		prediction.WithPageSize(cfg.History.PageSize),
		prediction.WithMaxBytes(cfg.Upload.MaxBytes),
		prediction.WithMinDuration(cfg.MinDuration()),
	)

	// 会话被清除时同时丢弃该用户的缓存历史
	// Dropping the session also drops the cached history of that user
	if a.store != nil {
		store := a.store
		current, _ := sessions.Get()
		lastUser := current.ID
		sessions.Subscribe(func(s session.Session, ok bool) {
			if ok {
				lastUser = s.ID
				return
			}
			if lastUser == "" {
				return
			}
			if err := store.ClearHistory(lastUser); err != nil {
				logger.Warn("clear cached history failed", "error", err)
			}
		})
	}
	return a, nil
}

func (a *app) openBackend() (session.Backend, error) {
	if a.cfg.Storage.Backend == config.BackendFile {
		return session.NewFileBackend(a.cfg.SessionFile())
	}

	store, err := storage.NewSQLiteStore(a.cfg.DatabaseFile())
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store)

	migrated, err := storage.MigrateSessionFile(a.cfg.SessionFile(), store)
	if err != nil {
		a.logger.Warn("session file migration failed", "error", err)
	} else if migrated {
		a.logger.Info("session file migrated", "path", a.cfg.SessionFile())
	}
	if n, err := store.PurgeExpired(a.cfg.CacheTTL()); err != nil {
		a.logger.Warn("purge history cache failed", "error", err)
	} else if n > 0 {
		a.logger.Debug("purged history cache", "rows", n)
	}
	return store.Sessions(), nil
}

// newCursor returns a history cursor that mirrors accepted pages into the local cache.
func (a *app) newCursor(perPage int) *history.Cursor {
	opts := []history.Option{history.WithPerPage(perPage)}
	if a.store != nil {
		opts = append(opts, history.WithPageCache(a.store, a.currentUserID, func(err error) {
			a.logger.Warn("cache history page failed", "error", err)
		}))
	}
	return history.New(a.predictions, opts...)
}

func (a *app) currentUserID() string {
	s, ok := a.sessions.Get()
	if !ok {
		return ""
	}
	return s.ID
}

// requireSession fails fast when no user is signed in.
func (a *app) requireSession() (session.Session, error) {
	s, ok := a.sessions.Get()
	if !ok {
		return session.Session{}, errNotLoggedIn
	}
	return s, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
