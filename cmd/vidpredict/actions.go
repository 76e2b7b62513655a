package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidpredict/internal/auth"
	"vidpredict/internal/history"
	"vidpredict/internal/prediction"
)

// promptMissing asks for value on in when it is empty.
func promptMissing(in lineInput, value, prompt string, secret bool) (string, error) {
	if strings.TrimSpace(value) != "" {
		return value, nil
	}
	if secret {
		return in.ReadPassword(prompt)
	}
	line, err := in.ReadLine(prompt)
	return strings.TrimSpace(line), err
}

func (a *app) login(ctx context.Context, in lineInput, email, password string) error {
	email, err := promptMissing(in, email, a.locale.T("prompt.email"), false)
	if err != nil {
		return err
	}
	password, err = promptMissing(in, password, a.locale.T("prompt.password"), true)
	if err != nil {
		return err
	}

	sess, err := a.auth.Login(ctx, email, password)
	if err != nil {
		return failed("login", err)
	}
	user := auth.UserInfo{ID: sess.ID, Email: sess.Email, Name: sess.Name}
	if ok, err := emit(a.out, a.format, user); ok {
		return err
	}
	fmt.Fprintln(a.out, a.locale.T("auth.logged_in", displayName(user)))
	return nil
}

func (a *app) register(ctx context.Context, in lineInput, input auth.RegisterInput) error {
	var err error
	if input.Name, err = promptMissing(in, input.Name, a.locale.T("prompt.name"), false); err != nil {
		return err
	}
	if input.Email, err = promptMissing(in, input.Email, a.locale.T("prompt.email"), false); err != nil {
		return err
	}
	if input.Password, err = promptMissing(in, input.Password, a.locale.T("prompt.password"), true); err != nil {
		return err
	}
	if input.PasswordConfirm, err = promptMissing(in, input.PasswordConfirm, a.locale.T("prompt.password_confirm"), true); err != nil {
		return err
	}

	user, err := a.auth.Register(ctx, input)
	if err != nil {
		return failed("register", err)
	}
	if ok, err := emit(a.out, a.format, user); ok {
		return err
	}
	if a.sessions.IsAuthenticated() {
		fmt.Fprintln(a.out, a.locale.T("auth.registered_in", displayName(user)))
	} else {
		fmt.Fprintln(a.out, a.locale.T("auth.registered", user.Email))
	}
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return failed("logout", err)
	}
	fmt.Fprintln(a.out, a.locale.T("auth.logged_out"))
	return nil
}

func (a *app) me(ctx context.Context, refresh bool) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	var (
		user auth.UserInfo
		err  error
	)
	if refresh {
		user, err = a.auth.Refresh(ctx)
	} else {
		user, err = a.auth.CurrentUser(ctx)
	}
	if err != nil {
		return failed("me", err)
	}
	if ok, err := emit(a.out, a.format, user); ok {
		return err
	}
	printKV(a.out, [][2]string{
		{a.locale.T("me.id"), user.ID},
		{a.locale.T("me.email"), user.Email},
		{a.locale.T("me.name"), user.Name},
	})
	return nil
}

// historyPage fetches one page directly, bypassing the cursor, and caches it.
func (a *app) historyPage(ctx context.Context, page, perPage int) error {
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	if page < 1 {
		page = 1
	}
	p, err := a.predictions.List(ctx, page, perPage)
	if err != nil {
		return failed("history", err)
	}
	if a.store != nil && len(p.Items) > 0 {
		if err := a.store.SavePage(sess.ID, p); err != nil {
			a.logger.Warn("cache history page failed", "error", err)
		}
	}

	exhausted := p.Last() || p.NextPage <= page
	out := historyOutput{
		Predictions: p.Items,
		Page:        page,
		NextPage:    p.NextPage,
		Total:       p.Total,
		Exhausted:   exhausted,
	}
	if ok, err := emit(a.out, a.format, out); ok {
		return err
	}
	if len(p.Items) == 0 {
		fmt.Fprintln(a.out, a.locale.T("history.empty"))
		return nil
	}
	printPredictions(a.out, p.Items)
	if exhausted {
		fmt.Fprintln(a.out, a.locale.T("history.end"))
	} else {
		fmt.Fprintln(a.out, a.locale.T("history.more", p.NextPage))
	}
	return nil
}

// historyAll drains a cursor and prints everything it accumulated.
func (a *app) historyAll(ctx context.Context, perPage int) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	cursor := a.newCursor(perPage)
	for !cursor.Exhausted() {
		if _, err := cursor.FetchNext(ctx); err != nil {
			return failed("history", err)
		}
	}
	items := cursor.Items()
	if ok, err := emit(a.out, a.format, historyOutput{Predictions: items, Total: len(items), Exhausted: true}); ok {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, a.locale.T("history.empty"))
		return nil
	}
	printPredictions(a.out, items)
	fmt.Fprintln(a.out, a.locale.T("history.count", len(items)))
	return nil
}

// historyOffline prints the cached history without touching the network.
func (a *app) historyOffline() error {
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	if a.store == nil {
		return fmt.Errorf("offline history needs the sqlite storage backend")
	}
	items, err := a.store.CachedHistory(sess.ID, a.cfg.CacheTTL())
	if err != nil {
		return fmt.Errorf("read cached history: %w", err)
	}
	if ok, err := emit(a.out, a.format, historyOutput{Predictions: items, Total: len(items), Offline: true}); ok {
		return err
	}
	fmt.Fprintln(a.errOut, a.locale.T("history.offline", len(items)))
	if len(items) == 0 {
		fmt.Fprintln(a.out, a.locale.T("history.empty"))
		return nil
	}
	printPredictions(a.out, items)
	return nil
}

// fetchMore advances cursor by one page and prints only the new items.
func (a *app) fetchMore(ctx context.Context, cursor *history.Cursor) error {
	added, err := cursor.FetchNext(ctx)
	switch {
	case errors.Is(err, history.ErrExhausted):
		fmt.Fprintln(a.out, a.locale.T("history.end"))
		return nil
	case err != nil:
		return failed("history", err)
	}
	if len(added) == 0 && len(cursor.Items()) == 0 {
		fmt.Fprintln(a.out, a.locale.T("history.empty"))
		return nil
	}
	printPredictions(a.out, added)
	if cursor.Exhausted() {
		fmt.Fprintln(a.out, a.locale.T("history.end"))
	} else {
		fmt.Fprintln(a.out, a.locale.T("history.more", cursor.Page()))
	}
	return nil
}

func (a *app) predict(ctx context.Context, path string, duration time.Duration) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	fmt.Fprintln(a.errOut, a.locale.T("upload.uploading"))

	var (
		res prediction.Result
		err error
	)
	if duration > 0 {
		res, err = a.predictions.SubmitRecording(ctx, path, duration)
	} else {
		res, err = a.predictions.Submit(ctx, path)
	}
	if err != nil {
		return failed("upload", err)
	}
	if ok, err := emit(a.out, a.format, res); ok {
		return err
	}
	fmt.Fprintln(a.out, a.locale.T("upload.success"))
	fmt.Fprintln(a.out, a.locale.T("upload.result", res.Text))
	return nil
}

func displayName(u auth.UserInfo) string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Email
}
