// Package auth registers users, logs them in and out, and reports who is signed in.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"vidpredict/internal/api"
	"vidpredict/internal/session"
)

// Sender is the part of the request pipeline the clients need.
type Sender interface {
	Send(ctx context.Context, req api.Request) (*api.Response, error)
}

// UserInfo is the public profile returned by register and /auth/me.
type UserInfo struct {
	ID    string `json:"id" yaml:"id"`
	Email string `json:"email" yaml:"email"`
	Name  string `json:"name" yaml:"name"`
}

type Client struct {
	api            Sender
	sessions       *session.Store
	revokeOnLogout bool
	logger         *slog.Logger

	// freshToken 本进程内由 Login/Register 写入的 token
	// freshToken is the token written by Login or Register in this process
	mu         sync.Mutex
	freshToken string
}

type Option func(*Client)

// WithRevokeOnLogout makes Logout call POST /auth/logout before clearing locally.
func WithRevokeOnLogout(enabled bool) Option {
	return func(c *Client) { c.revokeOnLogout = enabled }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(sender Sender, sessions *session.Store, opts ...Option) *Client {
	c := &Client{
		api:      sender,
		sessions: sessions,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register creates an account. The user is signed in only when the server
// answers with a token.
func (c *Client) Register(ctx context.Context, in RegisterInput) (UserInfo, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return UserInfo{}, err
	}

	resp, err := c.api.Send(ctx, api.Request{
		Method: http.MethodPost,
		Path:   "/auth/register",
		JSON:   in,
	})
	if err != nil {
		return UserInfo{}, asValidation(err)
	}

	fallback := UserInfo{Email: in.Email, Name: in.Name}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return fallback, nil
	}
	user, err := decodeUser(resp.Body)
	if err != nil {
		return UserInfo{}, fmt.Errorf("register: %w", err)
	}
	if user.Email == "" {
		user.Email = fallback.Email
	}
	if user.Name == "" {
		user.Name = fallback.Name
	}
	if strings.TrimSpace(user.Token) != "" {
		sess := session.Session{ID: string(user.ID), Email: user.Email, Name: user.Name, Token: user.Token}
		if err := c.sessions.Set(sess); err != nil {
			return UserInfo{}, fmt.Errorf("save session: %w", err)
		}
		c.markFresh(sess.Token)
	}
	return user.UserInfo(), nil
}

// Login exchanges credentials for a token and makes the result the current session.
func (c *Client) Login(ctx context.Context, email, password string) (session.Session, error) {
	email = strings.TrimSpace(email)
	if err := validateLogin(email, password); err != nil {
		return session.Session{}, err
	}

	resp, err := c.api.Send(ctx, api.Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		JSON: map[string]string{
			"email":    email,
			"password": password,
		},
	})
	if err != nil {
		return session.Session{}, asValidation(err)
	}

	user, err := decodeUser(resp.Body)
	if err != nil {
		return session.Session{}, fmt.Errorf("login: %w", err)
	}
	if strings.TrimSpace(user.Token) == "" {
		return session.Session{}, fmt.Errorf("login: response carries no token")
	}
	if user.Email == "" {
		user.Email = email
	}

	sess := session.Session{ID: string(user.ID), Email: user.Email, Name: user.Name, Token: user.Token}
	if err := c.sessions.Set(sess); err != nil {
		return session.Session{}, fmt.Errorf("save session: %w", err)
	}
	c.markFresh(sess.Token)
	return sess, nil
}

// Logout forgets the local session. Server-side revocation, when enabled, is
// best effort and never blocks the local logout.
func (c *Client) Logout(ctx context.Context) error {
	if c.revokeOnLogout && c.sessions.IsAuthenticated() {
		if _, err := c.api.Send(ctx, api.Request{Method: http.MethodPost, Path: "/auth/logout"}); err != nil {
			c.logger.Warn("server logout failed", "error", err)
		}
	}
	if err := c.sessions.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// CurrentUser returns the signed-in user. A session written by Login or
// Register in this process is answered locally; a session loaded from disk is
// checked with GET /auth/me, so a revoked token fails with UnauthorizedError.
func (c *Client) CurrentUser(ctx context.Context) (UserInfo, error) {
	sess, ok := c.sessions.Get()
	if !ok {
		return UserInfo{}, &api.UnauthorizedError{Reason: "not logged in"}
	}
	if c.isFresh(sess.Token) {
		return UserInfo{ID: sess.ID, Email: sess.Email, Name: sess.Name}, nil
	}
	return c.Refresh(ctx)
}

func (c *Client) markFresh(token string) {
	c.mu.Lock()
	c.freshToken = token
	c.mu.Unlock()
}

func (c *Client) isFresh(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return token != "" && token == c.freshToken
}

// Refresh asks the server who the token belongs to and updates the stored profile.
func (c *Client) Refresh(ctx context.Context) (UserInfo, error) {
	sess, ok := c.sessions.Get()
	if !ok {
		return UserInfo{}, &api.UnauthorizedError{Reason: "not logged in"}
	}
	resp, err := c.api.Send(ctx, api.Request{Method: http.MethodGet, Path: "/auth/me"})
	if err != nil {
		return UserInfo{}, err
	}
	user, err := decodeUser(resp.Body)
	if err != nil {
		return UserInfo{}, fmt.Errorf("me: %w", err)
	}
	info := user.UserInfo()

	// Only rewrite the session if it still belongs to the token we asked about.
	if current, ok := c.sessions.Get(); ok && current.Token == sess.Token {
		updated := current
		if info.ID != "" {
			updated.ID = info.ID
		}
		if info.Email != "" {
			updated.Email = info.Email
		}
		if info.Name != "" {
			updated.Name = info.Name
		}
		if updated != current {
			if err := c.sessions.Set(updated); err != nil {
				return info, fmt.Errorf("save session: %w", err)
			}
		}
	}
	return info, nil
}

// asValidation turns a server-side input rejection into a ValidationError
// carrying the server's message.
func asValidation(err error) error {
	var he *api.HTTPError
	if !errors.As(err, &he) || api.IsUnauthorized(err) {
		return err
	}
	switch he.Status {
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		if he.Detail != "" {
			return &api.ValidationError{Message: he.Detail, Status: he.Status}
		}
	}
	return err
}

type userPayload struct {
	ID    flexString `json:"id"`
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Token string     `json:"token"`
}

func (u userPayload) UserInfo() UserInfo {
	return UserInfo{ID: string(u.ID), Email: u.Email, Name: u.Name}
}

// decodeUser accepts both {"data": {...}} and the bare object.
func decodeUser(body []byte) (userPayload, error) {
	var wrapped struct {
		Data *userPayload `json:"data"`
		userPayload
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return userPayload{}, fmt.Errorf("decode response: %w", err)
	}
	if wrapped.Data != nil {
		return *wrapped.Data, nil
	}
	return wrapped.userPayload, nil
}

// flexString decodes ids that arrive as either JSON strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
