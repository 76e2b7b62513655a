package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"vidpredict/internal/api"
	"vidpredict/internal/session"
)

type fixture struct {
	server   *httptest.Server
	sessions *session.Store
	client   *Client
	hits     map[string]*int32
}

func newFixture(t *testing.T, handler func(w http.ResponseWriter, r *http.Request), opts ...Option) *fixture {
	t.Helper()
	f := &fixture{hits: map[string]*int32{}}
	for _, p := range []string{"/auth/register", "/auth/login", "/auth/me", "/auth/logout"} {
		var n int32
		f.hits[p] = &n
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n, ok := f.hits[r.URL.Path]; ok {
			atomic.AddInt32(n, 1)
		}
		handler(w, r)
	}))
	t.Cleanup(f.server.Close)

	store, err := session.Open(nil)
	if err != nil {
		t.Fatal(err)
	}
	f.sessions = store
	p, err := api.New(f.server.URL,
		api.WithBefore(api.BearerToken(store)),
		api.WithAfter(api.ClearSessionOnUnauthorized(store)),
	)
	if err != nil {
		t.Fatal(err)
	}
	f.client = New(p, store, opts...)
	return f
}

func (f *fixture) count(path string) int32 { return atomic.LoadInt32(f.hits[path]) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginThenCurrentUserWithoutRoundTrip(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			writeJSON(w, 200, map[string]any{"data": map[string]any{
				"id": "u1", "email": "a@x.com", "name": "Ana", "token": "tok-1",
			}})
		default:
			writeJSON(w, 404, map[string]string{"detail": "not found"})
		}
	})

	sess, err := f.client.Login(context.Background(), " a@x.com ", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Token != "tok-1" || sess.ID != "u1" {
		t.Fatalf("session=%+v", sess)
	}
	if f.sessions.Token() != "tok-1" {
		t.Fatal("login must write the session store")
	}

	me, err := f.client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if me.ID != "u1" || me.Email != "a@x.com" {
		t.Fatalf("CurrentUser=%+v", me)
	}
	if n := f.count("/auth/me"); n != 0 {
		t.Fatalf("/auth/me hit %d times, want 0", n)
	}
}

func TestLoginAcceptsBareResponseAndNumericID(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "email": "b@x.com", "name": "Bia", "token": "tok-2"}`))
	})
	sess, err := f.client.Login(context.Background(), "b@x.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID != "42" || sess.Token != "tok-2" {
		t.Fatalf("session=%+v", sess)
	}
}

func TestLoginWithoutTokenFails(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"id": "u1", "email": "a@x.com"})
	})
	if _, err := f.client.Login(context.Background(), "a@x.com", "pw"); err == nil {
		t.Fatal("expected error for a response without token")
	}
	if f.sessions.IsAuthenticated() {
		t.Fatal("session must stay empty")
	}
}

func TestLoginRejectedShowsServerDetail(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Incorrect email or password"})
	})
	_, err := f.client.Login(context.Background(), "a@x.com", "wrong")
	var ve *api.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err=%T %v, want ValidationError", err, err)
	}
	if api.Detail(err) != "Incorrect email or password" {
		t.Fatalf("Detail=%q", api.Detail(err))
	}
}

func TestClientValidationSendsNothing(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{})
	})
	ctx := context.Background()

	cases := []struct {
		name  string
		call  func() error
		field string
	}{
		{"login bad email", func() error { _, err := f.client.Login(ctx, "not-an-email", "pw"); return err }, "email"},
		{"login empty password", func() error { _, err := f.client.Login(ctx, "a@x.com", ""); return err }, "password"},
		{"register mismatch", func() error {
			_, err := f.client.Register(ctx, RegisterInput{Email: "a@x.com", Name: "A", Password: "pw1", PasswordConfirm: "pw2"})
			return err
		}, "password_confirm"},
		{"register no name", func() error {
			_, err := f.client.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw", PasswordConfirm: "pw"})
			return err
		}, "name"},
		{"register spaces in email", func() error {
			_, err := f.client.Register(ctx, RegisterInput{Email: "a b@x.com", Name: "A", Password: "pw", PasswordConfirm: "pw"})
			return err
		}, "email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			var ve *api.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err=%v, want ValidationError", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("field=%q, want %q", ve.Field, tc.field)
			}
		})
	}
	if f.count("/auth/login")+f.count("/auth/register") != 0 {
		t.Fatal("invalid input must not reach the server")
	}
}

func TestRegisterWithoutTokenStaysSignedOut(t *testing.T) {
	var body map[string]string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusCreated, map[string]string{"id": "u7", "email": body["email"], "name": body["name"]})
	})
	user, err := f.client.Register(context.Background(), RegisterInput{
		Email: "c@x.com", Name: "Caio", Password: "pw", PasswordConfirm: "pw",
	})
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != "u7" || user.Email != "c@x.com" {
		t.Fatalf("user=%+v", user)
	}
	if body["password_confirm"] != "pw" {
		t.Fatalf("password_confirm not sent: %v", body)
	}
	if f.sessions.IsAuthenticated() {
		t.Fatal("register without a token must not create a session")
	}
}

func TestRegisterWithTokenSignsIn(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]string{
			"id": "u8", "email": "d@x.com", "name": "Duda", "token": "tok-8",
		}})
	})
	if _, err := f.client.Register(context.Background(), RegisterInput{
		Email: "d@x.com", Name: "Duda", Password: "pw", PasswordConfirm: "pw",
	}); err != nil {
		t.Fatal(err)
	}
	sess, ok := f.sessions.Get()
	if !ok || sess.Token != "tok-8" || sess.ID != "u8" {
		t.Fatalf("session=%+v ok=%v", sess, ok)
	}
}

func TestRegisterConflict(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"detail": "Email already registered"})
	})
	_, err := f.client.Register(context.Background(), RegisterInput{
		Email: "c@x.com", Name: "Caio", Password: "pw", PasswordConfirm: "pw",
	})
	var ve *api.ValidationError
	if !errors.As(err, &ve) || ve.Status != http.StatusConflict {
		t.Fatalf("err=%v", err)
	}
}

func TestCurrentUserWithoutSession(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"id": "x"})
	})
	_, err := f.client.CurrentUser(context.Background())
	if !api.IsUnauthorized(err) {
		t.Fatalf("err=%v, want UnauthorizedError", err)
	}
	_, err = f.client.Refresh(context.Background())
	if !api.IsUnauthorized(err) {
		t.Fatalf("Refresh err=%v, want UnauthorizedError", err)
	}
	if f.count("/auth/me") != 0 {
		t.Fatal("no request may be sent without a session")
	}
}

func TestCurrentUserChecksLoadedSession(t *testing.T) {
	var reject atomic.Bool
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if reject.Load() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "revoked"})
			return
		}
		writeJSON(w, 200, map[string]any{"id": 7, "email": "a@b.co", "name": "Server Name"})
	})
	// Written straight to the store, as Open does with a session left on disk.
	if err := f.sessions.Set(session.Session{ID: "7", Email: "a@b.co", Name: "Old", Token: "disk-tok"}); err != nil {
		t.Fatal(err)
	}

	me, err := f.client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if me.ID != "7" || me.Name != "Server Name" {
		t.Fatalf("CurrentUser=%+v", me)
	}
	if n := f.count("/auth/me"); n != 1 {
		t.Fatalf("/auth/me hit %d times, want 1", n)
	}

	reject.Store(true)
	if _, err := f.client.CurrentUser(context.Background()); !api.IsUnauthorized(err) {
		t.Fatalf("err=%v, want UnauthorizedError", err)
	}
	if f.sessions.IsAuthenticated() {
		t.Fatal("a revoked token must clear the session")
	}
}

func TestRefreshUpdatesSessionAndHandles401(t *testing.T) {
	var reject atomic.Bool
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/me" {
			return
		}
		if reject.Load() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization=%q", r.Header.Get("Authorization"))
		}
		writeJSON(w, 200, map[string]string{"id": "u1", "email": "a@x.com", "name": "Ana Maria"})
	})
	if err := f.sessions.Set(session.Session{ID: "u1", Email: "a@x.com", Name: "Ana", Token: "tok"}); err != nil {
		t.Fatal(err)
	}

	info, err := f.client.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "Ana Maria" {
		t.Fatalf("info=%+v", info)
	}
	sess, _ := f.sessions.Get()
	if sess.Name != "Ana Maria" || sess.Token != "tok" {
		t.Fatalf("session not updated: %+v", sess)
	}

	reject.Store(true)
	if _, err := f.client.Refresh(context.Background()); !api.IsUnauthorized(err) {
		t.Fatalf("err=%v", err)
	}
	if f.sessions.IsAuthenticated() {
		t.Fatal("401 must clear the session")
	}
}

func TestLogout(t *testing.T) {
	t.Run("local only", func(t *testing.T) {
		f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
		_ = f.sessions.Set(session.Session{ID: "u1", Token: "tok"})
		if err := f.client.Logout(context.Background()); err != nil {
			t.Fatal(err)
		}
		if f.sessions.IsAuthenticated() || f.count("/auth/logout") != 0 {
			t.Fatal("logout should clear locally without calling the server")
		}
	})

	t.Run("revoke failure still logs out", func(t *testing.T) {
		f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
		}, WithRevokeOnLogout(true))
		_ = f.sessions.Set(session.Session{ID: "u1", Token: "tok"})
		if err := f.client.Logout(context.Background()); err != nil {
			t.Fatal(err)
		}
		if f.count("/auth/logout") != 1 {
			t.Fatalf("logout endpoint hit %d times", f.count("/auth/logout"))
		}
		if f.sessions.IsAuthenticated() {
			t.Fatal("local session must be cleared")
		}
	})
}
