package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vidpredict/internal/session"
)

func newStore(t *testing.T, token string) *session.Store {
	t.Helper()
	store, err := session.Open(nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		if err := store.Set(session.Session{ID: "u1", Email: "a@x.com", Token: token}); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestSendAttachesBearerToken(t *testing.T) {
	var gotAuth, gotReqID, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get(RequestIDHeader)
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	store := newStore(t, "abc")
	p, err := New(srv.URL+"/", WithBefore(BearerToken(store), RequestID(), UserAgent("vidpredict-test")))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Send(context.Background(), Request{Method: http.MethodGet, Path: "/predictions/"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAuth != "Bearer abc" {
		t.Fatalf("Authorization=%q", gotAuth)
	}
	if gotReqID == "" {
		t.Fatal("missing request id")
	}
	if gotUA != "vidpredict-test" {
		t.Fatalf("User-Agent=%q", gotUA)
	}
	var out struct{ OK bool }
	if err := Decode(resp, &out); err != nil || !out.OK {
		t.Fatalf("Decode ok=%v err=%v", out.OK, err)
	}
}

func TestSendWithoutSessionOmitsAuthorization(t *testing.T) {
	var seen bool
	p, _ := New("http://api.test", WithDoer(DoerFunc(func(r *http.Request) (*http.Response, error) {
		_, seen = r.Header["Authorization"]
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("{}")), Header: http.Header{}}, nil
	})), WithBefore(BearerToken(newStore(t, ""))))
	if _, err := p.Send(context.Background(), Request{Path: "/auth/login"}); err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Fatal("Authorization header should be absent without a session")
	}
}

func TestUnauthorizedClearsSessionBeforeReturning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
	}))
	defer srv.Close()

	store := newStore(t, "stale")
	p, err := New(srv.URL,
		WithBefore(BearerToken(store)),
		WithAfter(ClearSessionOnUnauthorized(store)),
	)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Send(context.Background(), Request{Path: "/predictions/"})
	if !IsUnauthorized(err) {
		t.Fatalf("err=%v, want UnauthorizedError", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("session must be cleared when the 401 reaches the caller")
	}
	if StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("StatusOf=%d", StatusOf(err))
	}
	if Detail(err) != "Could not validate credentials" {
		t.Fatalf("Detail=%q", Detail(err))
	}
}

func TestHooksRunInOrder(t *testing.T) {
	var order []string
	before := func(name string) RequestHook {
		return func(*http.Request) error { order = append(order, name); return nil }
	}
	after := func(name string) ResponseHook {
		return func(*http.Request, *Response) error { order = append(order, name); return nil }
	}
	p, _ := New("http://api.test",
		WithDoer(DoerFunc(func(*http.Request) (*http.Response, error) {
			order = append(order, "send")
			return &http.Response{StatusCode: 500, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}}, nil
		})),
		WithBefore(before("b1"), before("b2")),
		WithAfter(after("a1"), after("a2")),
	)
	_, err := p.Send(context.Background(), Request{Path: "/x"})
	if StatusOf(err) != 500 {
		t.Fatalf("err=%v", err)
	}
	want := "b1,b2,send,a1,a2"
	if got := strings.Join(order, ","); got != want {
		t.Fatalf("order=%s, want %s", got, want)
	}
}

func TestBeforeHookErrorStopsRequest(t *testing.T) {
	sent := false
	p, _ := New("http://api.test",
		WithDoer(DoerFunc(func(*http.Request) (*http.Response, error) {
			sent = true
			return nil, errors.New("unreachable")
		})),
		WithBefore(func(*http.Request) error { return errors.New("no token") }),
	)
	if _, err := p.Send(context.Background(), Request{Path: "/x"}); err == nil {
		t.Fatal("expected error")
	}
	if sent {
		t.Fatal("request must not be sent after a failing before hook")
	}
}

func TestNetworkError(t *testing.T) {
	p, _ := New("http://api.test", WithDoer(DoerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})))
	_, err := p.Send(context.Background(), Request{Path: "/x"})
	if !IsNetwork(err) {
		t.Fatalf("err=%v, want NetworkError", err)
	}
	if IsUnauthorized(err) || StatusOf(err) != 0 {
		t.Fatalf("network error misclassified: %v", err)
	}
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
func (failingBody) Close() error { return nil }

func TestUnauthorizedWithUnreadableBodyStillClears(t *testing.T) {
	store := newStore(t, "tok")
	p, _ := New("http://api.test",
		WithDoer(DoerFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusUnauthorized,
				Header:     http.Header{},
				Body:       failingBody{},
				Request:    req,
			}, nil
		})),
		WithBefore(BearerToken(store)),
		WithAfter(ClearSessionOnUnauthorized(store)),
	)

	_, err := p.Send(context.Background(), Request{Path: "/auth/me"})
	if !IsUnauthorized(err) {
		t.Fatalf("err=%v, want UnauthorizedError", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("read failure should stay in the error: %v", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("401 must clear the session even when the body cannot be read")
	}
}

func TestUnreadableBodyOnSuccessIsNetworkError(t *testing.T) {
	p, _ := New("http://api.test", WithDoer(DoerFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: failingBody{}, Request: req}, nil
	})))
	_, err := p.Send(context.Background(), Request{Path: "/x"})
	if !IsNetwork(err) || IsUnauthorized(err) {
		t.Fatalf("err=%v, want NetworkError", err)
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p, _ := New(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := p.Send(context.Background(), Request{Path: "/slow"})
	if !IsNetwork(err) {
		t.Fatalf("err=%v, want NetworkError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want deadline exceeded in chain", err)
	}
}

func TestJSONBodyAndQuery(t *testing.T) {
	var gotBody map[string]string
	var gotQuery, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	_, err := p.Send(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "auth/register",
		Query:  map[string][]string{"page": {"2"}, "per_page": {"20"}},
		JSON:   map[string]string{"email": "a@x.com"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotType != "application/json" {
		t.Fatalf("Content-Type=%q", gotType)
	}
	if gotBody["email"] != "a@x.com" {
		t.Fatalf("body=%v", gotBody)
	}
	if gotQuery != "page=2&per_page=20" {
		t.Fatalf("query=%q", gotQuery)
	}
}

func TestParseDetail(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"string", `{"detail":"Email already registered"}`, "Email already registered"},
		{"fastapi list", `{"detail":[{"loc":["body","email"],"msg":"value is not a valid email"},{"msg":"field required"}]}`, "value is not a valid email; field required"},
		{"message", `{"message":"boom"}`, "boom"},
		{"nested", `{"error":{"message":"nested"}}`, "nested"},
		{"html", `<html>bad gateway</html>`, ""},
		{"empty", ``, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseDetail([]byte(tc.body)); got != tc.want {
				t.Fatalf("parseDetail=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestLogResponseOmitsToken(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p, _ := New("http://api.test",
		WithDoer(DoerFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(`{}`)), Header: http.Header{}}, nil
		})),
		WithBefore(BearerToken(newStore(t, "secret-token"))),
		WithAfter(LogResponse(logger)),
	)
	if _, err := p.Send(context.Background(), Request{Path: "/auth/me"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"path":"/auth/me"`) || !strings.Contains(out, `"status":200`) {
		t.Fatalf("log line missing fields: %s", out)
	}
	if strings.Contains(out, "secret-token") {
		t.Fatalf("token leaked into log: %s", out)
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "ftp://x", "localhost:8000"} {
		if _, err := New(raw); err == nil {
			t.Fatalf("New(%q) should fail", raw)
		}
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	err := classify("GET", "/x", 502, []byte("upstream down"))
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("err=%T", err)
	}
	if !strings.Contains(he.Error(), "status=502") || !strings.Contains(he.Error(), "upstream down") {
		t.Fatalf("Error()=%q", he.Error())
	}
	if Detail(err) != "" {
		t.Fatalf("Detail=%q, want empty", Detail(err))
	}
}
