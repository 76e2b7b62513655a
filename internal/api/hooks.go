package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// TokenSource yields the current bearer token, or "" when signed out.
type TokenSource interface {
	Token() string
}

// SessionClearer drops the local session.
type SessionClearer interface {
	Clear() error
}

// BearerToken attaches "Authorization: Bearer <token>" when a token is available.
// A caller-supplied Authorization header is left alone.
func BearerToken(src TokenSource) RequestHook {
	return func(req *http.Request) error {
		if src == nil || req.Header.Get("Authorization") != "" {
			return nil
		}
		token := strings.TrimSpace(src.Token())
		if token == "" {
			return nil
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// RequestID tags each request with a fresh X-Request-ID unless one is set.
func RequestID() RequestHook {
	return func(req *http.Request) error {
		if req.Header.Get(RequestIDHeader) == "" {
			req.Header.Set(RequestIDHeader, uuid.NewString())
		}
		return nil
	}
}

func UserAgent(ua string) RequestHook {
	ua = strings.TrimSpace(ua)
	return func(req *http.Request) error {
		if ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		return nil
	}
}

// ClearSessionOnUnauthorized drops the local session on any 401.
func ClearSessionOnUnauthorized(c SessionClearer) ResponseHook {
	return func(req *http.Request, resp *Response) error {
		if c == nil || resp.Status != http.StatusUnauthorized {
			return nil
		}
		if err := c.Clear(); err != nil {
			return fmt.Errorf("clear session after 401: %w", err)
		}
		return nil
	}
}

// LogResponse writes one line per response. Bodies and tokens are never logged.
func LogResponse(logger *slog.Logger) ResponseHook {
	return func(req *http.Request, resp *Response) error {
		if logger == nil {
			return nil
		}
		level := slog.LevelDebug
		if resp.Status >= 400 {
			level = slog.LevelWarn
		}
		logger.Log(req.Context(), level, "api response",
			"method", req.Method,
			"path", req.URL.Path,
			"status", resp.Status,
			"elapsed_ms", resp.Elapsed.Milliseconds(),
			"request_id", req.Header.Get(RequestIDHeader),
		)
		return nil
	}
}
