// Package devserver is an in-memory implementation of the prediction API for
// local development and end-to-end tests.
package devserver

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"
)

const (
	contextKeyUser    = "user"
	contextKeyToken   = "token"
	defaultPerPage    = 20
	maxPerPage        = 100
	defaultUploadSize = 200 << 20
)

type user struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte
}

// Prediction is the record the server stores for each upload.
type Prediction struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Predictor turns an uploaded video into prediction text.
type Predictor func(filename string, content []byte) string

type Server struct {
	mu          sync.RWMutex
	users       map[string]*user // by lower-cased email
	tokens      map[string]string
	predictions map[string][]Prediction // by user id, newest first

	predictor  Predictor
	now        func() time.Time
	bcryptCost int
	maxUpload  int64
	logger     *slog.Logger

	echo *echo.Echo
}

type Option func(*Server)

func WithPredictor(p Predictor) Option {
	return func(s *Server) {
		if p != nil {
			s.predictor = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBcryptCost lowers hashing cost in tests.
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.bcryptCost = cost }
}

func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		users:       map[string]*user{},
		tokens:      map[string]string{},
		predictions: map[string][]Prediction{},
		predictor:   DefaultPredictor,
		now:         time.Now,
		bcryptCost:  bcrypt.DefaultCost,
		maxUpload:   defaultUploadSize,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.echo = s.routes()
	return s
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			)
			return nil
		},
	}))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", s.maxUpload+(1<<20))))

	e.POST("/auth/register", s.register)
	e.POST("/auth/login", s.login)

	e.GET("/auth/me", s.me, s.requireAuth)
	e.POST("/auth/logout", s.logout, s.requireAuth)
	e.GET("/predictions/", s.listPredictions, s.requireAuth)
	e.POST("/predictions/predict", s.predict, s.requireAuth)
	return e
}

// Handler exposes the router, e.g. for httptest.NewServer.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// AddUser registers an account directly, bypassing the HTTP layer.
func (s *Server) AddUser(email, name, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	key := strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[key]; exists {
		return "", errEmailTaken
	}
	u := &user{ID: uuid.NewString(), Email: strings.TrimSpace(email), Name: strings.TrimSpace(name), PasswordHash: hash}
	s.users[key] = u
	return u.ID, nil
}

// AddPrediction stores a prediction for userID as if it had been uploaded.
func (s *Server) AddPrediction(userID, text string) Prediction {
	p := Prediction{ID: uuid.NewString(), Text: text, CreatedAt: s.now().UTC()}
	s.mu.Lock()
	s.predictions[userID] = append([]Prediction{p}, s.predictions[userID]...)
	s.mu.Unlock()
	return p
}

// RevokeAll invalidates every issued token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	s.tokens = map[string]string{}
	s.mu.Unlock()
}

var errEmailTaken = errors.New("email already registered")

func detail(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"detail": msg})
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return detail(c, http.StatusUnauthorized, "Not authenticated")
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		s.mu.RLock()
		userID, ok := s.tokens[token]
		var u *user
		if ok {
			for _, candidate := range s.users {
				if candidate.ID == userID {
					u = candidate
					break
				}
			}
		}
		s.mu.RUnlock()
		if u == nil {
			return detail(c, http.StatusUnauthorized, "Could not validate credentials")
		}
		c.Set(contextKeyUser, u)
		c.Set(contextKeyToken, token)
		return next(c)
	}
}

// DefaultPredictor derives a stable phrase from the video bytes.
func DefaultPredictor(filename string, content []byte) string {
	phrases := []string{
		"olá", "obrigado", "bom dia", "boa noite", "por favor",
		"tudo bem?", "desculpe", "até logo", "sim", "não",
	}
	sum := sha256.Sum256(content)
	return phrases[int(sum[0])%len(phrases)]
}

func isVideo(filename, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "video/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".mov", ".m4v", ".webm", ".3gp", ".mkv", ".avi":
		return true
	}
	return false
}

func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	return data, nil
}
