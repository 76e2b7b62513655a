package devserver

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type registerRequest struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func missing(field string) fieldError {
	return fieldError{Loc: []string{"body", field}, Msg: "Field required", Type: "missing"}
}

// register handles POST /auth/register
func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}

	var problems []fieldError
	if strings.TrimSpace(req.Email) == "" {
		problems = append(problems, missing("email"))
	}
	if strings.TrimSpace(req.Name) == "" {
		problems = append(problems, missing("name"))
	}
	if req.Password == "" {
		problems = append(problems, missing("password"))
	}
	if len(problems) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"detail": problems})
	}
	if !emailPattern.MatchString(req.Email) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"detail": []fieldError{{
			Loc: []string{"body", "email"}, Msg: "value is not a valid email address", Type: "value_error",
		}}})
	}
	if req.Password != req.PasswordConfirm {
		return detail(c, http.StatusBadRequest, "Passwords do not match")
	}

	id, err := s.AddUser(req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, errEmailTaken) {
			return detail(c, http.StatusConflict, "Email already registered")
		}
		s.logger.Error("register failed", "error", err)
		return detail(c, http.StatusInternalServerError, "registration failed")
	}
	return c.JSON(http.StatusCreated, map[string]string{
		"id":    id,
		"email": strings.TrimSpace(req.Email),
		"name":  strings.TrimSpace(req.Name),
	})
}

// login handles POST /auth/login
func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return detail(c, http.StatusBadRequest, "email and password are required")
	}

	s.mu.RLock()
	u := s.users[strings.ToLower(strings.TrimSpace(req.Email))]
	s.mu.RUnlock()
	if u == nil || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		return detail(c, http.StatusBadRequest, "Incorrect email or password")
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = u.ID
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]any{
		"data": map[string]string{
			"id":    u.ID,
			"email": u.Email,
			"name":  u.Name,
			"token": token,
		},
	})
}

// me handles GET /auth/me
func (s *Server) me(c echo.Context) error {
	u := c.Get(contextKeyUser).(*user)
	return c.JSON(http.StatusOK, map[string]string{
		"id":    u.ID,
		"email": u.Email,
		"name":  u.Name,
	})
}

// logout handles POST /auth/logout
func (s *Server) logout(c echo.Context) error {
	token, _ := c.Get(contextKeyToken).(string)
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

// listPredictions handles GET /predictions/?page&per_page
// next_page equals the requested page on the last page.
func (s *Server) listPredictions(c echo.Context) error {
	u := c.Get(contextKeyUser).(*user)
	page, err := positiveParam(c, "page", 1)
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, err.Error())
	}
	perPage, err := positiveParam(c, "per_page", defaultPerPage)
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, err.Error())
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	s.mu.RLock()
	all := s.predictions[u.ID]
	total := len(all)
	start := (page - 1) * perPage
	items := []Prediction{}
	if start < total {
		end := start + perPage
		if end > total {
			end = total
		}
		items = append(items, all[start:end]...)
	}
	s.mu.RUnlock()

	next := page
	if page*perPage < total {
		next = page + 1
	}
	return c.JSON(http.StatusOK, map[string]any{
		"predictions":  items,
		"current_page": page,
		"total":        total,
		"next_page":    next,
	})
}

// predict handles POST /predictions/predict (multipart field "file")
func (s *Server) predict(c echo.Context) error {
	u := c.Get(contextKeyUser).(*user)
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"detail": []fieldError{missing("file")}})
	}
	if !isVideo(fh.Filename, fh.Header.Get("Content-Type")) {
		return detail(c, http.StatusUnsupportedMediaType, "File must be a video")
	}
	f, err := fh.Open()
	if err != nil {
		return detail(c, http.StatusBadRequest, "could not read upload")
	}
	defer f.Close()
	content, err := readAllLimited(f, s.maxUpload)
	if err != nil {
		return detail(c, http.StatusRequestEntityTooLarge, err.Error())
	}
	if len(content) == 0 {
		return detail(c, http.StatusBadRequest, "Empty video")
	}

	p := s.AddPrediction(u.ID, s.predictor(fh.Filename, content))
	return c.JSON(http.StatusOK, p)
}

func positiveParam(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return n, nil
}
