package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// NetworkError is a transport-level failure: no response was received.
// Callers may retry.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a response with a non-2xx status.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   []byte
	// Detail is the server-provided error message, if the body carried one.
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s failed: status=%d detail=%s", e.Method, e.Path, e.Status, e.Detail)
	}
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s failed: status=%d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s failed: status=%d body=%s", e.Method, e.Path, e.Status, body)
}

// UnauthorizedError reports a 401 response, or a call that needs a session when none exists.
// By the time a caller sees it the local session has already been cleared.
type UnauthorizedError struct {
	// HTTP is nil when the error was raised locally without a request.
	HTTP   *HTTPError
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e.HTTP != nil {
		return "unauthorized: " + e.HTTP.Error()
	}
	if e.Reason != "" {
		return "unauthorized: " + e.Reason
	}
	return "unauthorized"
}

func (e *UnauthorizedError) Unwrap() error {
	if e.HTTP == nil {
		return nil
	}
	return e.HTTP
}

// ValidationError is input rejected by the client before sending or by the server.
// Message is meant to be shown to the user verbatim.
type ValidationError struct {
	Field   string
	Message string
	// Status is 0 for client-side rejections.
	Status int
	// Args fill the placeholders of the localized message for Field.
	Args []any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return "invalid input: " + e.Message
}

// UploadError wraps any failure of a video submission. The upload has to be
// re-submitted in full; there is no partial resume.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err carries an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

// IsNetwork reports whether err carries a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// Detail returns the message that should be shown to the user for err: the
// server-provided detail or the validation message. It returns "" when err
// carries neither, so the caller can fall back to a generic text.
func Detail(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Detail
	}
	return ""
}

func classify(method, path string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	he := &HTTPError{
		Method: method,
		Path:   path,
		Status: status,
		Body:   body,
		Detail: parseDetail(body),
	}
	if status == http.StatusUnauthorized {
		return &UnauthorizedError{HTTP: he}
	}
	return he
}

// parseDetail understands {"detail": "..."}, FastAPI's {"detail": [{"msg": "..."}]},
// and the {"message"|"error": "..."} shapes.
func parseDetail(body []byte) string {
	if len(strings.TrimSpace(string(body))) == 0 {
		return ""
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "message", "error"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		if text := rawText(raw); text != "" {
			return text
		}
	}
	return ""
}

func rawText(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var items []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if strings.TrimSpace(it.Msg) == "" {
				continue
			}
			parts = append(parts, strings.TrimSpace(it.Msg))
		}
		return strings.Join(parts, "; ")
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}
