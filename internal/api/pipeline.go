// Package api is the single request pipeline every remote call goes through.
// It attaches credentials, runs response hooks and turns failures into typed errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 8 << 20
)

// Doer sends one HTTP request. *http.Client satisfies it; tests inject fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// RequestHook runs before a request is sent, in registration order.
type RequestHook func(req *http.Request) error

// ResponseHook runs for every received response, in registration order, before
// the status is turned into an error.
type ResponseHook func(req *http.Request, resp *Response) error

// Request describes one call relative to the pipeline's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// JSON is marshalled as the body when set; Body is used otherwise.
	JSON        any
	Body        io.Reader
	ContentType string

	// Timeout overrides the pipeline timeout. Negative disables it.
	Timeout time.Duration
}

// Response is a fully read response.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Elapsed time.Duration
}

// Pipeline is the request pipeline.
type Pipeline struct {
	baseURL      string
	doer         Doer
	timeout      time.Duration
	maxBodyBytes int64
	before       []RequestHook
	after        []ResponseHook
}

type Option func(*Pipeline)

func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithDoer replaces the transport.
func WithDoer(d Doer) Option {
	return func(p *Pipeline) {
		if d != nil {
			p.doer = d
		}
	}
}

func WithBefore(hooks ...RequestHook) Option {
	return func(p *Pipeline) { p.before = append(p.before, hooks...) }
}

func WithAfter(hooks ...ResponseHook) Option {
	return func(p *Pipeline) { p.after = append(p.after, hooks...) }
}

func WithMaxBodyBytes(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBodyBytes = n
		}
	}
}

func New(baseURL string, opts ...Option) (*Pipeline, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("api base url is empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https: %q", baseURL)
	}

	p := &Pipeline{
		baseURL:      baseURL,
		timeout:      DefaultTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.doer == nil {
		// The timeout is enforced per request through the context.
		p.doer = &http.Client{}
	}
	return p, nil
}

func (p *Pipeline) BaseURL() string { return p.baseURL }

func (p *Pipeline) Timeout() time.Duration { return p.timeout }

// Send performs req and returns the response for any 2xx status.
// Transport failures come back as *NetworkError, non-2xx responses as *HTTPError
// and 401 as *UnauthorizedError; response hooks have already run in every case
// where a response was received.
func (p *Pipeline) Send(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	target := p.baseURL + path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	body := req.Body
	contentType := req.ContentType
	if req.JSON != nil {
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	timeout := p.timeout
	if req.Timeout != 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	for _, hook := range p.before {
		if err := hook(httpReq); err != nil {
			return nil, fmt.Errorf("prepare %s %s: %w", method, path, err)
		}
	}

	start := time.Now()
	httpResp, err := p.doer.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: target, Err: err}
	}
	defer httpResp.Body.Close()

	// 读取失败时仍执行响应钩子：状态码已经收到
	// A failed body read still runs the response hooks; the status was received
	data, readErr := io.ReadAll(io.LimitReader(httpResp.Body, p.maxBodyBytes))
	resp := &Response{
		Status:  httpResp.StatusCode,
		Header:  httpResp.Header,
		Body:    data,
		Elapsed: time.Since(start),
	}

	var hookErrs []error
	for _, hook := range p.after {
		if err := hook(httpReq, resp); err != nil {
			hookErrs = append(hookErrs, err)
		}
	}

	if readErr != nil {
		readErr = &NetworkError{Method: method, URL: target, Err: fmt.Errorf("read response: %w", readErr)}
		if err := classify(method, path, resp.Status, data); err != nil {
			return nil, joinErrors(err, append([]error{readErr}, hookErrs...))
		}
		return nil, joinErrors(readErr, hookErrs)
	}
	if err := classify(method, path, resp.Status, data); err != nil {
		return nil, joinErrors(err, hookErrs)
	}
	if len(hookErrs) > 0 {
		return nil, joinErrors(fmt.Errorf("%s %s: response hook failed", method, path), hookErrs)
	}
	return resp, nil
}

// Decode unmarshals a JSON response body into v.
func Decode(resp *Response, v any) error {
	if resp == nil {
		return fmt.Errorf("decode response: nil response")
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return fmt.Errorf("decode response: empty body")
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func joinErrors(primary error, rest []error) error {
	if len(rest) == 0 {
		return primary
	}
	all := make([]error, 0, len(rest)+1)
	all = append(all, primary)
	all = append(all, rest...)
	return errors.Join(all...)
}
