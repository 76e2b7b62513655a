package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vidpredict/internal/api"
)

const (
	DefaultPageSize    = 20
	DefaultMaxBytes    = 200 << 20
	DefaultMinDuration = 2 * time.Second
	uploadField        = "file"
)

// Sender is the part of the request pipeline the client needs.
type Sender interface {
	Send(ctx context.Context, req api.Request) (*api.Response, error)
}

// Client lists prediction history and submits recorded videos.
type Client struct {
	api           Sender
	pageSize      int
	maxBytes      int64
	minDuration   time.Duration
	uploadTimeout time.Duration
}

type Option func(*Client)

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithMaxBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

func WithMinDuration(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.minDuration = d
		}
	}
}

// WithUploadTimeout overrides the pipeline timeout for uploads only.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) { c.uploadTimeout = d }
}

func NewClient(sender Sender, opts ...Option) *Client {
	c := &Client{
		api:         sender,
		pageSize:    DefaultPageSize,
		maxBytes:    DefaultMaxBytes,
		minDuration: DefaultMinDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) PageSize() int { return c.pageSize }

// List fetches one page of the signed-in user's history. perPage <= 0 uses the
// configured page size.
func (c *Client) List(ctx context.Context, page, perPage int) (Page, error) {
	if page < 1 {
		return Page{}, fmt.Errorf("page must be >= 1, got %d", page)
	}
	if perPage <= 0 {
		perPage = c.pageSize
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	resp, err := c.api.Send(ctx, api.Request{
		Method: http.MethodGet,
		Path:   "/predictions/",
		Query:  q,
	})
	if err != nil {
		return Page{}, err
	}
	var out Page
	if err := api.Decode(resp, &out); err != nil {
		return Page{}, fmt.Errorf("list predictions: %w", err)
	}
	if out.CurrentPage == 0 {
		out.CurrentPage = page
	}
	if out.Items == nil {
		out.Items = []Prediction{}
	}
	return out, nil
}

// Submit uploads the video at path and returns the prediction for it.
// Every failure comes back as *api.UploadError.
func (c *Client) Submit(ctx context.Context, path string) (Result, error) {
	res, err := c.submit(ctx, path)
	if err != nil {
		return Result{}, &api.UploadError{Path: path, Err: err}
	}
	return res, nil
}

// SubmitRecording is Submit for a recording whose duration is known. Recordings
// shorter than the minimum are rejected without being sent.
func (c *Client) SubmitRecording(ctx context.Context, path string, duration time.Duration) (Result, error) {
	if duration < c.minDuration {
		return Result{}, &api.ValidationError{
			Field:   "duration",
			Message: fmt.Sprintf("the video needs to be at least %s long", c.minDuration),
			Args:    []any{c.minDuration},
		}
	}
	return c.Submit(ctx, path)
}

func (c *Client) submit(ctx context.Context, path string) (Result, error) {
	if err := c.checkFile(path); err != nil {
		return Result{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open video: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadField, filepath.Base(path)))
		h.Set("Content-Type", ContentTypeFor(path))
		part, err := mw.CreatePart(h)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			_ = pw.CloseWithError(fmt.Errorf("stream video: %w", err))
			return
		}
		_ = pw.CloseWithError(mw.Close())
	}()

	resp, err := c.api.Send(ctx, api.Request{
		Method:      http.MethodPost,
		Path:        "/predictions/predict",
		Body:        pr,
		ContentType: mw.FormDataContentType(),
		Timeout:     c.uploadTimeout,
	})
	// Unblocks the writer when the request ended before the body was drained.
	_ = pr.Close()
	if err != nil {
		return Result{}, err
	}
	return decodeResult(resp.Body)
}

func (c *Client) checkFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("video path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat video: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("video file is empty")
	}
	if c.maxBytes > 0 && info.Size() > c.maxBytes {
		return fmt.Errorf("video is %d bytes, limit is %d", info.Size(), c.maxBytes)
	}
	return nil
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".3gp":  "video/3gpp",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
}

// ContentTypeFor picks the upload content type from the file extension.
func ContentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// decodeResult accepts the bare result, {"data": {...}} and {"prediction": {...}}.
func decodeResult(body []byte) (Result, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Result{}, fmt.Errorf("decode prediction: empty body")
	}
	var envelope struct {
		Data       *Result `json:"data"`
		Prediction *Result `json:"prediction"`
		Result
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Result{}, fmt.Errorf("decode prediction: %w", err)
	}
	switch {
	case envelope.Data != nil:
		return *envelope.Data, nil
	case envelope.Prediction != nil:
		return *envelope.Prediction, nil
	}
	return envelope.Result, nil
}
