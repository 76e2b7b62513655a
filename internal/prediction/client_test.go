package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"vidpredict/internal/api"
	"vidpredict/internal/session"
)

func newClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *session.Store, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	store, err := session.Open(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(session.Session{ID: "u1", Email: "a@x.com", Token: "tok"}); err != nil {
		t.Fatal(err)
	}
	p, err := api.New(srv.URL,
		api.WithBefore(api.BearerToken(store)),
		api.WithAfter(api.ClearSessionOnUnauthorized(store)),
	)
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(p, opts...), store, &hits
}

func writeVideo(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestListSendsPagingAndDecodes(t *testing.T) {
	var gotPage, gotPer, gotPath string
	c, _, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPage = r.URL.Query().Get("page")
		gotPer = r.URL.Query().Get("per_page")
		_, _ = w.Write([]byte(`{"predictions":[{"id":"p1","text":"olá","created_at":"2024-05-01T10:00:00.123456"}],"current_page":2,"total":21,"next_page":3}`))
	}, WithPageSize(10))

	page, err := c.List(context.Background(), 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/predictions/" || gotPage != "2" || gotPer != "10" {
		t.Fatalf("path=%s page=%s per_page=%s", gotPath, gotPage, gotPer)
	}
	if len(page.Items) != 1 || page.Items[0].Text != "olá" || page.NextPage != 3 || page.Total != 21 {
		t.Fatalf("page=%+v", page)
	}
	if page.Items[0].CreatedAt.IsZero() {
		t.Fatal("naive timestamp should parse")
	}
	if page.Last() {
		t.Fatal("page 2 -> 3 is not the last page")
	}
}

func TestListRejectsPageZero(t *testing.T) {
	c, _, hits := newClient(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := c.List(context.Background(), 0, 20); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Fatal("no request expected")
	}
}

func TestSubmitStreamsMultipart(t *testing.T) {
	content := []byte("fake-mp4-bytes")
	var gotField, gotName, gotType, gotAuth string
	var gotBody []byte
	c, _, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/predictions/predict" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mr, err := r.MultipartReader()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		part, err := mr.NextPart()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotField = part.FormName()
		gotName = part.FileName()
		gotType = part.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(part)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "r1", "text": "hello world"})
	})

	path := writeVideo(t, "clip.mp4", content)
	res, err := c.Submit(context.Background(), path)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.ID != "r1" || res.Text != "hello world" {
		t.Fatalf("result=%+v", res)
	}
	if gotField != "file" || gotName != "clip.mp4" || gotType != "video/mp4" {
		t.Fatalf("field=%q name=%q type=%q", gotField, gotName, gotType)
	}
	if string(gotBody) != string(content) {
		t.Fatalf("body=%q", gotBody)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("Authorization=%q", gotAuth)
	}
}

func TestSubmitPreChecks(t *testing.T) {
	c, _, hits := newClient(t, func(w http.ResponseWriter, r *http.Request) {}, WithMaxBytes(8))
	cases := map[string]string{
		"missing":   filepath.Join(t.TempDir(), "nope.mp4"),
		"empty":     writeVideo(t, "empty.mp4", nil),
		"too large": writeVideo(t, "big.mp4", []byte("0123456789")),
		"directory": t.TempDir(),
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Submit(context.Background(), path)
			var ue *api.UploadError
			if !errors.As(err, &ue) {
				t.Fatalf("err=%v, want UploadError", err)
			}
		})
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Fatal("pre-check failures must not send anything")
	}
}

func TestSubmitRecordingMinimumDuration(t *testing.T) {
	c, _, hits := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"r","text":"t"}`))
	})
	path := writeVideo(t, "short.mov", []byte("x"))

	_, err := c.SubmitRecording(context.Background(), path, 1500*time.Millisecond)
	var ve *api.ValidationError
	if !errors.As(err, &ve) || ve.Field != "duration" {
		t.Fatalf("err=%v, want duration ValidationError", err)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Fatal("short recording must not be uploaded")
	}
	if _, err := c.SubmitRecording(context.Background(), path, 2*time.Second); err != nil {
		t.Fatalf("2s recording should upload: %v", err)
	}
}

func TestSubmitFailureLeavesSessionAlone(t *testing.T) {
	c, store, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"model crashed"}`))
	})
	_, err := c.Submit(context.Background(), writeVideo(t, "a.mp4", []byte("abc")))
	var ue *api.UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("err=%v", err)
	}
	if api.StatusOf(err) != 500 || api.Detail(err) != "model crashed" {
		t.Fatalf("status=%d detail=%q", api.StatusOf(err), api.Detail(err))
	}
	if !store.IsAuthenticated() {
		t.Fatal("a non-401 upload failure must keep the session")
	}
}

func TestSubmitUnauthorizedClearsSession(t *testing.T) {
	c, store, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.Submit(context.Background(), writeVideo(t, "a.mp4", []byte("abc")))
	if !api.IsUnauthorized(err) {
		t.Fatalf("err=%v, want UnauthorizedError inside UploadError", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("401 must clear the session")
	}
}

func TestDecodeResultShapes(t *testing.T) {
	for _, body := range []string{
		`{"id":"r1","text":"hi"}`,
		`{"data":{"id":"r1","text":"hi"}}`,
		`{"prediction":{"id":"r1","text":"hi"}}`,
	} {
		res, err := decodeResult([]byte(body))
		if err != nil || res.ID != "r1" || res.Text != "hi" {
			t.Fatalf("decodeResult(%s)=%+v, %v", body, res, err)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"a.MP4":   "video/mp4",
		"b.mov":   "video/quicktime",
		"c.webm":  "video/webm",
		"d.bin42": "application/octet-stream",
	}
	for path, want := range cases {
		if got := ContentTypeFor(path); got != want {
			t.Fatalf("ContentTypeFor(%s)=%s, want %s", path, got, want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	for _, raw := range []string{
		"2024-05-01T10:00:00Z",
		"2024-05-01T10:00:00.5+02:00",
		"2024-05-01T10:00:00",
		"2024-05-01 10:00:00",
		"2024-05-01",
	} {
		if ts, err := ParseTimestamp(raw); err != nil || ts.IsZero() {
			t.Fatalf("ParseTimestamp(%q)=%v, %v", raw, ts, err)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatal("expected error")
	}
}
