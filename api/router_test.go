package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/algoverse/cartoonbooth/booth"
	"github.com/algoverse/cartoonbooth/photo"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type runnerFunc func(ctx context.Context, data []byte) (*booth.Result, error)

func (f runnerFunc) RunBytes(ctx context.Context, data []byte) (*booth.Result, error) {
	return f(ctx, data)
}

func newTestServer(runner Runner) *Server {
	return &Server{
		Runner:    runner,
		Log:       testLog,
		Version:   "test",
		Model:     "instruction-tuning-sd/cartoonizer",
		Device:    "cpu",
		StartTime: time.Now(),
	}
}

func photoRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "photo.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/cartoonize", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) cartoonizeResponse {
	t.Helper()
	var resp cartoonizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, rec.Body.String())
	}
	return resp
}

func TestCartoonize_Success(t *testing.T) {
	img := photo.Solid(64, 64, color.White)
	var received []byte
	srv := newTestServer(runnerFunc(func(ctx context.Context, data []byte) (*booth.Result, error) {
		received = data
		return &booth.Result{
			RunID: "run-1",
			State: booth.StateDone,
			Image: img,
			URL:   "https://i.imgur.com/x.png",
			QR:    []byte("qr-bytes"),
		}, nil
	}))

	rec := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(rec, photoRequest(t, "photo", []byte("raw-photo")))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if string(received) != "raw-photo" {
		t.Errorf("runner got %q", received)
	}

	resp := decodeResponse(t, rec)
	if resp.Status != "done" || resp.RunID != "run-1" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.URL != "https://i.imgur.com/x.png" {
		t.Errorf("unexpected url %q", resp.URL)
	}
	qr, _ := base64.StdEncoding.DecodeString(resp.QRPNG)
	if string(qr) != "qr-bytes" {
		t.Errorf("unexpected qr %q", qr)
	}
	pngData, err := base64.StdEncoding.DecodeString(resp.ImagePNG)
	if err != nil {
		t.Fatalf("decode image: %v", err)
	}
	got, err := photo.DecodeBytes(pngData, 0)
	if err != nil {
		t.Fatalf("image is not decodable: %v", err)
	}
	if !got.Equal(img) {
		t.Error("returned image differs")
	}
	if resp.Error != "" {
		t.Errorf("unexpected error %q", resp.Error)
	}
}

func TestCartoonize_PublishFailureStillShowsImage(t *testing.T) {
	srv := newTestServer(runnerFunc(func(ctx context.Context, data []byte) (*booth.Result, error) {
		return &booth.Result{
			RunID:    "run-2",
			State:    booth.StateFailed,
			FailedIn: booth.StatePublishing,
			Image:    photo.Solid(32, 32, color.White),
		}, &booth.UploadError{StatusCode: 500, Status: "500 Internal Server Error", Reason: "boom"}
	}))

	rec := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(rec, photoRequest(t, "photo", []byte("x")))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.ImagePNG == "" {
		t.Error("image must be returned after a publish failure")
	}
	if resp.URL != "" || resp.QRPNG != "" {
		t.Error("no url or qr expected")
	}
	if resp.Error != "Failed to upload image. Try again." {
		t.Errorf("unexpected error %q", resp.Error)
	}
	if resp.FailedIn != "publishing" {
		t.Errorf("unexpected failed_in %q", resp.FailedIn)
	}
}

func TestCartoonize_UsesRunMessage(t *testing.T) {
	srv := newTestServer(runnerFunc(func(ctx context.Context, data []byte) (*booth.Result, error) {
		return &booth.Result{
			RunID:    "run-3",
			State:    booth.StateFailed,
			FailedIn: booth.StateTransforming,
			Message:  "The cartoonizer is warming up, please wait a moment.",
		}, booth.ErrTransform
	}))

	rec := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(rec, photoRequest(t, "photo", []byte("x")))

	resp := decodeResponse(t, rec)
	if resp.Error != "The cartoonizer is warming up, please wait a moment." {
		t.Errorf("expected the run message, got %q", resp.Error)
	}
	if resp.Detail != booth.ErrTransform.Error() {
		t.Errorf("unexpected detail %q", resp.Detail)
	}
}

func TestCartoonize_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "capture", err: booth.ErrCapture, want: http.StatusBadRequest},
		{name: "transform", err: booth.ErrTransform, want: http.StatusBadGateway},
		{name: "other", err: errors.New("x"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(runnerFunc(func(ctx context.Context, data []byte) (*booth.Result, error) {
				return &booth.Result{State: booth.StateFailed}, tt.err
			}))
			rec := httptest.NewRecorder()
			NewRouter(srv).ServeHTTP(rec, photoRequest(t, "photo", []byte("x")))

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if resp := decodeResponse(t, rec); resp.Error == "" || resp.ImagePNG != "" {
				t.Errorf("unexpected response %+v", resp)
			}
		})
	}
}

func TestCartoonize_MissingPhoto(t *testing.T) {
	called := false
	srv := newTestServer(runnerFunc(func(ctx context.Context, data []byte) (*booth.Result, error) {
		called = true
		return nil, nil
	}))

	rec := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(rec, photoRequest(t, "other", []byte("x")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if called {
		t.Error("runner must not be called without a photo")
	}
}

func TestCartoonize_BusyWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := newTestServer(runnerFunc(func(ctx context.Context, data []byte) (*booth.Result, error) {
		close(started)
		<-release
		return &booth.Result{State: booth.StateDone}, nil
	}))
	router := NewRouter(srv)

	first := httptest.NewRecorder()
	firstReq := photoRequest(t, "photo", []byte("a"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(first, firstReq)
	}()
	<-started

	second := httptest.NewRecorder()
	router.ServeHTTP(second, photoRequest(t, "photo", []byte("b")))
	if second.Code != http.StatusConflict {
		t.Errorf("expected 409 while busy, got %d", second.Code)
	}

	status := httptest.NewRecorder()
	router.ServeHTTP(status, httptest.NewRequest(http.MethodGet, "/status", nil))
	if !strings.Contains(status.Body.String(), `"status":"busy"`) {
		t.Errorf("expected busy status, got %s", status.Body.String())
	}

	close(release)
	<-done
	if first.Code != http.StatusOK {
		t.Errorf("first request should succeed, got %d", first.Code)
	}
}

func TestCartoonize_ContextSurvivesClientCancel(t *testing.T) {
	srv := newTestServer(runnerFunc(func(ctx context.Context, data []byte) (*booth.Result, error) {
		if ctx.Err() != nil {
			t.Errorf("run context must not be cancelled: %v", ctx.Err())
		}
		return &booth.Result{State: booth.StateDone}, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := photoRequest(t, "photo", []byte("x")).WithContext(ctx)

	rec := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(nil)

	rec := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["status"] != "ready" || payload["model"] != "instruction-tuning-sd/cartoonizer" || payload["device"] != "cpu" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestKioskPage(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(newTestServer(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "/cartoonize") {
		t.Error("page should post to /cartoonize")
	}
}
