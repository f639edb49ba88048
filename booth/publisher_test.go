package booth

import (
	"context"
	"errors"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/algoverse/cartoonbooth/photo"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no temporary files, found %d (first: %s)", len(entries), entries[0].Name())
	}
}

func TestImgurPublisher_Success(t *testing.T) {
	img := photo.Solid(32, 32, color.NRGBA{G: 255, A: 255})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %q", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Client-ID test-client" {
			t.Errorf("unexpected authorization header %q", got)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			t.Errorf("missing image part: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		got, err := photo.Decode(file, 0)
		if err != nil {
			t.Errorf("uploaded data is not an image: %v", err)
		} else if !got.Equal(img) {
			t.Error("uploaded image differs from the published one")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"abc123","link":"https://i.imgur.com/abc123.png"},"success":true,"status":200}`))
	}))
	defer server.Close()

	tempDir := t.TempDir()
	pub := NewImgurPublisher(server.URL, "test-client", tempDir, 5*time.Second, testLog)

	link, err := pub.Publish(context.Background(), img)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if link != "https://i.imgur.com/abc123.png" {
		t.Errorf("unexpected link %q", link)
	}
	assertDirEmpty(t, tempDir)
}

func TestImgurPublisher_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantReason string
	}{
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			body:       `{"data":{"error":"Internal failure"},"success":false,"status":500}`,
			wantStatus: 500,
			wantReason: "Internal failure",
		},
		{
			name:       "rate limited with object error",
			status:     http.StatusTooManyRequests,
			body:       `{"data":{"error":{"code":429,"message":"Too many uploads"}},"success":false}`,
			wantStatus: 429,
			wantReason: "Too many uploads",
		},
		{
			name:       "malformed json",
			status:     http.StatusOK,
			body:       `<html>oops</html>`,
			wantStatus: 200,
		},
		{
			name:       "missing link",
			status:     http.StatusOK,
			body:       `{"data":{},"success":true}`,
			wantStatus: 200,
			wantReason: "response has no data.link",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			tempDir := t.TempDir()
			pub := NewImgurPublisher(server.URL, "id", tempDir, 5*time.Second, testLog)

			link, err := pub.Publish(context.Background(), photo.Solid(16, 16, color.White))
			if link != "" {
				t.Errorf("expected no link, got %q", link)
			}
			if !errors.Is(err, ErrUpload) {
				t.Fatalf("expected ErrUpload, got %v", err)
			}
			var uploadErr *UploadError
			if !errors.As(err, &uploadErr) {
				t.Fatalf("expected *UploadError, got %T", err)
			}
			if uploadErr.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, uploadErr.StatusCode)
			}
			if tt.wantReason != "" && uploadErr.Reason != tt.wantReason {
				t.Errorf("expected reason %q, got %q", tt.wantReason, uploadErr.Reason)
			}
			assertDirEmpty(t, tempDir)
		})
	}
}

func TestImgurPublisher_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	tempDir := t.TempDir()
	pub := NewImgurPublisher(endpoint, "id", tempDir, time.Second, testLog)

	_, err := pub.Publish(context.Background(), photo.Solid(16, 16, color.White))
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *UploadError, got %v", err)
	}
	if uploadErr.StatusCode != 0 {
		t.Errorf("expected no status for a network failure, got %d", uploadErr.StatusCode)
	}
	assertDirEmpty(t, tempDir)
}

func TestImgurPublisher_EmptyImage(t *testing.T) {
	tempDir := t.TempDir()
	pub := NewImgurPublisher("http://127.0.0.1:1", "id", tempDir, time.Second, testLog)

	if _, err := pub.Publish(context.Background(), photo.Image{}); !errors.Is(err, ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	assertDirEmpty(t, tempDir)
}
