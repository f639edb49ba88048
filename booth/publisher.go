package booth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/algoverse/cartoonbooth/photo"
)

// Publisher makes an image publicly reachable and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, img photo.Image) (string, error)
}

// ImgurPublisher uploads images anonymously to Imgur (or a compatible
// endpoint) using a registered application client id.
type ImgurPublisher struct {
	endpoint string
	clientID string
	tempDir  string
	client   *http.Client
	log      *slog.Logger
}

var _ Publisher = (*ImgurPublisher)(nil)

// NewImgurPublisher creates a publisher. tempDir may be empty to use the
// system default.
func NewImgurPublisher(endpoint, clientID, tempDir string, timeout time.Duration, log *slog.Logger) *ImgurPublisher {
	return &ImgurPublisher{
		endpoint: endpoint,
		clientID: clientID,
		tempDir:  tempDir,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

type imgurResponse struct {
	Data struct {
		Link  string `json:"link"`
		Error any    `json:"error"`
	} `json:"data"`
	Success bool `json:"success"`
}

// Publish PNG-encodes img into a temporary file, uploads it in a single
// attempt and returns the public link. The temporary file is removed on every
// path. Failures are returned as *UploadError.
func (p *ImgurPublisher) Publish(ctx context.Context, img photo.Image) (string, error) {
	tmp, err := os.CreateTemp(p.tempDir, "cartoon-*.png")
	if err != nil {
		return "", &UploadError{Reason: fmt.Sprintf("create temp file: %v", err)}
	}
	defer func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			p.log.Warn("publish: failed to remove temp file", "path", tmp.Name(), "error", err)
		}
	}()

	if err := img.WritePNG(tmp); err != nil {
		return "", &UploadError{Reason: fmt.Sprintf("write temp file: %v", err)}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", &UploadError{Reason: fmt.Sprintf("rewind temp file: %v", err)}
	}

	body, contentType, err := buildUploadForm(tmp)
	if err != nil {
		return "", &UploadError{Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return "", &UploadError{Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Authorization", "Client-ID "+p.clientID)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Error("publish: upload failed", "error", err)
		return "", &UploadError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &UploadError{StatusCode: resp.StatusCode, Status: resp.Status, Reason: fmt.Sprintf("read response: %v", err)}
	}

	var out imgurResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.log.Warn("publish: non-2xx response", "status", resp.StatusCode)
		return "", &UploadError{StatusCode: resp.StatusCode, Status: resp.Status, Reason: errorReason(out, raw, resp.StatusCode)}
	}
	if decodeErr != nil {
		return "", &UploadError{StatusCode: resp.StatusCode, Status: resp.Status, Reason: fmt.Sprintf("malformed response: %v", decodeErr)}
	}
	link := strings.TrimSpace(out.Data.Link)
	if link == "" {
		return "", &UploadError{StatusCode: resp.StatusCode, Status: resp.Status, Reason: "response has no data.link"}
	}

	p.log.Info("publish: uploaded", "status", resp.StatusCode, "url", link, "elapsed", time.Since(start))
	return link, nil
}

func buildUploadForm(src io.Reader) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image", "cartoon.png")
	if err != nil {
		return nil, "", fmt.Errorf("create image field: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.WriteField("type", "file"); err != nil {
		return nil, "", fmt.Errorf("write type field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func errorReason(out imgurResponse, raw []byte, status int) string {
	switch v := out.Data.Error.(type) {
	case string:
		if v != "" {
			return v
		}
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	}
	text := strings.TrimSpace(string(raw))
	if text == "" || len(text) > 200 {
		return http.StatusText(status)
	}
	return text
}
