package model

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/algoverse/cartoonbooth/photo"
)

const defaultTimeout = 5 * time.Minute

// Client calls an OpenAI-compatible image edit endpoint
// (POST {base}/images/edits) serving an instruct-pix2pix style model.
type Client struct {
	baseURL    string
	name       string
	device     string
	apiKey     string
	maxSide    int
	httpClient *http.Client
	log        *slog.Logger
}

var _ Transformer = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets a bearer token sent with every request.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(apiKey)
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the timeout on the HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithMaxSide bounds the longest side of decoded model output.
func WithMaxSide(maxSide int) Option {
	return func(c *Client) {
		c.maxSide = maxSide
	}
}

// NewClient creates a model client. device is forwarded to the server as a
// hint ("auto", "cuda", "cpu", "mps").
func NewClient(baseURL, name, device string, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		name:       strings.TrimSpace(name),
		device:     device,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Name returns the model identifier.
func (c *Client) Name() string {
	return c.name
}

// Load checks that the endpoint serves the configured model. Any failure
// is reported as ErrModelLoad.
func (c *Client) Load(ctx context.Context) error {
	if c.baseURL == "" || c.name == "" {
		return fmt.Errorf("%w: base url and model name are required", ErrModelLoad)
	}

	endpoint := c.baseURL + "/models/" + url.PathEscape(c.name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrModelLoad, err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrModelLoad, c.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: endpoint answered %s", ErrModelLoad, c.name, resp.Status)
	}

	c.log.Info("model ready", "model", c.name, "device", c.device, "url", c.baseURL)
	return nil
}

type editResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Transform sends img and instruction to the model and decodes the first
// returned image.
func (c *Client) Transform(ctx context.Context, instruction string, img photo.Image) (photo.Image, error) {
	if strings.TrimSpace(instruction) == "" {
		return photo.Image{}, errors.New("model: instruction is required")
	}

	body, contentType, err := c.buildEditForm(instruction, img)
	if err != nil {
		return photo.Image{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", body)
	if err != nil {
		return photo.Image{}, fmt.Errorf("model: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return photo.Image{}, fmt.Errorf("model: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return photo.Image{}, decodeAPIError(resp)
	}

	var out editResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return photo.Image{}, fmt.Errorf("model: decode response: %w", err)
	}
	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return photo.Image{}, errors.New("model: response did not include any images")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out.Data[0].B64JSON))
	if err != nil {
		return photo.Image{}, fmt.Errorf("model: decode image payload: %w", err)
	}
	result, err := photo.DecodeBytes(raw, c.maxSide)
	if err != nil {
		return photo.Image{}, fmt.Errorf("model: %w", err)
	}

	c.log.Debug("model transform complete",
		"model", c.name,
		"elapsed", time.Since(start),
		"width", result.Width(),
		"height", result.Height())
	return result, nil
}

func (c *Client) buildEditForm(instruction string, img photo.Image) (*bytes.Buffer, string, error) {
	pngData, err := img.PNG()
	if err != nil {
		return nil, "", fmt.Errorf("model: encode input: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := []struct{ key, value string }{
		{"model", c.name},
		{"prompt", instruction},
		{"response_format", "b64_json"},
		{"device", c.device},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := writer.WriteField(f.key, f.value); err != nil {
			return nil, "", fmt.Errorf("model: write %s field: %w", f.key, err)
		}
	}

	part, err := writer.CreateFormFile("image", "photo.png")
	if err != nil {
		return nil, "", fmt.Errorf("model: create image field: %w", err)
	}
	if _, err := part.Write(pngData); err != nil {
		return nil, "", fmt.Errorf("model: write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("model: close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func decodeAPIError(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		return fmt.Errorf("model: API status %d and failed to read error body: %w", resp.StatusCode, readErr)
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("model: API error (status %d): %s", resp.StatusCode, envelope.Error.Message)
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("model: API status %d: %s", resp.StatusCode, text)
}
