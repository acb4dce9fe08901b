// Package inference talks to the disease classification service: health
// probing, wake-up polling, multipart prediction requests and an optional
// local subprocess supervisor.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/krushi/krushi-api/internal/config"
)

// ErrUnavailable means the service could not be reached within the wake
// budget.
var ErrUnavailable = errors.New("inference service unavailable")

// HTTPError is a non-2xx answer from the prediction endpoint.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("inference: status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the status indicates a gateway or overload
// condition worth retrying.
func (e *HTTPError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// RejectedError is an application level refusal (success=false).
type RejectedError struct{ Message string }

func (e *RejectedError) Error() string { return "inference rejected image: " + e.Message }

// IsTransient reports whether err is a transport failure, a timeout or a
// temporary gateway status. Application rejections are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var rej *RejectedError
	if errors.As(err, &rej) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Prediction is the decoded body of a prediction response. Fields are kept
// loose because the service has shipped several response shapes.
type Prediction map[string]any

// Client is a thin HTTP client for the classification service.
type Client struct {
	baseURL        string
	healthPath     string
	probeTimeout   time.Duration
	requestTimeout time.Duration
	http           *http.Client
}

// NewClient builds a Client. Timeouts are applied per call through the
// request context, so one http.Client serves probes and predictions.
func NewClient(cfg config.InferenceConfig) *Client {
	return &Client{
		baseURL:        cfg.BaseURL,
		healthPath:     cfg.HealthPath,
		probeTimeout:   cfg.ProbeTimeout,
		requestTimeout: cfg.RequestTimeout,
		http:           &http.Client{},
	}
}

// Probe checks the health path and then the root path. Any 2xx answer from
// either counts as up.
func (c *Client) Probe(ctx context.Context) error {
	var lastErr error
	for _, p := range c.probePaths() {
		if err := c.probeOne(ctx, p); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (c *Client) probePaths() []string {
	if c.healthPath == "" || c.healthPath == "/" {
		return []string{"/"}
	}
	return []string{c.healthPath, "/"}
}

func (c *Client) probeOne(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Message: "probe " + path}
	}
	return nil
}

// Predict uploads the image at imagePath with the crop name and returns the
// decoded response. The file is reopened on every call so retries send the
// full body again.
func (c *Client) Predict(ctx context.Context, imagePath, filename, crop string) (Prediction, error) {
	body, contentType, err := buildForm(imagePath, filename, crop)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("predict: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}

	var out Prediction
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("predict: decode: %w", err)
	}
	if ok, present := out["success"].(bool); present && !ok {
		return nil, &RejectedError{Message: errorMessage(raw, "prediction failed")}
	}
	return out, nil
}

func buildForm(imagePath, filename, crop string) ([]byte, string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	if filename == "" {
		filename = filepath.Base(imagePath)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy image: %w", err)
	}
	if err := w.WriteField("crop", crop); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func errorMessage(raw []byte, fallback string) string {
	var body struct {
		Error  string `json:"error"`
		Detail any    `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if s, ok := body.Detail.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
