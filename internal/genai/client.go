// Package genai wraps the Gemini SDK for the two calls the service makes:
// a text prompt with optional inline images, answered as JSON.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gemini "google.golang.org/genai"

	"github.com/krushi/krushi-api/internal/config"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("genai: api key not configured")

// Image is an inline image part.
type Image struct {
	MIMEType string
	Data     []byte
}

// Client generates content with one configured model.
type Client struct {
	model string
	httpc *http.Client
	sdk   *gemini.Client
	err   error
}

// NewClient builds the SDK client for the Gemini API backend. A missing key
// or SDK setup failure is reported by every Generate call.
func NewClient(cfg config.GeminiConfig) *Client {
	c := &Client{model: cfg.Model, httpc: &http.Client{Timeout: cfg.Timeout}}
	if cfg.APIKey == "" {
		c.err = ErrNotConfigured
		return c
	}
	sdk, err := gemini.NewClient(context.Background(), &gemini.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    gemini.BackendGeminiAPI,
		HTTPClient: c.httpc,
		HTTPOptions: gemini.HTTPOptions{
			BaseURL:    cfg.Endpoint,
			APIVersion: cfg.APIVersion,
		},
	})
	if err != nil {
		c.err = fmt.Errorf("genai: new client: %w", err)
		return c
	}
	c.sdk = sdk
	return c
}

// Generate sends prompt plus images and returns the text of the first
// candidate. With jsonOut the model is asked for application/json.
func (c *Client) Generate(ctx context.Context, prompt string, images []Image, jsonOut bool) (string, error) {
	if c.err != nil {
		return "", c.err
	}

	parts := make([]*gemini.Part, 0, len(images)+1)
	parts = append(parts, gemini.NewPartFromText(prompt))
	for _, img := range images {
		parts = append(parts, gemini.NewPartFromBytes(img.Data, img.MIMEType))
	}
	var gc *gemini.GenerateContentConfig
	if jsonOut {
		gc = &gemini.GenerateContentConfig{ResponseMIMEType: "application/json"}
	}

	resp, err := c.sdk.Models.GenerateContent(ctx, c.model,
		[]*gemini.Content{gemini.NewContentFromParts(parts, gemini.RoleUser)}, gc)
	if err != nil {
		return "", fmt.Errorf("genai: generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("genai: empty response")
	}
	return text, nil
}

// GenerateJSON calls Generate and decodes the answer into v after stripping
// markdown code fences.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, images []Image, v any) error {
	text, err := c.Generate(ctx, prompt, images, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripCodeFences(text)), v); err != nil {
		return fmt.Errorf("genai: parse json: %w", err)
	}
	return nil
}

// StripCodeFences removes ```json and ``` markers around a model answer.
func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
