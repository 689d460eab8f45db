// File: internal/modelapi/client.go
package modelapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hexlane/operant/internal/config"
)

// Client talks to the responses API over HTTP with transparent retries and
// client-side rate limiting.
type Client struct {
	http    *retryablehttp.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	baseURL string
	apiKey  string
	model   string

	viewportWidth  int
	viewportHeight int
}

// NewClient builds a Client from configuration. The viewport dimensions are
// advertised in the computer-use tool declaration so the model scales its
// coordinates to the actual surface.
func NewClient(cfg config.APIConfig, browser config.BrowserConfig, logger *zap.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil // zap below, not retryablehttp's internal logger

	rps := cfg.RequestsPerS
	if rps <= 0 {
		rps = 1
	}

	return &Client{
		http:           rc,
		limiter:        rate.NewLimiter(rate.Limit(rps), 1),
		logger:         logger.Named("modelapi"),
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		viewportWidth:  browser.ViewportWidth,
		viewportHeight: browser.ViewportHeight,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// computerTool is the tool declaration enabling computer use for a turn.
func (c *Client) computerTool() map[string]any {
	return map[string]any{
		"type":           "computer_use_preview",
		"display_width":  c.viewportWidth,
		"display_height": c.viewportHeight,
		"environment":    "browser",
	}
}

// GetResponse fetches the complete output array for a prior response. Used
// to recover full action detail omitted from streaming deltas.
func (c *Client) GetResponse(ctx context.Context, responseID string) (*Response, error) {
	if responseID == "" {
		return nil, fmt.Errorf("response id is required")
	}
	return c.do(ctx, http.MethodGet, "/responses/"+responseID, nil)
}

// SendComputerCallOutput submits one resolved action's result and returns
// the model's next response, which may itself contain another pending call.
func (c *Client) SendComputerCallOutput(ctx context.Context, params SubmitOutputParams) (*Response, error) {
	if params.CallID == "" {
		return nil, fmt.Errorf("call id is required")
	}
	item := computerCallOutputItem{
		Type:   "computer_call_output",
		CallID: params.CallID,
		Output: ComputerScreenshot{
			Type:     "computer_screenshot",
			ImageURL: params.ImageDataURL,
		},
		AcknowledgedSafetyChecks: params.AcknowledgedSafetyChecks,
		CurrentURL:               params.CurrentURL,
	}
	payload := map[string]any{
		"model":                c.model,
		"previous_response_id": params.PreviousResponseID,
		"input":                []any{item},
		"tools":                []any{c.computerTool()},
		"truncation":           "auto",
	}
	return c.do(ctx, http.MethodPost, "/responses", payload)
}

// SendChat initiates a conversation turn with the computer-use tool enabled.
func (c *Client) SendChat(ctx context.Context, prompt string) (*Response, error) {
	payload := map[string]any{
		"model":      c.model,
		"input":      prompt,
		"tools":      []any{c.computerTool()},
		"truncation": "auto",
	}
	return c.do(ctx, http.MethodPost, "/responses", payload)
}

// do performs one rate-limited, retried request and decodes the response.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("Model API request.", zap.String("method", method), zap.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model api request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("model api returned status %d: %s", resp.StatusCode, truncateForLog(raw))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil && out.Error.Message != "" {
		return nil, fmt.Errorf("model api error %s: %s", out.Error.Code, out.Error.Message)
	}
	return &out, nil
}

func truncateForLog(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
