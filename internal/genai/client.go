// Package genai is the HTTP client for the Gemini generateContent API,
// covering both the streaming chat path and one-shot JSON generation.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/errors"
)

// StreamCallback receives each text chunk as it arrives, in order.
type StreamCallback func(chunk string)

// Completer is the completion surface the controllers depend on. The
// concrete client talks HTTP; tests substitute a stub.
type Completer interface {
	// StreamGenerate runs a streaming completion over history with an
	// out-of-band system instruction, invoking cb per text chunk.
	StreamGenerate(ctx context.Context, instruction string, history []chat.Turn, cb StreamCallback) error

	// GenerateJSON runs a one-shot completion in JSON response mode and
	// decodes the result into out.
	GenerateJSON(ctx context.Context, instruction, userText string, out any) error
}

// Client calls the generateContent endpoints over HTTP.
type Client struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client from config. Fails when the API key environment
// variable is unset, so callers surface a setup problem before any send.
func NewClient(cfg *config.Config) (*Client, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, errors.NewMissingAPIKey(cfg.APIKeyEnv)
	}
	return &Client{
		baseURL: cfg.APIBaseURL,
		model:   cfg.Model,
		apiKey:  key,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// GenerateJSON implements Completer.
func (c *Client) GenerateJSON(ctx context.Context, instruction, userText string, out any) error {
	req := generateRequest{
		Contents: []wireContent{{Role: "user", Parts: []wirePart{{Text: userText}}}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
		},
	}
	if instruction != "" {
		req.SystemInstruction = &wireContent{Parts: []wirePart{{Text: instruction}}}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	body, err := c.post(ctx, url, &req)
	if err != nil {
		return err
	}
	defer body.Close()

	var resp generateResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return errors.NewUpstream(err)
	}
	text := resp.text()
	if text == "" {
		return errors.NewUpstream(fmt.Errorf("empty completion response"))
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return errors.NewUpstream(fmt.Errorf("decoding model JSON: %w", err))
	}
	return nil
}

// post sends a JSON request and returns the response body, mapping transport
// and HTTP-status failures to upstream errors.
func (c *Client) post(ctx context.Context, url string, payload any) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewUpstream(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, errors.NewUpstream(fmt.Errorf("completion API returned %s: %s", resp.Status, readAPIError(resp.Body)))
	}
	return resp.Body, nil
}

// readAPIError extracts the error message from a non-200 body, falling back
// to the raw payload.
func readAPIError(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no error detail"
	}
	var resp generateResponse
	if json.Unmarshal(raw, &resp) == nil && resp.Error != nil && resp.Error.Message != "" {
		return resp.Error.Message
	}
	return string(raw)
}
