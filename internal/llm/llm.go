package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sokinpui/aiwriter/internal/bundle"
	"github.com/sokinpui/aiwriter/model"
)

const (
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultModel           = "gpt-5"
	DefaultReasoningEffort = "medium"
)

// APIKeyEnvVars are consulted in order; the first non-empty value wins.
var APIKeyEnvVars = []string{"OPENAI_API_KEY", "OPEN_AI_KEY"}

// Proposer asks the text-generation service for an edit. The returned text
// should encode a change list but is not trusted to.
type Proposer interface {
	Propose(ctx context.Context, instruction, files string) (string, error)
}

// ResolveAPIKey looks the key up in APIKeyEnvVars order.
func ResolveAPIKey(getenv func(string) string) (string, error) {
	for _, name := range APIKeyEnvVars {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: No API key found in env (tried %s)", model.ErrCredential, strings.Join(APIKeyEnvVars, " and "))
}

// Options configures a Client.
type Options struct {
	BaseURL         string
	Model           string
	APIKey          string
	ReasoningEffort string
}

// Client talks to the OpenAI Responses API.
type Client struct {
	baseURL string
	model   string
	apiKey  string
	effort  string
	http    *http.Client
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	m := strings.TrimSpace(opts.Model)
	if m == "" {
		m = DefaultModel
	}
	return &Client{
		baseURL: baseURL,
		model:   m,
		apiKey:  opts.APIKey,
		effort:  strings.TrimSpace(opts.ReasoningEffort),
		http: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

// Model returns the model identifier requests are sent with.
func (c *Client) Model() string { return c.model }

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type reasoning struct {
	Effort string `json:"effort"`
}

type textFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type textOptions struct {
	Format textFormat `json:"format"`
}

type responsesRequest struct {
	Model     string         `json:"model"`
	Input     []inputMessage `json:"input"`
	Reasoning *reasoning     `json:"reasoning,omitempty"`
	Text      *textOptions   `json:"text,omitempty"`
}

type responsesResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// changesSchema constrains structured output to the change list shape.
func changesSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"changes": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path":    map[string]any{"type": "string"},
						"content": map[string]any{"type": "string"},
					},
					"required":             []string{"path", "content"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"changes"},
		"additionalProperties": false,
	}
}

// Propose sends one request and returns the model's text. It never retries.
func (c *Client) Propose(ctx context.Context, instruction, files string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("%w: llm client is nil", model.ErrService)
	}
	req := responsesRequest{
		Model: c.model,
		Input: []inputMessage{
			{Role: "system", Content: bundle.SystemPrompt},
			{Role: "user", Content: bundle.Payload(instruction, files)},
		},
		Text: &textOptions{Format: textFormat{
			Type:   "json_schema",
			Name:   "changes_schema",
			Schema: changesSchema(),
			Strict: true,
		}},
	}
	if c.effort != "" {
		req.Reasoning = &reasoning{Effort: c.effort}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", model.ErrService, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", model.ErrService, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %w", model.ErrService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", model.ErrService, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %s: %s", model.ErrService, resp.Status, errorMessage(body))
	}

	return extractText(body)
}

// extractText pulls the assistant text out of a Responses API envelope,
// falling back to the raw body when no text item is present.
func extractText(body []byte) (string, error) {
	var decoded responsesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", model.ErrService, err)
	}

	var parts []string
	for _, item := range decoded.Output {
		for _, c := range item.Content {
			if c.Type == "output_text" && c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ""), nil
	}
	if decoded.OutputText != "" {
		return decoded.OutputText, nil
	}
	return string(body), nil
}

func errorMessage(body []byte) string {
	var decoded responsesResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != nil && decoded.Error.Message != "" {
		return decoded.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
