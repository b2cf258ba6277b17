package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"whatbeats/internal/logging"
	"whatbeats/internal/types"
)

// =============================================================================
// OPENAI-COMPATIBLE ORACLE
// =============================================================================

// HTTPConfig configures HTTPOracle.
type HTTPConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// HTTPOracle talks to any OpenAI-compatible /chat/completions endpoint.
type HTTPOracle struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewHTTPOracle creates an oracle for an OpenAI-compatible API.
func NewHTTPOracle(cfg HTTPConfig) (*HTTPOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &HTTPOracle{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

func (o *HTTPOracle) Judge(ctx context.Context, challenger, incumbent string, persona types.Persona) (types.Verdict, error) {
	ctx, cancel := withTimeout(ctx, o.httpClient.Timeout)
	defer cancel()

	content, err := o.complete(ctx, systemPrompt(persona), userPrompt(challenger, incumbent))
	if err != nil {
		logging.OracleWarn("HTTP judge %q vs %q failed: %v", challenger, incumbent, err)
		return types.Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	v, err := parseVerdict(content)
	if err != nil {
		logging.OracleWarn("HTTP oracle returned an unusable verdict for %q vs %q: %v", challenger, incumbent, err)
		return types.Verdict{}, err
	}
	logging.OracleDebug("HTTP: %q beats %q = %v (%s)", challenger, incumbent, v.Beats, persona)
	return v, nil
}

func (o *HTTPOracle) complete(ctx context.Context, system, user string) (string, error) {
	jsonData, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &chatResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if chat.Error != nil {
		return "", fmt.Errorf("API error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return chat.Choices[0].Message.Content, nil
}
