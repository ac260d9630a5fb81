package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avvaruyasaswini/Echo/internal/echo/observability"
)

const (
	defaultGeminiBase    = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-pro-latest"
	defaultGeminiTimeout = 60 * time.Second
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	// APIKey authenticates against the Generative Language API.
	APIKey string

	// BaseURL overrides the API endpoint. Defaults to the public
	// generativelanguage.googleapis.com v1beta endpoint.
	BaseURL string

	// Model is the generation model to use. Defaults to gemini-pro-latest.
	Model string

	// Timeout is the HTTP request timeout. Defaults to 60 s.
	Timeout time.Duration
}

// geminiProvider implements Provider using the Gemini generateContent REST
// API. Plain net/http and minimal wire types — no SDK.
type geminiProvider struct {
	cfg    GeminiConfig
	client *http.Client
}

// NewGemini returns a Provider backed by the Gemini REST API. The returned
// provider is safe for concurrent use.
func NewGemini(cfg GeminiConfig) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultGeminiTimeout
	}
	return &geminiProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal Gemini wire types ---

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate sends the prompt to the Gemini API and returns the raw text of
// the first candidate.
func (p *geminiProvider) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}

	body := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{Temperature: temperature},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.cfg.BaseURL, p.cfg.Model, p.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("llm gemini: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		// Transport errors embed the request URL, which carries the API key.
		return "", fmt.Errorf("llm gemini: http request: %s", observability.Redact(err.Error(), p.cfg.APIKey))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm gemini: read response body: %w", err)
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		return "", fmt.Errorf("llm gemini: decode API response: %w", err)
	}

	if gemResp.Error != nil {
		return "", fmt.Errorf("llm gemini: API error (%s): %s", gemResp.Error.Status, gemResp.Error.Message)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("llm gemini: unexpected HTTP status %d", resp.StatusCode)
	}

	if len(gemResp.Candidates) == 0 {
		return "", fmt.Errorf("llm gemini: no candidates returned (HTTP %d)", resp.StatusCode)
	}

	var sb strings.Builder
	for _, part := range gemResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	return sb.String(), nil
}

// Compile-time interface satisfaction check.
var _ Provider = (*geminiProvider)(nil)
