package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Mathfer/Bot-gemini-middleware/internal/config"
)

// GeminiAdapter calls the Gemini generateContent REST endpoint.
type GeminiAdapter struct {
	cfg    config.CompletionConfig
	client *http.Client
}

func NewGeminiAdapter(cfg config.CompletionConfig, client *http.Client) *GeminiAdapter {
	return &GeminiAdapter{cfg: cfg, client: client}
}

func (a *GeminiAdapter) Name() string { return "gemini" }

func (a *GeminiAdapter) Complete(ctx context.Context, contextText, question string) (string, error) {
	return a.generate(ctx, BuildPrompt(a.cfg.SystemPrompt, contextText, question), geminiGenerationConfig{
		Temperature:     a.cfg.Temperature,
		TopK:            a.cfg.TopK,
		TopP:            a.cfg.TopP,
		MaxOutputTokens: a.cfg.MaxOutputTokens,
	})
}

func (a *GeminiAdapter) Ping(ctx context.Context) (string, error) {
	text, err := a.generate(ctx, PingPrompt, geminiGenerationConfig{Temperature: 0.1, MaxOutputTokens: 10})
	if errors.Is(err, ErrEmptyCompletion) {
		return "", nil
	}
	return text, err
}

func (a *GeminiAdapter) generate(ctx context.Context, prompt string, gen geminiGenerationConfig) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: gen,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/models/" + a.cfg.Model + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &CompletionError{Gateway: a.Name(), Category: CategoryNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &CompletionError{Gateway: a.Name(), Category: CategoryNetwork, Err: fmt.Errorf("read gemini response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", geminiStatusError(resp.StatusCode, raw)
	}

	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &CompletionError{Gateway: a.Name(), Category: CategoryUnknown, Status: resp.StatusCode, Err: fmt.Errorf("unmarshal gemini response: %w", err)}
	}

	text := out.text()
	if text == "" {
		return "", &CompletionError{Gateway: a.Name(), Category: CategoryUnknown, Status: resp.StatusCode, Err: ErrEmptyCompletion}
	}
	return text, nil
}

const maxErrorRunes = 512

func geminiStatusError(status int, body []byte) *CompletionError {
	var env geminiErrorEnvelope
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		msg = env.Error.Status + ": " + env.Error.Message
	}
	if r := []rune(msg); len(r) > maxErrorRunes {
		msg = string(r[:maxErrorRunes])
	}

	var category Category
	switch {
	case status == http.StatusTooManyRequests || env.Error.Status == "RESOURCE_EXHAUSTED":
		category = CategoryQuota
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = CategoryAuthentication
	case env.hasReason("API_KEY_INVALID") || strings.Contains(strings.ToLower(env.Error.Message), "api key"):
		category = CategoryAuthentication
	case status == http.StatusGatewayTimeout:
		category = CategoryNetwork
	default:
		category = classifyMessage(msg)
	}
	return &CompletionError{Gateway: "gemini", Category: category, Status: status, Err: errors.New(msg)}
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

type geminiErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

func (e geminiErrorEnvelope) hasReason(reason string) bool {
	for _, d := range e.Error.Details {
		if d.Reason == reason {
			return true
		}
	}
	return false
}
