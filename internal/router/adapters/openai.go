package adapters

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/Mathfer/Bot-gemini-middleware/internal/config"
)

// OpenAIAdapter generates replies through any OpenAI-compatible chat
// completions endpoint.
type OpenAIAdapter struct {
	cfg    config.CompletionConfig
	client *openai.Client
}

func NewOpenAIAdapter(cfg config.CompletionConfig, httpClient *http.Client) *OpenAIAdapter {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}
	return &OpenAIAdapter{cfg: cfg, client: openai.NewClientWithConfig(oc)}
}

func (a *OpenAIAdapter) Name() string { return "openai" }

func (a *OpenAIAdapter) Complete(ctx context.Context, contextText, question string) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if a.cfg.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: a.cfg.SystemPrompt})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: BuildPrompt("", contextText, question),
	})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		Messages:    msgs,
		Temperature: float32(a.cfg.Temperature),
		TopP:        float32(a.cfg.TopP),
		MaxTokens:   a.cfg.MaxOutputTokens,
	})
	if err != nil {
		return "", a.wrapError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &CompletionError{Gateway: a.Name(), Category: CategoryUnknown, Err: ErrEmptyCompletion}
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *OpenAIAdapter) Ping(ctx context.Context) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: PingPrompt}},
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		return "", a.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *OpenAIAdapter) wrapError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	var category Category
	switch status {
	case http.StatusTooManyRequests:
		category = CategoryQuota
	case http.StatusUnauthorized, http.StatusForbidden:
		category = CategoryAuthentication
	case 0:
		category = ClassifyCompletion(err)
	default:
		category = classifyMessage(err.Error())
	}
	return &CompletionError{Gateway: a.Name(), Category: category, Status: status, Err: err}
}
