package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Mathfer/Bot-gemini-middleware/internal/config"
	"github.com/Mathfer/Bot-gemini-middleware/internal/router/adapters"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// BuildCompleter builds the completion gateway from config, guarded by the
// tracker's breaker. It returns nil when no API key is configured.
func BuildCompleter(cfg config.CompletionConfig, ht *HealthTracker) (adapters.Completer, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	client := newHTTPClient(cfg.Timeout)

	var c adapters.Completer
	switch cfg.Type {
	case "gemini", "":
		c = adapters.NewGeminiAdapter(withGeminiDefaults(cfg), client)
	case "openai":
		c = adapters.NewOpenAIAdapter(withOpenAIDefaults(cfg), client)
	default:
		return nil, fmt.Errorf("unknown completion type: %s", cfg.Type)
	}
	if ht == nil {
		return c, nil
	}
	return &guardedCompleter{next: c, ht: ht}, nil
}

func withGeminiDefaults(cfg config.CompletionConfig) config.CompletionConfig {
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = config.DefaultGeminiModel
	}
	return cfg
}

// withOpenAIDefaults replaces unset or Gemini default endpoint and model,
// since DefaultConfig fills both for Gemini.
func withOpenAIDefaults(cfg config.CompletionConfig) config.CompletionConfig {
	if cfg.BaseURL == "" || cfg.BaseURL == config.DefaultGeminiBaseURL {
		cfg.BaseURL = config.DefaultOpenAIBaseURL
	}
	if cfg.Model == "" || cfg.Model == config.DefaultGeminiModel {
		cfg.Model = config.DefaultOpenAIModel
	}
	return cfg
}

// BuildRelayer builds the messaging relay from config. It returns nil when
// no API token is configured.
func BuildRelayer(cfg config.RelayConfig, ht *HealthTracker) adapters.Relayer {
	if cfg.APIToken == "" {
		return nil
	}
	r := adapters.NewFreshchatAdapter(cfg, newHTTPClient(cfg.Timeout))
	if ht == nil {
		return r
	}
	return &guardedRelayer{next: r, ht: ht}
}

type guardedCompleter struct {
	next adapters.Completer
	ht   *HealthTracker
}

func (g *guardedCompleter) Name() string { return g.next.Name() }

func (g *guardedCompleter) Complete(ctx context.Context, contextText, question string) (string, error) {
	var reply string
	err := g.ht.Execute(g.next.Name(), func() error {
		var err error
		reply, err = g.next.Complete(ctx, contextText, question)
		return err
	})
	if err == adapters.ErrCircuitOpen {
		return "", &adapters.CompletionError{Gateway: g.next.Name(), Category: adapters.CategoryNetwork, Err: err}
	}
	return reply, err
}

// Ping bypasses the breaker so operators can check the gateway while it
// is open.
func (g *guardedCompleter) Ping(ctx context.Context) (string, error) {
	return g.next.Ping(ctx)
}

type guardedRelayer struct {
	next adapters.Relayer
	ht   *HealthTracker
}

func (g *guardedRelayer) Name() string { return g.next.Name() }

func (g *guardedRelayer) Send(ctx context.Context, conversationID, text string) error {
	err := g.ht.Execute(g.next.Name(), func() error {
		return g.next.Send(ctx, conversationID, text)
	})
	if err == adapters.ErrCircuitOpen {
		return &adapters.RelayError{Kind: adapters.RelayConnectionFailed, Err: err}
	}
	return err
}

// Ping bypasses the breaker so operators can check the gateway while it
// is open.
func (g *guardedRelayer) Ping(ctx context.Context) error {
	return g.next.Ping(ctx)
}
