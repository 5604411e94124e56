package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Mathfer/Bot-gemini-middleware/internal/config"
)

func geminiConfig(baseURL string) config.CompletionConfig {
	cfg := config.DefaultConfig().Completion
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-key"
	cfg.SystemPrompt = "Seja breve."
	return cfg
}

func TestGeminiAdapter_Complete(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Olá, "},{"text":"vamos verificar."}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	a := NewGeminiAdapter(geminiConfig(srv.URL), srv.Client())
	reply, err := a.Complete(context.Background(), "plano X", "não consigo logar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Olá, vamos verificar." {
		t.Errorf("unexpected reply %q", reply)
	}

	if len(got.Contents) != 1 || len(got.Contents[0].Parts) != 1 {
		t.Fatalf("expected a single user part, got %+v", got.Contents)
	}
	text := got.Contents[0].Parts[0].Text
	if !strings.HasPrefix(text, "Seja breve.\n\n") || !strings.HasSuffix(text, "Pergunta: não consigo logar") {
		t.Errorf("unexpected prompt %q", text)
	}
	gc := got.GenerationConfig
	if gc.Temperature != 0.4 || gc.TopK != 20 || gc.TopP != 0.8 || gc.MaxOutputTokens != 2048 {
		t.Errorf("unexpected generation config %+v", gc)
	}
}

func TestGeminiAdapter_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Category
	}{
		{"quota", 429, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`, CategoryQuota},
		{"bad key", 400, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`, CategoryAuthentication},
		{"bad key reason", 400, `{"error":{"code":400,"message":"denied","status":"FAILED_PRECONDITION","details":[{"reason":"API_KEY_INVALID"}]}}`, CategoryAuthentication},
		{"bad key message", 400, `{"error":{"code":400,"message":"API key expired. Please renew the API key.","status":"FAILED_PRECONDITION"}}`, CategoryAuthentication},
		{"forbidden", 403, `{"error":{"code":403,"message":"denied","status":"PERMISSION_DENIED"}}`, CategoryAuthentication},
		{"overloaded", 503, `{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`, CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewGeminiAdapter(geminiConfig(srv.URL), srv.Client()).Complete(context.Background(), "", "q")
			var ce *CompletionError
			if !errors.As(err, &ce) {
				t.Fatalf("expected CompletionError, got %v", err)
			}
			if ce.Category != tt.want || ce.Status != tt.status {
				t.Errorf("expected %s/%d, got %s/%d", tt.want, tt.status, ce.Category, ce.Status)
			}
		})
	}
}

func TestGeminiAdapter_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	_, err := NewGeminiAdapter(geminiConfig(srv.URL), srv.Client()).Complete(context.Background(), "", "q")
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestGeminiAdapter_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := srv.Client()
	client.Timeout = 50 * time.Millisecond
	_, err := NewGeminiAdapter(geminiConfig(srv.URL), client).Complete(context.Background(), "", "q")
	if got := ClassifyCompletion(err); got != CategoryNetwork {
		t.Errorf("expected network category, got %s (%v)", got, err)
	}
}

func TestGeminiStatusError_TruncatesByRune(t *testing.T) {
	body := []byte(strings.Repeat("ã", 600))
	err := geminiStatusError(http.StatusInternalServerError, body)

	msg := err.Err.Error()
	if !utf8.ValidString(msg) {
		t.Fatal("truncated message is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(msg); n != maxErrorRunes {
		t.Errorf("expected %d runes, got %d", maxErrorRunes, n)
	}
}

func TestGeminiAdapter_Ping(t *testing.T) {
	var got geminiRequest
	reply := `{"candidates":[{"content":{"role":"model","parts":[{"text":"OK"}]},"finishReason":"STOP"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}))
	defer srv.Close()

	a := NewGeminiAdapter(geminiConfig(srv.URL), srv.Client())
	text, err := a.Ping(context.Background())
	if err != nil || text != "OK" {
		t.Fatalf("expected OK, got %q, %v", text, err)
	}
	if got.Contents[0].Parts[0].Text != PingPrompt {
		t.Errorf("expected the fixed prompt without system text, got %q", got.Contents[0].Parts[0].Text)
	}
	if got.GenerationConfig.MaxOutputTokens != 10 || got.GenerationConfig.Temperature != 0.1 {
		t.Errorf("unexpected generation config %+v", got.GenerationConfig)
	}

	reply = `{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"MAX_TOKENS"}]}`
	if text, err := a.Ping(context.Background()); err != nil || text != "" {
		t.Errorf("expected empty reply without error, got %q, %v", text, err)
	}
}

func TestGeminiAdapter_PingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"denied","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	_, err := NewGeminiAdapter(geminiConfig(srv.URL), srv.Client()).Ping(context.Background())
	if got := ClassifyCompletion(err); got != CategoryAuthentication {
		t.Errorf("expected authentication, got %s (%v)", got, err)
	}
}
