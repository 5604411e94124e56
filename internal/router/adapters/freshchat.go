package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Mathfer/Bot-gemini-middleware/internal/config"
)

// FreshchatAdapter posts agent messages into Freshchat conversations.
type FreshchatAdapter struct {
	cfg    config.RelayConfig
	client *http.Client
}

func NewFreshchatAdapter(cfg config.RelayConfig, client *http.Client) *FreshchatAdapter {
	return &FreshchatAdapter{cfg: cfg, client: client}
}

func (a *FreshchatAdapter) Name() string { return "freshchat" }

func (a *FreshchatAdapter) Send(ctx context.Context, conversationID, text string) error {
	if conversationID == "" {
		return &RelayError{Kind: RelayUnknown, Err: errors.New("conversation id is required")}
	}
	if text == "" {
		return &RelayError{Kind: RelayUnknown, Err: errors.New("message text is required")}
	}

	data, err := json.Marshal(freshchatMessage{
		MessageParts: []freshchatPart{{Text: text, ContentType: "text"}},
		ActorType:    "Agent",
	})
	if err != nil {
		return fmt.Errorf("marshal freshchat message: %w", err)
	}

	endpoint := a.baseURL() + "/conversations/" + url.PathEscape(conversationID) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIToken)

	return a.do(req)
}

// Ping checks that the account API answers with the configured token.
func (a *FreshchatAdapter) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL()+"/accounts/configuration", nil)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIToken)
	return a.do(req)
}

func (a *FreshchatAdapter) baseURL() string {
	return strings.TrimRight(a.cfg.BaseURL, "/")
}

func (a *FreshchatAdapter) do(req *http.Request) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return &RelayError{Kind: transportKind(err), Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return freshchatStatusError(resp.StatusCode, body)
}

func freshchatStatusError(status int, body []byte) *RelayError {
	var kind RelayKind
	var msg string
	switch status {
	case http.StatusUnauthorized:
		kind, msg = RelayUnauthorized, "token invalid or expired"
	case http.StatusForbidden:
		kind, msg = RelayForbidden, "not allowed to post in conversation"
	case http.StatusNotFound:
		kind, msg = RelayNotFound, "conversation not found"
	default:
		kind, msg = RelayHTTPError, strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(status)
		}
	}
	return &RelayError{Kind: kind, Status: status, Err: errors.New(msg)}
}

type freshchatMessage struct {
	MessageParts []freshchatPart `json:"message_parts"`
	ActorType    string          `json:"actor_type"`
}

type freshchatPart struct {
	Text        string `json:"text"`
	ContentType string `json:"content_type"`
}
