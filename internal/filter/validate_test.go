package filter

import (
	"errors"
	"strings"
	"testing"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestValidate_CanonicalKeys(t *testing.T) {
	v := newValidator(t)
	body := []byte(`{"requesterId":" ana ","context":"<p>ctx</p>","question":"why?","userId":"u1","conversationId":"c1"}`)

	ev, raw, err := v.Validate(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.RequesterID != "ana" {
		t.Errorf("expected requester ana, got %q", ev.RequesterID)
	}
	if ev.Context != "ctx" {
		t.Errorf("expected sanitized context, got %q", ev.Context)
	}
	if ev.Question != "why?" || ev.UserID != "u1" || ev.ConversationID != "c1" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !strings.Contains(string(raw), `"<p>ctx</p>"`) {
		t.Errorf("raw payload should be kept as received, got %s", raw)
	}
}

func TestValidate_LegacyKeys(t *testing.T) {
	v := newValidator(t)
	body := []byte(`{"solicitante":"bot","contexto":"c","pergunta":"q","id_usuario":"user7654321","id_conversa":"conv","resposta_gemini":"r","url":"http://x"}`)

	ev, _, err := v.Validate(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.RequesterID != "bot" || ev.Context != "c" || ev.Question != "q" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.AltUserID != "user7654321" || ev.ConversationID != "conv" || ev.GeneratedReply != "r" || ev.SourceURL != "http://x" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestValidate_CanonicalWinsOverAlias(t *testing.T) {
	v := newValidator(t)
	ev, _, err := v.Validate([]byte(`{"question":"new","pergunta":"old"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Question != "new" {
		t.Errorf("expected canonical value, got %q", ev.Question)
	}
}

func TestValidate_Defaults(t *testing.T) {
	v := newValidator(t)
	ev, _, err := v.Validate([]byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.RequesterID != "desconhecido" {
		t.Errorf("expected default requester, got %q", ev.RequesterID)
	}
	if ev.Context != "" || ev.Question != "" {
		t.Errorf("expected empty defaults, got %+v", ev)
	}

	ev, _, err = v.Validate([]byte(`{"question":null,"extra":42}`))
	if err != nil {
		t.Fatalf("null and unknown keys should be accepted: %v", err)
	}
	if ev.Question != "" {
		t.Errorf("expected empty question for null, got %q", ev.Question)
	}
}

func TestValidate_FieldTooLong(t *testing.T) {
	v := newValidator(t)
	body := []byte(`{"question":"` + strings.Repeat("a", 1001) + `","context":"ok"}`)

	_, raw, err := v.Validate(body)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if raw != nil {
		t.Error("raw payload must not be returned on failure")
	}
	if len(verr.Fields) != 1 || verr.Fields[0].Field != "question" {
		t.Errorf("expected a single diagnosis for question, got %+v", verr.Fields)
	}
}

func TestValidate_LengthCountsCharacters(t *testing.T) {
	v := newValidator(t)
	// 100 two-byte characters fit the requester bound.
	body := []byte(`{"requesterId":"` + strings.Repeat("é", 100) + `"}`)
	if _, _, err := v.Validate(body); err != nil {
		t.Errorf("expected 100 characters to be accepted: %v", err)
	}
}

func TestValidate_WrongType(t *testing.T) {
	v := newValidator(t)
	_, _, err := v.Validate([]byte(`{"userId":12345}`))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields[0].Field != "userId" {
		t.Errorf("expected userId diagnosis, got %+v", verr.Fields)
	}
}

func TestValidate_NotAnObject(t *testing.T) {
	v := newValidator(t)
	for _, body := range []string{`not json`, `[1,2]`, `"text"`, `{"a":1} trailing`, ``} {
		_, _, err := v.Validate([]byte(body))
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("body %q: expected ValidationError, got %v", body, err)
			continue
		}
		if verr.Fields[0].Field != "body" {
			t.Errorf("body %q: expected body diagnosis, got %+v", body, verr.Fields)
		}
	}
}
