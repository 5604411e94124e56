package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Completer produces a generated reply for a question and its context.
// Ping sends a minimal fixed prompt and returns whatever text came back;
// an empty reply is not an error.
type Completer interface {
	Name() string
	Complete(ctx context.Context, contextText, question string) (string, error)
	Ping(ctx context.Context) (string, error)
}

// PingPrompt asks the model for a fixed one-word answer.
const PingPrompt = "Responda apenas 'OK' se você está funcionando."

// Relayer delivers text into a conversation on the messaging platform.
type Relayer interface {
	Name() string
	Send(ctx context.Context, conversationID, text string) error
	Ping(ctx context.Context) error
}

// Category classifies completion failures.
type Category string

const (
	CategoryQuota          Category = "quota"
	CategoryAuthentication Category = "authentication"
	CategoryNetwork        Category = "network"
	CategoryUnknown        Category = "unknown"
)

var (
	// ErrEmptyCompletion is returned when the service answers without text.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrCircuitOpen is returned while a gateway's circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// CompletionError is a failed completion call.
type CompletionError struct {
	Gateway  string
	Category Category
	Status   int
	Err      error
}

func (e *CompletionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Gateway, e.Category, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Gateway, e.Category, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// Reply renders the error as the reserved "Erro:" text that callers log in
// place of a generated reply.
func (e *CompletionError) Reply() string {
	name := DisplayName(e.Gateway)
	if errors.Is(e.Err, ErrEmptyCompletion) {
		return "Erro: Resposta vazia do " + name
	}
	switch e.Category {
	case CategoryQuota:
		return "Erro: Limite de quota do " + name + " excedido"
	case CategoryAuthentication:
		return "Erro: Configuração inválida do " + name
	case CategoryNetwork:
		return "Erro: Problema de conectividade com o " + name
	default:
		return fmt.Sprintf("Erro: Falha na API do %s: %v", name, e.Err)
	}
}

// DisplayName is the gateway name shown in user-facing messages.
func DisplayName(gateway string) string {
	switch gateway {
	case "gemini":
		return "Gemini"
	case "openai":
		return "OpenAI"
	case "":
		return "serviço de IA"
	}
	return gateway
}

// ClassifyCompletion returns the failure category of err. Typed errors are
// trusted first; anything else is matched on its message.
func ClassifyCompletion(err error) Category {
	if err == nil {
		return ""
	}
	var ce *CompletionError
	if errors.As(err, &ce) && ce.Category != "" && ce.Category != CategoryUnknown {
		return ce.Category
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCircuitOpen) {
		return CategoryNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return CategoryNetwork
	}
	return classifyMessage(err.Error())
}

func classifyMessage(msg string) Category {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "quota"):
		return CategoryQuota
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "authentication"):
		return CategoryAuthentication
	case strings.Contains(msg, "network"), strings.Contains(msg, "timeout"):
		return CategoryNetwork
	}
	return CategoryUnknown
}

// AsCompletionError returns err as a *CompletionError with its category
// resolved by ClassifyCompletion.
func AsCompletionError(gateway string, err error) *CompletionError {
	if err == nil {
		return nil
	}
	out := &CompletionError{Gateway: gateway, Err: err}
	var ce *CompletionError
	if errors.As(err, &ce) {
		out.Gateway = ce.Gateway
		out.Status = ce.Status
		out.Err = ce.Err
	}
	out.Category = ClassifyCompletion(err)
	return out
}

// RelayKind classifies relay failures.
type RelayKind string

const (
	RelayUnauthorized     RelayKind = "unauthorized"
	RelayForbidden        RelayKind = "forbidden"
	RelayNotFound         RelayKind = "not_found"
	RelayTimeout          RelayKind = "timeout"
	RelayConnectionFailed RelayKind = "connection_failed"
	RelayHTTPError        RelayKind = "http_error"
	RelayUnknown          RelayKind = "unknown"
)

// RelayError is a failed delivery to the messaging platform.
type RelayError struct {
	Kind   RelayKind
	Status int
	Err    error
}

func (e *RelayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("relay %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("relay %s: %v", e.Kind, e.Err)
}

func (e *RelayError) Unwrap() error { return e.Err }

// RelayKindOf returns the kind of a relay failure.
func RelayKindOf(err error) RelayKind {
	if err == nil {
		return ""
	}
	var re *RelayError
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, ErrCircuitOpen) {
		return RelayConnectionFailed
	}
	return transportKind(err)
}

func transportKind(err error) RelayKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return RelayTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return RelayTimeout
		}
		return RelayConnectionFailed
	}
	return RelayUnknown
}

// BuildPrompt joins the system instruction with the event's context and
// question into a single user message.
func BuildPrompt(system, contextText, question string) string {
	user := "Contexto: " + contextText + "\n\nPergunta: " + question
	if system == "" {
		return user
	}
	return system + "\n\n" + user
}
