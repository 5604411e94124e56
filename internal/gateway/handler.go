package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Mathfer/Bot-gemini-middleware/internal/auth"
	"github.com/Mathfer/Bot-gemini-middleware/internal/config"
	"github.com/Mathfer/Bot-gemini-middleware/internal/dispatch"
	"github.com/Mathfer/Bot-gemini-middleware/internal/filter"
	"github.com/Mathfer/Bot-gemini-middleware/internal/filter/injection"
	"github.com/Mathfer/Bot-gemini-middleware/internal/filter/secrets"
	"github.com/Mathfer/Bot-gemini-middleware/internal/history"
	"github.com/Mathfer/Bot-gemini-middleware/internal/httputil"
	"github.com/Mathfer/Bot-gemini-middleware/internal/ratelimit"
	"github.com/Mathfer/Bot-gemini-middleware/internal/router"
	"github.com/Mathfer/Bot-gemini-middleware/internal/router/adapters"
	"github.com/Mathfer/Bot-gemini-middleware/internal/telemetry"
	"github.com/Mathfer/Bot-gemini-middleware/internal/types"
)

const (
	inboundAccepted  = "Sua solicitação está sendo analisada. Aguarde a resposta."
	outboundAccepted = "Mensagem enviada para processamento."
	internalError    = "Erro interno do servidor"
)

// Deps are the collaborators a Handler needs. Completer, Relayer, Health,
// Window and Metrics may be nil.
type Deps struct {
	Config    func() *config.Config
	Validator *filter.Validator
	Scanner   *secrets.Scanner
	Injection *injection.Scanner
	Store     *history.Store
	Pool      *dispatch.Pool
	Agg       *telemetry.Aggregator
	Metrics   *telemetry.Metrics
	Completer adapters.Completer
	Relayer   adapters.Relayer
	Health    *router.HealthTracker
	Window    *ratelimit.Window
	Logger    *slog.Logger
}

// Handler holds dependencies for the webhook and inspection handlers.
type Handler struct {
	cfg       func() *config.Config
	validator *filter.Validator
	scanner   *secrets.Scanner
	injection *injection.Scanner
	store     *history.Store
	pool      *dispatch.Pool
	agg       *telemetry.Aggregator
	metrics   *telemetry.Metrics
	completer adapters.Completer
	relayer   adapters.Relayer
	health    *router.HealthTracker
	window    *ratelimit.Window
	logger    *slog.Logger
	startedAt time.Time
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:       d.Config,
		validator: d.Validator,
		scanner:   d.Scanner,
		injection: d.Injection,
		store:     d.Store,
		pool:      d.Pool,
		agg:       d.Agg,
		metrics:   d.Metrics,
		completer: d.Completer,
		relayer:   d.Relayer,
		health:    d.Health,
		window:    d.Window,
		logger:    logger,
		startedAt: time.Now(),
	}
}

type inboundResponse struct {
	Message        string   `json:"message"`
	ExtractedIDs   []string `json:"extractedIds"`
	Context        string   `json:"context"`
	Question       string   `json:"question"`
	UserID         string   `json:"userId"`
	ConversationID string   `json:"conversationId"`
	RequesterID    string   `json:"requesterId"`
}

// Inbound handles PUT /webhook/inbound: validate, persist, then schedule a
// completion for the event.
func (h *Handler) Inbound(w http.ResponseWriter, r *http.Request) {
	const route = "inbound"
	reqID := w.Header().Get("X-Request-ID")
	start := time.Now()

	ev, raw, ok := h.decode(w, r, reqID, route)
	if !ok {
		h.observe(route, http.StatusBadRequest, start)
		return
	}
	h.scan(reqID, ev)
	h.inspectPrompt(reqID, ev)

	receipt, err := h.store.Persist(r.Context(), ev, raw)
	if err != nil {
		h.logger.Error("failed to persist event", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, internalError)
		h.observe(route, http.StatusInternalServerError, start)
		return
	}
	h.agg.IncTotal()

	if err := h.pool.Submit(h.completionTask(reqID, ev)); err != nil {
		h.rejected(reqID, string(telemetry.KindCompletion), err)
		h.agg.IncFailure(string(adapters.CategoryUnknown))
	}

	h.logger.Info("inbound event accepted",
		"request_id", reqID,
		"caller", caller(r),
		"requester", ev.RequesterID,
		"conversation_id", ev.ConversationID,
		"extracted_ids", receipt.IDs,
		"history_file", receipt.HistoryFile,
		"degraded_sinks", receipt.Degraded,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, inboundResponse{
		Message:        inboundAccepted,
		ExtractedIDs:   receipt.IDs,
		Context:        ev.Context,
		Question:       ev.Question,
		UserID:         ev.PrimaryUserID(),
		ConversationID: ev.ConversationID,
		RequesterID:    ev.RequesterID,
	})
	h.observe(route, http.StatusOK, start)
}

// Outbound handles POST /webhook/outbound: validate and schedule delivery
// of the generated reply. Nothing is persisted.
func (h *Handler) Outbound(w http.ResponseWriter, r *http.Request) {
	const route = "outbound"
	reqID := w.Header().Get("X-Request-ID")
	start := time.Now()

	ev, _, ok := h.decode(w, r, reqID, route)
	if !ok {
		h.observe(route, http.StatusBadRequest, start)
		return
	}

	if ev.GeneratedReply == "" {
		h.logger.Warn("outbound event without reply", "request_id", reqID)
		httputil.WriteBadRequestError(w, reqID, "generatedReply é obrigatória")
		h.observe(route, http.StatusBadRequest, start)
		return
	}
	target := ev.ReplyTarget()
	if target == "" {
		h.logger.Warn("outbound event without target", "request_id", reqID)
		httputil.WriteBadRequestError(w, reqID, "conversationId, userId ou altUserId é obrigatório")
		h.observe(route, http.StatusBadRequest, start)
		return
	}
	h.scan(reqID, ev)

	if err := h.pool.Submit(h.relayTask(reqID, target, ev.GeneratedReply)); err != nil {
		h.rejected(reqID, string(telemetry.KindRelay), err)
		h.agg.RecordRelay(false, "dispatch_rejected")
	}

	h.logger.Info("outbound reply accepted", "request_id", reqID, "caller", caller(r), "conversation_id", target)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": outboundAccepted})
	h.observe(route, http.StatusOK, start)
}

// caller returns the fingerprint of the token the request authenticated
// with, or "" on routes without authentication.
func caller(r *http.Request) string {
	if info, ok := auth.AuthFromContext(r.Context()); ok {
		return info.Fingerprint
	}
	return ""
}

// decode reads and validates the body, writing the 400 response itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, reqID, route string) (types.Event, []byte, bool) {
	limit := h.cfg().Server.MaxBodyBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteValidationError(w, reqID, []filter.FieldError{{Field: "body", Message: "corpo excede " + strconv.FormatInt(limit, 10) + " bytes"}})
			return types.Event{}, nil, false
		}
		httputil.WriteBadRequestError(w, reqID, "Falha ao ler o corpo da requisição")
		return types.Event{}, nil, false
	}

	ev, raw, err := h.validator.Validate(body)
	if err != nil {
		var verr *filter.ValidationError
		if errors.As(err, &verr) {
			h.logger.Warn("invalid payload", "request_id", reqID, "route", route, "error", err)
			httputil.WriteValidationError(w, reqID, verr.Fields)
			return types.Event{}, nil, false
		}
		h.logger.Error("validation failed", "request_id", reqID, "route", route, "error", err)
		httputil.WriteBadRequestError(w, reqID, "Dados inválidos")
		return types.Event{}, nil, false
	}
	return ev, raw, true
}

// scan logs credentials found in free-text fields. It never blocks.
func (h *Handler) scan(reqID string, ev types.Event) {
	if h.scanner == nil {
		return
	}
	for _, d := range h.scanner.ScanEvent(ev) {
		h.logger.Warn("credential detected in event",
			"request_id", reqID,
			"field", d.Field,
			"pattern", d.PatternName,
		)
		if h.metrics != nil {
			h.metrics.RecordSecretDetection(d.PatternName)
		}
	}
}

// inspectPrompt logs prompt injection signals in the text sent to the
// completion gateway. It never blocks.
func (h *Handler) inspectPrompt(reqID string, ev types.Event) {
	if h.injection == nil {
		return
	}
	detections, score := h.injection.ScanEvent(ev)
	if len(detections) == 0 {
		return
	}
	rules := make([]string, 0, len(detections))
	for _, d := range detections {
		rules = append(rules, d.Field+":"+d.RuleName)
		if h.metrics != nil {
			h.metrics.RecordInjectionSignal(d.Category)
		}
	}
	h.logger.Warn("possible prompt injection",
		"request_id", reqID,
		"requester", ev.RequesterID,
		"rules", rules,
		"score", score,
	)
}

func (h *Handler) rejected(reqID, kind string, err error) {
	reason := "closed"
	if errors.Is(err, dispatch.ErrQueueFull) {
		reason = "queue_full"
	}
	h.logger.Error("background task rejected", "request_id", reqID, "kind", kind, "reason", reason, "error", err)
	if h.metrics != nil {
		h.metrics.RecordDispatchRejected(kind, reason)
	}
}

func (h *Handler) observe(route string, status int, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordRequest(route, strconv.Itoa(status), float64(time.Since(start).Milliseconds()))
	}
}
