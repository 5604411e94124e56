package gateway

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/Mathfer/Bot-gemini-middleware/internal/config"
	"github.com/Mathfer/Bot-gemini-middleware/internal/history"
	"github.com/Mathfer/Bot-gemini-middleware/internal/httputil"
	"github.com/Mathfer/Bot-gemini-middleware/internal/router/adapters"
)

const (
	defaultLogLines = 50
	maxLogLines     = 1000
	minTokenLength  = 10
)

// Health handles GET /health. It makes no outbound calls.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"message":        "Aplicação está funcionando",
	})
}

// HealthFull handles GET /health/full: configuration, breaker and
// filesystem checks, still without outbound calls.
func (h *Handler) HealthFull(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfg()
	status := "healthy"
	services := map[string]string{}

	check := func(name, secret string) {
		s := credentialStatus(secret)
		if s == "invalid_token" {
			status = "degraded"
		}
		services[name] = s
	}
	check(cfg.Completion.Type, cfg.Completion.APIKey)
	check("freshchat", cfg.Relay.APIToken)

	services["filesystem"] = "healthy"
	for _, p := range []string{cfg.Telemetry.LogFile, cfg.History.Dir} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			services["filesystem"] = "error: " + p + " not found"
			status = "degraded"
			break
		}
	}

	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	}
	if h.health != nil {
		for _, gw := range h.gateways() {
			if !h.health.IsAvailable(gw) {
				body["status"] = "degraded"
				services[gw] = "circuit_open"
			}
		}
		body["circuit_breakers"] = h.health.States()
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

// gateways lists the configured outbound gateways by breaker name.
func (h *Handler) gateways() []string {
	var out []string
	if h.completer != nil {
		out = append(out, h.completer.Name())
	}
	if h.relayer != nil {
		out = append(out, h.relayer.Name())
	}
	return out
}

func credentialStatus(secret string) string {
	switch {
	case secret == "":
		return "not_configured"
	case len(secret) <= minTokenLength:
		return "invalid_token"
	}
	return "configured"
}

// ConfigInfo handles GET /config. Secrets are reported only as present or not.
func (h *Handler) ConfigInfo(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfg()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"completion_gateway":    cfg.Completion.Type,
		"completion_configured": cfg.Completion.APIKey != "",
		"completion_model":      cfg.Completion.Model,
		"relay_gateway":         "freshchat",
		"relay_configured":      cfg.Relay.APIToken != "",
		"relay_base_url":        cfg.Relay.BaseURL,
		"rate_limit":            cfg.RateLimit.RequestsPerMinute,
		"rate_limit_backend":    cfg.RateLimit.Backend,
		"dispatch_workers":      cfg.Dispatch.Workers,
	})
}

// MetricsSnapshot handles GET /metrics with the aggregator's JSON snapshot.
// Prometheus exposition lives on the metrics port.
func (h *Handler) MetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.agg.Snapshot())
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	st, err := h.store.Stats()
	if err != nil {
		h.logger.Error("failed to collect store stats", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Erro ao obter estatísticas")
		return
	}
	body := map[string]any{
		"rate_limit": h.cfg().RateLimit.RequestsPerMinute,
		"files":      st,
		"dispatch":   h.pool.Stats(),
	}
	if h.window != nil {
		body["active_clients"] = h.window.Active()
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

// logFiles maps the names accepted by /logs to configured paths.
func logFiles(cfg *config.Config) map[string]string {
	return map[string]string{
		"app":     cfg.Telemetry.LogFile,
		"journal": cfg.History.JournalPath,
		"payload": cfg.History.PayloadPath,
	}
}

// Logs handles GET /logs?file=app|journal|payload&lines=N.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	name := r.URL.Query().Get("file")
	if name == "" {
		name = "app"
	}
	path := logFiles(h.cfg())[name]
	if path == "" {
		httputil.WriteBadRequestError(w, reqID, "Arquivo de log não permitido")
		return
	}

	lines := defaultLogLines
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.WriteBadRequestError(w, reqID, "lines deve ser um inteiro positivo")
			return
		}
		lines = min(n, maxLogLines)
	}

	tail, total, err := history.Tail(path, lines)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			httputil.WriteNotFoundError(w, reqID, "Arquivo de log não encontrado")
			return
		}
		h.logger.Error("failed to read log", "request_id", reqID, "file", name, "error", err)
		httputil.WriteInternalError(w, reqID, "Erro ao consultar logs")
		return
	}
	if tail == nil {
		tail = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"file":           name,
		"total_lines":    total,
		"returned_lines": len(tail),
		"lines":          tail,
	})
}

// MaintenancePolicy builds the history maintenance policy from config.
func MaintenancePolicy(c config.MaintenanceConfig) history.MaintenancePolicy {
	p := history.DefaultMaintenancePolicy()
	if c.LogMaxAge > 0 {
		p.LogMaxAge = c.LogMaxAge
	}
	if c.KeepLines > 0 {
		p.KeepLines = c.KeepLines
	}
	if c.BackupMaxAge > 0 {
		p.BackupMaxAge = c.BackupMaxAge
	}
	if c.TempMaxAge > 0 {
		p.TempMaxAge = c.TempMaxAge
	}
	return p
}

// Cleanup handles POST /cleanup by running maintenance now.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	cfg := h.cfg()
	report := h.store.Maintain(MaintenancePolicy(cfg.Maintenance), cfg.Telemetry.LogFile)
	h.logger.Info("maintenance run",
		"request_id", reqID,
		"trigger", "http",
		"compacted", len(report.Compacted),
		"removed_backups", len(report.RemovedBackups),
		"removed_temp", len(report.RemovedTemp),
		"errors", len(report.Errors),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Limpeza concluída com sucesso",
		"report":  report,
	})
}

// TestPayload handles POST /test/payload: validation only, nothing is
// persisted or dispatched.
func (h *Handler) TestPayload(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	ev, _, ok := h.decode(w, r, reqID, "test_payload")
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"message":      "Payload processado com sucesso",
		"event":        ev,
		"extractedIds": ev.ExtractIDs(),
		"replyTarget":  ev.ReplyTarget(),
	})
}

// TestRelay handles GET /test/relay. A 401 or 403 from the platform still
// proves it is reachable and is reported as a warning.
func (h *Handler) TestRelay(w http.ResponseWriter, r *http.Request) {
	if h.relayer == nil {
		httputil.WriteServiceUnavailableError(w, w.Header().Get("X-Request-ID"), "Token do Freshchat não configurado")
		return
	}
	res := h.checkRelay(r.Context())
	httputil.WriteJSON(w, res.httpStatus(), res)
}

// TestCompletion handles POST /test/completion with a minimal fixed prompt.
func (h *Handler) TestCompletion(w http.ResponseWriter, r *http.Request) {
	if h.completer == nil {
		httputil.WriteServiceUnavailableError(w, w.Header().Get("X-Request-ID"), "Serviço de IA não configurado")
		return
	}
	res := h.checkCompletion(r.Context())
	httputil.WriteJSON(w, res.httpStatus(), res)
}

// TestIntegration handles POST /test/integration: both gateways are checked
// concurrently and the overall status is success, partial or error.
func (h *Handler) TestIntegration(w http.ResponseWriter, r *http.Request) {
	var completion, relay checkResult
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		completion = h.checkCompletion(ctx)
		return nil
	})
	g.Go(func() error {
		relay = h.checkRelay(ctx)
		return nil
	})
	g.Wait()

	overall := "error"
	switch completionOK, relayOK := completion.Status != "error", relay.Status != "error"; {
	case completionOK && relayOK:
		overall = "success"
	case completionOK || relayOK:
		overall = "partial"
	}
	h.logger.Info("integration check",
		"request_id", w.Header().Get("X-Request-ID"),
		"completion", completion.Status,
		"relay", relay.Status,
		"overall", overall,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"completion": completion,
		"relay":      relay,
		"overall":    overall,
	})
}

type checkResult struct {
	Gateway    string `json:"gateway"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Kind       string `json:"kind,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (c checkResult) httpStatus() int {
	if c.Status == "error" {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

func (h *Handler) checkRelay(ctx context.Context) checkResult {
	if h.relayer == nil {
		return checkResult{Gateway: "freshchat", Status: "error", Message: "Freshchat não configurado"}
	}
	timeout := h.cfg().Relay.CheckTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := h.relayer.Ping(ctx)
	res := checkResult{Gateway: h.relayer.Name(), DurationMs: time.Since(start).Milliseconds()}
	if err == nil {
		res.Status, res.Message = "success", "Conexão com Freshchat funcionando"
		return res
	}

	kind := adapters.RelayKindOf(err)
	res.Kind, res.Error = string(kind), err.Error()
	var re *adapters.RelayError
	if errors.As(err, &re) {
		res.StatusCode = re.Status
	}
	switch kind {
	case adapters.RelayUnauthorized, adapters.RelayForbidden:
		res.Status, res.Message = "warning", "Freshchat acessível, mas o token foi recusado"
	default:
		res.Status, res.Message = "error", "Erro ao conectar com Freshchat"
	}
	return res
}

func (h *Handler) checkCompletion(ctx context.Context) checkResult {
	if h.completer == nil {
		return checkResult{Gateway: h.cfg().Completion.Type, Status: "error", Message: "Serviço de IA não configurado"}
	}
	timeout := h.cfg().Completion.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := adapters.DisplayName(h.completer.Name())
	start := time.Now()
	text, err := h.completer.Ping(ctx)
	res := checkResult{Gateway: h.completer.Name(), DurationMs: time.Since(start).Milliseconds()}
	switch {
	case err != nil:
		ce := adapters.AsCompletionError(h.completer.Name(), err)
		res.Status, res.Message = "error", "Erro na API do "+name
		res.Kind, res.StatusCode, res.Error = string(ce.Category), ce.Status, err.Error()
	case strings.Contains(strings.ToLower(text), "ok"):
		res.Status, res.Message = "success", "Conexão com "+name+" funcionando"
	default:
		res.Status, res.Message = "warning", "Conexão com "+name+" funcionando, mas resposta inesperada"
	}
	return res
}

// History handles GET /history/{requester} with the stored payloads for one
// requester, oldest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	requester := chi.URLParam(r, "requester")
	entries, err := h.store.History(requester)
	if err != nil {
		h.logger.Error("failed to read history", "request_id", reqID, "requester", requester, "error", err)
		httputil.WriteInternalError(w, reqID, "Erro ao consultar histórico")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"requester": requester,
		"count":     len(entries),
		"entries":   entries,
	})
}
