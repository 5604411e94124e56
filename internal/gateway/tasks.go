package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Mathfer/Bot-gemini-middleware/internal/dispatch"
	"github.com/Mathfer/Bot-gemini-middleware/internal/router/adapters"
	"github.com/Mathfer/Bot-gemini-middleware/internal/telemetry"
	"github.com/Mathfer/Bot-gemini-middleware/internal/types"
)

const truncationMarker = "..."

var (
	errNoCompleter = errors.New("completion gateway not configured")
	errNoQuestion  = errors.New("no question provided")
	errNoRelayer   = errors.New("relay gateway not configured")
	errNoTarget    = errors.New("conversation id is required")
	errNoText      = errors.New("message text is required")
)

// TaskOutcomes returns a dispatch.Pool OnDone hook. Tasks record their own
// success and failure; a panic skips that, so it is counted here.
func TaskOutcomes(m *telemetry.Metrics) func(kind string, err error) {
	return func(kind string, err error) {
		var pe *dispatch.PanicError
		if m != nil && errors.As(err, &pe) {
			m.RecordTask(kind, "panic", "")
		}
	}
}

// completionTask asks the completion gateway for a reply to ev. The reply
// is only logged; delivery happens through the outbound webhook.
func (h *Handler) completionTask(reqID string, ev types.Event) dispatch.Task {
	cfg := h.cfg().Completion
	return dispatch.Task{
		Kind:    string(telemetry.KindCompletion),
		Timeout: cfg.Timeout,
		Run: func(ctx context.Context) error {
			log := h.logger.With("request_id", reqID, "task", "completion", "requester", ev.RequesterID)

			switch {
			case h.completer == nil:
				return h.completionFailed(log, "", &adapters.CompletionError{Category: adapters.CategoryUnknown, Err: errNoCompleter})
			case ev.Question == "":
				return h.completionFailed(log, h.completer.Name(), &adapters.CompletionError{Gateway: h.completer.Name(), Category: adapters.CategoryUnknown, Err: errNoQuestion})
			}

			start := time.Now()
			reply, err := h.completer.Complete(ctx, ev.Context, ev.Question)
			h.agg.Record(telemetry.KindCompletion, time.Since(start))
			if err != nil {
				return h.completionFailed(log, h.completer.Name(), err)
			}

			reply, truncated := truncateRunes(reply, cfg.MaxReplyChars)
			h.agg.IncSuccess()
			log.Info("completion succeeded",
				"gateway", h.completer.Name(),
				"chars", len([]rune(reply)),
				"truncated", truncated,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		},
	}
}

func (h *Handler) completionFailed(log *slog.Logger, gateway string, err error) error {
	ce := adapters.AsCompletionError(gateway, err)
	h.agg.IncFailure(string(ce.Category))
	log.Error("completion failed",
		"gateway", gateway,
		"category", string(ce.Category),
		"status", ce.Status,
		"reply", ce.Reply(),
		"error", err,
	)
	return ce
}

// relayTask delivers text into conversationID.
func (h *Handler) relayTask(reqID, conversationID, text string) dispatch.Task {
	return dispatch.Task{
		Kind:    string(telemetry.KindRelay),
		Timeout: h.cfg().Relay.Timeout,
		Run: func(ctx context.Context) error {
			log := h.logger.With("request_id", reqID, "task", "relay", "conversation_id", conversationID)

			var pre error
			switch {
			case h.relayer == nil:
				pre = errNoRelayer
			case conversationID == "":
				pre = errNoTarget
			case text == "":
				pre = errNoText
			}
			if pre != nil {
				h.agg.RecordRelay(false, string(adapters.RelayUnknown))
				log.Error("relay skipped", "error", pre)
				return &adapters.RelayError{Kind: adapters.RelayUnknown, Err: pre}
			}

			start := time.Now()
			err := h.relayer.Send(ctx, conversationID, text)
			h.agg.Record(telemetry.KindRelay, time.Since(start))
			if err != nil {
				kind := adapters.RelayKindOf(err)
				h.agg.RecordRelay(false, string(kind))
				log.Error("relay failed", "gateway", h.relayer.Name(), "kind", string(kind), "error", err)
				return err
			}

			h.agg.RecordRelay(true, "")
			log.Info("relay delivered", "gateway", h.relayer.Name(), "duration_ms", time.Since(start).Milliseconds())
			return nil
		},
	}
}

// truncateRunes cuts s to max runes plus the truncation marker.
func truncateRunes(s string, max int) (string, bool) {
	if max <= 0 {
		return s, false
	}
	r := []rune(s)
	if len(r) <= max {
		return s, false
	}
	return string(r[:max]) + truncationMarker, true
}
