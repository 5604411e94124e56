package gateway

import (
	"context"
	"time"

	"github.com/Mathfer/Bot-gemini-middleware/internal/scheduler"
)

const sweepSpec = "@every 1m"

// Jobs returns the periodic housekeeping: file maintenance on the configured
// schedule and a sweep of idle rate-limit identities.
func (h *Handler) Jobs() []scheduler.Job {
	jobs := []scheduler.Job{{
		Name: "maintenance",
		Spec: h.cfg().Maintenance.Schedule,
		Run: func(context.Context) error {
			cfg := h.cfg()
			report := h.store.Maintain(MaintenancePolicy(cfg.Maintenance), cfg.Telemetry.LogFile)
			h.logger.Info("maintenance run",
				"trigger", "schedule",
				"compacted", len(report.Compacted),
				"removed_backups", len(report.RemovedBackups),
				"removed_temp", len(report.RemovedTemp),
				"errors", len(report.Errors),
			)
			return nil
		},
	}}
	if h.window != nil {
		jobs = append(jobs, scheduler.Job{
			Name: "ratelimit-sweep",
			Spec: sweepSpec,
			Run: func(context.Context) error {
				if n := h.window.Sweep(time.Now()); n > 0 {
					h.logger.Debug("swept idle clients", "removed", n)
				}
				return nil
			},
		})
	}
	return jobs
}
