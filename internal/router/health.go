package router

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Mathfer/Bot-gemini-middleware/internal/router/adapters"
	"github.com/Mathfer/Bot-gemini-middleware/internal/telemetry"
)

// HealthTracker manages circuit breakers for the outbound gateways.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker

	failureThreshold uint32
	openTimeout      time.Duration
	metrics          *telemetry.Metrics
}

// NewHealthTracker creates a tracker whose breakers open after
// failureThreshold consecutive counted failures and let a trial call through after
// openTimeout. metrics may be nil.
func NewHealthTracker(failureThreshold int, openTimeout time.Duration, metrics *telemetry.Metrics) *HealthTracker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	return &HealthTracker{
		breakers:         make(map[string]*gobreaker.CircuitBreaker),
		failureThreshold: uint32(failureThreshold),
		openTimeout:      openTimeout,
		metrics:          metrics,
	}
}

// GetBreaker returns (or lazily creates) the circuit breaker for a gateway.
func (ht *HealthTracker) GetBreaker(gateway string) *gobreaker.CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[gateway]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if cb, ok := ht.breakers[gateway]; ok {
		return cb
	}
	threshold := ht.failureThreshold
	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    gateway,
		Timeout: ht.openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !tripsBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "gateway", name, "from", from.String(), "to", to.String())
			if ht.metrics != nil {
				ht.metrics.SetBreakerState(name, stateValue(to))
			}
		},
	})
	ht.breakers[gateway] = cb
	if ht.metrics != nil {
		ht.metrics.SetBreakerState(gateway, 0)
	}
	return cb
}

// Execute runs fn through the gateway's breaker. While the breaker is open
// it returns adapters.ErrCircuitOpen without calling fn.
func (ht *HealthTracker) Execute(gateway string, fn func() error) error {
	_, err := ht.GetBreaker(gateway).Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return adapters.ErrCircuitOpen
	}
	return err
}

// IsAvailable reports whether calls to the gateway are currently attempted.
func (ht *HealthTracker) IsAvailable(gateway string) bool {
	return ht.GetBreaker(gateway).State() != gobreaker.StateOpen
}

// States returns the breaker state of every gateway seen so far.
func (ht *HealthTracker) States() map[string]string {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	out := make(map[string]string, len(ht.breakers))
	for name, cb := range ht.breakers {
		out[name] = cb.State().String()
	}
	return out
}

// tripsBreaker reports whether err says something about the gateway's
// reachability. Quota and credential problems, and requests for missing
// conversations, are answered quickly by a healthy service.
func tripsBreaker(err error) bool {
	var ce *adapters.CompletionError
	if errors.As(err, &ce) {
		switch adapters.ClassifyCompletion(err) {
		case adapters.CategoryQuota, adapters.CategoryAuthentication:
			return false
		}
		return true
	}
	var re *adapters.RelayError
	if errors.As(err, &re) {
		switch re.Kind {
		case adapters.RelayUnauthorized, adapters.RelayForbidden, adapters.RelayNotFound:
			return false
		}
		return true
	}
	return true
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	}
	return 0
}
