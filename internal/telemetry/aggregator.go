package telemetry

import (
	"sync"
	"time"
)

// Kind identifies which outbound gateway a latency sample belongs to.
type Kind string

const (
	KindCompletion Kind = "completion"
	KindRelay      Kind = "relay"
)

// DefaultWindowSize is the number of latency samples kept per kind.
const DefaultWindowSize = 100

// latencyWindow is a fixed-size ring of the most recent samples.
type latencyWindow struct {
	samples []time.Duration
	next    int
	full    bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) add(d time.Duration) {
	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *latencyWindow) stats() LatencyStats {
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	if n == 0 {
		return LatencyStats{}
	}
	var total time.Duration
	lo, hi := w.samples[0], w.samples[0]
	for _, d := range w.samples[:n] {
		total += d
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	return LatencyStats{
		Count: n,
		Avg:   (total / time.Duration(n)).Seconds(),
		Min:   lo.Seconds(),
		Max:   hi.Seconds(),
	}
}

// LatencyStats summarizes one latency window, in seconds.
type LatencyStats struct {
	Count int     `json:"total_requests"`
	Avg   float64 `json:"avg_response_time"`
	Min   float64 `json:"min_response_time"`
	Max   float64 `json:"max_response_time"`
}

// Snapshot is a point-in-time copy of the aggregator state.
type Snapshot struct {
	TotalRequests      uint64            `json:"total_requests"`
	SuccessfulRequests uint64            `json:"successful_requests"`
	FailedRequests     uint64            `json:"failed_requests"`
	SuccessRate        float64           `json:"success_rate"`
	FailuresByCategory map[string]uint64 `json:"failures_by_category"`
	RelaySent          uint64            `json:"relay_sent"`
	RelayFailed        uint64            `json:"relay_failed"`
	RelayFailuresBy    map[string]uint64 `json:"relay_failures_by_kind"`
	Completion         LatencyStats      `json:"completion"`
	Relay              LatencyStats      `json:"relay"`
}

// Aggregator keeps in-process counters and rolling latency windows for
// the inspection endpoints. Every update is mirrored into Prometheus when
// metrics are set. State resets on restart.
type Aggregator struct {
	mu               sync.Mutex
	windows          map[Kind]*latencyWindow
	total            uint64
	success          uint64
	failed           uint64
	failedByCategory map[string]uint64
	relaySent        uint64
	relayFailed      uint64
	relayFailedBy    map[string]uint64

	metrics *Metrics
}

// NewAggregator creates an aggregator keeping size samples per kind.
// metrics may be nil.
func NewAggregator(size int, metrics *Metrics) *Aggregator {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Aggregator{
		windows: map[Kind]*latencyWindow{
			KindCompletion: newLatencyWindow(size),
			KindRelay:      newLatencyWindow(size),
		},
		failedByCategory: make(map[string]uint64),
		relayFailedBy:    make(map[string]uint64),
		metrics:          metrics,
	}
}

// Record adds a latency sample for kind.
func (a *Aggregator) Record(kind Kind, d time.Duration) {
	a.mu.Lock()
	if w, ok := a.windows[kind]; ok {
		w.add(d)
	}
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.RecordGatewayLatency(string(kind), float64(d.Milliseconds()))
	}
}

// IncTotal counts an accepted inbound event.
func (a *Aggregator) IncTotal() {
	a.mu.Lock()
	a.total++
	a.mu.Unlock()
}

// IncSuccess counts a completion that produced a reply.
func (a *Aggregator) IncSuccess() {
	a.mu.Lock()
	a.success++
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.RecordTask(string(KindCompletion), "success", "")
	}
}

// IncFailure counts a completion that failed with the given category.
func (a *Aggregator) IncFailure(category string) {
	a.mu.Lock()
	a.failed++
	a.failedByCategory[category]++
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.RecordTask(string(KindCompletion), "failure", category)
	}
}

// RecordRelay counts a relay outcome. kind is the failure kind, ignored on success.
func (a *Aggregator) RecordRelay(ok bool, kind string) {
	a.mu.Lock()
	if ok {
		a.relaySent++
	} else {
		a.relayFailed++
		a.relayFailedBy[kind]++
	}
	a.mu.Unlock()

	if a.metrics != nil {
		if ok {
			a.metrics.RecordTask(string(KindRelay), "success", "")
		} else {
			a.metrics.RecordTask(string(KindRelay), "failure", kind)
		}
	}
}

// Snapshot returns a consistent copy of all counters and windows.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		TotalRequests:      a.total,
		SuccessfulRequests: a.success,
		FailedRequests:     a.failed,
		FailuresByCategory: make(map[string]uint64, len(a.failedByCategory)),
		RelaySent:          a.relaySent,
		RelayFailed:        a.relayFailed,
		RelayFailuresBy:    make(map[string]uint64, len(a.relayFailedBy)),
		Completion:         a.windows[KindCompletion].stats(),
		Relay:              a.windows[KindRelay].stats(),
	}
	if a.total > 0 {
		s.SuccessRate = float64(a.success) / float64(a.total) * 100
	}
	for k, v := range a.failedByCategory {
		s.FailuresByCategory[k] = v
	}
	for k, v := range a.relayFailedBy {
		s.RelayFailuresBy[k] = v
	}
	return s
}
