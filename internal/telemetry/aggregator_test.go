package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestAggregator_EmptySnapshot(t *testing.T) {
	a := NewAggregator(0, nil)
	s := a.Snapshot()
	if s.TotalRequests != 0 || s.SuccessRate != 0 {
		t.Errorf("expected zero snapshot, got %+v", s)
	}
	if s.Completion.Count != 0 || s.Completion.Avg != 0 {
		t.Errorf("expected empty completion stats, got %+v", s.Completion)
	}
}

func TestAggregator_LatencyStats(t *testing.T) {
	a := NewAggregator(10, nil)
	a.Record(KindCompletion, 1*time.Second)
	a.Record(KindCompletion, 3*time.Second)
	a.Record(KindRelay, 500*time.Millisecond)

	s := a.Snapshot()
	if s.Completion.Count != 2 || s.Completion.Avg != 2 || s.Completion.Min != 1 || s.Completion.Max != 3 {
		t.Errorf("unexpected completion stats: %+v", s.Completion)
	}
	if s.Relay.Count != 1 || s.Relay.Avg != 0.5 {
		t.Errorf("unexpected relay stats: %+v", s.Relay)
	}
}

func TestAggregator_WindowEvictsOldest(t *testing.T) {
	a := NewAggregator(DefaultWindowSize, nil)
	// 100 slow samples followed by 100 fast ones: only the fast ones remain.
	for i := 0; i < DefaultWindowSize; i++ {
		a.Record(KindRelay, 10*time.Second)
	}
	for i := 0; i < DefaultWindowSize; i++ {
		a.Record(KindRelay, time.Second)
	}

	s := a.Snapshot()
	if s.Relay.Count != DefaultWindowSize {
		t.Errorf("expected %d samples, got %d", DefaultWindowSize, s.Relay.Count)
	}
	if s.Relay.Max != 1 {
		t.Errorf("expected old samples evicted, max=%v", s.Relay.Max)
	}

	a.Record(KindRelay, 2*time.Second)
	if s := a.Snapshot(); s.Relay.Max != 2 || s.Relay.Count != DefaultWindowSize {
		t.Errorf("unexpected stats after wrap: %+v", s.Relay)
	}
}

func TestAggregator_Counters(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	a := NewAggregator(DefaultWindowSize, m)

	for i := 0; i < 4; i++ {
		a.IncTotal()
	}
	a.IncSuccess()
	a.IncSuccess()
	a.IncSuccess()
	a.IncFailure("network")
	a.RecordRelay(true, "")
	a.RecordRelay(false, "timeout")

	s := a.Snapshot()
	if s.TotalRequests != 4 || s.SuccessfulRequests != 3 || s.FailedRequests != 1 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if s.SuccessRate != 75 {
		t.Errorf("expected success rate 75, got %v", s.SuccessRate)
	}
	if s.FailuresByCategory["network"] != 1 {
		t.Errorf("expected network failure counted, got %v", s.FailuresByCategory)
	}
	if s.RelaySent != 1 || s.RelayFailed != 1 || s.RelayFailuresBy["timeout"] != 1 {
		t.Errorf("unexpected relay counters: %+v", s)
	}

	if v := counterValue(t, m.TaskTotal, "completion", "failure", "network"); v != 1 {
		t.Errorf("expected prometheus mirror, got %v", v)
	}
	if v := counterValue(t, m.TaskTotal, "relay", "failure", "timeout"); v != 1 {
		t.Errorf("expected prometheus relay mirror, got %v", v)
	}

	// Snapshots are copies.
	s.FailuresByCategory["network"] = 99
	if a.Snapshot().FailuresByCategory["network"] != 1 {
		t.Error("snapshot map must not alias aggregator state")
	}
}

func TestAggregator_Concurrent(t *testing.T) {
	a := NewAggregator(DefaultWindowSize, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				a.IncTotal()
				a.Record(KindCompletion, time.Millisecond)
				a.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := a.Snapshot()
	if s.TotalRequests != 1000 {
		t.Errorf("expected 1000, got %d", s.TotalRequests)
	}
	if s.Completion.Count != DefaultWindowSize {
		t.Errorf("expected full window, got %d", s.Completion.Count)
	}
}
