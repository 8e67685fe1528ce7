package persistence

import (
	"regexp"
	"testing"
	"time"
)

var sessionIDPattern = regexp.MustCompile(`^session_\d+_\d{4}$`)

func TestNewSessionIDFormat(t *testing.T) {
	t.Parallel()

	id := NewSessionID()
	if !sessionIDPattern.MatchString(id) {
		t.Fatalf("NewSessionID() = %q, want session_<epoch_ms>_<4 digits>", id)
	}
}

func TestStatsSnapshotEmpty(t *testing.T) {
	t.Parallel()

	s := NewStats()
	snap := s.Snapshot(0)

	if snap.MessagesReceived != 0 || snap.OrdersProcessed != 0 {
		t.Fatalf("empty Stats should report zero counters, got %+v", snap)
	}
	if snap.HasFinalBook {
		t.Fatal("empty Stats should not report a final book state")
	}
	if snap.AvgApplyNs != 0 || snap.P99ApplyNs != 0 {
		t.Fatalf("empty Stats should report zero latency stats, got %+v", snap)
	}
}

func TestStatsCountersAndThroughput(t *testing.T) {
	t.Parallel()

	s := NewStats()
	for i := 0; i < 10; i++ {
		s.RecordMessage()
	}
	for i := 0; i < 7; i++ {
		s.RecordOrderProcessed()
	}

	snap := s.Snapshot(time.Second)
	if snap.MessagesReceived != 10 {
		t.Fatalf("MessagesReceived = %d, want 10", snap.MessagesReceived)
	}
	if snap.OrdersProcessed != 7 {
		t.Fatalf("OrdersProcessed = %d, want 7", snap.OrdersProcessed)
	}
	if snap.ThroughputMsgPS != 10 {
		t.Fatalf("ThroughputMsgPS = %v, want 10 over a 1s window", snap.ThroughputMsgPS)
	}
}

func TestStatsApplyLatencyWithinReservoirCapacity(t *testing.T) {
	t.Parallel()

	s := NewStats()
	// Fewer samples than the reservoir capacity: every sample is kept, so
	// the mean and p99 are exact.
	for i := 1; i <= 100; i++ {
		s.RecordApplyLatency(float64(i))
	}

	snap := s.Snapshot(time.Second)
	wantAvg := 50.5 // mean of 1..100
	if snap.AvgApplyNs != wantAvg {
		t.Fatalf("AvgApplyNs = %v, want %v", snap.AvgApplyNs, wantAvg)
	}
	// p99 of [1..100] sorted: idx = ceil(0.99*100)-1 = 98 -> value 99.
	if snap.P99ApplyNs != 99 {
		t.Fatalf("P99ApplyNs = %v, want 99", snap.P99ApplyNs)
	}
}

func TestStatsFinalBookState(t *testing.T) {
	t.Parallel()

	s := NewStats()
	s.SetFinalBookState(3, 2, 1, 100.5, 101.0, 0.5)

	snap := s.Snapshot(0)
	if !snap.HasFinalBook {
		t.Fatal("expected HasFinalBook after SetFinalBookState")
	}
	if snap.FinalTotalOrders != 3 || snap.FinalBidLevels != 2 || snap.FinalAskLevels != 1 {
		t.Fatalf("final book counts = %+v", snap)
	}
	if snap.FinalBestBid != 100.5 || snap.FinalBestAsk != 101.0 || snap.FinalSpread != 0.5 {
		t.Fatalf("final book prices = %+v", snap)
	}
}

func TestStatsReservoirSamplingBeyondCapacity(t *testing.T) {
	t.Parallel()

	s := NewStats()
	for i := 1; i <= reservoirSize*2; i++ {
		s.RecordApplyLatency(float64(i))
	}

	s.mu.Lock()
	n := len(s.reservoir)
	s.mu.Unlock()
	if n != reservoirSize {
		t.Fatalf("reservoir length = %d, want capped at %d", n, reservoirSize)
	}

	// The mean is exact regardless of reservoir sampling, since it is
	// computed from a running sum, not the sample.
	snap := s.Snapshot(time.Second)
	total := reservoirSize * 2
	wantAvg := float64(total+1) / 2
	if snap.AvgApplyNs != wantAvg {
		t.Fatalf("AvgApplyNs = %v, want %v", snap.AvgApplyNs, wantAvg)
	}
}
