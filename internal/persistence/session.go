package persistence

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"mbo-ingest/pkg/types"
)

// reservoirSize bounds the p99 apply-latency sample.
const reservoirSize = 8192

// NewSessionID produces an identifier of the form
// session_<epoch_ms>_<random 4 digits>. Collisions within a process are
// possible but tolerated — the persistence schema's PK would surface one
// as a row-level insert failure, which is an acceptable outcome for a
// one-in-ten-thousand coincidence.
func NewSessionID() string {
	return fmt.Sprintf("session_%d_%04d", time.Now().UnixMilli(), rand.Intn(10000))
}

// Stats accumulates the counters and latency samples for one ingest
// session. It is written from the ingest goroutine via RecordMessage/
// RecordOrderProcessed/RecordApplyLatency and read by the writer goroutine
// only after the ingest goroutine has signalled completion, so the
// counters need no more than atomic/mutex protection against that single
// cross-goroutine handoff.
type Stats struct {
	messagesReceived atomic.Uint64
	ordersProcessed  atomic.Uint64

	mu        sync.Mutex
	sumApplyNs float64
	nApply     uint64
	reservoir  []float64

	finalMu        sync.Mutex
	hasFinalBook   bool
	finalOrders    int
	finalBidLevels int
	finalAskLevels int
	finalBestBid   float64
	finalBestAsk   float64
	finalSpread    float64
}

// NewStats returns an empty Stats collector.
func NewStats() *Stats {
	return &Stats{reservoir: make([]float64, 0, reservoirSize)}
}

// RecordMessage counts one wire record decoded, regardless of whether it
// was successfully applied.
func (s *Stats) RecordMessage() {
	s.messagesReceived.Add(1)
}

// RecordOrderProcessed counts one non-TOB Add event applied to the book.
func (s *Stats) RecordOrderProcessed() {
	s.ordersProcessed.Add(1)
}

// RecordApplyLatency records one event's apply-only latency in
// nanoseconds, folding it into the running mean and the bounded
// reservoir sample via Algorithm R.
func (s *Stats) RecordApplyLatency(ns float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sumApplyNs += ns
	s.nApply++

	if uint64(len(s.reservoir)) < reservoirSize {
		s.reservoir = append(s.reservoir, ns)
		return
	}
	j := rand.Int63n(int64(s.nApply))
	if j < reservoirSize {
		s.reservoir[j] = ns
	}
}

// SetFinalBookState records the book's state at session completion, used
// only when the book is non-empty.
func (s *Stats) SetFinalBookState(totalOrders, bidLevels, askLevels int, bestBid, bestAsk, spread float64) {
	s.finalMu.Lock()
	defer s.finalMu.Unlock()
	s.hasFinalBook = true
	s.finalOrders = totalOrders
	s.finalBidLevels = bidLevels
	s.finalAskLevels = askLevels
	s.finalBestBid = bestBid
	s.finalBestAsk = bestAsk
	s.finalSpread = spread
}

// p99Locked computes the 99th percentile apply latency over the reservoir
// sample via a full sort on a bounded-size copy — 8192 elements is cheap
// to sort outright, standing in for a partial-selection algorithm.
func (s *Stats) p99Locked() float64 {
	n := len(s.reservoir)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, s.reservoir)
	sort.Float64s(sorted)
	idx := int(math.Ceil(0.99*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Snapshot computes the SessionStats view for the elapsed wall-clock
// duration of the processing phase (used for throughput).
func (s *Stats) Snapshot(elapsed time.Duration) types.SessionStats {
	messages := s.messagesReceived.Load()
	orders := s.ordersProcessed.Load()

	s.mu.Lock()
	var avg float64
	if s.nApply > 0 {
		avg = s.sumApplyNs / float64(s.nApply)
	}
	p99 := s.p99Locked()
	s.mu.Unlock()

	var throughput float64
	if elapsed > 0 {
		throughput = float64(messages) / elapsed.Seconds()
	}

	stats := types.SessionStats{
		MessagesReceived: messages,
		OrdersProcessed:  orders,
		ThroughputMsgPS:  throughput,
		AvgApplyNs:       avg,
		P99ApplyNs:       p99,
	}

	s.finalMu.Lock()
	if s.hasFinalBook {
		stats.HasFinalBook = true
		stats.FinalTotalOrders = s.finalOrders
		stats.FinalBidLevels = s.finalBidLevels
		stats.FinalAskLevels = s.finalAskLevels
		stats.FinalBestBid = s.finalBestBid
		stats.FinalBestAsk = s.finalBestAsk
		stats.FinalSpread = s.finalSpread
	}
	s.finalMu.Unlock()

	return stats
}
