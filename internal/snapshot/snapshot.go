// Package snapshot builds point-in-time book views after each applied
// event, along with the per-event apply-latency measurement used for the
// session's throughput and percentile statistics.
package snapshot

import (
	"time"

	"mbo-ingest/internal/book"
	"mbo-ingest/pkg/types"
)

// Producer captures a types.BookSnapshot from a book.Book after every
// successfully applied event. It carries no state of its own beyond the
// configured symbol and level depth, so a single Producer can be reused
// across an entire session.
type Producer struct {
	symbol    string
	topLevels int
}

// New creates a Producer that reports up to topLevels levels per side.
// symbol is recorded verbatim; an empty symbol is persisted as "UNKNOWN".
func New(symbol string, topLevels int) *Producer {
	if symbol == "" {
		symbol = "UNKNOWN"
	}
	return &Producer{symbol: symbol, topLevels: topLevels}
}

// Build captures b's current state as a BookSnapshot timestamped at
// tsEvent (nanoseconds since epoch, taken from the triggering event).
func (p *Producer) Build(b *book.Book, tsEvent uint64) types.BookSnapshot {
	bid, ask := b.Bbo()

	bids := make([]types.LevelView, 0, p.topLevels)
	for i := 0; i < p.topLevels; i++ {
		lv := b.GetBidLevel(i)
		if lv.Empty() {
			break
		}
		bids = append(bids, lv)
	}

	asks := make([]types.LevelView, 0, p.topLevels)
	for i := 0; i < p.topLevels; i++ {
		lv := b.GetAskLevel(i)
		if lv.Empty() {
			break
		}
		asks = append(asks, lv)
	}

	// Orders are counted from the levels, not the order index: a TOB Add
	// clears a side's levels without evicting index entries.
	totalOrders := 0
	for i := 0; i < b.BidLevelCount(); i++ {
		totalOrders += int(b.GetBidLevel(i).Count)
	}
	for i := 0; i < b.AskLevelCount(); i++ {
		totalOrders += int(b.GetAskLevel(i).Count)
	}

	return types.BookSnapshot{
		Symbol:      p.symbol,
		TsNs:        tsEvent,
		Bid:         bid,
		Ask:         ask,
		Bids:        bids,
		Asks:        asks,
		TotalOrders: totalOrders,
		BidLevels:   b.BidLevelCount(),
		AskLevels:   b.AskLevelCount(),
	}
}

// Timer measures apply-only latency: started immediately before
// book.Apply, stopped immediately after, excluding the snapshot build
// itself so the recorded latency isolates book-mutation cost.
type Timer struct {
	start time.Time
}

// StartTimer begins timing an Apply call.
func StartTimer() Timer { return Timer{start: time.Now()} }

// ElapsedNs returns the elapsed time in nanoseconds since StartTimer.
func (t Timer) ElapsedNs() int64 { return time.Since(t.start).Nanoseconds() }
