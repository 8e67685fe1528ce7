package snapshot

import (
	"testing"
	"time"

	"mbo-ingest/internal/book"
	"mbo-ingest/pkg/types"
)

func mustApply(t *testing.T, b *book.Book, evt types.Event) {
	t.Helper()
	if err := b.Apply(evt); err != nil {
		t.Fatalf("Apply(%+v): %v", evt, err)
	}
}

func TestBuildCapturesBboAndLevels(t *testing.T) {
	t.Parallel()
	b := book.New("XYZ", 10)
	mustApply(t, b, types.Event{Action: types.ActionAdd, Side: types.SideBid, Price: 100, Size: 5, OrderID: 1})
	mustApply(t, b, types.Event{Action: types.ActionAdd, Side: types.SideAsk, Price: 105, Size: 3, OrderID: 2})

	p := New("XYZ", 10)
	snap := p.Build(b, 12345)

	if snap.Symbol != "XYZ" {
		t.Errorf("Symbol = %q, want XYZ", snap.Symbol)
	}
	if snap.TsNs != 12345 {
		t.Errorf("TsNs = %d, want 12345", snap.TsNs)
	}
	if snap.Bid.Price != 100 || snap.Ask.Price != 105 {
		t.Errorf("Bbo = %+v/%+v, want 100/105", snap.Bid, snap.Ask)
	}
	if len(snap.Bids) != 1 || len(snap.Asks) != 1 {
		t.Errorf("Bids/Asks lengths = %d/%d, want 1/1", len(snap.Bids), len(snap.Asks))
	}
	if snap.TotalOrders != 2 || snap.BidLevels != 1 || snap.AskLevels != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", snap.TotalOrders, snap.BidLevels, snap.AskLevels)
	}
}

func TestBuildEmptyBookSymbolDefaultsToUnknown(t *testing.T) {
	t.Parallel()
	b := book.New("", 10)
	p := New("", 10)
	snap := p.Build(b, 0)

	if snap.Symbol != "UNKNOWN" {
		t.Errorf("Symbol = %q, want UNKNOWN", snap.Symbol)
	}
	if !snap.Bid.Empty() || !snap.Ask.Empty() {
		t.Errorf("expected empty BBO on empty book, got bid=%+v ask=%+v", snap.Bid, snap.Ask)
	}
	if len(snap.Bids) != 0 || len(snap.Asks) != 0 {
		t.Errorf("expected no levels on empty book")
	}
}

func TestBuildStopsAtTopLevelsDepth(t *testing.T) {
	t.Parallel()
	b := book.New("XYZ", 10)
	for i, price := range []int64{100, 99, 98, 97} {
		mustApply(t, b, types.Event{
			Action: types.ActionAdd, Side: types.SideBid, Price: price, Size: 1, OrderID: uint64(i + 1),
		})
	}

	p := New("XYZ", 2)
	snap := p.Build(b, 0)
	if len(snap.Bids) != 2 {
		t.Errorf("len(Bids) = %d, want 2 (topLevels cap)", len(snap.Bids))
	}
	if snap.Bids[0].Price != 100 || snap.Bids[1].Price != 99 {
		t.Errorf("Bids = %+v, want [100, 99]", snap.Bids)
	}
}

func TestTimerElapsedNsIsPositive(t *testing.T) {
	t.Parallel()
	timer := StartTimer()
	time.Sleep(time.Millisecond)
	if elapsed := timer.ElapsedNs(); elapsed <= 0 {
		t.Errorf("ElapsedNs() = %d, want > 0", elapsed)
	}
}
