// Package book maintains a single instrument's authoritative limit order
// book from a stream of Market-By-Order events: orders, price levels, and
// sides.
//
// Dispatch on event.Action follows a switch-on-event-type style, routing
// each event to the mutation it describes rather than parsing it inline.
// The level/side container shape pairs a price-keyed map with a separate
// ordered price list, since a plain Go map gives no ordered iteration.
package book

import (
	"sort"

	"mbo-ingest/pkg/types"
)

// order is one resting order within a level, kept in arrival order so
// time priority is just slice position.
type order struct {
	id   uint64
	size uint32
	tob  bool
}

// level is one price level on one side: an arrival-ordered run of orders.
// size/count are derived on demand from the orders slice rather than kept
// as running totals — this keeps TOB-exclusion-from-count in one place
// instead of threading it through every mutation site.
type level struct {
	price  int64
	orders []order
}

func (l *level) size() uint64 {
	var total uint64
	for _, o := range l.orders {
		total += uint64(o.size)
	}
	return total
}

func (l *level) count() uint32 {
	var n uint32
	for _, o := range l.orders {
		if !o.tob {
			n++
		}
	}
	return n
}

func (l *level) find(id uint64) int {
	for i, o := range l.orders {
		if o.id == id {
			return i
		}
	}
	return -1
}

func (l *level) view() types.LevelView {
	return types.LevelView{Price: l.price, Size: l.size(), Count: l.count()}
}

func emptyLevelView() types.LevelView { return types.LevelView{Price: types.UndefPrice} }

// sideBook holds one side's levels, keyed by price, plus the sorted price
// list a plain Go map cannot give us for free.
type sideBook struct {
	levels map[int64]*level
	prices []int64 // always ascending
}

func newSideBook() *sideBook {
	return &sideBook{levels: make(map[int64]*level)}
}

func (s *sideBook) clear() {
	s.levels = make(map[int64]*level)
	s.prices = s.prices[:0]
}

func (s *sideBook) get(price int64) *level {
	return s.levels[price]
}

func (s *sideBook) getOrInsert(price int64) *level {
	if lv, ok := s.levels[price]; ok {
		return lv
	}
	lv := &level{price: price}
	s.levels[price] = lv
	i := sort.Search(len(s.prices), func(i int) bool { return s.prices[i] >= price })
	s.prices = append(s.prices, 0)
	copy(s.prices[i+1:], s.prices[i:])
	s.prices[i] = price
	return lv
}

func (s *sideBook) remove(price int64) {
	delete(s.levels, price)
	i := sort.Search(len(s.prices), func(i int) bool { return s.prices[i] >= price })
	if i < len(s.prices) && s.prices[i] == price {
		s.prices = append(s.prices[:i], s.prices[i+1:]...)
	}
}

func (s *sideBook) count() int { return len(s.prices) }

// atAscending returns the idx'th level in ascending-price order (the Ask
// side's natural order).
func (s *sideBook) atAscending(idx int) (types.LevelView, bool) {
	if idx < 0 || idx >= len(s.prices) {
		return types.LevelView{}, false
	}
	return s.levels[s.prices[idx]].view(), true
}

// atDescending returns the idx'th level in descending-price order (the
// Bid side's natural order).
func (s *sideBook) atDescending(idx int) (types.LevelView, bool) {
	if idx < 0 || idx >= len(s.prices) {
		return types.LevelView{}, false
	}
	return s.levels[s.prices[len(s.prices)-1-idx]].view(), true
}

// orderLoc is the order index's non-owning lookup value: enough to find
// an order's level without a back-pointer.
type orderLoc struct {
	price int64
	side  types.Side
}

// Book maintains one instrument's order, level, and side state. It is not
// safe for concurrent use — it is owned exclusively by the goroutine
// applying events to it.
type Book struct {
	Symbol    string
	TopLevels int

	bids *sideBook
	asks *sideBook
	byID map[uint64]orderLoc
}

// New creates an empty book for the given symbol, reporting up to
// topLevels levels per side from snapshot-building callers.
func New(symbol string, topLevels int) *Book {
	return &Book{
		Symbol:    symbol,
		TopLevels: topLevels,
		bids:      newSideBook(),
		asks:      newSideBook(),
		byID:      make(map[uint64]orderLoc),
	}
}

func (b *Book) sideBookFor(side types.Side) *sideBook {
	if side == types.SideBid {
		return b.bids
	}
	return b.asks
}

// Apply dispatches one event by its Action field, mutating book state in
// place. It returns a *Error (book.Kind-classified) for any failure;
// Tolerated() kinds should be logged and dropped by the caller, all
// others fail the session.
func (b *Book) Apply(evt types.Event) error {
	switch evt.Action {
	case types.ActionClear:
		b.Clear()
		return nil
	case types.ActionAdd:
		return b.add(evt.Side, evt.Price, evt.Size, evt.OrderID, evt.IsTOB())
	case types.ActionCancel:
		return b.cancel(evt.Side, evt.Price, evt.Size, evt.OrderID)
	case types.ActionModify:
		return b.modify(evt.Side, evt.Price, evt.Size, evt.OrderID, evt.IsTOB())
	case types.ActionTrade, types.ActionFill, types.ActionNone:
		return nil
	default:
		return newError(KindUnknownAction, evt.OrderID, "action byte %q", byte(evt.Action))
	}
}

// Clear drops all orders, levels, and index entries. Idempotent.
func (b *Book) Clear() {
	b.bids.clear()
	b.asks.clear()
	b.byID = make(map[uint64]orderLoc)
}

func (b *Book) add(side types.Side, price int64, size uint32, orderID uint64, tob bool) error {
	if tob {
		sb := b.sideBookFor(side)
		sb.clear()
		if price != types.UndefPrice {
			lv := sb.getOrInsert(price)
			lv.orders = append(lv.orders, order{id: orderID, size: size, tob: true})
		}
		return nil
	}

	if _, exists := b.byID[orderID]; exists {
		return newError(KindDuplicateOrder, orderID, "already present")
	}
	lv := b.sideBookFor(side).getOrInsert(price)
	lv.orders = append(lv.orders, order{id: orderID, size: size})
	b.byID[orderID] = orderLoc{price: price, side: side}
	return nil
}

func (b *Book) cancel(side types.Side, price int64, size uint32, orderID uint64) error {
	sb := b.sideBookFor(side)
	lv := sb.get(price)
	if lv == nil {
		return newError(KindUnknownLevel, orderID, "side %s price %d", side, price)
	}
	i := lv.find(orderID)
	if i < 0 {
		return newError(KindUnknownOrder, orderID, "not present at side %s price %d", side, price)
	}
	if size > lv.orders[i].size {
		return newError(KindOverCancel, orderID, "cancel size %d exceeds remaining %d", size, lv.orders[i].size)
	}
	lv.orders[i].size -= size
	if lv.orders[i].size == 0 {
		lv.orders = append(lv.orders[:i], lv.orders[i+1:]...)
		delete(b.byID, orderID)
		if len(lv.orders) == 0 {
			sb.remove(price)
		}
	}
	return nil
}

func (b *Book) modify(side types.Side, price int64, size uint32, orderID uint64, tob bool) error {
	loc, exists := b.byID[orderID]
	if !exists {
		return b.add(side, price, size, orderID, tob)
	}
	if loc.side != side {
		return newError(KindSideChange, orderID, "recorded side %s, got %s", loc.side, side)
	}

	sb := b.sideBookFor(side)
	prevLevel := sb.get(loc.price)
	i := -1
	if prevLevel != nil {
		i = prevLevel.find(orderID)
	}
	if i < 0 {
		// A TOB Add cleared this order's level without evicting its index
		// entry: drop the stale entry and apply the Modify as an Add.
		delete(b.byID, orderID)
		return b.add(side, price, size, orderID, tob)
	}

	if loc.price != price {
		prevLevel.orders = append(prevLevel.orders[:i], prevLevel.orders[i+1:]...)
		if len(prevLevel.orders) == 0 {
			sb.remove(loc.price)
		}
		newLevel := sb.getOrInsert(price)
		newLevel.orders = append(newLevel.orders, order{id: orderID, size: size})
		b.byID[orderID] = orderLoc{price: price, side: side}
		return nil
	}

	if size > prevLevel.orders[i].size {
		// Size increase loses time priority: remove and re-append.
		existing := prevLevel.orders[i]
		existing.size = size
		prevLevel.orders = append(prevLevel.orders[:i], prevLevel.orders[i+1:]...)
		prevLevel.orders = append(prevLevel.orders, existing)
		return nil
	}

	prevLevel.orders[i].size = size
	return nil
}

// Bbo returns the best bid and best ask levels, each possibly empty
// (Price == types.UndefPrice) if that side has no levels.
func (b *Book) Bbo() (bid, ask types.LevelView) {
	return b.GetBidLevel(0), b.GetAskLevel(0)
}

// GetBidLevel returns the idx'th bid level, highest price first. An
// out-of-range idx yields an empty level rather than a panic.
func (b *Book) GetBidLevel(idx int) types.LevelView {
	if v, ok := b.bids.atDescending(idx); ok {
		return v
	}
	return emptyLevelView()
}

// GetAskLevel returns the idx'th ask level, lowest price first. An
// out-of-range idx yields an empty level rather than a panic.
func (b *Book) GetAskLevel(idx int) types.LevelView {
	if v, ok := b.asks.atAscending(idx); ok {
		return v
	}
	return emptyLevelView()
}

// OrderCount returns the number of orders in the global order index. TOB
// entries are never added to the index, so this counts only orders
// opened by a non-TOB Add.
func (b *Book) OrderCount() int { return len(b.byID) }

// BidLevelCount and AskLevelCount report the number of non-empty levels
// on each side.
func (b *Book) BidLevelCount() int { return b.bids.count() }
func (b *Book) AskLevelCount() int { return b.asks.count() }
