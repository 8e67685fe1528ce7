// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the ingest pipeline — wire
// events, book-engine values, and the session/statistics records written to
// persistence. It has no dependencies on internal packages, so it can be
// imported by any layer.
package types

import "math"

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// UndefPrice is the sentinel recorded when an event or level carries no
// price (an undefined BBO side, a TOB-clear Add, a missing level).
const UndefPrice int64 = math.MinInt64

// Action is the MBO event action, carried on the wire as a single ASCII byte.
type Action byte

const (
	ActionAdd    Action = 'A'
	ActionModify Action = 'M'
	ActionCancel Action = 'C'
	ActionFill   Action = 'F'
	ActionTrade  Action = 'T'
	ActionClear  Action = 'R'
	ActionNone   Action = 'N'
)

func (a Action) String() string { return string(rune(a)) }

// Side is the book side an order or level belongs to, carried on the wire
// as a single ASCII byte. Note the wire uses 'A' for Ask, distinct from
// ActionAdd despite the shared letter — they occupy different fields.
type Side byte

const (
	SideBid  Side = 'B'
	SideAsk  Side = 'A'
	SideNone Side = 'N'
)

func (s Side) String() string { return string(rune(s)) }

// TOBFlag marks bit 7 of an event's flag byte: the event summarizes a
// top-of-book level rather than a single resting order.
const TOBFlag uint8 = 1 << 7

// ————————————————————————————————————————————————————————————————————————
// Wire event
// ————————————————————————————————————————————————————————————————————————

// Event is one decoded MBO record. Prices arrive in the wire's native
// integer units (nanos) and are normalized to cents by the ingest
// supervisor before the event reaches the Book.
type Event struct {
	TsEvent      uint64
	TsRecv       uint64
	RType        uint8
	PublisherID  uint16
	InstrumentID uint32
	Action       Action
	Side         Side
	Price        int64
	Size         uint32
	ChannelID    uint8
	OrderID      uint64
	Flags        uint8
	TsInDelta    int32
	Sequence     uint32
}

// IsTOB reports whether the flag set marks this event as a top-of-book
// implicit level update.
func (e Event) IsTOB() bool {
	return e.Flags&TOBFlag != 0
}

// ————————————————————————————————————————————————————————————————————————
// Book engine values
// ————————————————————————————————————————————————————————————————————————

// LevelKey locates an order's price level by price and side. The book's
// own order index keeps an unexported equivalent, not this type.
type LevelKey struct {
	Price int64
	Side  Side
}

// LevelView is a read-only snapshot of one price level's aggregate state,
// used both by BBO/top-N queries and by persistence rows.
type LevelView struct {
	Price int64
	Size  uint64
	Count uint32
}

// Empty reports whether this view represents an absent level.
func (l LevelView) Empty() bool { return l.Price == UndefPrice }

// BookSnapshot is the value produced by the Snapshot Producer after every
// successfully applied event. It is copied by value into the ring buffer
// and owned by the persistence writer from that point on.
type BookSnapshot struct {
	Symbol string
	TsNs   uint64
	Bid    LevelView
	Ask    LevelView
	Bids   []LevelView
	Asks   []LevelView

	TotalOrders int
	BidLevels   int
	AskLevels   int
}

// ————————————————————————————————————————————————————————————————————————
// Session
// ————————————————————————————————————————————————————————————————————————

// SessionStatus is the terminal or in-flight state of an ingest session.
type SessionStatus string

const (
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionError      SessionStatus = "error"
)

// SessionStats carries the counters and latency aggregates recorded at
// session finalization (see internal/persistence.Stats).
type SessionStats struct {
	MessagesReceived uint64
	OrdersProcessed  uint64
	ThroughputMsgPS  float64
	AvgApplyNs       float64
	P99ApplyNs       float64

	HasFinalBook     bool
	FinalTotalOrders int
	FinalBidLevels   int
	FinalAskLevels   int
	FinalBestBid     float64
	FinalBestAsk     float64
	FinalSpread      float64
}
