package book

import "fmt"

// Kind classifies a book-apply failure so callers can decide whether an
// error is tolerated (logged, event dropped, processing continues) or
// fatal (the session fails) without string matching.
type Kind int

const (
	// KindUnknownOrder and KindUnknownLevel are tolerated: real feeds see
	// Cancel/Modify for state the book never opened, typically from gaps
	// before the session attached to the stream.
	KindUnknownOrder Kind = iota
	KindUnknownLevel

	// Everything below is fatal for the session.
	KindDuplicateOrder
	KindOverCancel
	KindSideChange
	KindUnknownAction
)

func (k Kind) String() string {
	switch k {
	case KindUnknownOrder:
		return "unknown_order"
	case KindUnknownLevel:
		return "unknown_level"
	case KindDuplicateOrder:
		return "duplicate_order"
	case KindOverCancel:
		return "over_cancel"
	case KindSideChange:
		return "side_change"
	case KindUnknownAction:
		return "unknown_action"
	default:
		return "unknown"
	}
}

// Tolerated reports whether this kind of failure should be counted and
// dropped rather than failing the session.
func (k Kind) Tolerated() bool {
	return k == KindUnknownOrder || k == KindUnknownLevel
}

// Error is returned by Book.Apply when an event cannot be applied. It
// carries the classifying Kind and the order id involved, if any, so
// session finalization can compose an explanatory message without
// re-parsing the error text.
type Error struct {
	Kind    Kind
	OrderID uint64
	Msg     string
}

func (e *Error) Error() string {
	if e.OrderID != 0 {
		return fmt.Sprintf("%s: order id %d: %s", e.Kind, e.OrderID, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newError(kind Kind, orderID uint64, format string, args ...any) *Error {
	return &Error{Kind: kind, OrderID: orderID, Msg: fmt.Sprintf(format, args...)}
}
