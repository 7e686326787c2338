package domain

import "time"

type Action string

const (
	ActionCreate Action = "create"
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionDelete Action = "delete"
)

// Event is the immutable audit record of one stock mutation. Seq and
// Timestamp are assigned by the ledger store at append time; Seq is
// strictly increasing and breaks timestamp ties.
type Event struct {
	ID             string
	Seq            int64
	ItemName       string
	Action         Action
	Delta          int
	QuantityBefore int
	Timestamp      time.Time
}

// StockChange is the atomic unit handed to a ledger store: the event to
// append and the projection mutation it implies. RemoveItem drops the
// projection row in the same unit (item deletion, or remove-to-zero when
// zero-quantity items are not retained).
type StockChange struct {
	Event      Event
	RemoveItem bool
}

// EventFilter narrows an event-log query. The zero value returns the
// whole log newest first.
type EventFilter struct {
	Action    Action // empty matches all actions
	Ascending bool   // log order instead of the default newest-first
	Limit     int    // 0 means no limit
}
