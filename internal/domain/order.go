package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an incoming order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// BookSide names one half of a pair's book.
type BookSide string

const (
	BookSideBid BookSide = "BID"
	BookSideAsk BookSide = "ASK"
)

// OrderType selects the matching rule applied to an incoming order.
type OrderType string

const (
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimitMaker OrderType = "LIMIT_MAKER"
)

// OrderStatus is the state of a resting order.
type OrderStatus string

const (
	OrderStatusNew     OrderStatus = "NEW"
	OrderStatusPartial OrderStatus = "PARTIAL"
)

// ParseOrderSide accepts BUY/SELL in any case.
func ParseOrderSide(s string) (OrderSide, bool) {
	switch OrderSide(strings.ToUpper(strings.TrimSpace(s))) {
	case OrderSideBuy:
		return OrderSideBuy, true
	case OrderSideSell:
		return OrderSideSell, true
	}
	return "", false
}

// ParseBookSide accepts BID/ASK, and BUY/SELL as their aliases, in any case.
func ParseBookSide(s string) (BookSide, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BID", "BUY":
		return BookSideBid, true
	case "ASK", "SELL":
		return BookSideAsk, true
	}
	return "", false
}

// ParseOrderType accepts LIMIT, MARKET and LIMIT_MAKER in any case.
func ParseOrderType(s string) (OrderType, bool) {
	switch t := OrderType(strings.ToUpper(strings.TrimSpace(s))); t {
	case OrderTypeLimit, OrderTypeMarket, OrderTypeLimitMaker:
		return t, true
	}
	return "", false
}

// Valid reports whether s is BUY or SELL.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// RestingSide is the book an unmatched remainder of s rests on.
func (s OrderSide) RestingSide() BookSide {
	if s == OrderSideBuy {
		return BookSideBid
	}
	return BookSideAsk
}

// MatchingSide is the book s consumes liquidity from.
func (s OrderSide) MatchingSide() BookSide {
	if s == OrderSideBuy {
		return BookSideAsk
	}
	return BookSideBid
}

// Valid reports whether b is BID or ASK.
func (b BookSide) Valid() bool {
	return b == BookSideBid || b == BookSideAsk
}

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeLimit, OrderTypeMarket, OrderTypeLimitMaker:
		return true
	}
	return false
}

// Priced reports whether orders of type t must carry a limit price.
func (t OrderType) Priced() bool {
	return t == OrderTypeLimit || t == OrderTypeLimitMaker
}

// RestingOrder is an order waiting in a book.
type RestingOrder struct {
	ID                string
	Pair              string
	Side              BookSide
	Price             decimal.Decimal
	RemainingQuantity decimal.Decimal
	UserID            string
	Status            OrderStatus
	CreatedAt         time.Time
	// Sequence is the book's admission counter at insert time. It breaks
	// ties between orders sharing price and CreatedAt.
	Sequence uint64
}

// IncomingOrder is a submission before it is matched. It is never stored.
type IncomingOrder struct {
	Pair      string
	Side      OrderSide
	Type      OrderType
	Price     *decimal.Decimal // nil for market orders
	Quantity  decimal.Decimal
	UserID    string
	Timestamp time.Time // client-reported; the book uses admission time
}

// OrderAck is returned for every accepted submission.
type OrderAck struct {
	OrderID        string
	Pair           string
	Side           OrderSide
	Type           OrderType
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	Trades         []Trade
	Resting        *RestingOrder // nil when nothing rested
	TransactTime   time.Time
}

// Cancellation confirms the removal of a resting order.
type Cancellation struct {
	OrderID           string
	Pair              string
	Side              BookSide
	CancelledQuantity decimal.Decimal
	CancelledAt       time.Time
	Message           string
}

// CancelledMessage is the confirmation text returned for a cancel.
const CancelledMessage = "Order is cancelled successfully."
