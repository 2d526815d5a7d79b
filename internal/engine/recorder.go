package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/koindex/koindex/internal/domain"
)

// Recorder builds trade records. It never touches book state.
type Recorder struct {
	now   func() time.Time
	newID func() string
}

// NewRecorder creates a Recorder. A nil now defaults to time.Now and a nil
// newID defaults to random UUIDs.
func NewRecorder(now func() time.Time, newID func() string) *Recorder {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Recorder{now: now, newID: newID}
}

// Record returns the trade for one fill between a taker and a maker. The
// bid/ask identities and the color are derived from takerSide.
func (r *Recorder) Record(
	pair string,
	price, quantity decimal.Decimal,
	takerUserID, makerUserID string,
	takerOrderID, makerOrderID string,
	takerSide domain.OrderSide,
) domain.Trade {
	t := domain.Trade{
		TradeID:     r.newID(),
		Pair:        pair,
		Price:       price,
		Volume:      quantity,
		TotalAmount: price.Mul(quantity),
		Color:       domain.ColorFor(takerSide),
		CreatedAt:   r.now(),
	}
	if takerSide == domain.OrderSideBuy {
		t.BidUserID, t.BidOrderID = takerUserID, takerOrderID
		t.AskUserID, t.AskOrderID = makerUserID, makerOrderID
	} else {
		t.BidUserID, t.BidOrderID = makerUserID, makerOrderID
		t.AskUserID, t.AskOrderID = takerUserID, takerOrderID
	}
	return t
}
