package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeColor marks which side was the aggressor.
type TradeColor string

const (
	// TradeColorRed marks aggressive buying (the bid side took liquidity).
	TradeColorRed TradeColor = "RED"
	// TradeColorGreen marks aggressive selling (the ask side took liquidity).
	TradeColorGreen TradeColor = "GREEN"
)

// ColorFor returns the color of a trade whose taker was on side.
func ColorFor(taker OrderSide) TradeColor {
	if taker == OrderSideBuy {
		return TradeColorRed
	}
	return TradeColorGreen
}

// Trade is the immutable record of one match.
type Trade struct {
	TradeID     string
	Pair        string
	Price       decimal.Decimal
	Volume      decimal.Decimal
	TotalAmount decimal.Decimal
	BidUserID   string
	AskUserID   string
	BidOrderID  string
	AskOrderID  string
	Color       TradeColor
	CreatedAt   time.Time
}
