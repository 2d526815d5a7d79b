package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/koindex/koindex/internal/domain"
)

// Matcher implements the matching engine for limit, limit-maker and market
// orders. Every book access runs inside the pair's Sequencer lane.
type Matcher struct {
	books     *BookManager
	sequencer *Sequencer
	recorder  *Recorder
	outbox    *Dispatcher
	logger    *slog.Logger
}

// NewMatcher creates a new Matcher with the given dependencies. The
// recorder's clock and id source are also used for order admission.
func NewMatcher(
	books *BookManager,
	sequencer *Sequencer,
	recorder *Recorder,
	outbox *Dispatcher,
	logger *slog.Logger,
) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		books:     books,
		sequencer: sequencer,
		recorder:  recorder,
		outbox:    outbox,
		logger:    logger,
	}
}

// Submit validates an incoming order and matches it against the opposite
// side of its pair's book by price-time priority. Trades are handed to the
// Dispatcher in the order they were generated.
//
// Validation failures and domain.ErrNoLiquidity leave every book unchanged.
func (m *Matcher) Submit(ctx context.Context, in domain.IncomingOrder) (*domain.OrderAck, error) {
	if err := validateIncoming(in); err != nil {
		return nil, err
	}
	pair := domain.NormalizePair(in.Pair)

	// A market order on a pair that never had a book is rejected without
	// starting a lane for it.
	if in.Type == domain.OrderTypeMarket && m.books.Get(pair) == nil {
		return nil, domain.ErrNoLiquidity
	}

	var ack *domain.OrderAck
	err := m.sequencer.RunExclusive(ctx, pair, func() error {
		var err error
		ack, err = m.match(pair, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ack, nil
}

func validateIncoming(in domain.IncomingOrder) error {
	if !in.Side.Valid() {
		return domain.Invalid(domain.ErrInvalidSide, "side must be one of: BUY, SELL")
	}
	if !in.Type.Valid() {
		return domain.Invalid(domain.ErrInvalidType, "type must be one of: LIMIT, MARKET, LIMIT_MAKER")
	}
	if !domain.ValidPair(in.Pair) {
		return domain.Invalid(domain.ErrInvalidPair, "pair must look like BASE-QUOTE, e.g. BTC-USDT")
	}
	if in.Type.Priced() {
		if in.Price == nil {
			return domain.Invalid(domain.ErrMissingPrice, "price is required for "+string(in.Type)+" orders")
		}
		if err := domain.CheckAmount(*in.Price, "price", domain.ErrInvalidPrice); err != nil {
			return err
		}
	} else if in.Price != nil {
		return domain.Invalid(domain.ErrInvalidPrice, "price must not be set for MARKET orders")
	}
	return domain.CheckAmount(in.Quantity, "quantity", domain.ErrInvalidQuantity)
}

// marketable reports whether an incoming priced order crosses the maker's price.
func marketable(side domain.OrderSide, limit, makerPrice decimal.Decimal) bool {
	if side == domain.OrderSideBuy {
		return limit.GreaterThanOrEqual(makerPrice)
	}
	return limit.LessThanOrEqual(makerPrice)
}

// match runs one submission against book state. It must only be called
// from the pair's exclusive region.
func (m *Matcher) match(pair string, in domain.IncomingOrder) (*domain.OrderAck, error) {
	book := m.books.GetOrCreate(pair)
	opposite := in.Side.MatchingSide()

	if in.Type == domain.OrderTypeMarket {
		if _, ok := book.PeekTop(opposite); !ok {
			return nil, domain.ErrNoLiquidity
		}
	}

	orderID := m.recorder.newID()
	admitted := m.recorder.now()
	remaining := in.Quantity
	var trades []domain.Trade

	// Trades already generated are delivered even if the pass fails.
	defer func() {
		m.outbox.Enqueue(pair, trades...)
	}()

	for remaining.IsPositive() {
		top, ok := book.PeekTop(opposite)
		if !ok {
			break
		}
		if in.Type.Priced() && !marketable(in.Side, *in.Price, top.Price) {
			break
		}

		var fill decimal.Decimal
		if top.RemainingQuantity.GreaterThan(remaining) {
			fill = remaining
			if _, err := book.ReduceTop(opposite, top.RemainingQuantity.Sub(remaining)); err != nil {
				return nil, m.invariant(pair, orderID, "reduce top", err)
			}
		} else {
			fill = top.RemainingQuantity
			if _, err := book.PopTop(opposite); err != nil {
				return nil, m.invariant(pair, orderID, "pop top", err)
			}
		}

		trades = append(trades, m.recorder.Record(
			pair, top.Price, fill,
			in.UserID, top.UserID,
			orderID, top.ID,
			in.Side,
		))
		remaining = remaining.Sub(fill)
	}

	filled := in.Quantity.Sub(remaining)
	ack := &domain.OrderAck{
		OrderID:        orderID,
		Pair:           pair,
		Side:           in.Side,
		Type:           in.Type,
		Quantity:       in.Quantity,
		FilledQuantity: filled,
		Trades:         trades,
		TransactTime:   admitted,
	}

	if !remaining.IsPositive() {
		return ack, nil
	}
	if !in.Type.Priced() {
		m.logger.Debug("market order remainder discarded",
			"pair", pair,
			"order_id", orderID,
			"unfilled", remaining.String(),
		)
		return ack, nil
	}

	status := domain.OrderStatusNew
	if filled.IsPositive() {
		status = domain.OrderStatusPartial
	}
	resting := domain.RestingOrder{
		ID:                orderID,
		Pair:              pair,
		Side:              in.Side.RestingSide(),
		Price:             *in.Price,
		RemainingQuantity: remaining,
		UserID:            in.UserID,
		Status:            status,
		CreatedAt:         admitted,
		Sequence:          book.NextSequence(),
	}
	if err := book.Insert(resting); err != nil {
		return nil, m.invariant(pair, orderID, "insert remainder", err)
	}
	ack.Resting = &resting
	return ack, nil
}

// invariant logs a book invariant violation and converts it to ErrInternal.
func (m *Matcher) invariant(pair, orderID, op string, err error) error {
	m.logger.Error("order book invariant violated",
		"pair", pair,
		"order_id", orderID,
		"op", op,
		"error", err,
	)
	return fmt.Errorf("%w: %s on %s: %v", domain.ErrInternal, op, pair, err)
}

// Cancel removes a resting order from the named side of pair's book.
// domain.ErrOrderNotFound is returned, with the book unchanged, when no
// such order rests there.
func (m *Matcher) Cancel(ctx context.Context, side domain.BookSide, pair, orderID string) (*domain.Cancellation, error) {
	if !side.Valid() {
		return nil, domain.Invalid(domain.ErrInvalidSide, "side must be one of: BID, ASK")
	}
	if !domain.ValidPair(pair) {
		return nil, domain.Invalid(domain.ErrInvalidPair, "pair must look like BASE-QUOTE, e.g. BTC-USDT")
	}
	pair = domain.NormalizePair(pair)

	book := m.books.Get(pair)
	if book == nil || orderID == "" {
		return nil, domain.ErrOrderNotFound
	}

	var out *domain.Cancellation
	err := m.sequencer.RunExclusive(ctx, pair, func() error {
		removed, err := book.RemoveByID(side, orderID)
		if err != nil {
			return err
		}
		out = &domain.Cancellation{
			OrderID:           removed.ID,
			Pair:              pair,
			Side:              side,
			CancelledQuantity: removed.RemainingQuantity,
			CancelledAt:       m.recorder.now(),
			Message:           domain.CancelledMessage,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListBook returns the resting orders of one side of pair, best first.
func (m *Matcher) ListBook(ctx context.Context, pair string, side domain.BookSide) ([]domain.RestingOrder, error) {
	if !side.Valid() {
		return nil, domain.Invalid(domain.ErrInvalidSide, "side must be one of: BID, ASK")
	}
	if !domain.ValidPair(pair) {
		return nil, domain.Invalid(domain.ErrInvalidPair, "pair must look like BASE-QUOTE, e.g. BTC-USDT")
	}
	pair = domain.NormalizePair(pair)

	book := m.books.Get(pair)
	if book == nil {
		return []domain.RestingOrder{}, nil
	}
	var out []domain.RestingOrder
	err := m.sequencer.RunExclusive(ctx, pair, func() error {
		out = book.Snapshot(side)
		return nil
	})
	return out, err
}

// ListBoth returns the resting orders of both sides of pair, best first,
// taken in a single exclusive region.
func (m *Matcher) ListBoth(ctx context.Context, pair string) (bids, asks []domain.RestingOrder, err error) {
	if !domain.ValidPair(pair) {
		return nil, nil, domain.Invalid(domain.ErrInvalidPair, "pair must look like BASE-QUOTE, e.g. BTC-USDT")
	}
	pair = domain.NormalizePair(pair)

	book := m.books.Get(pair)
	if book == nil {
		return []domain.RestingOrder{}, []domain.RestingOrder{}, nil
	}
	err = m.sequencer.RunExclusive(ctx, pair, func() error {
		bids = book.Snapshot(domain.BookSideBid)
		asks = book.Snapshot(domain.BookSideAsk)
		return nil
	})
	return bids, asks, err
}

// Depth returns up to levels aggregated price levels for both sides of pair.
func (m *Matcher) Depth(ctx context.Context, pair string, levels int) (bids, asks []PriceLevel, err error) {
	if !domain.ValidPair(pair) {
		return nil, nil, domain.Invalid(domain.ErrInvalidPair, "pair must look like BASE-QUOTE, e.g. BTC-USDT")
	}
	pair = domain.NormalizePair(pair)

	book := m.books.Get(pair)
	if book == nil {
		return []PriceLevel{}, []PriceLevel{}, nil
	}
	err = m.sequencer.RunExclusive(ctx, pair, func() error {
		bids = book.Depth(domain.BookSideBid, levels)
		asks = book.Depth(domain.BookSideAsk, levels)
		return nil
	})
	return bids, asks, err
}

// Pairs returns the pairs with an active sequencer lane, sorted.
func (m *Matcher) Pairs() []string {
	return m.sequencer.Pairs()
}
