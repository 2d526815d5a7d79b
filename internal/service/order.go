package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/koindex/koindex/internal/domain"
	"github.com/koindex/koindex/internal/engine"
	"github.com/koindex/koindex/internal/store"
)

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

const (
	// DefaultDepthLevels is the number of price levels returned when the
	// caller does not ask for a specific depth.
	DefaultDepthLevels = 20
	// MaxDepthLevels caps the number of price levels per side.
	MaxDepthLevels = 500
	// DefaultTradeLimit is the number of trades returned by default.
	DefaultTradeLimit = 50
)

// SubmitOrderRequest represents the input for order submission. Numeric
// fields are carried as decimal text so no precision is lost before
// validation.
type SubmitOrderRequest struct {
	Pair      string
	Side      string
	Type      string
	Price     *string // required for LIMIT and LIMIT_MAKER, must be nil for MARKET
	Quantity  string
	UserID    string
	Timestamp *time.Time // client-reported, informational
}

// CancelOrderRequest identifies a resting order to cancel.
type CancelOrderRequest struct {
	ID   string
	Pair string
	Side string
}

// BookView is the resting state of both sides of a pair.
type BookView struct {
	Pair string
	Bids []domain.RestingOrder
	Asks []domain.RestingOrder
}

// DepthView is the aggregated depth of both sides of a pair.
type DepthView struct {
	Pair string
	Bids []engine.PriceLevel
	Asks []engine.PriceLevel
}

// OrderService handles order submission, cancellation and book queries.
type OrderService struct {
	matcher *engine.Matcher
	trades  *store.TradeStore
}

// NewOrderService creates a new OrderService with the given dependencies.
func NewOrderService(matcher *engine.Matcher, trades *store.TradeStore) *OrderService {
	return &OrderService{
		matcher: matcher,
		trades:  trades,
	}
}

// SubmitOrder validates the request and runs it through the matching engine.
func (s *OrderService) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*domain.OrderAck, error) {
	side, ok := domain.ParseOrderSide(req.Side)
	if !ok {
		return nil, domain.Invalid(domain.ErrInvalidSide,
			fmt.Sprintf("Unknown side: %s. Must be one of: BUY, SELL", req.Side))
	}
	typ, ok := domain.ParseOrderType(req.Type)
	if !ok {
		return nil, domain.Invalid(domain.ErrInvalidType,
			fmt.Sprintf("Unknown order type: %s. Must be one of: LIMIT, MARKET, LIMIT_MAKER", req.Type))
	}
	if !domain.ValidPair(req.Pair) {
		return nil, domain.Invalid(domain.ErrInvalidPair, "pair must match ^[A-Z0-9]{2,10}-[A-Z0-9]{2,10}$")
	}
	if !userIDRegex.MatchString(req.UserID) {
		return nil, &domain.ValidationError{Message: "user_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return nil, domain.Invalid(domain.ErrInvalidQuantity, "quantity must be a decimal number")
	}

	in := domain.IncomingOrder{
		Pair:     req.Pair,
		Side:     side,
		Type:     typ,
		Quantity: quantity,
		UserID:   req.UserID,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}
	if req.Price != nil {
		price, err := decimal.NewFromString(*req.Price)
		if err != nil {
			return nil, domain.Invalid(domain.ErrInvalidPrice, "price must be a decimal number")
		}
		in.Price = &price
	}

	return s.matcher.Submit(ctx, in)
}

// CancelOrder removes a resting order from its book.
func (s *OrderService) CancelOrder(ctx context.Context, req CancelOrderRequest) (*domain.Cancellation, error) {
	side, ok := domain.ParseBookSide(req.Side)
	if !ok {
		return nil, domain.Invalid(domain.ErrInvalidSide,
			fmt.Sprintf("Unknown side: %s. Must be one of: BID, ASK", req.Side))
	}
	if req.ID == "" {
		return nil, &domain.ValidationError{Message: "id is required"}
	}
	return s.matcher.Cancel(ctx, side, req.Pair, req.ID)
}

// Book returns every resting order of pair, best first on each side.
func (s *OrderService) Book(ctx context.Context, pair string) (*BookView, error) {
	bids, asks, err := s.matcher.ListBoth(ctx, pair)
	if err != nil {
		return nil, err
	}
	return &BookView{Pair: domain.NormalizePair(pair), Bids: bids, Asks: asks}, nil
}

// Depth returns up to levels aggregated price levels per side. Zero selects
// DefaultDepthLevels.
func (s *OrderService) Depth(ctx context.Context, pair string, levels int) (*DepthView, error) {
	if levels == 0 {
		levels = DefaultDepthLevels
	}
	if levels < 1 || levels > MaxDepthLevels {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("levels must be between 1 and %d", MaxDepthLevels),
		}
	}
	bids, asks, err := s.matcher.Depth(ctx, pair, levels)
	if err != nil {
		return nil, err
	}
	return &DepthView{Pair: domain.NormalizePair(pair), Bids: bids, Asks: asks}, nil
}

// RecentTrades returns up to limit trades of pair from the tape, newest
// first. Zero selects DefaultTradeLimit.
func (s *OrderService) RecentTrades(pair string, limit int) ([]domain.Trade, error) {
	if !domain.ValidPair(pair) {
		return nil, domain.Invalid(domain.ErrInvalidPair, "pair must match ^[A-Z0-9]{2,10}-[A-Z0-9]{2,10}$")
	}
	if limit == 0 {
		limit = DefaultTradeLimit
	}
	if limit < 1 {
		return nil, &domain.ValidationError{Message: "limit must be a positive integer"}
	}
	return s.trades.Recent(pair, limit), nil
}

// ActivePairs returns the pairs the engine has seen an order or query for.
func (s *OrderService) ActivePairs() []string {
	return s.matcher.Pairs()
}
