package engine

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/koindex/koindex/internal/domain"
)

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         decimal.Decimal
	TotalQuantity decimal.Decimal
	OrderCount    int
}

// bidLess defines ordering for the bid side: price descending, then
// created_at ascending, then admission sequence ascending. Min() returns
// the best bid (highest price, earliest time).
func bidLess(a, b domain.RestingOrder) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return earlier(a, b)
}

// askLess defines ordering for the ask side: price ascending, then
// created_at ascending, then admission sequence ascending. Min() returns
// the best ask (lowest price, earliest time).
func askLess(a, b domain.RestingOrder) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return earlier(a, b)
}

func earlier(a, b domain.RestingOrder) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	return a.ID < b.ID
}

// OrderBook holds the bid and ask sides for a single pair using B-trees,
// with a secondary index for O(log n) removal by order ID.
//
// OrderBook is not safe for concurrent use. Every access goes through the
// pair's Sequencer lane.
type OrderBook struct {
	pair  string
	bids  *btree.BTreeG[domain.RestingOrder]
	asks  *btree.BTreeG[domain.RestingOrder]
	index map[string]domain.RestingOrder // order_id → entry
	seq   uint64
}

// NewOrderBook creates an order book for the given pair.
func NewOrderBook(pair string) *OrderBook {
	const degree = 32
	return &OrderBook{
		pair:  pair,
		bids:  btree.NewG[domain.RestingOrder](degree, bidLess),
		asks:  btree.NewG[domain.RestingOrder](degree, askLess),
		index: make(map[string]domain.RestingOrder),
	}
}

// NextSequence returns the next admission sequence number.
func (ob *OrderBook) NextSequence() uint64 {
	ob.seq++
	return ob.seq
}

func (ob *OrderBook) side(side domain.BookSide) *btree.BTreeG[domain.RestingOrder] {
	if side == domain.BookSideBid {
		return ob.bids
	}
	return ob.asks
}

// PeekTop returns the highest-priority order on side without removing it.
func (ob *OrderBook) PeekTop(side domain.BookSide) (domain.RestingOrder, bool) {
	return ob.side(side).Min()
}

// PopTop removes and returns the highest-priority order on side.
func (ob *OrderBook) PopTop(side domain.BookSide) (domain.RestingOrder, error) {
	o, ok := ob.side(side).DeleteMin()
	if !ok {
		return domain.RestingOrder{}, domain.ErrEmptyBook
	}
	delete(ob.index, o.ID)
	return o, nil
}

// Insert adds a resting order to the side named by o.Side.
func (ob *OrderBook) Insert(o domain.RestingOrder) error {
	if _, ok := ob.index[o.ID]; ok {
		return fmt.Errorf("%w: %s on %s", domain.ErrDuplicateID, o.ID, ob.pair)
	}
	if !o.Side.Valid() {
		return domain.ErrInvalidSide
	}
	if !o.RemainingQuantity.IsPositive() {
		return domain.ErrInvalidQuantity
	}
	ob.side(o.Side).ReplaceOrInsert(o)
	ob.index[o.ID] = o
	return nil
}

// RemoveByID deletes an order from side using the secondary index.
// An order resting on the other side is not touched.
func (ob *OrderBook) RemoveByID(side domain.BookSide, id string) (domain.RestingOrder, error) {
	o, ok := ob.index[id]
	if !ok || o.Side != side {
		return domain.RestingOrder{}, domain.ErrOrderNotFound
	}
	delete(ob.index, id)
	ob.side(side).Delete(o)
	return o, nil
}

// ReduceTop sets the remaining quantity of the top order on side and marks
// it partially filled. Price, time, sequence, id and owner are kept, so the
// order stays at the front of its price level.
func (ob *OrderBook) ReduceTop(side domain.BookSide, remaining decimal.Decimal) (domain.RestingOrder, error) {
	top, ok := ob.PeekTop(side)
	if !ok {
		return domain.RestingOrder{}, domain.ErrEmptyBook
	}
	if !remaining.IsPositive() {
		return domain.RestingOrder{}, domain.ErrInvalidQuantity
	}
	top.RemainingQuantity = remaining
	top.Status = domain.OrderStatusPartial
	// Same ordering key, so this replaces the entry in place.
	ob.side(side).ReplaceOrInsert(top)
	ob.index[top.ID] = top
	return top, nil
}

// Len returns the number of individual orders on side.
func (ob *OrderBook) Len(side domain.BookSide) int {
	return ob.side(side).Len()
}

// Walk iterates side in priority order. The callback returns true to
// continue, false to stop.
func (ob *OrderBook) Walk(side domain.BookSide, fn func(domain.RestingOrder) bool) {
	ob.side(side).Ascend(fn)
}

// Snapshot copies side in priority order.
func (ob *OrderBook) Snapshot(side domain.BookSide) []domain.RestingOrder {
	out := make([]domain.RestingOrder, 0, ob.Len(side))
	ob.Walk(side, func(o domain.RestingOrder) bool {
		out = append(out, o)
		return true
	})
	return out
}

// Depth aggregates at most n price levels from side, best first.
func (ob *OrderBook) Depth(side domain.BookSide, n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	ob.Walk(side, func(o domain.RestingOrder) bool {
		if len(levels) > 0 && levels[len(levels)-1].Price.Equal(o.Price) {
			last := &levels[len(levels)-1]
			last.TotalQuantity = last.TotalQuantity.Add(o.RemainingQuantity)
			last.OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         o.Price,
			TotalQuantity: o.RemainingQuantity,
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// BookManager is a thread-safe map of pair → OrderBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*OrderBook),
	}
}

// GetOrCreate returns the order book for the given pair, creating
// one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(pair string) *OrderBook {
	pair = domain.NormalizePair(pair)

	bm.mu.RLock()
	book, ok := bm.books[pair]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = bm.books[pair]; ok {
		return book
	}
	book = NewOrderBook(pair)
	bm.books[pair] = book
	return book
}

// Get returns the order book for pair, or nil if none was created yet.
func (bm *BookManager) Get(pair string) *OrderBook {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return bm.books[domain.NormalizePair(pair)]
}
