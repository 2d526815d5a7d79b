package store

import (
	"context"
	"sync"

	"github.com/koindex/koindex/internal/domain"
)

// DefaultTapeSize is the number of trades kept per pair when none is given.
const DefaultTapeSize = 1000

// TradeStore is a thread-safe in-memory tape of recent trades, keyed by
// pair. Each pair keeps at most its newest size trades.
type TradeStore struct {
	mu     sync.RWMutex
	size   int
	trades map[string][]domain.Trade // pair → trades (chronological)
}

// NewTradeStore creates an empty TradeStore holding up to size trades per
// pair. A non-positive size selects DefaultTapeSize.
func NewTradeStore(size int) *TradeStore {
	if size <= 0 {
		size = DefaultTapeSize
	}
	return &TradeStore{
		size:   size,
		trades: make(map[string][]domain.Trade),
	}
}

// Append adds a trade to its pair's chronological list, evicting the
// oldest trade once the tape is full.
func (s *TradeStore) Append(t domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tape := append(s.trades[t.Pair], t)
	if len(tape) > s.size {
		// Copy down so the backing array does not grow without bound.
		tape = append(tape[:0:0], tape[len(tape)-s.size:]...)
	}
	s.trades[t.Pair] = tape
}

// Deliver implements engine.TradeSink.
func (s *TradeStore) Deliver(_ context.Context, t domain.Trade) error {
	s.Append(t)
	return nil
}

// Recent returns up to limit trades for pair, newest first. A non-positive
// limit returns the whole tape. Returns an empty slice if the pair has no
// trades.
func (s *TradeStore) Recent(pair string, limit int) []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tape := s.trades[domain.NormalizePair(pair)]
	if limit <= 0 || limit > len(tape) {
		limit = len(tape)
	}
	result := make([]domain.Trade, 0, limit)
	for i := len(tape) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, tape[i])
	}
	return result
}
