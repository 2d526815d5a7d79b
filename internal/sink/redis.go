package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/koindex/koindex/internal/domain"
)

// TradeSetKey returns the sorted-set key holding the trades of pair.
func TradeSetKey(pair string) string {
	return "TRADESET_" + domain.NormalizePair(pair)
}

// Redis keeps the newest trades of each pair in a sorted set. Scores are
// trade times in microseconds, bumped so they strictly increase per pair:
// trades of one submission share a timestamp and must not fall back to
// member order.
type Redis struct {
	client redis.Cmdable
	keep   int64

	mu   sync.Mutex
	last map[string]int64 // pair → last score written
}

// NewRedis creates a Redis sink keeping at most keep trades per pair.
// A non-positive keep disables trimming.
func NewRedis(client redis.Cmdable, keep int) *Redis {
	return &Redis{
		client: client,
		keep:   int64(keep),
		last:   make(map[string]int64),
	}
}

// score returns the next sorted-set score for t. Microsecond scores stay
// below 2^53, so float64 holds them exactly.
func (r *Redis) score(t domain.Trade) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := t.CreatedAt.UnixMicro()
	if last, ok := r.last[t.Pair]; ok && s <= last {
		s = last + 1
	}
	r.last[t.Pair] = s
	return s
}

// Deliver implements engine.TradeSink. The add and the trim run in one
// MULTI/EXEC transaction.
func (r *Redis) Deliver(ctx context.Context, t domain.Trade) error {
	member, err := Encode(t)
	if err != nil {
		return fmt.Errorf("encode trade %s: %w", t.TradeID, err)
	}
	key := TradeSetKey(t.Pair)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(r.score(t)),
			Member: member,
		})
		if r.keep > 0 {
			// Ranks are ascending by score: drop everything but the newest keep.
			pipe.ZRemRangeByRank(ctx, key, 0, -r.keep-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis zadd %s: %w", key, err)
	}
	return nil
}
