package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/koindex/koindex/internal/domain"
)

// TradeSink receives trades after they leave the exclusive region of their
// pair. Deliver is called once per trade, in generation order per pair.
type TradeSink interface {
	Deliver(ctx context.Context, trade domain.Trade) error
}

// TradeSinkFunc adapts a function to the TradeSink interface.
type TradeSinkFunc func(ctx context.Context, trade domain.Trade) error

// Deliver calls f(ctx, trade).
func (f TradeSinkFunc) Deliver(ctx context.Context, trade domain.Trade) error {
	return f(ctx, trade)
}

// outbox is the FIFO of trades awaiting delivery for one pair.
type outbox struct {
	mu      sync.Mutex
	pending []domain.Trade
	closing bool
	wake    chan struct{}
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Dispatcher hands trades from the matcher to a TradeSink. Enqueue never
// blocks on the sink: each pair has an outbox drained by its own goroutine,
// so a slow sink delays delivery but never matching.
type Dispatcher struct {
	sink    TradeSink
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	outboxes map[string]*outbox
	closed   bool
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher delivering to sink. Each Deliver call
// is bounded by timeout when it is positive.
func NewDispatcher(sink TradeSink, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sink:     sink,
		timeout:  timeout,
		logger:   logger,
		outboxes: make(map[string]*outbox),
	}
}

// Enqueue appends trades to the outbox of pair. Called from inside the
// pair's exclusive region, it fixes the delivery order.
func (d *Dispatcher) Enqueue(pair string, trades ...domain.Trade) {
	if len(trades) == 0 {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("dispatcher closed, dropping trades", "pair", pair, "count", len(trades))
		return
	}
	ob, ok := d.outboxes[pair]
	if !ok {
		ob = &outbox{wake: make(chan struct{}, 1)}
		d.outboxes[pair] = ob
		d.wg.Add(1)
		go d.drain(pair, ob)
	}
	ob.mu.Lock()
	ob.pending = append(ob.pending, trades...)
	ob.mu.Unlock()
	d.mu.Unlock()
	ob.signal()
}

func (d *Dispatcher) drain(pair string, ob *outbox) {
	defer d.wg.Done()
	for {
		ob.mu.Lock()
		batch := ob.pending
		ob.pending = nil
		closing := ob.closing
		ob.mu.Unlock()

		for _, t := range batch {
			d.deliver(t)
		}
		if len(batch) > 0 {
			continue
		}
		if closing {
			return
		}
		<-ob.wake
	}
}

func (d *Dispatcher) deliver(t domain.Trade) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := d.sink.Deliver(ctx, t); err != nil {
		d.logger.Error("trade delivery failed",
			"pair", t.Pair,
			"trade_id", t.TradeID,
			"error", err,
		)
	}
}

// Close stops accepting trades and waits until every outbox is drained or
// ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	for _, ob := range d.outboxes {
		ob.mu.Lock()
		ob.closing = true
		ob.mu.Unlock()
		ob.signal()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
