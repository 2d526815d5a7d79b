package sink

import (
	"context"
	"errors"

	"github.com/koindex/koindex/internal/domain"
	"github.com/koindex/koindex/internal/engine"
)

// Fanout delivers each trade to every sink in order. A failing sink does
// not prevent delivery to the ones after it.
type Fanout []engine.TradeSink

// Deliver implements engine.TradeSink. Errors are joined.
func (f Fanout) Deliver(ctx context.Context, t domain.Trade) error {
	var errs []error
	for _, s := range f {
		if err := s.Deliver(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
