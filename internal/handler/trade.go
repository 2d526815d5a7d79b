package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/koindex/koindex/internal/service"
	"github.com/koindex/koindex/internal/sink"
)

// TradeHandler serves the recent-trades tape.
type TradeHandler struct {
	orderSvc *service.OrderService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(orderSvc *service.OrderService) *TradeHandler {
	return &TradeHandler{orderSvc: orderSvc}
}

// ListByPair handles GET /api/trades/pair/{pair}?limit=N.
func (h *TradeHandler) ListByPair(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	trades, err := h.orderSvc.RecentTrades(chi.URLParam(r, "pair"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]sink.TradeMessage, 0, len(trades))
	for _, t := range trades {
		out = append(out, sink.NewTradeMessage(t))
	}
	WriteJSON(w, http.StatusOK, out)
}
