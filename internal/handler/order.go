package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/koindex/koindex/internal/domain"
	"github.com/koindex/koindex/internal/engine"
	"github.com/koindex/koindex/internal/service"
	"github.com/koindex/koindex/internal/sink"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// decimalText accepts either a JSON number or a JSON string holding one.
type decimalText string

func (d *decimalText) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = decimalText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*d = decimalText(n)
	return nil
}

// submitOrderRequest is the JSON request body for POST /api/orders.
type submitOrderRequest struct {
	Pair      string       `json:"pair"`
	Side      string       `json:"side"`
	Type      string       `json:"type"`
	Price     *decimalText `json:"price"`
	Quantity  decimalText  `json:"quantity"`
	UserID    string       `json:"user_id"`
	Timestamp *int64       `json:"timestamp"` // unix milliseconds
}

// cancelOrderRequest is the JSON request body for PUT /api/orders/cancel.
type cancelOrderRequest struct {
	ID   string `json:"id"`
	Pair string `json:"pair"`
	Side string `json:"side"`
}

// orderAckResponse is the JSON response for a submission.
// All fields are always present; resting is null when nothing rested.
type orderAckResponse struct {
	OrderID        string              `json:"order_id"`
	Pair           string              `json:"pair"`
	Side           string              `json:"side"`
	Type           string              `json:"type"`
	Quantity       string              `json:"quantity"`
	FilledQuantity string              `json:"filled_quantity"`
	TransactTime   string              `json:"transact_time"`
	Trades         []sink.TradeMessage `json:"trades"`
	Resting        *restingResponse    `json:"resting"`
}

// restingResponse is a single resting order.
type restingResponse struct {
	OrderID           string `json:"order_id"`
	Pair              string `json:"pair"`
	Side              string `json:"side"`
	Price             string `json:"price"`
	RemainingQuantity string `json:"remaining_quantity"`
	UserID            string `json:"user_id"`
	Status            string `json:"status"`
	CreatedAt         string `json:"created_at"`
}

type cancellationResponse struct {
	OrderID           string `json:"order_id"`
	Pair              string `json:"pair"`
	Side              string `json:"side"`
	CancelledQuantity string `json:"cancelled_quantity"`
	CancelledAt       string `json:"cancelled_at"`
	Message           string `json:"message"`
}

type bookResponse struct {
	Pair string            `json:"pair"`
	Bid  []restingResponse `json:"bid"`
	Ask  []restingResponse `json:"ask"`
}

type priceLevelResponse struct {
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	OrderCount int    `json:"order_count"`
}

type depthResponse struct {
	Pair string               `json:"pair"`
	Bids []priceLevelResponse `json:"bids"`
	Asks []priceLevelResponse `json:"asks"`
}

// SubmitOrder handles POST /api/orders.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	svcReq := service.SubmitOrderRequest{
		Pair:     req.Pair,
		Side:     req.Side,
		Type:     req.Type,
		Quantity: string(req.Quantity),
		UserID:   req.UserID,
	}
	if req.Price != nil {
		p := string(*req.Price)
		svcReq.Price = &p
	}
	if req.Timestamp != nil {
		ts := time.UnixMilli(*req.Timestamp)
		svcReq.Timestamp = &ts
	}

	ack, err := h.orderSvc.SubmitOrder(r.Context(), svcReq)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildAckResponse(ack))
}

// CancelOrder handles PUT /api/orders/cancel.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	c, err := h.orderSvc.CancelOrder(r.Context(), service.CancelOrderRequest{
		ID:   req.ID,
		Pair: req.Pair,
		Side: req.Side,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, cancellationResponse{
		OrderID:           c.OrderID,
		Pair:              c.Pair,
		Side:              string(c.Side),
		CancelledQuantity: c.CancelledQuantity.String(),
		CancelledAt:       formatTime(c.CancelledAt),
		Message:           c.Message,
	})
}

// ListNew handles GET /api/orders/new/{pair}.
func (h *OrderHandler) ListNew(w http.ResponseWriter, r *http.Request) {
	view, err := h.orderSvc.Book(r.Context(), chi.URLParam(r, "pair"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, bookResponse{
		Pair: view.Pair,
		Bid:  buildRestingList(view.Bids),
		Ask:  buildRestingList(view.Asks),
	})
}

// GetDepth handles GET /api/orders/depth/{pair}?levels=N.
func (h *OrderHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	levels, ok := queryInt(w, r, "levels")
	if !ok {
		return
	}

	view, err := h.orderSvc.Depth(r.Context(), chi.URLParam(r, "pair"), levels)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, depthResponse{
		Pair: view.Pair,
		Bids: buildLevels(view.Bids),
		Asks: buildLevels(view.Asks),
	})
}

// queryInt reads an optional integer query parameter. It writes a 400 and
// returns false when the value is present but not an integer.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", name+" must be an integer")
		return 0, false
	}
	return n, true
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func buildAckResponse(ack *domain.OrderAck) orderAckResponse {
	resp := orderAckResponse{
		OrderID:        ack.OrderID,
		Pair:           ack.Pair,
		Side:           string(ack.Side),
		Type:           string(ack.Type),
		Quantity:       ack.Quantity.String(),
		FilledQuantity: ack.FilledQuantity.String(),
		TransactTime:   formatTime(ack.TransactTime),
		Trades:         make([]sink.TradeMessage, 0, len(ack.Trades)),
	}
	for _, t := range ack.Trades {
		resp.Trades = append(resp.Trades, sink.NewTradeMessage(t))
	}
	if ack.Resting != nil {
		rr := buildResting(*ack.Resting)
		resp.Resting = &rr
	}
	return resp
}

func buildResting(o domain.RestingOrder) restingResponse {
	return restingResponse{
		OrderID:           o.ID,
		Pair:              o.Pair,
		Side:              string(o.Side),
		Price:             o.Price.String(),
		RemainingQuantity: o.RemainingQuantity.String(),
		UserID:            o.UserID,
		Status:            string(o.Status),
		CreatedAt:         formatTime(o.CreatedAt),
	}
}

func buildRestingList(orders []domain.RestingOrder) []restingResponse {
	out := make([]restingResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, buildResting(o))
	}
	return out
}

func buildLevels(levels []engine.PriceLevel) []priceLevelResponse {
	out := make([]priceLevelResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, priceLevelResponse{
			Price:      l.Price.String(),
			Quantity:   l.TotalQuantity.String(),
			OrderCount: l.OrderCount,
		})
	}
	return out
}
