package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/koindex/koindex/internal/engine"
	"github.com/koindex/koindex/internal/service"
	"github.com/koindex/koindex/internal/store"
)

// testEnv bundles all dependencies for handler integration tests.
type testEnv struct {
	router   http.Handler
	orderSvc *service.OrderService
	tape     *store.TradeStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tape := store.NewTradeStore(100)
	seq := engine.NewSequencer(nil)
	disp := engine.NewDispatcher(tape, time.Second, nil)
	m := engine.NewMatcher(engine.NewBookManager(), seq, engine.NewRecorder(nil, nil), disp, nil)
	t.Cleanup(func() {
		_ = disp.Close(context.Background())
		seq.Close()
	})

	orderSvc := service.NewOrderService(m, tape)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(orderSvc, logger)

	return &testEnv{
		router:   router,
		orderSvc: orderSvc,
		tape:     tape,
	}
}

// doJSON sends a JSON request and returns the recorder.
func (env *testEnv) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// doRaw sends a raw request with optional content-type override.
func (env *testEnv) doRaw(t *testing.T, method, path, contentType, rawBody string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(rawBody))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// decodeJSON decodes the response body into v.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

// submitLimit submits a limit order via the API and returns the decoded response.
func (env *testEnv) submitLimit(t *testing.T, user, side string, price, qty any) map[string]any {
	t.Helper()
	rr := env.doJSON(t, "POST", "/api/orders", map[string]any{
		"pair":      "BTC-USDT",
		"side":      side,
		"type":      "LIMIT",
		"price":     price,
		"quantity":  qty,
		"user_id":   user,
		"timestamp": time.Now().UnixMilli(),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("submit limit: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	return resp
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doJSON(t, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp healthResponse
	decodeJSON(t, rr, &resp)
	if resp.Status != "ok" || resp.Pairs == nil || len(resp.Pairs) != 0 {
		t.Fatalf("unexpected health on a fresh engine: %+v", resp)
	}

	env.submitLimit(t, "alice", "BUY", "10", "1")
	rr = env.doJSON(t, "GET", "/healthz", nil)
	resp = healthResponse{}
	decodeJSON(t, rr, &resp)
	if len(resp.Pairs) != 1 || resp.Pairs[0] != "BTC-USDT" {
		t.Errorf("expected BTC-USDT to be active, got %v", resp.Pairs)
	}
}

func TestSubmitOrder_MarketOnUnknownPairStartsNoLane(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doJSON(t, "POST", "/api/orders", map[string]any{
		"pair": "DOGE-USDT", "side": "SELL", "type": "MARKET", "quantity": 1, "user_id": "u",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if pairs := env.orderSvc.ActivePairs(); len(pairs) != 0 {
		t.Errorf("rejected market order should not activate a pair, got %v", pairs)
	}
}

func TestSubmitOrder_RestsOnEmptyBook(t *testing.T) {
	env := newTestEnv(t)

	resp := env.submitLimit(t, "alice", "BUY", 10, "4")
	if resp["order_id"] == "" || resp["pair"] != "BTC-USDT" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if resp["filled_quantity"] != "0" || resp["quantity"] != "4" {
		t.Errorf("unexpected quantities: %v", resp)
	}
	trades, ok := resp["trades"].([]any)
	if !ok || len(trades) != 0 {
		t.Errorf("expected empty trades array, got %v", resp["trades"])
	}
	resting, ok := resp["resting"].(map[string]any)
	if !ok {
		t.Fatalf("expected resting object, got %v", resp["resting"])
	}
	if resting["side"] != "BID" || resting["price"] != "10" || resting["status"] != "NEW" {
		t.Errorf("unexpected resting: %v", resting)
	}
	if _, err := time.Parse(time.RFC3339Nano, resp["transact_time"].(string)); err != nil {
		t.Errorf("transact_time not RFC 3339: %v", resp["transact_time"])
	}
}

func TestSubmitOrder_MatchReturnsTrades(t *testing.T) {
	env := newTestEnv(t)

	maker := env.submitLimit(t, "alice", "SELL", "100.25", "2")
	resp := env.submitLimit(t, "bob", "BUY", "101", 0.5)

	trades := resp["trades"].([]any)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0].(map[string]any)
	if tr["price"] != "100.25" || tr["volume"] != "0.5" || tr["total_amount"] != "50.125" {
		t.Errorf("unexpected trade amounts: %v", tr)
	}
	if tr["color"] != "RED" || tr["bid_user_id"] != "bob" || tr["ask_order_id"] != maker["order_id"] {
		t.Errorf("unexpected trade parties: %v", tr)
	}
	if resp["resting"] != nil {
		t.Errorf("expected null resting, got %v", resp["resting"])
	}
}

func TestSubmitOrder_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad side", map[string]any{"pair": "BTC-USDT", "side": "HOLD", "type": "LIMIT", "price": 1, "quantity": 1, "user_id": "u"}},
		{"bad type", map[string]any{"pair": "BTC-USDT", "side": "BUY", "type": "STOP", "price": 1, "quantity": 1, "user_id": "u"}},
		{"missing price", map[string]any{"pair": "BTC-USDT", "side": "BUY", "type": "LIMIT", "quantity": 1, "user_id": "u"}},
		{"zero quantity", map[string]any{"pair": "BTC-USDT", "side": "BUY", "type": "LIMIT", "price": 1, "quantity": 0, "user_id": "u"}},
		{"too many decimals", map[string]any{"pair": "BTC-USDT", "side": "BUY", "type": "LIMIT", "price": "1.123456789", "quantity": 1, "user_id": "u"}},
		{"bad pair", map[string]any{"pair": "BTCUSDT", "side": "BUY", "type": "LIMIT", "price": 1, "quantity": 1, "user_id": "u"}},
		{"market with price", map[string]any{"pair": "BTC-USDT", "side": "BUY", "type": "MARKET", "price": 1, "quantity": 1, "user_id": "u"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.doJSON(t, "POST", "/api/orders", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			var resp errorResponse
			decodeJSON(t, rr, &resp)
			if resp.Error != "validation_error" {
				t.Errorf("error = %q, want validation_error", resp.Error)
			}
		})
	}
}

func TestSubmitOrder_RequestErrors(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doRaw(t, "POST", "/api/orders", "text/plain", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("wrong content type: expected 400, got %d", rr.Code)
	}
	rr = env.doRaw(t, "POST", "/api/orders", "application/json", `{"pair":"BTC-USDT","extra":1}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown field: expected 400, got %d", rr.Code)
	}
	rr = env.doRaw(t, "POST", "/api/orders", "application/json", `{"quantity":true}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("boolean quantity: expected 400, got %d", rr.Code)
	}
}

func TestSubmitOrder_MarketNoLiquidity(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doJSON(t, "POST", "/api/orders", map[string]any{
		"pair": "BTC-USDT", "side": "BUY", "type": "MARKET", "quantity": 4, "user_id": "u",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error != "no_liquidity" {
		t.Errorf("error = %q, want no_liquidity", resp.Error)
	}
}

func TestCancelOrder(t *testing.T) {
	env := newTestEnv(t)
	placed := env.submitLimit(t, "alice", "SELL", "20", "3")

	body := map[string]any{"id": placed["order_id"], "pair": "btc-usdt", "side": "ASK"}
	rr := env.doJSON(t, "PUT", "/api/orders/cancel", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["message"] != "Order is cancelled successfully." || resp["cancelled_quantity"] != "3" {
		t.Errorf("unexpected cancel response: %v", resp)
	}

	rr = env.doJSON(t, "PUT", "/api/orders/cancel", body)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second cancel: expected 404, got %d", rr.Code)
	}
}

func TestCancelOrder_BadSide(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doJSON(t, "PUT", "/api/orders/cancel", map[string]any{"id": "x", "pair": "BTC-USDT", "side": "LEFT"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListNew(t *testing.T) {
	env := newTestEnv(t)
	env.submitLimit(t, "a", "BUY", "10", "1")
	env.submitLimit(t, "b", "BUY", "11", "1")
	env.submitLimit(t, "c", "SELL", "12", "1")

	rr := env.doJSON(t, "GET", "/api/orders/new/btc-usdt", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Pair string           `json:"pair"`
		Bid  []map[string]any `json:"bid"`
		Ask  []map[string]any `json:"ask"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Pair != "BTC-USDT" || len(resp.Bid) != 2 || len(resp.Ask) != 1 {
		t.Fatalf("unexpected book: %+v", resp)
	}
	if resp.Bid[0]["price"] != "11" {
		t.Errorf("expected best bid first, got %v", resp.Bid[0]["price"])
	}

	rr = env.doJSON(t, "GET", "/api/orders/new/ETH-USDT", nil)
	var empty struct {
		Bid []any `json:"bid"`
		Ask []any `json:"ask"`
	}
	decodeJSON(t, rr, &empty)
	if empty.Bid == nil || empty.Ask == nil || len(empty.Bid)+len(empty.Ask) != 0 {
		t.Errorf("expected empty arrays for an unknown pair, got %+v", empty)
	}
}

func TestGetDepth(t *testing.T) {
	env := newTestEnv(t)
	env.submitLimit(t, "a", "SELL", "12", "1")
	env.submitLimit(t, "b", "SELL", "12", "2.5")
	env.submitLimit(t, "c", "SELL", "13", "1")

	rr := env.doJSON(t, "GET", "/api/orders/depth/BTC-USDT?levels=1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp depthResponse
	decodeJSON(t, rr, &resp)
	if len(resp.Asks) != 1 || resp.Asks[0].Quantity != "3.5" || resp.Asks[0].OrderCount != 2 {
		t.Errorf("unexpected asks: %+v", resp.Asks)
	}
	if resp.Bids == nil || len(resp.Bids) != 0 {
		t.Errorf("expected empty bids array, got %+v", resp.Bids)
	}

	rr = env.doJSON(t, "GET", "/api/orders/depth/BTC-USDT?levels=abc", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-integer levels, got %d", rr.Code)
	}
}

func TestListTradesByPair(t *testing.T) {
	env := newTestEnv(t)
	env.submitLimit(t, "a", "SELL", "10", "1")
	env.submitLimit(t, "b", "SELL", "10", "1")
	env.submitLimit(t, "c", "BUY", "10", "2")

	var trades []map[string]any
	deadline := time.Now().Add(2 * time.Second)
	for {
		rr := env.doJSON(t, "GET", "/api/trades/pair/btc-usdt?limit=10", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		trades = nil
		decodeJSON(t, rr, &trades)
		if len(trades) == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0]["bid_user_id"] != "c" || trades[0]["ask_user_id"] != "b" {
		t.Errorf("expected newest trade first, got %v", trades[0])
	}

	rr := env.doJSON(t, "GET", "/api/trades/pair/nope", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid pair, got %d", rr.Code)
	}
}

func TestRequestLogging_RoutePatternAndPair(t *testing.T) {
	env := newTestEnv(t)
	var buf bytes.Buffer
	router := NewRouter(env.orderSvc, slog.New(slog.NewJSONHandler(&buf, nil)))

	req := httptest.NewRequest("GET", "/api/orders/depth/btc-usdt?levels=3", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["route"] != "/api/orders/depth/{pair}" || entry["pair"] != "btc-usdt" {
		t.Errorf("unexpected log entry: %v", entry)
	}
	if entry["level"] != "INFO" || entry["status"] != float64(http.StatusOK) {
		t.Errorf("unexpected level/status: %v", entry)
	}
}
