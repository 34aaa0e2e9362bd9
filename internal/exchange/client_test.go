package exchange

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEquitiesClient(baseURL string) *EquitiesClient {
	cfg := config.Config{}
	cfg.Equities.APIKey = "key"
	cfg.Equities.APISecret = "secret"
	cfg.Equities.BaseURL = baseURL
	cfg.Equities.DataURL = baseURL
	cfg.Equities.RateLimitPerMin = 6000 // don't throttle tests
	return NewEquitiesClient(cfg, testLogger())
}

func testPredictionClient(baseURL string) *PredictionClient {
	cfg := config.Config{}
	cfg.Prediction.APIKey = "test-key"
	cfg.Prediction.BaseURL = baseURL
	cfg.Prediction.RateLimitPerSec = 1000
	return NewPredictionClient(cfg, testLogger())
}

func TestSubmitOrderIdempotent(t *testing.T) {
	t.Parallel()

	var posts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/orders":
			posts.Add(1)
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(types.Order{
				ID:            "ord-1",
				ClientOrderID: body["client_order_id"].(string),
				Symbol:        "AAPL",
				Status:        "accepted",
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v2/orders/ord-1":
			json.NewEncoder(w).Encode(types.Order{ID: "ord-1", ClientOrderID: "cid-1", Status: "filled"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := testEquitiesClient(srv.URL)
	intent := types.OrderIntent{
		Symbol: "AAPL", Side: types.Buy, Qty: 10,
		Type: types.Market, TimeInForce: types.TIFDay, ClientOrderID: "cid-1",
	}

	first, err := c.SubmitOrder(context.Background(), intent)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := c.SubmitOrder(context.Background(), intent)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if posts.Load() != 1 {
		t.Errorf("POST count = %d, want 1 (duplicate must not resubmit)", posts.Load())
	}
	if first.ID != "ord-1" || second.ID != "ord-1" {
		t.Errorf("order ids = %q, %q, want ord-1", first.ID, second.ID)
	}
}

func TestSubmitOrderAssignsClientOrderID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		cid, _ := body["client_order_id"].(string)
		if cid == "" {
			t.Error("client_order_id missing from request body")
		}
		json.NewEncoder(w).Encode(types.Order{ID: "ord-2", ClientOrderID: cid})
	}))
	defer srv.Close()

	c := testEquitiesClient(srv.URL)
	_, err := c.SubmitOrder(context.Background(), types.OrderIntent{
		Symbol: "MSFT", Side: types.Buy, Qty: 5, Type: types.Market, TimeInForce: types.TIFDay,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestSubmitOrderVenueRejection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"message": "insufficient buying power"})
	}))
	defer srv.Close()

	c := testEquitiesClient(srv.URL)
	_, err := c.SubmitOrder(context.Background(), types.OrderIntent{
		Symbol: "AAPL", Side: types.Buy, Qty: 1000000, Type: types.Market, TimeInForce: types.TIFDay,
	})
	if err == nil {
		t.Fatal("expected rejection error")
	}

	oe, ok := AsOrderError(err)
	if !ok {
		t.Fatalf("error %v is not an OrderError", err)
	}
	if oe.Message != "insufficient buying power" {
		t.Errorf("message = %q", oe.Message)
	}
}

func TestSubmitOrderRecoversAlreadySubmitted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]any{
				"message": "client_order_id already submitted",
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v2/orders":
			json.NewEncoder(w).Encode([]types.Order{
				{ID: "ord-9", ClientOrderID: "other"},
				{ID: "ord-7", ClientOrderID: "cid-dup", Status: "filled"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := testEquitiesClient(srv.URL)
	order, err := c.SubmitOrder(context.Background(), types.OrderIntent{
		Symbol: "AAPL", Side: types.Buy, Qty: 10,
		Type: types.Market, TimeInForce: types.TIFDay, ClientOrderID: "cid-dup",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if order.ID != "ord-7" {
		t.Errorf("recovered order id = %q, want ord-7", order.ID)
	}
}

func TestDryRunDoesNotSubmit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request in dry-run: %s %s", r.Method, r.URL.Path)
	}))
	defer srv.Close()

	cfg := config.Config{DryRun: true}
	cfg.Equities.BaseURL = srv.URL
	cfg.Equities.DataURL = srv.URL
	cfg.Equities.RateLimitPerMin = 6000
	c := NewEquitiesClient(cfg, testLogger())

	order, err := c.SubmitOrder(context.Background(), types.OrderIntent{
		Symbol: "AAPL", Side: types.Buy, Qty: 10, Type: types.Market, TimeInForce: types.TIFDay,
	})
	if err != nil {
		t.Fatalf("dry-run submit: %v", err)
	}
	if order.Status != "accepted" {
		t.Errorf("status = %q, want accepted", order.Status)
	}
	if err := c.CancelOrder(context.Background(), "ord-1"); err != nil {
		t.Errorf("dry-run cancel: %v", err)
	}
}

func TestRetryAfterHonored(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"equity": "1000", "cash": "500", "buying_power": "2000", "portfolio_value": "1000",
		})
	}))
	defer srv.Close()

	c := testEquitiesClient(srv.URL)
	snap, err := c.GetAccount(context.Background())
	if err != nil {
		t.Fatalf("get account after 429: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if !snap.Equity.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("equity = %s, want 1000", snap.Equity)
	}
}

func TestPredictionReauthOn401(t *testing.T) {
	t.Parallel()

	var logins, balances atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			logins.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-2", "member_id": "m1"})
		case "/portfolio/balance":
			if balances.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if got := r.Header.Get("Authorization"); got != "Bearer tok-2" {
				t.Errorf("Authorization = %q, want Bearer tok-2", got)
			}
			json.NewEncoder(w).Encode(map[string]int64{"balance": 12345})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := config.Config{}
	cfg.Prediction.Email = "a@b.c"
	cfg.Prediction.Password = "pw"
	cfg.Prediction.BaseURL = srv.URL
	cfg.Prediction.RateLimitPerSec = 1000
	c := NewPredictionClient(cfg, testLogger())

	bal, err := c.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if bal != 12345 {
		t.Errorf("balance = %d, want 12345", bal)
	}
	if logins.Load() != 1 {
		t.Errorf("logins = %d, want 1", logins.Load())
	}
}

func TestCreateOrderValidatesPrice(t *testing.T) {
	t.Parallel()

	c := testPredictionClient("http://unused.invalid")
	_, err := c.CreateOrder(context.Background(), types.PredictionOrder{
		Ticker: "FED-DEC", Side: types.Yes, Action: types.Buy, Count: 10, YesPrice: 0,
	})
	if err == nil {
		t.Error("expected price validation error for 0")
	}
	_, err = c.CreateOrder(context.Background(), types.PredictionOrder{
		Ticker: "FED-DEC", Side: types.Yes, Action: types.Buy, Count: 10, YesPrice: 100,
	})
	if err == nil {
		t.Error("expected price validation error for 100")
	}
}

func TestGetPositionsSplitsSides(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"market_positions": []map[string]any{
				{"ticker": "A", "position": 50, "market_exposure_avg_price": 40, "last_price": 55},
				{"ticker": "B", "position": -30, "market_exposure_avg_price": 60, "last_price": 55},
				{"ticker": "C", "position": 0},
			},
		})
	}))
	defer srv.Close()

	c := testPredictionClient(srv.URL)
	positions, err := c.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("positions = %d, want 2 (flat position excluded)", len(positions))
	}
	if positions[0].Side != types.Yes || positions[0].Count != 50 {
		t.Errorf("first position = %+v, want 50 YES", positions[0])
	}
	if positions[1].Side != types.No || positions[1].Count != 30 || positions[1].AvgPrice != 40 {
		t.Errorf("second position = %+v, want 30 NO at 40", positions[1])
	}
}
