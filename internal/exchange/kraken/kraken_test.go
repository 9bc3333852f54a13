package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cyberbuild/cb-trade-data-service/internal/config"
	"github.com/cyberbuild/cb-trade-data-service/internal/exchange"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestConnector(t *testing.T, handler http.Handler) *Connector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.KrakenConfig{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		RateLimit:  1000,
		Burst:      10,
	}
	c, err := New(cfg, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	c.retryBackoff = time.Millisecond // keep retry tests fast
	return c
}

func ohlcResponse(pairKey string, last int64, rows ...[]any) map[string]any {
	result := map[string]any{pairKey: rows, "last": last}
	return map[string]any{"error": []string{}, "result": result}
}

func row(ts time.Time, o, h, l, c, vol string, trades int) []any {
	return []any{ts.Unix(), o, h, l, c, o, vol, trades}
}

func TestConnector_FetchRange(t *testing.T) {
	c := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0/public/OHLC" {
			t.Errorf("path = %s, want /0/public/OHLC", r.URL.Path)
		}
		if got := r.URL.Query().Get("pair"); got != "XBTUSD" {
			t.Errorf("pair = %q, want XBTUSD", got)
		}
		if got := r.URL.Query().Get("interval"); got != "5" {
			t.Errorf("interval = %q, want 5", got)
		}
		resp := ohlcResponse("XXBTZUSD", base.Add(5*time.Minute).Unix(),
			row(base, "100.5", "101", "99", "100.8", "3.25", 12),
			row(base.Add(5*time.Minute), "100.8", "102", "100", "101.2", "1.5", 7),
		)
		json.NewEncoder(w).Encode(resp)
	}))

	entries, err := c.FetchRange(context.Background(), "BTC/USD", base, base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("FetchRange() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if !entries[0].Candle.Open.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("Open = %s, want 100.5", entries[0].Candle.Open)
	}
	if entries[0].Candle.Trades != 12 {
		t.Errorf("Trades = %d, want 12", entries[0].Candle.Trades)
	}
	if entries[1].Exchange != "kraken" || entries[1].Coin != "BTC_USD" {
		t.Errorf("key = %s/%s, want kraken/BTC_USD", entries[1].Exchange, entries[1].Coin)
	}
}

func TestConnector_FetchRange_FiltersAndEmpty(t *testing.T) {
	c := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// One row before the range, one inside, one at the exclusive end.
		resp := ohlcResponse("XXBTZUSD", base.Add(10*time.Minute).Unix(),
			row(base.Add(-5*time.Minute), "1", "1", "1", "1", "1", 1),
			row(base, "1", "1", "1", "1", "1", 1),
			row(base.Add(10*time.Minute), "1", "1", "1", "1", "1", 1),
		)
		json.NewEncoder(w).Encode(resp)
	}))

	entries, err := c.FetchRange(context.Background(), "BTC/USD", base, base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("FetchRange() error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1 (bounds are [start, end))", len(entries))
	}
}

func TestConnector_FetchRange_NoData(t *testing.T) {
	c := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ohlcResponse("XXBTZUSD", 0))
	}))

	entries, err := c.FetchRange(context.Background(), "BTC/USD", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("FetchRange(no data) error: %v, want nil", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}

func TestConnector_FetchRange_ClassifiedError(t *testing.T) {
	c := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": []string{"EGeneral:Invalid arguments"}})
	}))

	_, err := c.FetchRange(context.Background(), "BTC/USD", base, base.Add(time.Hour))
	var ue *exchange.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if ue.Retryable {
		t.Error("Retryable = true for invalid arguments, want false")
	}
	if ue.Exchange != "kraken" {
		t.Errorf("Exchange = %q, want kraken", ue.Exchange)
	}
}

func TestConnector_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(ohlcResponse("XXBTZUSD", 0))
	}))

	_, err := c.FetchRange(context.Background(), "BTC/USD", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("FetchRange() error after retry: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2 (one retry)", got)
	}
}

func TestConnector_CheckAvailability(t *testing.T) {
	c := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0/public/AssetPairs" {
			t.Errorf("path = %s, want /0/public/AssetPairs", r.URL.Path)
		}
		if r.URL.Query().Get("pair") == "XBTUSD" {
			json.NewEncoder(w).Encode(map[string]any{
				"error":  []string{},
				"result": map[string]any{"XXBTZUSD": map[string]any{"altname": "XBTUSD"}},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"error": []string{"EQuery:Unknown asset pair"}})
	}))

	ok, err := c.CheckAvailability(context.Background(), "BTC/USD")
	if err != nil || !ok {
		t.Errorf("CheckAvailability(BTC/USD) = %v, %v, want true, nil", ok, err)
	}

	ok, err = c.CheckAvailability(context.Background(), "NOPE/USD")
	if err != nil {
		t.Fatalf("CheckAvailability(unknown) error: %v, want nil", err)
	}
	if ok {
		t.Error("CheckAvailability(unknown) = true, want false")
	}
}

func TestPair(t *testing.T) {
	tests := []struct{ in, want string }{
		{"BTC/USD", "XBTUSD"},
		{"eth/usd", "ETHUSD"},
		{"btc_usdt", "XBTUSDT"},
	}
	for _, tt := range tests {
		if got := pair(tt.in); got != tt.want {
			t.Errorf("pair(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_UnsupportedInterval(t *testing.T) {
	_, err := New(config.KrakenConfig{RateLimit: 1}, 7*time.Minute, nil)
	if err == nil {
		t.Error("New(7m interval) = nil error, want unsupported interval")
	}
}
