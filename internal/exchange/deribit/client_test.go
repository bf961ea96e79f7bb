package deribit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInstrumentName(t *testing.T) {
	got := InstrumentName("btc", "29aug25", 100000)
	if got != "BTC-29AUG25-100000-C" {
		t.Fatalf("instrument name = %s", got)
	}
}

func TestGetTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/public/ticker" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("instrument_name"); got != "BTC-29AUG25-100000-C" {
			t.Fatalf("unexpected instrument %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"instrument_name": "BTC-29AUG25-100000-C",
				"best_bid_price":  0.0235,
				"best_ask_price":  0.0255,
				"mark_iv":         70.5,
				"index_price":     102000.0,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	tk, err := c.GetTicker(context.Background(), "BTC-29AUG25-100000-C")
	if err != nil {
		t.Fatalf("GetTicker: %v", err)
	}
	if tk.MarkIV != 70.5 || tk.IndexPrice != 102000 {
		t.Fatalf("unexpected ticker %+v", tk)
	}
}

func TestGetTickerAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 10004, "message": "instrument_not_found"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if _, err := c.GetTicker(context.Background(), "BTC-BOGUS"); err == nil {
		t.Fatal("expected api error")
	}
}

func TestGetDeliveryPriceEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"data": []any{}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if _, err := c.GetDeliveryPrice(context.Background(), "btc_usd"); err == nil {
		t.Fatal("expected error for empty delivery prices")
	}
}
