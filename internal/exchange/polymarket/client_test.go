package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetBookSortsLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/book" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bids": []map[string]string{
				{"price": "0.52", "size": "100"},
				{"price": "0.54", "size": "300"},
			},
			"asks": []map[string]string{
				{"price": "0.60", "size": "200"},
				{"price": "0.55", "size": "500"},
				{"price": "0.58", "size": "0"}, // 零量档位应被丢弃
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second)
	book, err := c.GetBook(context.Background(), "token-123")
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if book.BestBid() != 0.54 {
		t.Fatalf("best bid = %.2f, want 0.54", book.BestBid())
	}
	if book.BestAsk() != 0.55 {
		t.Fatalf("best ask = %.2f, want 0.55", book.BestAsk())
	}
	if len(book.Asks) != 2 {
		t.Fatalf("zero-size level not dropped: %d asks", len(book.Asks))
	}
}

func TestGetBookBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bids": []map[string]string{{"price": "not-a-number", "size": "100"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second)
	if _, err := c.GetBook(context.Background(), "token-123"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGetMarketNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]any{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second)
	if _, err := c.GetMarket(context.Background(), "0xdead"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestEmptyBookBestPrices(t *testing.T) {
	b := BookSnapshot{}
	if b.BestBid() != 0 || b.BestAsk() != 0 {
		t.Fatal("empty book should report zero best prices")
	}
}
