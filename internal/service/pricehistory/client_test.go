package pricehistory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domrepo "FxSentry/internal/domain/repository"
	"FxSentry/internal/service/retry"
)

func TestGetCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("instrument") != "EUR/USD" || q.Get("timeframe") != "1h" || q.Get("limit") != "100" {
			t.Fatalf("unexpected query %v", q)
		}
		_ = json.NewEncoder(w).Encode(candlesResponse{Candles: []candleDTO{
			{TS: 1700000000, Open: 1.09, High: 1.10, Low: 1.08, Close: 1.095, Volume: 10},
			{TS: 1700003600, Open: 1.095, High: 1.11, Low: 1.09, Close: 1.105, Volume: 12},
		}})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, retry.Default())
	cs, err := c.GetCandles(context.Background(), "EUR/USD", domrepo.TF1h, 100)
	if err != nil {
		t.Fatalf("get candles: %v", err)
	}
	if len(cs) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(cs))
	}
	if !cs[1].Timestamp.After(cs[0].Timestamp) {
		t.Fatal("candles should stay newest-last")
	}
	if cs[1].Close != 1.105 {
		t.Fatalf("unexpected close %v", cs[1].Close)
	}
}

func TestGetCandlesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, retry.Policy{MaxAttempts: 2, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond})
	_, err := c.GetCandles(context.Background(), "EUR/USD", domrepo.TF1h, 100)
	if !domrepo.IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
