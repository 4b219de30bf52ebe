package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	"FxSentry/internal/service/retry"
)

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 2, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond}
}

func someCandles() []models.Candle {
	return []models.Candle{
		{Timestamp: time.Unix(1700000000, 0), Open: 1.1, High: 1.2, Low: 1.05, Close: 1.15, Volume: 100},
	}
}

func TestPredictSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Instrument != "EUR/USD" || req.Timeframe != "1h" {
			t.Fatalf("unexpected request %+v", req)
		}
		if len(req.Candles) != 1 {
			t.Fatalf("expected 1 candle, got %d", len(req.Candles))
		}
		_ = json.NewEncoder(w).Encode(predictResponse{
			Label:           "buy",
			Confidence:      0.78,
			Strength:        "strong",
			MarketCondition: "trending",
			ReferencePrice:  "1.0850",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, fastRetry())
	p, err := c.Predict(context.Background(), "EUR/USD", domrepo.TF1h, someCandles())
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if p.Label != models.LabelBuy || p.Confidence != 0.78 {
		t.Fatalf("unexpected prediction %+v", p)
	}
	if p.ReferencePrice.String() != "1.085" {
		t.Fatalf("unexpected reference price %s", p.ReferencePrice)
	}
}

func TestPredictInsufficientDataNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: "insufficient_data"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, fastRetry())
	_, err := c.Predict(context.Background(), "EUR/USD", domrepo.TF1h, someCandles())
	if !errors.Is(err, domrepo.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("insufficient_data should not be retried, got %d calls", calls)
	}
}

func TestPredictRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(predictResponse{Label: "hold", Confidence: 0.5})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, fastRetry())
	p, err := c.Predict(context.Background(), "EUR/USD", domrepo.TF1h, someCandles())
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if p.Label != models.LabelHold {
		t.Fatalf("unexpected label %s", p.Label)
	}
	if calls != 2 {
		t.Fatalf("expected retry after 502, got %d calls", calls)
	}
}

func TestPredictUpstreamExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, fastRetry())
	_, err := c.Predict(context.Background(), "EUR/USD", domrepo.TF1h, someCandles())
	if !domrepo.IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestPredictRejectsMalformedLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(predictResponse{Label: "yolo", Confidence: 0.5})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, fastRetry())
	if _, err := c.Predict(context.Background(), "EUR/USD", domrepo.TF1h, someCandles()); err == nil {
		t.Fatal("malformed label should fail")
	}
}
