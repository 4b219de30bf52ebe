package pricehistory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	"FxSentry/internal/service/retry"
	xhttp "FxSentry/pkg/http"
)

// Client fetches recent OHLC candles from the external price store.
type Client struct {
	baseURL string
	http    *xhttp.Client
	retry   retry.Policy
}

// New creates a price-history client.
func New(baseURL string, timeout time.Duration, policy retry.Policy) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retry:   policy.Normalized(),
	}
}

type candleDTO struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type candlesResponse struct {
	Candles []candleDTO `json:"candles"`
}

// GetCandles returns up to limit bars for the key, ordered newest-last.
func (c *Client) GetCandles(ctx context.Context, instrument string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	var out []models.Candle
	op := func(ctx context.Context) error {
		var err error
		out, err = c.getOnce(ctx, instrument, tf, limit)
		return err
	}
	err := c.retry.Do(ctx, op, func(err error) bool { return domrepo.IsUpstream(err) })
	return out, err
}

func (c *Client) getOnce(ctx context.Context, instrument string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/candles",
		QueryParams: map[string][]string{
			"instrument": {instrument},
			"timeframe":  {string(tf)},
			"limit":      {strconv.Itoa(limit)},
		},
	})
	if err != nil {
		return nil, &domrepo.UpstreamError{Service: "price_history", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domrepo.UpstreamError{
			Service: "price_history",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, body),
		}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("price history rejected request: status %d", resp.StatusCode)
	}

	var out candlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &domrepo.UpstreamError{Service: "price_history", Err: fmt.Errorf("decode response: %w", err)}
	}

	candles := make([]models.Candle, 0, len(out.Candles))
	for _, d := range out.Candles {
		candles = append(candles, models.Candle{
			Timestamp: time.Unix(d.TS, 0).UTC(),
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    d.Volume,
		})
	}
	return candles, nil
}
