package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	"FxSentry/internal/service/retry"
	xhttp "FxSentry/pkg/http"

	"github.com/shopspring/decimal"
)

// Client wraps the external reversal/direction prediction endpoint.
type Client struct {
	baseURL string
	http    *xhttp.Client
	retry   retry.Policy
}

// New creates a prediction client.
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

type predictRequest struct {
	Instrument string      `json:"instrument"`
	Timeframe  string      `json:"timeframe"`
	Candles    []candleDTO `json:"candles"`
}

type predictResponse struct {
	Label           string  `json:"label"`
	Confidence      float64 `json:"confidence"`
	Strength        string  `json:"strength"`
	MarketCondition string  `json:"marketCondition"`
	ReferencePrice  string  `json:"referencePrice"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Predict submits recent history and returns a typed prediction. Transient
// failures are retried per the shared policy; insufficient_data is returned
// as-is and never retried.
func (c *Client) Predict(ctx context.Context, instrument string, tf domrepo.Timeframe, candles []models.Candle) (models.Prediction, error) {
	req := predictRequest{
		Instrument: instrument,
		Timeframe:  string(tf),
		Candles:    make([]candleDTO, 0, len(candles)),
	}
	for _, cd := range candles {
		req.Candles = append(req.Candles, candleDTO{
			TS:     cd.Timestamp.Unix(),
			Open:   cd.Open,
			High:   cd.High,
			Low:    cd.Low,
			Close:  cd.Close,
			Volume: cd.Volume,
		})
	}

	var p models.Prediction
	op := func(ctx context.Context) error {
		var err error
		p, err = c.predictOnce(ctx, req)
		return err
	}
	err := c.retry.Do(ctx, op, func(err error) bool { return domrepo.IsUpstream(err) })
	return p, err
}

func (c *Client) predictOnce(ctx context.Context, req predictRequest) (models.Prediction, error) {
	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    c.baseURL + "/predict",
		Body:   req,
	})
	if err != nil {
		return models.Prediction{}, &domrepo.UpstreamError{Service: "prediction", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		// fallthrough to decode
	case resp.StatusCode >= http.StatusInternalServerError:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Prediction{}, &domrepo.UpstreamError{
			Service: "prediction",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, body),
		}
	default:
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err == nil && er.Error == "insufficient_data" {
			return models.Prediction{}, domrepo.ErrInsufficientData
		}
		return models.Prediction{}, fmt.Errorf("prediction rejected request: status %d", resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Prediction{}, &domrepo.UpstreamError{Service: "prediction", Err: fmt.Errorf("decode response: %w", err)}
	}
	return toPrediction(out)
}

func toPrediction(out predictResponse) (models.Prediction, error) {
	label, err := models.ParseSignalLabel(out.Label)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("malformed prediction: %w", err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return models.Prediction{}, fmt.Errorf("malformed prediction: confidence %v out of [0,1]", out.Confidence)
	}
	strength := models.SignalStrength(out.Strength)
	if !strength.IsValid() {
		strength = models.StrengthModerate
	}
	condition := models.MarketCondition(out.MarketCondition)
	if !condition.IsValid() {
		condition = models.ConditionUnknown
	}
	ref := decimal.Zero
	if out.ReferencePrice != "" {
		ref, err = decimal.NewFromString(out.ReferencePrice)
		if err != nil {
			return models.Prediction{}, fmt.Errorf("malformed prediction: reference price %q", out.ReferencePrice)
		}
	}
	return models.Prediction{
		Label:           label,
		Confidence:      out.Confidence,
		Strength:        strength,
		MarketCondition: condition,
		ReferencePrice:  ref,
	}, nil
}
