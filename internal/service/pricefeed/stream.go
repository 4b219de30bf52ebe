package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	domrepo "FxSentry/internal/domain/repository"
	applogger "FxSentry/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Stream keeps a last-price table current from a WebSocket tick feed.
// Position revaluation reads prices through the PriceFeed interface; when a
// price is stale or missing the monitor falls back to candle closes.
type Stream struct {
	apiKey         string
	websocketURL   string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *applogger.Logger
	metrics        domrepo.Metrics

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	prices    map[string]tick

	instruments []string
}

type tick struct {
	price decimal.Decimal
	at    time.Time
}

// New creates a price feed stream for the given instruments.
func New(apiKey, websocketURL string, instruments []string, reconnectDelay, pingInterval time.Duration, lgr *applogger.Logger, metrics domrepo.Metrics) *Stream {
	return &Stream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		instruments:    instruments,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		logger:         lgr,
		metrics:        metrics,
		prices:         map[string]tick{},
	}
}

// LastPrice returns the most recent live price for an instrument.
func (s *Stream) LastPrice(instrument string) (decimal.Decimal, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.prices[instrument]
	if !ok {
		return decimal.Zero, time.Time{}, false
	}
	return t.price, t.at, true
}

// IsConnected indicates feed status.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Start connects, subscribes and launches the read/ping loops. The loops
// reconnect on read failure until ctx is cancelled.
func (s *Stream) Start(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	go s.pingLoop(ctx)
	go s.readLoop(ctx)
	return nil
}

func (s *Stream) connect(ctx context.Context) error {
	u := s.websocketURL
	if s.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", s.websocketURL, s.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("price feed connect: %w", err)
	}

	for _, inst := range s.instruments {
		msg := map[string]string{"type": "subscribe", "instrument": inst}
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return fmt.Errorf("subscribe %s: %w", inst, err)
		}
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	s.logger.Info("price feed connected", applogger.Strings("instruments", s.instruments))
	return nil
}

type feedMessage struct {
	Type string `json:"type"`
	Data []struct {
		Instrument string  `json:"instrument"`
		Price      float64 `json:"price"`
		TS         int64   `json:"ts"` // ms
	} `json:"data"`
}

func (s *Stream) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			s.reconnect(ctx)
			continue
		}

		_, b, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("price feed read error", applogger.Error(err))
			s.reconnect(ctx)
			continue
		}

		var m feedMessage
		if err := json.Unmarshal(b, &m); err != nil || m.Type != "tick" {
			continue // ignore non-tick frames
		}
		now := time.Now()
		s.mu.Lock()
		for _, d := range m.Data {
			s.prices[d.Instrument] = tick{price: decimal.NewFromFloat(d.Price), at: now}
		}
		s.mu.Unlock()
		for _, d := range m.Data {
			s.metrics.RecordLastPrice(d.Instrument, d.Price)
		}
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

func (s *Stream) reconnect(ctx context.Context) {
	s.Close()

	timer := time.NewTimer(s.reconnectDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}

	if err := s.connect(ctx); err != nil {
		s.logger.Warn("price feed reconnect failed", applogger.Error(err))
	}
}

// Close closes the connection. Start's loops reconnect unless ctx is done.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

var _ domrepo.PriceFeed = (*Stream)(nil)
