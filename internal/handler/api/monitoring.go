package api

import (
	"errors"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	"FxSentry/internal/repository"
	xhttp "FxSentry/pkg/http"
	xlogger "FxSentry/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// MonitoringHandler exposes the engine's inspection and position management
// endpoints. Subscription CRUD stays in the external subscription store.
type MonitoringHandler struct {
	logger    *xlogger.Logger
	states    domrepo.SignalStates
	positions domrepo.Positions
	feed      domrepo.PriceFeed
	publisher domrepo.EventPublisher
	audit     domrepo.AuditStore
}

func NewMonitoringHandler(
	logger *xlogger.Logger,
	states domrepo.SignalStates,
	positions domrepo.Positions,
	feed domrepo.PriceFeed,
	publisher domrepo.EventPublisher,
	audit domrepo.AuditStore,
) *MonitoringHandler {
	return &MonitoringHandler{
		logger:    logger,
		states:    states,
		positions: positions,
		feed:      feed,
		publisher: publisher,
		audit:     audit,
	}
}

func (h *MonitoringHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/signals", h.Signals)
	g.GET("/positions", h.Positions)
	g.POST("/positions", h.OpenPosition)
	g.POST("/positions/:id/close", h.ClosePosition)
}

type signalStateDTO struct {
	Instrument      string    `json:"instrument"`
	Timeframe       string    `json:"timeframe"`
	Label           string    `json:"label"`
	Confidence      float64   `json:"confidence"`
	Strength        string    `json:"strength"`
	MarketCondition string    `json:"marketCondition"`
	ReferencePrice  string    `json:"referencePrice"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (h *MonitoringHandler) Signals(c echo.Context) error {
	states := h.states.All()
	out := make([]signalStateDTO, 0, len(states))
	for _, s := range states {
		out = append(out, signalStateDTO{
			Instrument:      s.Instrument,
			Timeframe:       s.Timeframe,
			Label:           string(s.Label),
			Confidence:      s.Confidence,
			Strength:        string(s.Strength),
			MarketCondition: string(s.MarketCondition),
			ReferencePrice:  s.ReferencePrice.String(),
			UpdatedAt:       s.UpdatedAt,
		})
	}
	return xhttp.SuccessResponse(c, out)
}

type positionDTO struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Instrument  string    `json:"instrument"`
	Direction   string    `json:"direction"`
	EntryPrice  string    `json:"entryPrice"`
	Size        string    `json:"size"`
	StopLoss    string    `json:"stopLoss"`
	TakeProfit  string    `json:"takeProfit,omitempty"`
	Status      string    `json:"status"`
	CloseReason string    `json:"closeReason,omitempty"`
	ClosePrice  string    `json:"closePrice,omitempty"`
	OpenedAt    time.Time `json:"openedAt"`
}

func toPositionDTO(p models.Position) positionDTO {
	dto := positionDTO{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Instrument:  p.Instrument,
		Direction:   string(p.Direction),
		EntryPrice:  p.EntryPrice.String(),
		Size:        p.Size.String(),
		StopLoss:    p.StopLoss.String(),
		Status:      string(p.Status),
		CloseReason: string(p.CloseReason),
		OpenedAt:    p.OpenedAt,
	}
	if p.HasTakeProfit() {
		dto.TakeProfit = p.TakeProfit.String()
	}
	if !p.ClosePrice.IsZero() {
		dto.ClosePrice = p.ClosePrice.String()
	}
	return dto
}

func (h *MonitoringHandler) Positions(c echo.Context) error {
	ctx := c.Request().Context()
	owner := c.QueryParam("owner")
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 0)

	var (
		positions []models.Position
		err       error
	)
	if owner != "" {
		positions, err = h.positions.ListByOwner(ctx, owner)
	} else {
		positions, err = h.positions.ListOpen(ctx)
	}
	if err != nil {
		h.logger.Error("position listing failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if limit > 0 && len(positions) > limit {
		positions = positions[:limit]
	}

	out := make([]positionDTO, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionDTO(p))
	}
	return xhttp.SuccessResponse(c, out)
}

type openPositionRequest struct {
	ID         string  `json:"id" validate:"required"`
	OwnerID    string  `json:"ownerId" validate:"required"`
	Instrument string  `json:"instrument" validate:"required"`
	Direction  string  `json:"direction" validate:"required,oneof=long short"`
	EntryPrice float64 `json:"entryPrice" validate:"required,gt=0"`
	Size       float64 `json:"size" validate:"required,gt=0"`
	StopLoss   float64 `json:"stopLoss" validate:"required,gt=0"`
	TakeProfit float64 `json:"takeProfit" validate:"omitempty,gt=0"`
}

func (h *MonitoringHandler) OpenPosition(c echo.Context) error {
	req := &openPositionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	p := models.Position{
		ID:         req.ID,
		OwnerID:    req.OwnerID,
		Instrument: req.Instrument,
		Direction:  models.Direction(req.Direction),
		EntryPrice: decimal.NewFromFloat(req.EntryPrice),
		Size:       decimal.NewFromFloat(req.Size),
		StopLoss:   decimal.NewFromFloat(req.StopLoss),
		OpenedAt:   time.Now().UTC(),
	}
	if req.TakeProfit > 0 {
		p.TakeProfit = decimal.NewFromFloat(req.TakeProfit)
	}

	if err := h.positions.Open(c.Request().Context(), p); err != nil {
		if domrepo.IsInvariant(err) {
			return xhttp.BadRequestResponse(c, err.Error())
		}
		h.logger.Error("position open failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Info("position opened",
		xlogger.String("position", p.ID), xlogger.String("owner", p.OwnerID))
	return xhttp.CreatedResponse(c, toPositionDTO(p))
}

func (h *MonitoringHandler) ClosePosition(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	p, err := h.positions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPositionNotFound) {
			return xhttp.NotFoundResponse(c, "position not found")
		}
		return xhttp.AppErrorResponse(c, err)
	}

	// Manual closes settle at the last streamed price; entry price when the
	// feed has never seen the instrument.
	price, _, ok := h.feed.LastPrice(p.Instrument)
	if !ok {
		price = p.EntryPrice
	}

	if err := h.positions.Close(ctx, id, models.CloseManual, price, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrPositionNotFound) {
			return xhttp.NotFoundResponse(c, "position not found")
		}
		if domrepo.IsInvariant(err) {
			return xhttp.BadRequestResponse(c, err.Error())
		}
		h.logger.Error("position close failed",
			xlogger.String("position", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	p, err = h.positions.Get(ctx, id)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, toPositionDTO(p))
}

type healthDTO struct {
	Status string `json:"status"`
	Broker string `json:"broker"`
	Audit  string `json:"audit"`
}

func (h *MonitoringHandler) Health(c echo.Context) error {
	ctx := c.Request().Context()
	out := healthDTO{Status: "ok", Broker: "ok", Audit: "ok"}
	if err := h.publisher.Health(ctx); err != nil {
		out.Broker = err.Error()
	}
	if err := h.audit.Health(ctx); err != nil {
		out.Audit = err.Error()
	}
	return xhttp.SuccessResponse(c, out)
}
