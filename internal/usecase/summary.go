package usecase

import (
	"context"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	applogger "FxSentry/pkg/logger"
	"FxSentry/pkg/queue"

	"github.com/shopspring/decimal"
)

// MsgTypeDailySummary is the queue message type for Level-4 digests.
const MsgTypeDailySummary = "position.daily_summary"

// SummaryPayload is the queued unit of work: one owner, one UTC date.
type SummaryPayload struct {
	OwnerID string `json:"ownerId"`
	Date    string `json:"date"`
}

// SummaryScheduler enqueues one daily summary job per position owner. It is
// driven by a daily scheduler tick; the queue worker does the rendering so a
// slow digest never blocks the monitors.
type SummaryScheduler struct {
	positions domrepo.Positions
	q         queue.QueueService
	l         *applogger.Logger
	now       func() time.Time
}

func NewSummaryScheduler(positions domrepo.Positions, q queue.QueueService, l *applogger.Logger) *SummaryScheduler {
	return &SummaryScheduler{positions: positions, q: q, l: l, now: time.Now}
}

// Run enqueues a summary job for every owner with at least one position.
func (s *SummaryScheduler) Run(ctx context.Context) error {
	owners, err := s.owners(ctx)
	if err != nil {
		return err
	}

	date := s.now().UTC().Format("2006-01-02")
	for _, owner := range owners {
		payload := SummaryPayload{OwnerID: owner, Date: date}
		if err := s.q.PublishMessage(ctx, MsgTypeDailySummary, payload); err != nil {
			s.l.Error("summary enqueue failed",
				applogger.String("owner", owner), applogger.Error(err))
			continue
		}
	}
	s.l.Info("daily summaries scheduled",
		applogger.Int("owners", len(owners)), applogger.String("date", date))
	return nil
}

func (s *SummaryScheduler) owners(ctx context.Context) ([]string, error) {
	open, err := s.positions.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var owners []string
	for _, p := range open {
		if _, ok := seen[p.OwnerID]; ok {
			continue
		}
		seen[p.OwnerID] = struct{}{}
		owners = append(owners, p.OwnerID)
	}
	return owners, nil
}

// SummaryJob consumes queued summary payloads, renders the digest from the
// position book, and publishes it to the summary topic.
type SummaryJob struct {
	positions  domrepo.Positions
	dispatcher *Dispatcher
	l          *applogger.Logger
}

func NewSummaryJob(positions domrepo.Positions, dispatcher *Dispatcher, l *applogger.Logger) *SummaryJob {
	return &SummaryJob{positions: positions, dispatcher: dispatcher, l: l}
}

func (j *SummaryJob) Name() string { return "daily-summary" }

func (j *SummaryJob) Type() string { return MsgTypeDailySummary }

func (j *SummaryJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[SummaryPayload](payload)
	if err != nil {
		return err
	}

	event, err := j.render(ctx, p.OwnerID, p.Date)
	if err != nil {
		return err
	}
	if event.OpenCount == 0 && event.ClosedCount == 0 {
		return nil
	}
	return j.dispatcher.DispatchPositionSummary(ctx, *event)
}

// render builds the digest from every position the owner holds. Closed
// positions are valued at their last known stop/target; they contribute
// their realized pips to the total.
func (j *SummaryJob) render(ctx context.Context, ownerID, date string) (*models.PositionSummaryEvent, error) {
	positions, err := j.positions.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	event := &models.PositionSummaryEvent{OwnerID: ownerID, Date: date}
	total := decimal.Zero
	for _, p := range positions {
		pips := p.PnLPips(closingPrice(p))
		event.Positions = append(event.Positions, models.PositionDigest{
			PositionID: p.ID,
			Instrument: p.Instrument,
			Direction:  p.Direction,
			PnLPips:    pips,
			Status:     p.Status,
		})
		total = total.Add(pips)
		if p.Status == models.PositionOpen {
			event.OpenCount++
		} else {
			event.ClosedCount++
		}
	}
	event.TotalPips = total
	return event, nil
}

// closingPrice picks the valuation price for a digest row. Closed positions
// settle at the recorded close price, falling back to the level that closed
// them for records written before close prices were kept. Open positions use
// entry, which yields zero pips (live PnL belongs to per-tick alerts, not
// digests).
func closingPrice(p models.Position) decimal.Decimal {
	if !p.ClosePrice.IsZero() {
		return p.ClosePrice
	}
	switch p.CloseReason {
	case models.CloseStopLoss:
		return p.StopLoss
	case models.CloseTakeProfit:
		return p.TakeProfit
	default:
		return p.EntryPrice
	}
}
