package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func openPosition(id string) models.Position {
	return models.Position{
		ID:         id,
		OwnerID:    "owner-1",
		Instrument: "EUR/USD",
		Direction:  models.DirectionLong,
		EntryPrice: dec("1.0850"),
		Size:       dec("10000"),
		StopLoss:   dec("1.0820"),
		TakeProfit: dec("1.0910"),
	}
}

func TestSignalStateStorePutGet(t *testing.T) {
	s := NewSignalStateStore()
	key := models.SignalKey{Instrument: "EUR/USD", Timeframe: "1h"}

	if _, ok := s.Get(key); ok {
		t.Fatal("empty store should miss")
	}

	st := models.SignalState{
		Instrument: "EUR/USD",
		Timeframe:  "1h",
		Label:      models.LabelBuy,
		Confidence: 0.78,
		UpdatedAt:  time.Now(),
	}
	s.Put(st)

	got, ok := s.Get(key)
	if !ok || got.Label != models.LabelBuy {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	// Put replaces, never appends.
	st.Label = models.LabelHold
	s.Put(st)
	if all := s.All(); len(all) != 1 || all[0].Label != models.LabelHold {
		t.Fatalf("All = %+v", all)
	}
}

func TestPositionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()

	if err := s.Open(ctx, openPosition("pos-1")); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Open(ctx, openPosition("pos-1")); !domrepo.IsInvariant(err) {
		t.Fatalf("duplicate open err = %v, want invariant", err)
	}

	open, err := s.ListOpen(ctx)
	if err != nil || len(open) != 1 {
		t.Fatalf("ListOpen = %+v, %v", open, err)
	}

	closedAt := time.Now().UTC()
	if err := s.Close(ctx, "pos-1", models.CloseStopLoss, dec("1.0820"), closedAt); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(ctx, "pos-1", models.CloseManual, dec("1.0820"), closedAt); !domrepo.IsInvariant(err) {
		t.Fatalf("double close err = %v, want invariant", err)
	}

	p, err := s.Get(ctx, "pos-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Status != models.PositionClosed || p.CloseReason != models.CloseStopLoss {
		t.Fatalf("closed position = %+v", p)
	}
	if !p.ClosePrice.Equal(dec("1.0820")) {
		t.Fatalf("close price = %s, want 1.0820", p.ClosePrice)
	}

	open, _ = s.ListOpen(ctx)
	if len(open) != 0 {
		t.Fatalf("ListOpen after close = %+v", open)
	}
	// Closed positions stay visible to owner listings until pruned.
	byOwner, _ := s.ListByOwner(ctx, "owner-1")
	if len(byOwner) != 1 {
		t.Fatalf("ListByOwner = %+v", byOwner)
	}
}

func TestPositionStoreValidatesOnOpen(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()

	p := openPosition("pos-1")
	p.StopLoss = decimal.Zero
	if err := s.Open(ctx, p); !domrepo.IsInvariant(err) {
		t.Fatalf("open without stop-loss err = %v, want invariant", err)
	}

	p = openPosition("pos-2")
	p.Direction = "sideways"
	if err := s.Open(ctx, p); !domrepo.IsInvariant(err) {
		t.Fatalf("open with bad direction err = %v, want invariant", err)
	}
}

func TestPositionStoreUpdateStopLoss(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()
	if err := s.Open(ctx, openPosition("pos-1")); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.UpdateStopLoss(ctx, "pos-1", dec("1.0850")); err != nil {
		t.Fatalf("UpdateStopLoss: %v", err)
	}
	p, _ := s.Get(ctx, "pos-1")
	if !p.StopLoss.Equal(dec("1.0850")) {
		t.Fatalf("stop-loss = %s", p.StopLoss)
	}

	if err := s.UpdateStopLoss(ctx, "missing", dec("1.0800")); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("missing id err = %v", err)
	}

	s.Close(ctx, "pos-1", models.CloseManual, dec("1.0850"), time.Now())
	if err := s.UpdateStopLoss(ctx, "pos-1", dec("1.0860")); !domrepo.IsInvariant(err) {
		t.Fatalf("update on closed err = %v, want invariant", err)
	}
}

func TestPruneClosed(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()
	s.Open(ctx, openPosition("pos-1"))
	s.Open(ctx, openPosition("pos-2"))
	s.Close(ctx, "pos-1", models.CloseManual, dec("1.0850"), time.Now().Add(-48*time.Hour))

	if n := s.PruneClosed(time.Now().Add(-24 * time.Hour)); n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}
	if _, err := s.Get(ctx, "pos-1"); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("pruned position still present: %v", err)
	}
	if _, err := s.Get(ctx, "pos-2"); err != nil {
		t.Fatalf("open position should survive prune: %v", err)
	}
}
