package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"

	"github.com/shopspring/decimal"
)

// SignalStateStore is the in-memory last-known-state table keyed by
// (instrument, timeframe). The signal monitor is the single writer; reads
// come from the monitor and the HTTP API.
type SignalStateStore struct {
	mu sync.RWMutex
	m  map[models.SignalKey]models.SignalState
}

func NewSignalStateStore() *SignalStateStore {
	return &SignalStateStore{m: make(map[models.SignalKey]models.SignalState)}
}

func (s *SignalStateStore) Get(key models.SignalKey) (models.SignalState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.m[key]
	return st, ok
}

func (s *SignalStateStore) Put(state models.SignalState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[state.Key()] = state
}

func (s *SignalStateStore) All() []models.SignalState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SignalState, 0, len(s.m))
	for _, st := range s.m {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

// ErrPositionNotFound is returned for lookups of unknown position ids.
var ErrPositionNotFound = fmt.Errorf("position not found")

// PositionStore is the in-memory position book. Closed positions are kept
// until the next daily summary sweep so digests can include them.
type PositionStore struct {
	mu sync.RWMutex
	m  map[string]models.Position
}

func NewPositionStore() *PositionStore {
	return &PositionStore{m: make(map[string]models.Position)}
}

func (s *PositionStore) Open(_ context.Context, p models.Position) error {
	if p.ID == "" {
		return &domrepo.InvariantError{Entity: "position", ID: p.ID, Detail: "missing id"}
	}
	if !p.Direction.IsValid() {
		return &domrepo.InvariantError{Entity: "position", ID: p.ID, Detail: "invalid direction"}
	}
	if p.EntryPrice.IsZero() || p.StopLoss.IsZero() {
		return &domrepo.InvariantError{Entity: "position", ID: p.ID, Detail: "entry and stop-loss required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.m[p.ID]; exists {
		return &domrepo.InvariantError{Entity: "position", ID: p.ID, Detail: "already open"}
	}
	p.Status = models.PositionOpen
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now().UTC()
	}
	s.m[p.ID] = p
	return nil
}

func (s *PositionStore) Get(_ context.Context, id string) (models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.m[id]
	if !ok {
		return models.Position{}, ErrPositionNotFound
	}
	return p, nil
}

func (s *PositionStore) ListOpen(_ context.Context) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, 0, len(s.m))
	for _, p := range s.m {
		if p.Status == models.PositionOpen {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *PositionStore) ListByOwner(_ context.Context, ownerID string) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, 0)
	for _, p := range s.m {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *PositionStore) UpdateStopLoss(_ context.Context, id string, sl decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		return ErrPositionNotFound
	}
	if p.Status != models.PositionOpen {
		return &domrepo.InvariantError{Entity: "position", ID: id, Detail: "stop-loss update on closed position"}
	}
	if sl.IsZero() {
		return &domrepo.InvariantError{Entity: "position", ID: id, Detail: "zero stop-loss"}
	}
	p.StopLoss = sl
	s.m[id] = p
	return nil
}

func (s *PositionStore) Close(_ context.Context, id string, reason models.CloseReason, price decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		return ErrPositionNotFound
	}
	if p.Status == models.PositionClosed {
		return &domrepo.InvariantError{Entity: "position", ID: id, Detail: "already closed"}
	}
	p.Status = models.PositionClosed
	p.CloseReason = reason
	p.ClosePrice = price
	p.ClosedAt = at
	s.m[id] = p
	return nil
}

// PruneClosed removes positions closed before the cutoff. Called after the
// daily summary has been published.
func (s *PositionStore) PruneClosed(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.m {
		if p.Status == models.PositionClosed && p.ClosedAt.Before(cutoff) {
			delete(s.m, id)
			n++
		}
	}
	return n
}
