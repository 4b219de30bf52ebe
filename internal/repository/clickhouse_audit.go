package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FxSentry/internal/domain/models"
	pkgch "FxSentry/pkg/clickhouse"
	applogger "FxSentry/pkg/logger"
)

// AuditSchema holds the DDL for the append-only history tables. Passed to
// clickhouse.Client.InitSchema at startup.
var AuditSchema = []string{
	`CREATE TABLE IF NOT EXISTS signal_history (
        instrument       LowCardinality(String),
        timeframe        LowCardinality(String),
        label            LowCardinality(String),
        confidence       Float64,
        strength         LowCardinality(String),
        market_condition LowCardinality(String),
        reference_price  Decimal64(8),
        updated_at       DateTime64(3, 'UTC')
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMM(updated_at)
    ORDER BY (instrument, timeframe, updated_at)`,
	`CREATE TABLE IF NOT EXISTS position_snapshots (
        position_id        String,
        ts                 DateTime64(3, 'UTC'),
        current_price      Decimal64(8),
        pnl_pips           Decimal64(8),
        pnl_pct            Decimal64(8),
        recommendation     LowCardinality(String),
        rec_confidence     Float64,
        notification_level UInt8
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMM(ts)
    ORDER BY (position_id, ts)`,
}

// CHAuditStore persists signal transitions and position snapshots to
// ClickHouse. Writes are append-only; the monitors never read them back.
type CHAuditStore struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

func NewCHAuditStore(ch *pkgch.Client, l *applogger.Logger) *CHAuditStore {
	return &CHAuditStore{client: ch, db: ch.DB(), l: l}
}

func (s *CHAuditStore) AppendSignalState(ctx context.Context, st models.SignalState) error {
	const q = `INSERT INTO signal_history
        (instrument, timeframe, label, confidence, strength, market_condition, reference_price, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		st.Instrument,
		st.Timeframe,
		string(st.Label),
		st.Confidence,
		string(st.Strength),
		string(st.MarketCondition),
		st.ReferencePrice.String(),
		st.UpdatedAt,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("signal history insert failed",
				applogger.String("instrument", st.Instrument),
				applogger.String("timeframe", st.Timeframe),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("append signal state: %w", err)
	}
	return nil
}

func (s *CHAuditStore) AppendSnapshot(ctx context.Context, snap models.PositionSnapshot) error {
	const q = `INSERT INTO position_snapshots
        (position_id, ts, current_price, pnl_pips, pnl_pct, recommendation, rec_confidence, notification_level)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		snap.PositionID,
		snap.Timestamp,
		snap.CurrentPrice.String(),
		snap.UnrealizedPnLPips.String(),
		snap.UnrealizedPnLPct.String(),
		string(snap.Recommendation),
		snap.RecommendationConfidence,
		uint8(snap.NotificationLevel),
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("position snapshot insert failed",
				applogger.String("position", snap.PositionID),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

func (s *CHAuditStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.Health(ctx)
}

func (s *CHAuditStore) Close() error {
	return s.client.Close()
}

// NopAuditStore discards history. Used when ClickHouse is disabled.
type NopAuditStore struct{}

func (NopAuditStore) AppendSignalState(context.Context, models.SignalState) error { return nil }

func (NopAuditStore) AppendSnapshot(context.Context, models.PositionSnapshot) error { return nil }

func (NopAuditStore) Health(context.Context) error { return nil }

func (NopAuditStore) Close() error { return nil }
