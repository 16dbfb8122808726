package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TradeSync/internal/domain/models"
	drepo "TradeSync/internal/domain/repository"
	pkgch "TradeSync/pkg/clickhouse"
	applogger "TradeSync/pkg/logger"
)

const (
	marketTable  = "market_snapshots"
	actionTable  = "action_journal"
	insertChunk  = 2000
	marketColumn = "(observed_at, wall_at, symbol, price, change_24h, volume, high_24h, low_24h, source)"
	actionColumn = "(id, kind, symbol, status, submitted_at, finished_at, retries_remaining, error)"
)

// HistorySchema returns idempotent DDL for the history tables in database.
func HistorySchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			observed_at DateTime64(3, 'UTC'),
			wall_at     DateTime64(3, 'UTC'),
			symbol      LowCardinality(String),
			price       Float64,
			change_24h  Float64,
			volume      Float64,
			high_24h    Float64,
			low_24h     Float64,
			source      LowCardinality(String)
		) ENGINE = ReplacingMergeTree
		ORDER BY (symbol, observed_at, source)`, database, marketTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			id                String,
			kind              LowCardinality(String),
			symbol            String,
			status            LowCardinality(String),
			submitted_at      DateTime64(3, 'UTC'),
			finished_at       DateTime64(3, 'UTC'),
			retries_remaining Int32,
			error             String
		) ENGINE = ReplacingMergeTree
		ORDER BY (submitted_at, id)`, database, actionTable),
	}
}

// ClickHouseHistory stores accepted market facts and terminal actions.
type ClickHouseHistory struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

var _ drepo.FactSink = (*ClickHouseHistory)(nil)

// NewClickHouseHistory creates the sink and ensures its schema.
func NewClickHouseHistory(ctx context.Context, ch *pkgch.Client, l *applogger.Logger) (*ClickHouseHistory, error) {
	if err := ch.InitSchema(ctx, HistorySchema(ch.Database())); err != nil {
		return nil, err
	}
	return &ClickHouseHistory{db: ch.DB(), database: ch.Database(), l: l.Component("clickhouse_history")}, nil
}

func (s *ClickHouseHistory) RecordMarket(ctx context.Context, snaps []models.MarketSnapshot) error {
	for start := 0; start < len(snaps); start += insertChunk {
		end := min(start+insertChunk, len(snaps))
		q, args := buildMarketInsert(s.database+"."+marketTable, snaps[start:end])
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse market insert failed", applogger.Int("rows", end-start), applogger.Error(err))
			return fmt.Errorf("insert market snapshots: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseHistory) RecordActions(ctx context.Context, actions []models.PendingAction) error {
	q, args := buildActionInsert(s.database+"."+actionTable, actions)
	if q == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.l.Error("clickhouse action insert failed", applogger.Int("rows", len(actions)), applogger.Error(err))
		return fmt.Errorf("insert actions: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *ClickHouseHistory) Close() error { return nil }

func buildMarketInsert(table string, snaps []models.MarketSnapshot) (string, []any) {
	values := make([]string, 0, len(snaps))
	args := make([]any, 0, len(snaps)*9)
	for _, m := range snaps {
		if m.Symbol == "" || m.ObservedAt.Logical <= 0 {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			time.UnixMilli(m.ObservedAt.Logical).UTC(),
			m.ObservedAt.Wall.UTC(),
			m.Symbol,
			m.Price,
			m.Change24h,
			m.Volume,
			m.High24h,
			m.Low24h,
			string(m.Source),
		)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s %s VALUES %s", table, marketColumn, strings.Join(values, ",")), args
}

func buildActionInsert(table string, actions []models.PendingAction) (string, []any) {
	values := make([]string, 0, len(actions))
	args := make([]any, 0, len(actions)*8)
	for _, a := range actions {
		if !a.Status.Terminal() {
			continue
		}
		finished := a.SubmittedAt
		if a.FinishedAt != nil {
			finished = *a.FinishedAt
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			a.ID,
			string(a.Kind),
			a.Symbol,
			string(a.Status),
			a.SubmittedAt.UTC(),
			finished.UTC(),
			int32(a.RetriesRemaining),
			a.Error,
		)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s %s VALUES %s", table, actionColumn, strings.Join(values, ",")), args
}
