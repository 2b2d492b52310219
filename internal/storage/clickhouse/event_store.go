package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk appends events in one batch. Fails entire batch on intra-batch duplicates.
// Duplicates across batches collapse in ReplacingMergeTree and are not checked here.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" || e.Kind == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_events (
			event_id, cycle_id, kind, token_id, mode, side,
			amount, price, score, reason, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.EventID, e.CycleID, e.Kind, e.TokenID, string(e.Mode), string(e.Side),
			e.Amount, e.Price, e.Score, e.Reason, uint64(e.TimestampMs),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// List retrieves events matching filter, ordered by timestamp_ms ASC, event_id ASC.
func (s *EventStore) List(ctx context.Context, filter storage.EventFilter) ([]*domain.Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.CycleID != "" {
		where = append(where, "cycle_id = ?")
		args = append(args, filter.CycleID)
	}
	if filter.TokenID != "" {
		where = append(where, "token_id = ?")
		args = append(args, filter.TokenID)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}

	query := `
		SELECT
			event_id, cycle_id, kind, token_id, mode, side,
			amount, price, score, reason, timestamp_ms
		FROM trade_events FINAL
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp_ms ASC, event_id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var result []*domain.Event
	for rows.Next() {
		var e domain.Event
		var mode, side string
		var ts uint64
		if err := rows.Scan(
			&e.EventID, &e.CycleID, &e.Kind, &e.TokenID, &mode, &side,
			&e.Amount, &e.Price, &e.Score, &e.Reason, &ts,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.Mode = domain.Mode(mode)
		e.Side = domain.Side(side)
		e.TimestampMs = int64(ts)
		result = append(result, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return result, nil
}
