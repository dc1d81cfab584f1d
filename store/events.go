package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Seednode/electricmaze/relay"
)

// MaxEvents is how many connection events are kept; older ones are pruned
// as new ones arrive.
const MaxEvents = 100

// RecordEvent appends ev to the connection history.
func (s *Store) RecordEvent(ctx context.Context, ev relay.Event) error {
	if !ev.Type.Valid() {
		return fmt.Errorf("record event: unknown type %q", ev.Type)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO connection_events (id, timestamp, type, attempt_number, delay_ms, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp.UnixMilli(), string(ev.Type), ev.AttemptNumber, ev.Delay.Milliseconds(), ev.Error)
	if err != nil {
		return fmt.Errorf("record %s event: %w", ev.Type, err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM connection_events WHERE seq NOT IN
		(SELECT seq FROM connection_events ORDER BY seq DESC LIMIT ?)`, MaxEvents)
	if err != nil {
		return fmt.Errorf("prune events: %w", err)
	}

	return tx.Commit()
}

// Events returns the retained history, oldest first.
func (s *Store) Events(ctx context.Context) ([]relay.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, type, attempt_number, delay_ms, error
		FROM connection_events ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []relay.Event{}
	for rows.Next() {
		var (
			ev      relay.Event
			ts      int64
			typ     string
			delayMs int64
		)
		if err := rows.Scan(&ev.ID, &ts, &typ, &ev.AttemptNumber, &delayMs, &ev.Error); err != nil {
			return nil, err
		}
		ev.Timestamp = time.UnixMilli(ts).UTC()
		ev.Type = relay.EventType(typ)
		ev.Delay = time.Duration(delayMs) * time.Millisecond
		events = append(events, ev)
	}

	return events, rows.Err()
}

func (s *Store) ClearEvents(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM connection_events`)
	return err
}
