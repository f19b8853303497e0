package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// EventRow is one persisted event: the latest accepted raw payload for an
// event id, together with its version and owning VTN.
type EventRow struct {
	VTNID     string
	EventID   string
	ModNumber int
	Raw       []byte
}

// GetEvent returns the raw payload stored for an event id, or nil when the
// id is unknown.
func (s *Store) GetEvent(ctx context.Context, eventID string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT raw FROM events WHERE event_id = ?`, eventID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return raw, nil
}

// ActiveEvents returns the full snapshot of stored events, keyed by event id.
// The reconciliation pass uses it for implicit-cancellation detection.
func (s *Store) ActiveEvents(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_id, raw FROM events`)
	if err != nil {
		return nil, fmt.Errorf("query active events: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out[id] = raw
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// UpdateEvent upserts one event row. Monotonicity of the modification number
// is the engine's contract; the store does not re-validate it.
func (s *Store) UpdateEvent(ctx context.Context, row EventRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (event_id, vtn_id, mod_number, raw)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			vtn_id = excluded.vtn_id,
			mod_number = excluded.mod_number,
			raw = excluded.raw,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
	`, row.EventID, row.VTNID, row.ModNumber, row.Raw)
	if err != nil {
		return fmt.Errorf("update event %s: %w", row.EventID, err)
	}
	return nil
}

// UpdateAllEvents upserts a batch of event rows in a single transaction.
func (s *Store) UpdateAllEvents(ctx context.Context, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update all events: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (event_id, vtn_id, mod_number, raw)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			vtn_id = excluded.vtn_id,
			mod_number = excluded.mod_number,
			raw = excluded.raw,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
	`)
	if err != nil {
		return fmt.Errorf("update all events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.EventID, row.VTNID, row.ModNumber, row.Raw); err != nil {
			return fmt.Errorf("update all events: event %s: %w", row.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update all events: commit: %w", err)
	}
	return nil
}

// RemoveEvents deletes the given event ids. Unknown ids are ignored.
func (s *Store) RemoveEvents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE event_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("remove events: %w", err)
	}
	return nil
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// ListEvents returns all stored rows ordered by event id, for CLI listing.
func (s *Store) ListEvents(ctx context.Context) ([]EventRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, vtn_id, mod_number, raw
		FROM events
		ORDER BY event_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.EventID, &r.VTNID, &r.ModNumber, &r.Raw); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	if out == nil {
		out = []EventRow{}
	}
	return out, nil
}
