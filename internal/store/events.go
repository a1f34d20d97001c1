package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type SessionEvent struct {
	EventID   int64
	SessionID string
	EventType string
	ToolName  pgtype.Text
	Payload   []byte
	CreatedAt pgtype.Timestamptz
}

const eventColumns = `event_id, session_id, event_type, tool_name, payload, created_at`

func scanEvent(row pgx.Row) (SessionEvent, error) {
	var e SessionEvent
	err := row.Scan(
		&e.EventID,
		&e.SessionID,
		&e.EventType,
		&e.ToolName,
		&e.Payload,
		&e.CreatedAt,
	)
	return e, err
}

const insertSessionEvent = `
INSERT INTO session_events (session_id, event_type, tool_name, payload)
VALUES ($1, $2, $3, COALESCE($4, '{}'::jsonb))
RETURNING ` + eventColumns

type InsertSessionEventParams struct {
	SessionID string
	EventType string
	ToolName  pgtype.Text
	Payload   []byte
}

// InsertSessionEvent appends one entry to a session's audit trail. Events
// are append-only; they go away only when the session row itself is deleted.
func (q *Queries) InsertSessionEvent(ctx context.Context, arg InsertSessionEventParams) (SessionEvent, error) {
	return scanEvent(q.db.QueryRow(ctx, insertSessionEvent,
		arg.SessionID,
		arg.EventType,
		arg.ToolName,
		arg.Payload,
	))
}

const listSessionEvents = `
SELECT ` + eventColumns + `
FROM session_events
WHERE session_id = $1
ORDER BY event_id ASC
LIMIT $2`

type ListSessionEventsParams struct {
	SessionID string
	Limit     int32
}

func (q *Queries) ListSessionEvents(ctx context.Context, arg ListSessionEventsParams) ([]SessionEvent, error) {
	rows, err := q.db.Query(ctx, listSessionEvents, arg.SessionID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SessionEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
