// Package store is the Postgres data-access layer for sessions and their
// event trail. Session mutation is optimistic: every update carries the
// version the caller last read, and the single conditional UPDATE is the
// compare-and-swap that serializes concurrent writers.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/agentfoundry/sessiond/internal/core"
	"github.com/agentfoundry/sessiond/internal/observability"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

type Session struct {
	ID              string
	ProjectPath     string
	ProjectType     string
	Status          string
	ClaudeSessionID pgtype.Text
	Metadata        []byte
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
	Version         int64
}

const sessionColumns = `id, project_path, project_type, status, claude_session_id, metadata, created_at, updated_at, version`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(
		&s.ID,
		&s.ProjectPath,
		&s.ProjectType,
		&s.Status,
		&s.ClaudeSessionID,
		&s.Metadata,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.Version,
	)
	return s, err
}

const createSession = `
INSERT INTO sessions (id, project_path, project_type, metadata)
VALUES ($1, $2, $3, COALESCE($4, '{}'::jsonb))
RETURNING ` + sessionColumns

type CreateSessionParams struct {
	ID          string
	ProjectPath string
	ProjectType string
	Metadata    []byte
}

// CreateSession inserts a new session row. Status and version come from the
// schema defaults: active, version 1.
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	return scanSession(q.db.QueryRow(ctx, createSession,
		arg.ID,
		arg.ProjectPath,
		arg.ProjectType,
		arg.Metadata,
	))
}

const getSession = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE id = $1`

// GetSession returns the session row with its current version. A missing id
// is reported as SESS_NOT_FOUND.
func (q *Queries) GetSession(ctx context.Context, id string) (Session, error) {
	s, err := scanSession(q.db.QueryRow(ctx, getSession, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, core.NewAppError(core.ErrNotFound, "session not found")
	}
	return s, err
}

const updateSessionWithVersion = `
UPDATE sessions
SET status            = COALESCE($3, status),
    claude_session_id = COALESCE($4, claude_session_id),
    metadata          = COALESCE($5, metadata),
    updated_at        = now(),
    version           = version + 1
WHERE id = $1 AND version = $2
RETURNING version`

type UpdateSessionWithVersionParams struct {
	ID              string
	ExpectedVersion int64
	Status          pgtype.Text
	ClaudeSessionID pgtype.Text
	Metadata        []byte
}

// UpdateSessionWithVersion performs the conditional update that backs the
// optimistic-lock protocol. The UPDATE matches id and version together, so
// at most one concurrent caller can succeed per version value. Zero matched
// rows means either the session is gone (SESS_NOT_FOUND) or another writer
// advanced the version first (VersionConflictError). An update with no
// fields set still bumps the version; it is not exempt from the check.
func (q *Queries) UpdateSessionWithVersion(ctx context.Context, arg UpdateSessionWithVersionParams) (int64, error) {
	var version int64
	err := q.db.QueryRow(ctx, updateSessionWithVersion,
		arg.ID,
		arg.ExpectedVersion,
		arg.Status,
		arg.ClaudeSessionID,
		arg.Metadata,
	).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	if _, getErr := q.GetSession(ctx, arg.ID); getErr != nil {
		return 0, getErr
	}
	observability.VersionConflictsTotal.Inc()
	return 0, &core.VersionConflictError{SessionID: arg.ID, ExpectedVersion: arg.ExpectedVersion}
}

type TouchSessionWithVersionParams struct {
	ID              string
	ExpectedVersion int64
}

// TouchSessionWithVersion advances updated_at (the heartbeat) under the same
// version check as any other mutation.
func (q *Queries) TouchSessionWithVersion(ctx context.Context, arg TouchSessionWithVersionParams) (int64, error) {
	return q.UpdateSessionWithVersion(ctx, UpdateSessionWithVersionParams{
		ID:              arg.ID,
		ExpectedVersion: arg.ExpectedVersion,
	})
}

const listSessions = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE ($1::text IS NULL OR status = $1)
ORDER BY created_at DESC
LIMIT $2`

type ListSessionsParams struct {
	Status pgtype.Text
	Limit  int32
}

func (q *Queries) ListSessions(ctx context.Context, arg ListSessionsParams) ([]Session, error) {
	rows, err := q.db.Query(ctx, listSessions, arg.Status, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const listSessionsIdleSince = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE status = ANY($1) AND updated_at < $2
ORDER BY updated_at ASC
LIMIT $3`

type ListSessionsIdleSinceParams struct {
	Statuses []string
	Before   pgtype.Timestamptz
	Limit    int32
}

// ListSessionsIdleSince returns sessions in one of the given states whose
// last mutation predates the cutoff. The monitor's stale and cleanup sweeps
// both run on this query.
func (q *Queries) ListSessionsIdleSince(ctx context.Context, arg ListSessionsIdleSinceParams) ([]Session, error) {
	rows, err := q.db.Query(ctx, listSessionsIdleSince, arg.Statuses, arg.Before, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const deleteSession = `
DELETE FROM sessions
WHERE id = $1`

func (q *Queries) DeleteSession(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, deleteSession, id)
	return err
}

const countSessionsByStatus = `
SELECT status, COUNT(*) AS count
FROM sessions
GROUP BY status
ORDER BY status`

type CountSessionsByStatusRow struct {
	Status string
	Count  int64
}

func (q *Queries) CountSessionsByStatus(ctx context.Context) ([]CountSessionsByStatusRow, error) {
	rows, err := q.db.Query(ctx, countSessionsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountSessionsByStatusRow
	for rows.Next() {
		var r CountSessionsByStatusRow
		if err := rows.Scan(&r.Status, &r.Count); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
