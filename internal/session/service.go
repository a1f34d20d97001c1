// Package session mutates session rows under the optimistic-lock retry
// protocol: read the current version, attempt the conditional update, and on
// a conflict re-read before trying again. A stale version is never reused
// across attempts.
package session

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/core"
	"github.com/agentfoundry/sessiond/internal/observability"
	"github.com/agentfoundry/sessiond/internal/retry"
	"github.com/agentfoundry/sessiond/internal/store"
)

// Store is the slice of the data layer this service drives.
type Store interface {
	GetSession(ctx context.Context, id string) (store.Session, error)
	UpdateSessionWithVersion(ctx context.Context, arg store.UpdateSessionWithVersionParams) (int64, error)
	TouchSessionWithVersion(ctx context.Context, arg store.TouchSessionWithVersionParams) (int64, error)
}

var _ Store = (*store.Queries)(nil)

// Update is a partial session mutation; nil fields are left untouched. An
// Update with no fields set degenerates to a version-checked touch.
type Update struct {
	Status          *core.SessionStatus
	ClaudeSessionID *string
	Metadata        map[string]string
}

func (u Update) params(id string, expectedVersion int64) (store.UpdateSessionWithVersionParams, error) {
	p := store.UpdateSessionWithVersionParams{ID: id, ExpectedVersion: expectedVersion}
	if u.Status != nil {
		if !u.Status.Valid() {
			return p, core.NewAppError(core.ErrBadRequest, "invalid session status")
		}
		p.Status = pgtype.Text{String: string(*u.Status), Valid: true}
	}
	if u.ClaudeSessionID != nil {
		p.ClaudeSessionID = pgtype.Text{String: *u.ClaudeSessionID, Valid: true}
	}
	if u.Metadata != nil {
		b, err := json.Marshal(u.Metadata)
		if err != nil {
			return p, err
		}
		p.Metadata = b
	}
	return p, nil
}

type Service struct {
	store Store
	opts  retry.Options
	stats retry.Stats
	log   *zap.Logger
}

func New(st Store, opts retry.Options, log *zap.Logger) *Service {
	return &Service{store: st, opts: opts, log: log}
}

// Options returns the service's configured retry policy, for callers that
// want to derive a wider or narrower budget from it.
func (s *Service) Options() retry.Options {
	return s.opts
}

// Stats reports accumulated retry outcomes since process start.
func (s *Service) Stats() retry.StatsSnapshot {
	return s.stats.Snapshot()
}

// UpdateWithRetry applies a partial update under the configured retry
// policy.
func (s *Service) UpdateWithRetry(ctx context.Context, id string, upd Update) retry.Outcome[int64] {
	return s.UpdateWithRetryOptions(ctx, id, upd, s.opts)
}

// UpdateWithRetryOptions is UpdateWithRetry with an explicit retry budget.
// Each attempt reads the row fresh and conditions the update on the version
// it just saw; losing the race costs one backoff sleep and a re-read.
func (s *Service) UpdateWithRetryOptions(ctx context.Context, id string, upd Update, opts retry.Options) retry.Outcome[int64] {
	out := retry.Do(ctx, opts, func(ctx context.Context) (int64, error) {
		cur, err := s.store.GetSession(ctx, id)
		if err != nil {
			return 0, err
		}
		params, err := upd.params(id, cur.Version)
		if err != nil {
			return 0, err
		}
		return s.store.UpdateSessionWithVersion(ctx, params)
	})
	s.record("update", id, out)
	return out
}

// UpdateAtVersion performs a single conditional update pinned to the
// version the caller supplies. No retry: a conflict is the caller's answer.
func (s *Service) UpdateAtVersion(ctx context.Context, id string, upd Update, expectedVersion int64) (int64, error) {
	params, err := upd.params(id, expectedVersion)
	if err != nil {
		return 0, err
	}
	return s.store.UpdateSessionWithVersion(ctx, params)
}

// Heartbeat advances updated_at without changing any session field.
func (s *Service) Heartbeat(ctx context.Context, id string) retry.Outcome[int64] {
	out := retry.Do(ctx, s.opts, func(ctx context.Context) (int64, error) {
		cur, err := s.store.GetSession(ctx, id)
		if err != nil {
			return 0, err
		}
		return s.store.TouchSessionWithVersion(ctx, store.TouchSessionWithVersionParams{
			ID:              id,
			ExpectedVersion: cur.Version,
		})
	})
	s.record("heartbeat", id, out)
	return out
}

func (s *Service) record(op, id string, out retry.Outcome[int64]) {
	s.stats.Record(out.Success, out.Attempts, out.RetriesExhausted)
	observability.RetryAttemptsTotal.Add(float64(out.Attempts))

	var label string
	switch {
	case out.Success && out.Attempts == 1:
		label = "first_try"
	case out.Success:
		label = "retried"
	case out.RetriesExhausted:
		label = "exhausted"
	default:
		label = "non_retryable"
	}
	observability.RetryOutcomesTotal.WithLabelValues(label).Inc()

	if out.RetriesExhausted {
		s.log.Warn("session update retries exhausted",
			zap.String("op", op),
			zap.String("session_id", id),
			zap.Int("attempts", out.Attempts),
		)
	}
}
