// Package monitor is the background daemon that keeps the session population
// honest: sessions that stop heartbeating are marked stale, terminal sessions
// past their retention are reclaimed, and workspace capacity is observed on
// every pass.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/core"
	"github.com/agentfoundry/sessiond/internal/observability"
	"github.com/agentfoundry/sessiond/internal/session"
	"github.com/agentfoundry/sessiond/internal/store"
	"github.com/agentfoundry/sessiond/internal/workspace"
)

// Store is the slice of the data layer the sweeps read and prune.
type Store interface {
	ListSessionsIdleSince(ctx context.Context, arg store.ListSessionsIdleSinceParams) ([]store.Session, error)
	DeleteSession(ctx context.Context, id string) error
	InsertSessionEvent(ctx context.Context, arg store.InsertSessionEventParams) (store.SessionEvent, error)
}

// Updater moves sessions through the version-checked update protocol.
type Updater interface {
	UpdateAtVersion(ctx context.Context, id string, upd session.Update, expectedVersion int64) (int64, error)
}

// Workspaces is the filesystem side of session cleanup.
type Workspaces interface {
	Archive(ctx context.Context, path, correlationID string) (string, error)
	Cleanup(ctx context.Context, path, correlationID string) error
	DiskSpace() (workspace.DiskSpace, error)
	CountWorkspaces() (workspace.WorkspaceCount, error)
}

var (
	_ Store      = (*store.Queries)(nil)
	_ Updater    = (*session.Service)(nil)
	_ Workspaces = (*workspace.Manager)(nil)
)

type Monitor struct {
	queries    Store
	sessions   Updater
	workspaces Workspaces
	cfg        Config
	log        *zap.Logger
}

func New(queries Store, sessions Updater, workspaces Workspaces, cfg Config, log *zap.Logger) *Monitor {
	return &Monitor{
		queries:    queries,
		sessions:   sessions,
		workspaces: workspaces,
		cfg:        cfg,
		log:        log,
	}
}

func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("monitor started",
		zap.Duration("poll_interval", m.cfg.PollInterval),
		zap.Duration("stale_after", m.cfg.StaleAfter),
		zap.Duration("cleanup_after", m.cfg.CleanupAfter),
	)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		m.Sweep(ctx)
		select {
		case <-ctx.Done():
			m.log.Info("monitor stopping")
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one full pass. The phases are independent; a failure in one
// never blocks the next.
func (m *Monitor) Sweep(ctx context.Context) {
	m.sweepStale(ctx)
	m.sweepCleanup(ctx)
	m.observeCapacity()
}

// sweepStale marks active sessions idle past StaleAfter. The mark is a
// single conditional update pinned at the version the listing saw: a
// conflict means the session produced activity after the cutoff query ran,
// so it is skipped rather than stomped.
func (m *Monitor) sweepStale(ctx context.Context) {
	start := time.Now()
	defer func() {
		observability.MonitorSweepDuration.WithLabelValues("stale").Observe(time.Since(start).Seconds())
	}()

	cutoff := time.Now().Add(-m.cfg.StaleAfter)
	sessions, err := m.queries.ListSessionsIdleSince(ctx, store.ListSessionsIdleSinceParams{
		Statuses: []string{string(core.StatusActive)},
		Before:   pgtype.Timestamptz{Time: cutoff, Valid: true},
		Limit:    int32(m.cfg.SweepLimit),
	})
	if err != nil {
		m.log.Error("stale sweep query failed", zap.Error(err))
		return
	}

	for _, s := range sessions {
		if ctx.Err() != nil {
			return
		}
		st := core.StatusStale
		newVersion, err := m.sessions.UpdateAtVersion(ctx, s.ID, session.Update{Status: &st}, s.Version)
		if err != nil {
			var conflict *core.VersionConflictError
			if errors.As(err, &conflict) {
				m.log.Debug("session active again, stale mark skipped",
					zap.String("session_id", s.ID),
				)
				continue
			}
			m.log.Warn("stale mark failed",
				zap.String("session_id", s.ID),
				zap.Error(err),
			)
			continue
		}

		payload, _ := json.Marshal(map[string]string{
			"idle_since": s.UpdatedAt.Time.UTC().Format(time.RFC3339),
		})
		if _, err := m.queries.InsertSessionEvent(ctx, store.InsertSessionEventParams{
			SessionID: s.ID,
			EventType: string(core.EventSessionStale),
			Payload:   payload,
		}); err != nil {
			m.log.Warn("stale event insert failed",
				zap.String("session_id", s.ID),
				zap.Error(err),
			)
		}
		observability.SessionsMarkedStaleTotal.Inc()
		m.log.Info("session marked stale",
			zap.String("session_id", s.ID),
			zap.Int64("version", newVersion),
		)
	}
}

// sweepCleanup reclaims terminal sessions idle past CleanupAfter: archive
// when enabled, remove the workspace, then drop the row (its events cascade
// with it). An archive or cleanup failure keeps the session for the next
// pass; data is never deleted after a failed preservation step.
func (m *Monitor) sweepCleanup(ctx context.Context) {
	start := time.Now()
	defer func() {
		observability.MonitorSweepDuration.WithLabelValues("cleanup").Observe(time.Since(start).Seconds())
	}()

	cutoff := time.Now().Add(-m.cfg.CleanupAfter)
	sessions, err := m.queries.ListSessionsIdleSince(ctx, store.ListSessionsIdleSinceParams{
		Statuses: []string{
			string(core.StatusStale),
			string(core.StatusCompleted),
			string(core.StatusError),
			string(core.StatusCrashed),
		},
		Before: pgtype.Timestamptz{Time: cutoff, Valid: true},
		Limit:  int32(m.cfg.SweepLimit),
	})
	if err != nil {
		m.log.Error("cleanup sweep query failed", zap.Error(err))
		return
	}

	for _, s := range sessions {
		if ctx.Err() != nil {
			return
		}
		m.cleanupSession(ctx, s)
	}
}

func (m *Monitor) cleanupSession(ctx context.Context, s store.Session) {
	correlationID := "sweep-" + core.NewID()
	log := observability.SessionLogger(m.log, s.ID, correlationID)

	if s.ProjectPath != core.RemoteSandboxToken {
		if _, err := m.workspaces.Archive(ctx, s.ProjectPath, correlationID); err != nil {
			log.Error("workspace archive failed, session kept", zap.Error(err))
			return
		}
		if err := m.workspaces.Cleanup(ctx, s.ProjectPath, correlationID); err != nil {
			log.Error("workspace cleanup failed, session kept", zap.Error(err))
			return
		}
	}

	if err := m.queries.DeleteSession(ctx, s.ID); err != nil {
		log.Error("session delete failed", zap.Error(err))
		return
	}
	observability.SessionsCleanedTotal.Inc()
	log.Info("session cleaned",
		zap.String("status", s.Status),
		zap.String("project_type", s.ProjectType),
	)
}

// observeCapacity refreshes the disk and workspace-count gauges and logs
// when either crosses its configured line. The gauges are set inside the
// manager so the API's stats endpoint and this daemon share one code path.
func (m *Monitor) observeCapacity() {
	ds, err := m.workspaces.DiskSpace()
	if err != nil {
		m.log.Warn("disk space check failed", zap.Error(err))
	} else if ds.LowSpace {
		m.log.Warn("workspace volume low on space",
			zap.Uint64("free_bytes", ds.FreeBytes),
			zap.Uint64("total_bytes", ds.TotalBytes),
		)
	}

	wc, err := m.workspaces.CountWorkspaces()
	if err != nil {
		m.log.Warn("workspace count failed", zap.Error(err))
	} else if wc.QuotaExceeded {
		m.log.Warn("workspace quota exceeded",
			zap.Int("count", wc.Count),
			zap.Int("max", wc.Max),
		)
	}
}
