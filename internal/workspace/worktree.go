package workspace

import (
	"context"
	"path/filepath"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/core"
)

func (m *Manager) prepareWorktree(ctx context.Context, r core.WorktreeRequest, correlationID string) (string, error) {
	base, err := m.guard.Validate(r.BasePath, correlationID)
	if err != nil {
		return "", err
	}
	if _, err := gogit.PlainOpen(base); err != nil {
		m.log.Warn("worktree base is not a repository",
			zap.String("correlation_id", correlationID),
			zap.String("path_base", filepath.Base(base)),
		)
		return "", core.NewAppError(core.ErrBadRequest, "base path is not a git repository")
	}

	dst := filepath.Join(m.guard.Root(), "wt-"+core.NewID())
	validated, err := m.guard.Validate(dst, correlationID)
	if err != nil {
		return "", err
	}

	output, err := m.git.run(ctx, command{
		op:        "worktree_add",
		timeout:   m.cfg.WorktreeTimeout,
		maxOutput: m.cfg.MaxOutputBytes,
		name:      m.cfg.GitBin,
		args:      []string{"-C", base, "worktree", "add", "--detach", validated},
	})
	if err != nil {
		m.removeDir(validated, correlationID)
		m.pruneWorktrees(ctx, base, correlationID)
		return "", m.mapExecErr(err, output, "worktree_add", correlationID)
	}

	revalidated, err := m.guard.Validate(validated, correlationID)
	if err != nil || revalidated != validated {
		m.removeDir(validated, correlationID)
		m.pruneWorktrees(ctx, base, correlationID)
		return "", core.NewAppError(core.ErrSecurityViolation, "workspace security check failed")
	}

	m.log.Info("worktree created",
		zap.String("correlation_id", correlationID),
		zap.String("path_base", filepath.Base(validated)),
	)
	return validated, nil
}

// pruneWorktrees drops stale worktree registrations after a failed or
// removed checkout. Best effort: the base repo stays usable either way.
func (m *Manager) pruneWorktrees(ctx context.Context, base, correlationID string) {
	_, err := m.git.run(ctx, command{
		op:        "worktree_prune",
		timeout:   15 * time.Second,
		maxOutput: m.cfg.MaxOutputBytes,
		name:      m.cfg.GitBin,
		args:      []string{"-C", base, "worktree", "prune"},
	})
	if err != nil {
		m.log.Warn("worktree prune failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
	}
}
