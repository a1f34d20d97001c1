package workspace

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/core"
	"github.com/agentfoundry/sessiond/internal/observability"
)

// repoSlugRE enforces the owner/repo grammar: each segment starts and ends
// with an alphanumeric, the owner body allows hyphen and underscore, the
// repo body additionally allows dots. Consecutive dots are rejected
// separately since the character class alone cannot see them.
var repoSlugRE = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9_-]*[A-Za-z0-9])?/[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?$`)

// ValidateRepoSlug checks an owner/repo identifier against the strict
// grammar. The returned error carries a fixed message; the offending slug is
// never echoed back.
func ValidateRepoSlug(slug string) error {
	if !repoSlugRE.MatchString(slug) || strings.Contains(slug, "..") {
		return core.NewAppError(core.ErrInvalidRepo, "invalid repository format")
	}
	return nil
}

func (m *Manager) prepareClone(ctx context.Context, r core.GitHubCloneRequest, correlationID string) (string, error) {
	if err := ValidateRepoSlug(r.Repo); err != nil {
		m.log.Warn("repository slug rejected",
			zap.String("correlation_id", correlationID),
			zap.String("slug", r.Repo),
		)
		return "", err
	}

	// Destination name is random, never derived from the slug.
	dst := filepath.Join(m.guard.Root(), "ws-"+core.NewID())
	validated, err := m.guard.Validate(dst, correlationID)
	if err != nil {
		return "", err
	}

	args := []string{"clone"}
	if m.cfg.CloneDepth > 0 {
		args = append(args, "--depth", strconv.Itoa(m.cfg.CloneDepth))
	}
	args = append(args, "https://github.com/"+r.Repo+".git", validated)

	output, err := m.git.run(ctx, command{
		op:        "clone",
		timeout:   m.cfg.CloneTimeout,
		maxOutput: m.cfg.MaxOutputBytes,
		name:      m.cfg.GitBin,
		args:      args,
	})
	if err != nil {
		m.removeDir(validated, correlationID)
		return "", m.mapExecErr(err, output, "clone", correlationID)
	}

	size, err := dirSize(validated)
	if err != nil {
		m.removeDir(validated, correlationID)
		m.log.Error("clone size measurement failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		return "", core.NewAppError(core.ErrInternal, "workspace provisioning failed")
	}
	observability.WorkspaceCloneBytes.Observe(float64(size))
	if size > m.cfg.MaxRepoSizeBytes {
		m.removeDir(validated, correlationID)
		m.log.Warn("clone exceeds size ceiling",
			zap.String("correlation_id", correlationID),
			zap.Int64("size_bytes", size),
			zap.Int64("limit_bytes", m.cfg.MaxRepoSizeBytes),
		)
		return "", core.NewAppError(core.ErrSizeLimit, "workspace size limit exceeded")
	}

	revalidated, err := m.guard.Validate(validated, correlationID)
	if err != nil || revalidated != validated {
		m.removeDir(validated, correlationID)
		return "", core.NewAppError(core.ErrSecurityViolation, "workspace security check failed")
	}

	m.log.Info("repository cloned",
		zap.String("correlation_id", correlationID),
		zap.String("slug", r.Repo),
		zap.Int64("size_bytes", size),
	)
	return validated, nil
}

// mapExecErr folds subprocess failures into the fixed error set. Full
// output stays in the security log.
func (m *Manager) mapExecErr(err error, output []byte, op, correlationID string) error {
	m.log.Warn("subprocess failed",
		zap.String("correlation_id", correlationID),
		zap.String("op", op),
		zap.Error(err),
		zap.ByteString("output", output),
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return core.NewAppError(core.ErrTimeout, "workspace operation timed out")
	case errors.Is(err, errOutputLimit):
		return core.NewAppError(core.ErrSizeLimit, "workspace size limit exceeded")
	default:
		return core.NewAppError(core.ErrInternal, "workspace provisioning failed")
	}
}

// dirSize sums regular-file sizes under path without following symlinks.
func dirSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
