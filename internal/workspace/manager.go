// Package workspace provisions and reclaims session workspaces under a
// guarded root: plain directories, GitHub clones, git worktrees, and the
// remote-sandbox passthrough. All subprocess work runs as argument vectors
// with wall-clock timeouts and capped output.
package workspace

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/core"
	"github.com/agentfoundry/sessiond/internal/observability"
	"github.com/agentfoundry/sessiond/internal/pathguard"
)

type Config struct {
	Root             string        `envconfig:"SESSIOND_WORKSPACE_ROOT" required:"true"`
	AllowedPrefixes  []string      `envconfig:"SESSIOND_ALLOWED_PATH_PREFIXES"`
	MaxRepoSizeBytes int64         `envconfig:"SESSIOND_MAX_REPO_SIZE_BYTES" default:"1073741824"`
	CloneTimeout     time.Duration `envconfig:"SESSIOND_CLONE_TIMEOUT" default:"5m"`
	WorktreeTimeout  time.Duration `envconfig:"SESSIOND_WORKTREE_TIMEOUT" default:"60s"`
	MaxOutputBytes   int64         `envconfig:"SESSIOND_MAX_OUTPUT_BYTES" default:"10485760"`
	MaxWorkspaces    int           `envconfig:"SESSIOND_MAX_WORKSPACES" default:"500"`
	MinFreeDiskBytes int64         `envconfig:"SESSIOND_MIN_FREE_DISK_BYTES" default:"1073741824"`
	ArchiveEnabled   bool          `envconfig:"SESSIOND_ARCHIVE_ENABLED" default:"false"`
	ArchiveDir       string        `envconfig:"SESSIOND_ARCHIVE_DIR" default:""`
	GitBin           string        `envconfig:"SESSIOND_GIT_BIN" default:"git"`
	CloneDepth       int           `envconfig:"SESSIOND_CLONE_DEPTH" default:"1"`
}

// managedNameRE matches the directory names this manager generates itself
// (random UUID suffixed with a ws-/wt- prefix).
var managedNameRE = regexp.MustCompile(`^(ws|wt)-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

type Manager struct {
	guard *pathguard.Guard
	cfg   Config
	git   runner
	log   *zap.Logger
}

func New(guard *pathguard.Guard, cfg Config, log *zap.Logger) *Manager {
	return &Manager{
		guard: guard,
		cfg:   cfg,
		git:   &execRunner{log: log},
		log:   log,
	}
}

// Root returns the guarded workspace root.
func (m *Manager) Root() string {
	return m.guard.Root()
}

// Prepare provisions a workspace for req and returns its canonical path, or
// the remote-sandbox token for requests with no filesystem side. Any failure
// after filesystem state was created removes that state before returning.
func (m *Manager) Prepare(ctx context.Context, req core.WorkspaceRequest, correlationID string) (string, error) {
	start := time.Now()
	typ := string(req.ProjectType())

	path, err := m.prepare(ctx, req, correlationID)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.WorkspacePrepareTotal.WithLabelValues(typ, outcome).Inc()
	observability.WorkspacePrepareDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())
	return path, err
}

func (m *Manager) prepare(ctx context.Context, req core.WorkspaceRequest, correlationID string) (string, error) {
	switch r := req.(type) {
	case core.LocalRequest:
		return m.prepareLocal(r, correlationID)
	case core.GitHubCloneRequest:
		return m.prepareClone(ctx, r, correlationID)
	case core.WorktreeRequest:
		return m.prepareWorktree(ctx, r, correlationID)
	case core.RemoteSandboxRequest:
		return core.RemoteSandboxToken, nil
	default:
		return "", core.NewAppError(core.ErrBadRequest, "unsupported workspace request")
	}
}

func (m *Manager) prepareLocal(r core.LocalRequest, correlationID string) (string, error) {
	validated, err := m.guard.Validate(r.Path, correlationID)
	if err != nil {
		return "", err
	}
	if !m.guard.IsAllowlisted(validated) {
		m.log.Warn("workspace path outside allowlist",
			zap.String("correlation_id", correlationID),
			zap.String("path_base", filepath.Base(validated)),
		)
		return "", core.NewAppError(core.ErrInvalidPath, "invalid workspace path")
	}

	existed := false
	if info, statErr := os.Stat(validated); statErr == nil {
		if !info.IsDir() {
			return "", core.NewAppError(core.ErrInvalidPath, "invalid workspace path")
		}
		existed = true
	}

	if err := os.MkdirAll(validated, 0o750); err != nil {
		m.log.Error("workspace mkdir failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		return "", core.NewAppError(core.ErrInternal, "workspace provisioning failed")
	}

	// The directory now exists; resolve again so a symlink swapped in
	// between validation and creation cannot stand.
	revalidated, err := m.guard.Validate(validated, correlationID)
	if err != nil || revalidated != validated {
		if !existed {
			_ = os.RemoveAll(validated)
		}
		m.log.Warn("workspace revalidation failed after create",
			zap.String("correlation_id", correlationID),
			zap.String("path_base", filepath.Base(validated)),
		)
		return "", core.NewAppError(core.ErrSecurityViolation, "workspace security check failed")
	}
	return validated, nil
}

// Cleanup removes a workspace directory. The stored path is re-validated
// from scratch, and on top of that must either carry a name this manager
// generated or sit under the workspace root; a missing directory counts as
// already cleaned.
func (m *Manager) Cleanup(ctx context.Context, path, correlationID string) error {
	err := m.cleanup(ctx, path, correlationID)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.WorkspaceCleanupTotal.WithLabelValues(outcome).Inc()
	return err
}

func (m *Manager) cleanup(_ context.Context, path, correlationID string) error {
	validated, err := m.guard.Validate(path, correlationID)
	if err != nil {
		return err
	}
	if !m.isCleanupTarget(validated) {
		m.log.Warn("cleanup target rejected",
			zap.String("correlation_id", correlationID),
			zap.String("path_base", filepath.Base(validated)),
		)
		return core.NewAppError(core.ErrInvalidCleanupTarget, "invalid cleanup target")
	}
	if err := os.RemoveAll(validated); err != nil {
		m.log.Error("workspace removal failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		return core.NewAppError(core.ErrInternal, "workspace cleanup failed")
	}
	m.log.Info("workspace cleaned",
		zap.String("correlation_id", correlationID),
		zap.String("path_base", filepath.Base(validated)),
	)
	return nil
}

func (m *Manager) isCleanupTarget(validated string) bool {
	if validated == m.guard.Root() {
		return false
	}
	if managedNameRE.MatchString(filepath.Base(validated)) {
		return true
	}
	return strings.HasPrefix(validated, m.guard.Root()+string(os.PathSeparator))
}

// removeDir is the shared failure path for provisioning flows that already
// created state. Removal errors are logged, never returned; they must not
// mask the original failure.
func (m *Manager) removeDir(path, correlationID string) {
	if err := os.RemoveAll(path); err != nil {
		m.log.Error("failed to remove partial workspace",
			zap.String("correlation_id", correlationID),
			zap.String("path_base", filepath.Base(path)),
			zap.Error(err),
		)
	}
}
