// Package pathguard confines caller-supplied paths to a single workspace
// root. Every path that reaches the filesystem layer goes through Validate
// first; nothing below the root is trusted, including paths read back from
// the sessions store.
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/core"
	"github.com/agentfoundry/sessiond/internal/observability"
)

type Guard struct {
	root      string
	allowlist []string
	log       *zap.Logger
}

// New builds a Guard for root. The root must already exist and be a
// directory; it is symlink-resolved once here so later prefix checks compare
// against the real location. Allowlist entries are optional extra prefixes
// checked by IsAllowlisted; relative entries are taken as root-relative.
func New(root string, allowlist []string, log *zap.Logger) (*Guard, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root not configured")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", resolved)
	}
	if info.Mode().Perm()&0o002 != 0 {
		log.Warn("workspace root is world-writable", zap.String("root", resolved))
	}

	g := &Guard{root: resolved, log: log}
	for _, p := range allowlist {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(resolved, p)
		}
		g.allowlist = append(g.allowlist, filepath.Clean(p))
	}
	return g, nil
}

// Root returns the resolved workspace root.
func (g *Guard) Root() string {
	return g.root
}

// Validate checks requested against the workspace root and returns its
// canonical, symlink-resolved form. Relative paths are taken as
// root-relative. The path does not need to exist yet: for pre-creation
// validation every existing ancestor is resolved and checked, so a symlink
// planted anywhere on the way cannot lead the later create outside the root.
func (g *Guard) Validate(requested, correlationID string) (string, error) {
	if requested == "" {
		return "", g.reject(requested, correlationID, "empty")
	}
	if strings.IndexByte(requested, 0) >= 0 {
		return "", g.reject(requested, correlationID, "nul_byte")
	}
	for _, seg := range strings.Split(requested, string(os.PathSeparator)) {
		if seg == ".." {
			return "", g.reject(requested, correlationID, "traversal")
		}
	}

	p := requested
	if !filepath.IsAbs(p) {
		p = filepath.Join(g.root, p)
	}
	cleaned := filepath.Clean(p)
	if !g.contains(cleaned) {
		return "", g.reject(requested, correlationID, "outside_root")
	}

	resolved, err := g.resolve(cleaned)
	if err != nil {
		return "", g.reject(requested, correlationID, "unresolvable")
	}
	if !g.contains(resolved) {
		return "", g.reject(requested, correlationID, "symlink_escape")
	}
	return resolved, nil
}

// IsAllowlisted applies the configured prefix allowlist to an
// already-validated path. An empty allowlist admits everything under the
// root; the allowlist narrows, it never widens.
func (g *Guard) IsAllowlisted(validated string) bool {
	if len(g.allowlist) == 0 {
		return true
	}
	for _, prefix := range g.allowlist {
		if validated == prefix || strings.HasPrefix(validated, prefix+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// contains reports whether p is a strict descendant of the root. The
// separator is appended before the prefix check so /base-evil never matches
// a root of /base, and the root itself does not count as its own descendant.
func (g *Guard) contains(p string) bool {
	return strings.HasPrefix(p, g.root+string(os.PathSeparator))
}

// resolve returns the symlink-resolved form of p, which must already be
// clean and absolute. When p does not exist it resolves the deepest existing
// ancestor instead, requires that ancestor to sit inside the root, and
// reattaches the non-existent remainder.
func (g *Guard) resolve(p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	existing := p
	var tail []string
	for {
		parent := filepath.Dir(existing)
		if parent == existing {
			return "", err
		}
		tail = append(tail, filepath.Base(existing))
		existing = parent

		r, evalErr := filepath.EvalSymlinks(existing)
		if evalErr == nil {
			resolved = r
			break
		}
		if !os.IsNotExist(evalErr) {
			return "", evalErr
		}
	}
	if resolved != g.root && !g.contains(resolved) {
		return "", fmt.Errorf("ancestor of %s resolves outside workspace root", filepath.Base(p))
	}
	for i := len(tail) - 1; i >= 0; i-- {
		resolved = filepath.Join(resolved, tail[i])
	}
	return resolved, nil
}

// reject logs one structured security event and returns the fixed caller
// error. Only the basename of the offending path is recorded, never the full
// path.
func (g *Guard) reject(requested, correlationID, reason string) error {
	g.log.Warn("workspace path rejected",
		zap.String("correlation_id", correlationID),
		zap.String("reason", reason),
		zap.String("path_base", filepath.Base(requested)),
	)
	observability.PathRejectionsTotal.WithLabelValues(reason).Inc()
	return core.NewAppError(core.ErrInvalidPath, "invalid workspace path")
}
