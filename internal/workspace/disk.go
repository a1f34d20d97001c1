package workspace

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/agentfoundry/sessiond/internal/observability"
)

type DiskSpace struct {
	TotalBytes uint64 `json:"total_bytes"`
	UsedBytes  uint64 `json:"used_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
	LowSpace   bool   `json:"low_space"`
}

type WorkspaceCount struct {
	Count         int  `json:"count"`
	Max           int  `json:"max"`
	QuotaExceeded bool `json:"quota_exceeded"`
}

// DiskSpace reports capacity of the volume backing the workspace root and
// compares free space against the configured minimum.
func (m *Manager) DiskSpace() (DiskSpace, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(m.guard.Root(), &st); err != nil {
		return DiskSpace{}, fmt.Errorf("statfs workspace root: %w", err)
	}
	total := st.Blocks * uint64(st.Bsize)
	free := st.Bavail * uint64(st.Bsize)
	ds := DiskSpace{
		TotalBytes: total,
		UsedBytes:  total - free,
		FreeBytes:  free,
		LowSpace:   m.cfg.MinFreeDiskBytes > 0 && free < uint64(m.cfg.MinFreeDiskBytes),
	}
	observability.WorkspaceDiskFreeBytes.Set(float64(free))
	return ds, nil
}

// CountWorkspaces counts top-level entries under the root and flags quota
// overrun.
func (m *Manager) CountWorkspaces() (WorkspaceCount, error) {
	entries, err := os.ReadDir(m.guard.Root())
	if err != nil {
		return WorkspaceCount{}, fmt.Errorf("read workspace root: %w", err)
	}
	wc := WorkspaceCount{
		Count:         len(entries),
		Max:           m.cfg.MaxWorkspaces,
		QuotaExceeded: m.cfg.MaxWorkspaces > 0 && len(entries) > m.cfg.MaxWorkspaces,
	}
	observability.WorkspaceCount.Set(float64(wc.Count))
	return wc, nil
}
