package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/core"
	"github.com/agentfoundry/sessiond/internal/retry"
	"github.com/agentfoundry/sessiond/internal/workspace"
)

type WorkspaceStatsResponse struct {
	Root       string                   `json:"root"`
	Disk       workspace.DiskSpace      `json:"disk"`
	Workspaces workspace.WorkspaceCount `json:"workspaces"`
	Sessions   map[string]int64         `json:"sessions_by_status"`
	Retry      retry.StatsSnapshot      `json:"retry"`
}

// WorkspaceStats reports capacity of the workspace root, the directory count
// against quota, the session population by status, and cumulative retry
// outcomes since the process started.
func (a *API) WorkspaceStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	disk, err := a.manager.DiskSpace()
	if err != nil {
		a.log.Error("disk stats failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to read disk stats"))
		return
	}
	count, err := a.manager.CountWorkspaces()
	if err != nil {
		a.log.Error("workspace count failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to count workspaces"))
		return
	}
	rows, err := a.queries.CountSessionsByStatus(ctx)
	if err != nil {
		a.log.Error("session counts failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to count sessions"))
		return
	}
	byStatus := make(map[string]int64, len(rows))
	for _, row := range rows {
		byStatus[row.Status] = row.Count
	}

	WriteJSON(w, http.StatusOK, WorkspaceStatsResponse{
		Root:       a.manager.Root(),
		Disk:       disk,
		Workspaces: count,
		Sessions:   byStatus,
		Retry:      a.sessions.Stats(),
	})
}
