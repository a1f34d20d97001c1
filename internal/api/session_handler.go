package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/api/middleware"
	"github.com/agentfoundry/sessiond/internal/core"
	"github.com/agentfoundry/sessiond/internal/session"
	"github.com/agentfoundry/sessiond/internal/store"
)

type CreateSessionRequest struct {
	ProjectType string            `json:"project_type"`
	Path        string            `json:"path,omitempty"`
	Repo        string            `json:"repo,omitempty"`
	BasePath    string            `json:"base_path,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type UpdateSessionRequest struct {
	Status          *string           `json:"status,omitempty"`
	ClaudeSessionID *string           `json:"claude_session_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func buildWorkspaceRequest(req CreateSessionRequest) (core.WorkspaceRequest, *core.AppError) {
	switch core.ProjectType(req.ProjectType) {
	case core.ProjectLocal:
		if req.Path == "" {
			return nil, core.NewAppError(core.ErrBadRequest, "path is required for local sessions")
		}
		return core.LocalRequest{Path: req.Path}, nil
	case core.ProjectGitHub:
		if req.Repo == "" {
			return nil, core.NewAppError(core.ErrBadRequest, "repo is required for github sessions")
		}
		return core.GitHubCloneRequest{Repo: req.Repo}, nil
	case core.ProjectWorktree:
		if req.BasePath == "" {
			return nil, core.NewAppError(core.ErrBadRequest, "base_path is required for worktree sessions")
		}
		return core.WorktreeRequest{BasePath: req.BasePath}, nil
	case core.ProjectE2B:
		return core.RemoteSandboxRequest{}, nil
	default:
		return nil, core.NewAppError(core.ErrBadRequest, "unknown project_type")
	}
}

// CreateSession provisions a workspace for the request and inserts the
// session row. A workspace this call created is removed again when the
// insert fails; caller-owned local directories are left alone.
func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetRequestID(r)

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid request body"))
		return
	}
	wsReq, appErr := buildWorkspaceRequest(req)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}

	if _, remote := wsReq.(core.RemoteSandboxRequest); !remote {
		wc, err := a.manager.CountWorkspaces()
		if err != nil {
			a.log.Error("workspace count failed",
				zap.Error(err),
				zap.String("request_id", correlationID),
			)
			WriteError(w, core.NewAppError(core.ErrInternal, "failed to create session"))
			return
		}
		if wc.QuotaExceeded {
			WriteError(w, core.NewAppError(core.ErrQuotaExceeded, "workspace quota exceeded"))
			return
		}
	}

	path, err := a.manager.Prepare(ctx, wsReq, correlationID)
	if err != nil {
		WriteFailure(w, err)
		return
	}

	var metadata []byte
	if req.Metadata != nil {
		metadata, _ = json.Marshal(req.Metadata)
	}

	s, err := a.queries.CreateSession(ctx, store.CreateSessionParams{
		ID:          core.NewID(),
		ProjectPath: path,
		ProjectType: string(wsReq.ProjectType()),
		Metadata:    metadata,
	})
	if err != nil {
		a.log.Error("session insert failed",
			zap.Error(err),
			zap.String("request_id", correlationID),
		)
		switch wsReq.(type) {
		case core.GitHubCloneRequest, core.WorktreeRequest:
			if cErr := a.manager.Cleanup(ctx, path, correlationID); cErr != nil {
				a.log.Error("compensating cleanup failed",
					zap.Error(cErr),
					zap.String("request_id", correlationID),
				)
			}
		}
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to create session"))
		return
	}

	payload, _ := json.Marshal(map[string]string{
		"project_type":   s.ProjectType,
		"correlation_id": correlationID,
	})
	if _, err := a.queries.InsertSessionEvent(ctx, store.InsertSessionEventParams{
		SessionID: s.ID,
		EventType: string(core.EventSessionCreated),
		Payload:   payload,
	}); err != nil {
		a.log.Warn("session event insert failed",
			zap.Error(err),
			zap.String("request_id", correlationID),
		)
	}

	WriteJSON(w, http.StatusCreated, sessionToResponse(s))
}

// ListSessions lists sessions, optionally filtered by status.
func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 200)

	var status pgtype.Text
	if s := r.URL.Query().Get("status"); s != "" {
		if !core.SessionStatus(s).Valid() {
			WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid status filter"))
			return
		}
		status = pgtype.Text{String: s, Valid: true}
	}

	sessions, err := a.queries.ListSessions(ctx, store.ListSessionsParams{
		Status: status,
		Limit:  int32(limit),
	})
	if err != nil {
		a.log.Error("list sessions failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to list sessions"))
		return
	}

	resp := make([]core.Session, len(sessions))
	for i, s := range sessions {
		resp[i] = sessionToResponse(s)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": resp})
}

// GetSession gets a single session by id.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.queries.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteFailure(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sessionToResponse(s))
}

// UpdateSession applies a partial update. Without an If-Match-Version header
// the update runs under the configured retry policy; with one it is a single
// compare-and-swap whose conflict surfaces as 409 immediately.
func (a *API) UpdateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid request body"))
		return
	}
	upd := session.Update{
		ClaudeSessionID: req.ClaudeSessionID,
		Metadata:        req.Metadata,
	}
	if req.Status != nil {
		st := core.SessionStatus(*req.Status)
		if !st.Valid() {
			WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid session status"))
			return
		}
		upd.Status = &st
	}

	if hdr := r.Header.Get("If-Match-Version"); hdr != "" {
		expected, err := strconv.ParseInt(hdr, 10, 64)
		if err != nil || expected < 1 {
			WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid If-Match-Version header"))
			return
		}
		newVersion, err := a.sessions.UpdateAtVersion(ctx, id, upd, expected)
		if err != nil {
			WriteFailure(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"id": id, "version": newVersion})
		return
	}

	out := a.sessions.UpdateWithRetry(ctx, id, upd)
	if !out.Success {
		WriteFailure(w, out.Err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"id": id, "version": out.Value})
}

// Heartbeat bumps a session's updated_at through the retry protocol.
func (a *API) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	out := a.sessions.Heartbeat(r.Context(), id)
	if !out.Success {
		WriteFailure(w, out.Err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"id": id, "version": out.Value})
}

// DeleteSession reclaims the workspace and removes the row. Remote-sandbox
// sessions have no filesystem side; everything else is archived (when
// enabled) and cleaned before the row goes away.
func (a *API) DeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	correlationID := middleware.GetRequestID(r)

	s, err := a.queries.GetSession(ctx, id)
	if err != nil {
		WriteFailure(w, err)
		return
	}

	if s.ProjectPath != core.RemoteSandboxToken {
		if _, err := a.manager.Archive(ctx, s.ProjectPath, correlationID); err != nil {
			a.log.Error("workspace archive failed",
				zap.Error(err),
				zap.String("request_id", correlationID),
			)
			WriteError(w, core.NewAppError(core.ErrInternal, "failed to delete session"))
			return
		}
		if err := a.manager.Cleanup(ctx, s.ProjectPath, correlationID); err != nil {
			WriteFailure(w, err)
			return
		}
	}

	if err := a.queries.DeleteSession(ctx, id); err != nil {
		a.log.Error("session delete failed",
			zap.Error(err),
			zap.String("request_id", correlationID),
		)
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to delete session"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSessionEvents returns a session's tool-invocation and lifecycle trail.
func (a *API) ListSessionEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	limit := parseLimit(r.URL.Query().Get("limit"), 100, 500)

	if _, err := a.queries.GetSession(ctx, id); err != nil {
		WriteFailure(w, err)
		return
	}

	events, err := a.queries.ListSessionEvents(ctx, store.ListSessionEventsParams{
		SessionID: id,
		Limit:     int32(limit),
	})
	if err != nil {
		a.log.Error("list session events failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to list session events"))
		return
	}

	resp := make([]core.SessionEvent, len(events))
	for i, e := range events {
		resp[i] = eventToResponse(e)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"events": resp})
}

func sessionToResponse(s store.Session) core.Session {
	out := core.Session{
		ID:          s.ID,
		ProjectPath: s.ProjectPath,
		ProjectType: core.ProjectType(s.ProjectType),
		Status:      core.SessionStatus(s.Status),
		Metadata:    map[string]string{},
		CreatedAt:   s.CreatedAt.Time,
		UpdatedAt:   s.UpdatedAt.Time,
		Version:     s.Version,
	}
	if s.ClaudeSessionID.Valid {
		v := s.ClaudeSessionID.String
		out.ClaudeSessionID = &v
	}
	if len(s.Metadata) > 0 {
		_ = json.Unmarshal(s.Metadata, &out.Metadata)
	}
	return out
}

func eventToResponse(e store.SessionEvent) core.SessionEvent {
	out := core.SessionEvent{
		EventID:   e.EventID,
		SessionID: e.SessionID,
		EventType: core.EventType(e.EventType),
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt.Time,
	}
	if e.ToolName.Valid {
		v := e.ToolName.String
		out.ToolName = &v
	}
	return out
}

func parseLimit(s string, defaultVal, maxVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return defaultVal
	}
	if n > maxVal {
		return maxVal
	}
	return n
}
