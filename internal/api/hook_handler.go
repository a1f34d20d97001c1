package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/api/middleware"
	"github.com/agentfoundry/sessiond/internal/core"
	"github.com/agentfoundry/sessiond/internal/retry"
	"github.com/agentfoundry/sessiond/internal/session"
	"github.com/agentfoundry/sessiond/internal/store"
)

const hookSecretHeader = "X-Hook-Secret"

type HookRequest struct {
	SessionID       string          `json:"session_id"`
	EventType       string          `json:"event_type,omitempty"`
	ToolName        string          `json:"tool_name,omitempty"`
	ClaudeSessionID *string         `json:"claude_session_id,omitempty"`
	Status          *string         `json:"status,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// authorizeHook enforces the shared-secret header. When no secret is
// configured, production refuses every delivery; development accepts them
// with a warning so local agents work without setup.
func (a *API) authorizeHook(r *http.Request) *core.AppError {
	if a.cfg.HookSecret == "" {
		if a.cfg.Env == "production" {
			return core.NewAppError(core.ErrUnauthorized, "hook secret not configured")
		}
		a.log.Warn("hook delivery accepted without a shared secret",
			zap.String("env", a.cfg.Env),
			zap.String("request_id", middleware.GetRequestID(r)),
		)
		return nil
	}
	got := r.Header.Get(hookSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.cfg.HookSecret)) != 1 {
		return core.NewAppError(core.ErrUnauthorized, "invalid hook secret")
	}
	return nil
}

// ClaudeHook ingests a tool-invocation or lifecycle delivery from the agent:
// it appends the event and moves the session through the retry protocol —
// a field update when the delivery carries one, a heartbeat otherwise.
func (a *API) ClaudeHook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetRequestID(r)

	if appErr := a.authorizeHook(r); appErr != nil {
		WriteError(w, appErr)
		return
	}

	var req HookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid request body"))
		return
	}
	if req.SessionID == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "session_id is required"))
		return
	}
	eventType := req.EventType
	if eventType == "" {
		eventType = string(core.EventToolInvoked)
	}

	upd := session.Update{ClaudeSessionID: req.ClaudeSessionID}
	if req.Status != nil {
		st := core.SessionStatus(*req.Status)
		if !st.Valid() {
			WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid session status"))
			return
		}
		upd.Status = &st
	}

	if _, err := a.queries.GetSession(ctx, req.SessionID); err != nil {
		WriteFailure(w, err)
		return
	}

	var toolName pgtype.Text
	if req.ToolName != "" {
		toolName = pgtype.Text{String: req.ToolName, Valid: true}
	}
	if _, err := a.queries.InsertSessionEvent(ctx, store.InsertSessionEventParams{
		SessionID: req.SessionID,
		EventType: eventType,
		ToolName:  toolName,
		Payload:   req.Payload,
	}); err != nil {
		a.log.Error("hook event insert failed",
			zap.Error(err),
			zap.String("request_id", correlationID),
		)
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to record hook"))
		return
	}

	// A delivery that only reports a tool call still counts as activity, so
	// the session heartbeats instead of drifting toward the stale sweep.
	var out retry.Outcome[int64]
	if req.Status != nil || req.ClaudeSessionID != nil {
		out = a.sessions.UpdateWithRetry(ctx, req.SessionID, upd)
	} else {
		out = a.sessions.Heartbeat(ctx, req.SessionID)
	}
	if !out.Success {
		WriteFailure(w, out.Err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": req.SessionID,
		"version":    out.Value,
	})
}
