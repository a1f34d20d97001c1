package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/core"
	"github.com/agentfoundry/sessiond/internal/retry"
	"github.com/agentfoundry/sessiond/internal/store"
)

// fakeStore holds one session row. Setting conflicts makes the next n
// conditional updates lose the race, each loss advancing the version the way
// a competing writer would.
type fakeStore struct {
	mu        sync.Mutex
	session   store.Session
	missing   bool
	conflicts int
	getCalls  int
	updates   []store.UpdateSessionWithVersionParams
	touches   int
}

func (f *fakeStore) GetSession(_ context.Context, id string) (store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.missing {
		return store.Session{}, core.NewAppError(core.ErrNotFound, "session not found")
	}
	return f.session, nil
}

func (f *fakeStore) UpdateSessionWithVersion(_ context.Context, arg store.UpdateSessionWithVersionParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, arg)
	if f.conflicts > 0 {
		f.conflicts--
		f.session.Version++
		return 0, &core.VersionConflictError{SessionID: arg.ID, ExpectedVersion: arg.ExpectedVersion}
	}
	if arg.ExpectedVersion != f.session.Version {
		return 0, &core.VersionConflictError{SessionID: arg.ID, ExpectedVersion: arg.ExpectedVersion}
	}
	f.session.Version++
	if arg.Status.Valid {
		f.session.Status = arg.Status.String
	}
	if arg.ClaudeSessionID.Valid {
		f.session.ClaudeSessionID = arg.ClaudeSessionID
	}
	return f.session.Version, nil
}

func (f *fakeStore) TouchSessionWithVersion(_ context.Context, arg store.TouchSessionWithVersionParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	if arg.ExpectedVersion != f.session.Version {
		return 0, &core.VersionConflictError{SessionID: arg.ID, ExpectedVersion: arg.ExpectedVersion}
	}
	f.session.Version++
	return f.session.Version, nil
}

func fastOpts(maxRetries int) retry.Options {
	return retry.Options{
		MaxRetries:   maxRetries,
		BaseDelay:    time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		JitterFactor: 0.1,
	}
}

func statusPtr(s core.SessionStatus) *core.SessionStatus { return &s }

func newService(f *fakeStore, maxRetries int) *Service {
	return New(f, fastOpts(maxRetries), zap.NewNop())
}

func TestUpdateWithRetry_FirstTry(t *testing.T) {
	f := &fakeStore{session: store.Session{ID: "s-1", Status: "active", Version: 1}}
	svc := newService(f, 3)

	out := svc.UpdateWithRetry(context.Background(), "s-1", Update{Status: statusPtr(core.StatusCompleted)})
	if !out.Success {
		t.Fatalf("update failed: %v", out.Err)
	}
	if out.Value != 2 {
		t.Errorf("expected new version 2, got %d", out.Value)
	}
	if out.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", out.Attempts)
	}
	if f.session.Status != "completed" {
		t.Errorf("status not applied: %s", f.session.Status)
	}

	snap := svc.Stats()
	if snap.FirstTrySuccesses != 1 || snap.TotalAttempts != 1 {
		t.Errorf("stats not recorded: %+v", snap)
	}
}

func TestUpdateWithRetry_ReReadsAfterConflict(t *testing.T) {
	f := &fakeStore{session: store.Session{ID: "s-1", Status: "active", Version: 1}, conflicts: 2}
	svc := newService(f, 5)

	out := svc.UpdateWithRetry(context.Background(), "s-1", Update{Status: statusPtr(core.StatusCompleted)})
	if !out.Success {
		t.Fatalf("update failed after conflicts: %v", out.Err)
	}
	if out.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", out.Attempts)
	}
	if f.getCalls != 3 {
		t.Errorf("expected a fresh read per attempt, got %d reads", f.getCalls)
	}
	// Each attempt must carry the version it just read, never a stale one.
	want := []int64{1, 2, 3}
	for i, upd := range f.updates {
		if upd.ExpectedVersion != want[i] {
			t.Errorf("attempt %d used version %d, expected %d", i+1, upd.ExpectedVersion, want[i])
		}
	}

	snap := svc.Stats()
	if snap.RetriedSuccesses != 1 {
		t.Errorf("retried success not recorded: %+v", snap)
	}
}

func TestUpdateWithRetry_NotFoundShortCircuits(t *testing.T) {
	f := &fakeStore{missing: true}
	svc := newService(f, 3)

	out := svc.UpdateWithRetry(context.Background(), "gone", Update{Status: statusPtr(core.StatusCompleted)})
	if out.Success {
		t.Fatal("missing session reported success")
	}
	if out.Attempts != 1 {
		t.Errorf("not-found retried: %d attempts", out.Attempts)
	}
	if out.RetriesExhausted {
		t.Error("not-found reported as exhaustion")
	}
	var app *core.AppError
	if !errors.As(out.Err, &app) || app.Code != core.ErrNotFound {
		t.Errorf("expected SESS_NOT_FOUND, got %v", out.Err)
	}
}

func TestUpdateWithRetry_Exhaustion(t *testing.T) {
	f := &fakeStore{session: store.Session{ID: "s-1", Version: 1}, conflicts: 100}
	svc := newService(f, 2)

	out := svc.UpdateWithRetry(context.Background(), "s-1", Update{})
	if out.Success {
		t.Fatal("persistent conflict reported success")
	}
	if out.Attempts != 3 {
		t.Errorf("expected maxRetries+1 = 3 attempts, got %d", out.Attempts)
	}
	if !out.RetriesExhausted {
		t.Error("exhaustion not reported")
	}
	var conflict *core.VersionConflictError
	if !errors.As(out.Err, &conflict) {
		t.Errorf("expected last conflict as Err, got %v", out.Err)
	}

	snap := svc.Stats()
	if snap.ExhaustedFailures != 1 || snap.TotalAttempts != 3 {
		t.Errorf("exhaustion stats wrong: %+v", snap)
	}
}

func TestUpdateWithRetry_InvalidStatusRejected(t *testing.T) {
	f := &fakeStore{session: store.Session{ID: "s-1", Version: 1}}
	svc := newService(f, 3)

	out := svc.UpdateWithRetry(context.Background(), "s-1", Update{Status: statusPtr("bogus")})
	if out.Success {
		t.Fatal("invalid status accepted")
	}
	if out.Attempts != 1 {
		t.Errorf("validation failure retried: %d attempts", out.Attempts)
	}
	var app *core.AppError
	if !errors.As(out.Err, &app) || app.Code != core.ErrBadRequest {
		t.Errorf("expected SESS_BAD_REQUEST, got %v", out.Err)
	}
	if len(f.updates) != 0 {
		t.Error("invalid update reached the store")
	}
}

func TestHeartbeat(t *testing.T) {
	f := &fakeStore{session: store.Session{ID: "s-1", Status: "active", Version: 4}}
	svc := newService(f, 3)

	out := svc.Heartbeat(context.Background(), "s-1")
	if !out.Success {
		t.Fatalf("heartbeat failed: %v", out.Err)
	}
	if out.Value != 5 {
		t.Errorf("expected version 5, got %d", out.Value)
	}
	if f.touches != 1 {
		t.Errorf("expected 1 touch, got %d", f.touches)
	}
	if f.session.Status != "active" {
		t.Errorf("heartbeat changed status: %s", f.session.Status)
	}
}
