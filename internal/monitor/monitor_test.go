package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/core"
	"github.com/agentfoundry/sessiond/internal/session"
	"github.com/agentfoundry/sessiond/internal/store"
	"github.com/agentfoundry/sessiond/internal/workspace"
)

type fakeSweepStore struct {
	mu       sync.Mutex
	sessions []store.Session
	deleted  []string
	events   []store.InsertSessionEventParams
	listErr  error
}

func (f *fakeSweepStore) ListSessionsIdleSince(_ context.Context, arg store.ListSessionsIdleSinceParams) ([]store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	allowed := make(map[string]bool, len(arg.Statuses))
	for _, s := range arg.Statuses {
		allowed[s] = true
	}
	var out []store.Session
	for _, s := range f.sessions {
		if !allowed[s.Status] || !s.UpdatedAt.Time.Before(arg.Before.Time) {
			continue
		}
		out = append(out, s)
		if len(out) == int(arg.Limit) {
			break
		}
	}
	return out, nil
}

func (f *fakeSweepStore) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSweepStore) InsertSessionEvent(_ context.Context, arg store.InsertSessionEventParams) (store.SessionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, arg)
	return store.SessionEvent{EventID: int64(len(f.events)), SessionID: arg.SessionID, EventType: arg.EventType}, nil
}

type updateCall struct {
	id      string
	version int64
	status  core.SessionStatus
}

type fakeUpdater struct {
	mu        sync.Mutex
	calls     []updateCall
	conflicts map[string]bool
}

func (f *fakeUpdater) UpdateAtVersion(_ context.Context, id string, upd session.Update, expectedVersion int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts[id] {
		return 0, &core.VersionConflictError{SessionID: id, ExpectedVersion: expectedVersion}
	}
	var st core.SessionStatus
	if upd.Status != nil {
		st = *upd.Status
	}
	f.calls = append(f.calls, updateCall{id: id, version: expectedVersion, status: st})
	return expectedVersion + 1, nil
}

type fakeWorkspaces struct {
	mu         sync.Mutex
	archived   []string
	cleaned    []string
	archiveErr error
	cleanupErr error
	disk       workspace.DiskSpace
	count      workspace.WorkspaceCount
}

func (f *fakeWorkspaces) Archive(_ context.Context, path, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.archiveErr != nil {
		return "", f.archiveErr
	}
	f.archived = append(f.archived, path)
	return "/archives/" + filepath.Base(path) + ".tar.gz", nil
}

func (f *fakeWorkspaces) Cleanup(_ context.Context, path, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cleanupErr != nil {
		return f.cleanupErr
	}
	f.cleaned = append(f.cleaned, path)
	return nil
}

func (f *fakeWorkspaces) DiskSpace() (workspace.DiskSpace, error) {
	return f.disk, nil
}

func (f *fakeWorkspaces) CountWorkspaces() (workspace.WorkspaceCount, error) {
	return f.count, nil
}

func testConfig() Config {
	return Config{
		PollInterval: time.Millisecond,
		StaleAfter:   30 * time.Minute,
		CleanupAfter: 24 * time.Hour,
		SweepLimit:   100,
	}
}

func idleSession(id, status string, idleFor time.Duration) store.Session {
	ts := pgtype.Timestamptz{Time: time.Now().Add(-idleFor), Valid: true}
	return store.Session{
		ID:          id,
		ProjectPath: "/srv/sessiond/" + id,
		ProjectType: string(core.ProjectLocal),
		Status:      status,
		Metadata:    []byte(`{}`),
		CreatedAt:   ts,
		UpdatedAt:   ts,
		Version:     3,
	}
}

func TestSweepStaleMarksIdleSessions(t *testing.T) {
	st := &fakeSweepStore{sessions: []store.Session{
		idleSession("s-idle", string(core.StatusActive), time.Hour),
		idleSession("s-fresh", string(core.StatusActive), time.Minute),
		idleSession("s-done", string(core.StatusCompleted), time.Hour),
	}}
	up := &fakeUpdater{}
	m := New(st, up, &fakeWorkspaces{}, testConfig(), zap.NewNop())

	m.sweepStale(context.Background())

	if len(up.calls) != 1 {
		t.Fatalf("expected 1 stale mark, got %d", len(up.calls))
	}
	call := up.calls[0]
	if call.id != "s-idle" {
		t.Errorf("expected s-idle to be marked, got %s", call.id)
	}
	if call.version != 3 {
		t.Errorf("expected mark pinned at version 3, got %d", call.version)
	}
	if call.status != core.StatusStale {
		t.Errorf("expected status stale, got %s", call.status)
	}

	if len(st.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(st.events))
	}
	if st.events[0].SessionID != "s-idle" || st.events[0].EventType != string(core.EventSessionStale) {
		t.Errorf("unexpected event %+v", st.events[0])
	}
}

func TestSweepStaleSkipsConflictedSessions(t *testing.T) {
	st := &fakeSweepStore{sessions: []store.Session{
		idleSession("s-raced", string(core.StatusActive), time.Hour),
		idleSession("s-idle", string(core.StatusActive), time.Hour),
	}}
	up := &fakeUpdater{conflicts: map[string]bool{"s-raced": true}}
	m := New(st, up, &fakeWorkspaces{}, testConfig(), zap.NewNop())

	m.sweepStale(context.Background())

	if len(up.calls) != 1 || up.calls[0].id != "s-idle" {
		t.Errorf("expected only s-idle to be marked, got %v", up.calls)
	}
	for _, e := range st.events {
		if e.SessionID == "s-raced" {
			t.Errorf("conflicted session must not get a stale event")
		}
	}
}

func TestSweepCleanupReclaimsTerminalSessions(t *testing.T) {
	st := &fakeSweepStore{sessions: []store.Session{
		idleSession("s-old", string(core.StatusStale), 48*time.Hour),
		idleSession("s-active", string(core.StatusActive), 48*time.Hour),
		idleSession("s-recent", string(core.StatusCompleted), time.Hour),
	}}
	ws := &fakeWorkspaces{}
	m := New(st, &fakeUpdater{}, ws, testConfig(), zap.NewNop())

	m.sweepCleanup(context.Background())

	if len(ws.archived) != 1 || ws.archived[0] != "/srv/sessiond/s-old" {
		t.Errorf("expected s-old to be archived, got %v", ws.archived)
	}
	if len(ws.cleaned) != 1 || ws.cleaned[0] != "/srv/sessiond/s-old" {
		t.Errorf("expected s-old workspace cleaned, got %v", ws.cleaned)
	}
	if len(st.deleted) != 1 || st.deleted[0] != "s-old" {
		t.Errorf("expected s-old row deleted, got %v", st.deleted)
	}
}

func TestSweepCleanupSkipsFilesystemForRemoteSandbox(t *testing.T) {
	s := idleSession("s-remote", string(core.StatusCompleted), 48*time.Hour)
	s.ProjectPath = core.RemoteSandboxToken
	s.ProjectType = string(core.ProjectE2B)
	st := &fakeSweepStore{sessions: []store.Session{s}}
	ws := &fakeWorkspaces{}
	m := New(st, &fakeUpdater{}, ws, testConfig(), zap.NewNop())

	m.sweepCleanup(context.Background())

	if len(ws.archived) != 0 || len(ws.cleaned) != 0 {
		t.Errorf("remote sandbox session must not touch the filesystem: %v %v", ws.archived, ws.cleaned)
	}
	if len(st.deleted) != 1 || st.deleted[0] != "s-remote" {
		t.Errorf("expected s-remote row deleted, got %v", st.deleted)
	}
}

func TestSweepCleanupKeepsSessionWhenArchiveFails(t *testing.T) {
	st := &fakeSweepStore{sessions: []store.Session{
		idleSession("s-old", string(core.StatusError), 48*time.Hour),
	}}
	ws := &fakeWorkspaces{archiveErr: errors.New("disk full")}
	m := New(st, &fakeUpdater{}, ws, testConfig(), zap.NewNop())

	m.sweepCleanup(context.Background())

	if len(ws.cleaned) != 0 {
		t.Errorf("cleanup must not run after a failed archive, got %v", ws.cleaned)
	}
	if len(st.deleted) != 0 {
		t.Errorf("row must survive a failed archive, got %v", st.deleted)
	}
}

func TestSweepCleanupKeepsSessionWhenCleanupFails(t *testing.T) {
	st := &fakeSweepStore{sessions: []store.Session{
		idleSession("s-old", string(core.StatusStale), 48*time.Hour),
	}}
	ws := &fakeWorkspaces{cleanupErr: errors.New("permission denied")}
	m := New(st, &fakeUpdater{}, ws, testConfig(), zap.NewNop())

	m.sweepCleanup(context.Background())

	if len(st.deleted) != 0 {
		t.Errorf("row must survive a failed cleanup, got %v", st.deleted)
	}
}

func TestSweepContinuesPastListError(t *testing.T) {
	st := &fakeSweepStore{listErr: errors.New("connection refused")}
	ws := &fakeWorkspaces{
		disk:  workspace.DiskSpace{LowSpace: true},
		count: workspace.WorkspaceCount{Count: 7, Max: 5, QuotaExceeded: true},
	}
	m := New(st, &fakeUpdater{}, ws, testConfig(), zap.NewNop())

	// Must not panic; capacity observation still runs.
	m.Sweep(context.Background())
}

func TestRunStopsOnCancel(t *testing.T) {
	m := New(&fakeSweepStore{}, &fakeUpdater{}, &fakeWorkspaces{}, testConfig(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}
