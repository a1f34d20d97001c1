package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/api/middleware"
	"github.com/agentfoundry/sessiond/internal/session"
	"github.com/agentfoundry/sessiond/internal/store"
	"github.com/agentfoundry/sessiond/internal/workspace"
)

// Store is the slice of the data layer the handlers touch directly;
// version-checked mutation goes through the session service instead.
type Store interface {
	CreateSession(ctx context.Context, arg store.CreateSessionParams) (store.Session, error)
	GetSession(ctx context.Context, id string) (store.Session, error)
	ListSessions(ctx context.Context, arg store.ListSessionsParams) ([]store.Session, error)
	DeleteSession(ctx context.Context, id string) error
	CountSessionsByStatus(ctx context.Context) ([]store.CountSessionsByStatusRow, error)
	InsertSessionEvent(ctx context.Context, arg store.InsertSessionEventParams) (store.SessionEvent, error)
	ListSessionEvents(ctx context.Context, arg store.ListSessionEventsParams) ([]store.SessionEvent, error)
}

var _ Store = (*store.Queries)(nil)

type API struct {
	pool     *pgxpool.Pool
	queries  Store
	sessions *session.Service
	manager  *workspace.Manager
	cfg      Config
	log      *zap.Logger
}

func NewAPI(pool *pgxpool.Pool, queries Store, sessions *session.Service, manager *workspace.Manager, cfg Config, log *zap.Logger) *API {
	return &API{
		pool:     pool,
		queries:  queries,
		sessions: sessions,
		manager:  manager,
		cfg:      cfg,
		log:      log,
	}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.Recoverer(a.log))
	r.Use(middleware.Logger)
	r.Use(chiMiddleware.AllowContentType("application/json"))

	// Health endpoints
	r.Get("/healthz", a.HealthHandler)
	r.Get("/readyz", a.ReadyHandler)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Sessions
		r.Post("/sessions", a.CreateSession)
		r.Get("/sessions", a.ListSessions)
		r.Get("/sessions/{id}", a.GetSession)
		r.Patch("/sessions/{id}", a.UpdateSession)
		r.Delete("/sessions/{id}", a.DeleteSession)
		r.Post("/sessions/{id}/heartbeat", a.Heartbeat)
		r.Get("/sessions/{id}/events", a.ListSessionEvents)

		// Hook deliveries from the agent
		r.Post("/hooks/claude", a.ClaudeHook)

		// Workspace maintenance surface
		r.Get("/workspaces/stats", a.WorkspaceStats)
	})

	return r
}
