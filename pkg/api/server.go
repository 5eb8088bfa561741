package api

import (
	"database/sql"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bubbleup/bubbleup/pkg/audit"
	"github.com/bubbleup/bubbleup/pkg/identity"
	"github.com/bubbleup/bubbleup/pkg/middleware"
	"github.com/bubbleup/bubbleup/pkg/observability"
	"github.com/bubbleup/bubbleup/pkg/rbac"
	"github.com/bubbleup/bubbleup/pkg/stories"
	"github.com/bubbleup/bubbleup/pkg/users"
)

// Server represents the public API server
type Server struct {
	router *mux.Router

	db       *sql.DB
	redis    *redis.Client
	logger   *observability.Logger
	metrics  *observability.Metrics
	handlers *logrus.Logger

	limiter *middleware.RateLimiter

	authz           *rbac.Middleware
	rbacHandlers    *rbac.Handlers
	storiesHandlers *stories.Handlers
	usersHandlers   *users.Handlers
	auditHandlers   *audit.Handlers
}

// Options carries the dependencies the server needs. Redis and the admin
// provider are optional; missing pieces degrade the relevant features
// rather than preventing startup.
type Options struct {
	DB       *sql.DB
	Redis    *redis.Client
	Verifier identity.Verifier
	Admin    identity.Admin
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	// TracingEnabled wraps the router in otelhttp when set.
	TracingEnabled bool
}

// NewServer wires stores, services and handlers onto a single router.
func NewServer(opts Options) *Server {
	handlerLog := logrus.New()
	handlerLog.SetFormatter(&logrus.JSONFormatter{})

	roleStore := rbac.NewStore(opts.DB)
	auditLogger := audit.NewSQLLogger(opts.DB)
	storyStore := stories.NewStore(opts.DB)

	authenticator := rbac.NewAuthenticator(opts.Verifier, roleStore, opts.Logger, opts.Metrics)

	var usersHandlers *users.Handlers
	if opts.Admin != nil {
		userService := users.NewService(roleStore, opts.Admin, auditLogger, opts.Logger)
		usersHandlers = users.NewHandlers(userService, handlerLog)
	}

	s := &Server{
		router:          mux.NewRouter(),
		db:              opts.DB,
		redis:           opts.Redis,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		handlers:        handlerLog,
		limiter:         middleware.NewRateLimiter(opts.Redis, opts.Logger),
		authz:           rbac.NewMiddleware(authenticator),
		rbacHandlers:    rbac.NewHandlers(roleStore, handlerLog),
		storiesHandlers: stories.NewHandlers(storyStore, auditLogger, handlerLog),
		usersHandlers:   usersHandlers,
		auditHandlers:   audit.NewHandlers(auditLogger, handlerLog),
	}

	s.setupMiddleware(opts)
	s.setupRoutes()
	return s
}

// setupMiddleware installs the cross-cutting chain. Order matters: the
// request ID must exist before logging, and the coarse IP-keyed rate limit
// runs before any credential verification so abusive clients never reach
// the identity provider. The per-user stage is installed per route group
// after authorization, where the auth context exists.
func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(s.limiter.Handler)

	if opts.TracingEnabled {
		s.router.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "bubbleup-api")
		})
	}
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Story routes. Authorization is capability-based inside the handlers;
	// the middleware only establishes who the caller is and what their
	// effective role on the project resolves to.
	storyRoutes := api.PathPrefix("/stories").Subrouter()
	storyRoutes.Use(s.authz.Require(nil, true), s.limiter.PerUser)
	storyRoutes.HandleFunc("", s.storiesHandlers.ListStories).Methods(http.MethodGet)
	storyRoutes.HandleFunc("", s.storiesHandlers.CreateStory).Methods(http.MethodPost)
	storyRoutes.HandleFunc("/{id}", s.storiesHandlers.GetStory).Methods(http.MethodGet)
	storyRoutes.HandleFunc("/{id}", s.storiesHandlers.UpdateStory).Methods(http.MethodPut)
	storyRoutes.HandleFunc("/{id}", s.storiesHandlers.DeleteStory).Methods(http.MethodDelete)
	storyRoutes.HandleFunc("/{id}/tasks", s.storiesHandlers.CreateTask).Methods(http.MethodPost)
	storyRoutes.HandleFunc("/{id}/tasks", s.storiesHandlers.ListTasks).Methods(http.MethodGet)
	storyRoutes.HandleFunc("/{id}/tasks/{taskId}", s.storiesHandlers.UpdateTask).Methods(http.MethodPut)
	storyRoutes.HandleFunc("/{id}/tasks/{taskId}", s.storiesHandlers.DeleteTask).Methods(http.MethodDelete)
	storyRoutes.HandleFunc("/{id}/docs", s.storiesHandlers.AddDocEntry).Methods(http.MethodPost)
	storyRoutes.HandleFunc("/{id}/docs", s.storiesHandlers.ListDocEntries).Methods(http.MethodGet)

	// Self-service routes: any authenticated caller may inspect their own
	// permissions. The permissions route needs a project to resolve against.
	me := api.PathPrefix("/me").Subrouter()
	me.Handle("/permissions", s.authed(s.authz.Require(nil, true), s.rbacHandlers.GetMyPermissions)).Methods(http.MethodGet)
	me.Handle("/roles", s.authed(s.authz.Require(nil, false), s.rbacHandlers.GetMyRoleAssignments)).Methods(http.MethodGet)

	// Admin-only routes. Project-scoped operations resolve the role against
	// that project; account-wide operations (delete, reset, list) have no
	// project and therefore require a wildcard admin grant.
	adminProject := s.authz.Require([]rbac.Role{rbac.RoleAdmin}, true)
	adminGlobal := s.authz.Require([]rbac.Role{rbac.RoleAdmin}, false)

	api.Handle("/projects/{project}/audit", s.authed(adminProject, s.auditHandlers.ListProjectAudit)).Methods(http.MethodGet)

	// User management needs the identity admin client; without one there is
	// nothing to manage, so the routes are not registered.
	if s.usersHandlers == nil {
		return
	}

	api.Handle("/users/invite", s.authed(adminProject, s.usersHandlers.InviteUser)).Methods(http.MethodPost)
	api.Handle("/users/reset-password", s.authed(adminGlobal, s.usersHandlers.ResetPassword)).Methods(http.MethodPost)
	api.Handle("/users/{userId}/role", s.authed(adminProject, s.usersHandlers.AssignRole)).Methods(http.MethodPut)
	api.Handle("/users/{userId}/role", s.authed(adminProject, s.usersHandlers.RevokeRole)).Methods(http.MethodDelete)
	api.Handle("/users/{userId}", s.authed(adminGlobal, s.usersHandlers.DeleteUser)).Methods(http.MethodDelete)
	api.Handle("/users", s.authed(adminGlobal, s.usersHandlers.ListUsers)).Methods(http.MethodGet)
	api.Handle("/projects/{project}/roles", s.authed(adminProject, s.usersHandlers.ListProjectRoles)).Methods(http.MethodGet)
}

// authed chains an authorization middleware with the per-user rate limit
// stage, which needs the auth context the middleware establishes.
func (s *Server) authed(authorize mux.MiddlewareFunc, handler http.HandlerFunc) http.Handler {
	return authorize(s.limiter.PerUser(handler))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// NewInternalServer builds the health/metrics handler served on the
// internal port.
func NewInternalServer(db *sql.DB, redisClient *redis.Client, metrics *observability.Metrics) http.Handler {
	health := observability.NewHealthChecker(db, redisClient)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", health.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", health.Readiness).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}
