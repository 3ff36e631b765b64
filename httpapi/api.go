package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
	"github.com/munyaradzichiondegwa/vision-2030-platform/middleware"
)

const defaultMaxBody = 1 << 16

// API holds the HTTP handlers.
type API struct {
	engine     *authcore.Engine
	logger     logrus.FieldLogger
	trustProxy bool
	maxBody    int64
}

type Option func(*API)

// WithTrustProxy makes Origin read the client IP from X-Forwarded-For.
func WithTrustProxy(trust bool) Option {
	return func(a *API) { a.trustProxy = trust }
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

func New(engine *authcore.Engine, logger logrus.FieldLogger, opts ...Option) *API {
	if logger == nil {
		logger = logrus.New()
	}
	a := &API{engine: engine, logger: logger, maxBody: defaultMaxBody}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterRoutes mounts the auth routes on router.
func (a *API) RegisterRoutes(router *mux.Router) {
	router.Use(a.logRequests, middleware.Origin(a.trustProxy))
	router.HandleFunc("/healthz", a.health).Methods(http.MethodGet)

	public := router.PathPrefix("/auth").Subrouter()
	public.Use(middleware.RateLimit(a.engine, middleware.ByClientIP))
	public.HandleFunc("/register", a.register).Methods(http.MethodPost)
	public.HandleFunc("/login", a.login).Methods(http.MethodPost)
	public.HandleFunc("/refresh", a.refresh).Methods(http.MethodPost)

	guarded := router.NewRoute().Subrouter()
	guarded.Use(middleware.Guard(a.engine), middleware.RateLimit(a.engine, middleware.ByAccount))
	guarded.HandleFunc("/auth/logout", a.logout).Methods(http.MethodPost)
	guarded.HandleFunc("/auth/me", a.me).Methods(http.MethodGet)
	guarded.HandleFunc("/admin/accounts/{id}/role", a.changeRole).Methods(http.MethodPut)
}

// Handler returns a router with every route registered.
func (a *API) Handler() http.Handler {
	router := mux.NewRouter()
	a.RegisterRoutes(router)
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		a.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Info("request")
	})
}
