package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/store"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long aggregate responses are reused.
const DefaultCacheTTL = 5 * time.Second

// Server is the rapport HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
	log     *zap.Logger

	cache    *cache.Cache
	cacheMu  sync.Mutex // pairs cacheGen with Set and Flush
	cacheGen uint64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.log = l.Named("http") } }

// WithCacheTTL sets how long aggregate endpoints reuse a response.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Server) { s.cache = cache.New(ttl, 2*ttl) }
}

// New creates a new Server around eng.
func New(eng *engine.Engine, version string, opts ...Option) *Server {
	s := &Server{
		db:      eng.DB,
		engine:  eng,
		cache:   cache.New(DefaultCacheTTL, time.Minute),
		version: version,
		started: time.Now(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Post("/interactions", s.handleObserve)
		r.Get("/interactions", s.handleListInteractions)

		r.Get("/bond", s.handleBond)
		r.Get("/proximity", s.handleProximity)
		r.Get("/trends/{kind}", s.handleTrend)
		r.Get("/distance", s.handleDistance)

		r.Get("/weights", s.handleWeights)
		r.Get("/weights/history", s.handleWeightHistory)
		r.Post("/reinforce", s.handleReinforce)
	})

	s.router = r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.PingContext(r.Context()); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         s.version,
		"uptime":          time.Since(s.started).Seconds(),
		"db":              dbOK,
		"db_path":         s.db.Path,
		"weights_version": s.engine.Weights().Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
