// Package api exposes discovery, registration and reporting over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/storedir/internal/config"
	"github.com/sells-group/storedir/internal/discovery"
	"github.com/sells-group/storedir/internal/keywords"
	"github.com/sells-group/storedir/internal/metrics"
	"github.com/sells-group/storedir/internal/model"
	"github.com/sells-group/storedir/internal/registration"
)

const maxBodyBytes = 1 << 20

// Discoverer runs discovery invocations.
type Discoverer interface {
	Run(ctx context.Context, req discovery.RunRequest) (*discovery.RunResponse, error)
}

// Directory reads geography and the run audit log.
type Directory interface {
	ListNeighborhoods(ctx context.Context, f discovery.NeighborhoodFilter) ([]model.Neighborhood, error)
	ListStates(ctx context.Context, country string) ([]model.StateSummary, error)
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
}

// Stores reads store aggregates and reports database health.
type Stores interface {
	SourceCounts(ctx context.Context) ([]model.SourceCount, error)
	Ping(ctx context.Context) error
}

// Registrar runs the registration flow.
type Registrar interface {
	Register(ctx context.Context, req registration.Request) (*registration.Result, error)
}

// Server holds the handler dependencies.
type Server struct {
	discoverer  Discoverer
	directory   Directory
	stores      Stores
	registrar   Registrar
	auth        config.AuthConfig
	corsOrigins []string
}

// NewServer creates a Server.
func NewServer(d Discoverer, dir Directory, st Stores, reg Registrar, auth config.AuthConfig, corsOrigins []string) *Server {
	return &Server{
		discoverer:  d,
		directory:   dir,
		stores:      st,
		registrar:   reg,
		auth:        auth,
		corsOrigins: corsOrigins,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/discovery/run", s.handleDiscoveryRun)
		r.Post("/discovery/neighborhoods", s.handleDiscoveryNeighborhoods)
		r.Get("/neighborhoods", s.handleNeighborhoods)
		r.Get("/states", s.handleStates)
		r.Post("/stores", s.handleRegister)
		r.Get("/stats/sources", s.handleSourceStats)
		r.Get("/runs", s.handleRuns)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.stores.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// credentials is embedded in requests that require the admin credential.
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) authorized(c credentials) bool {
	if s.auth.AdminUsername == "" || s.auth.AdminPassword == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(c.Username), []byte(s.auth.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(c.Password), []byte(s.auth.AdminPassword)) == 1
	return userOK && passOK
}

// decode reads a JSON body into v. It writes the 400 itself and reports
// whether the handler should continue.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeFields(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

// queryInt parses an optional integer parameter. Missing returns def.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func isRequestError(err error) bool {
	return eris.Is(err, discovery.ErrNoZones) ||
		eris.Is(err, discovery.ErrUnknownNeighborhoods) ||
		eris.Is(err, keywords.ErrUnknownCountry)
}

// parseCategories validates category names into fields on failure.
func parseCategories(names []string, fields map[string]string) []model.Category {
	cats, invalid := keywords.ParseCategories(names)
	if len(invalid) > 0 {
		fields["categories"] = "unknown categories: " + strings.Join(invalid, ", ")
	}
	return cats
}
