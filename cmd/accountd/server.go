package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/swaptacular/accountd"
	"github.com/swaptacular/accountd/internal/logger"
	"github.com/swaptacular/accountd/internal/postgres"
	"github.com/swaptacular/accountd/metrics/export/prometheus"
)

const requestIDHeader = "X-Request-Id"

// newRouter builds the HTTP surface. The handlers speak JSON only; HTML
// rendering belongs to an external presentation layer.
func newRouter(engine *accountd.Engine, db *postgres.Connection, rdb redis.UniversalClient, log *logger.Logger, cfg *Config) http.Handler {
	h := &handler{engine: engine, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler(db, rdb)).Methods(http.MethodGet)
	r.Handle("/metrics", prometheus.NewPrometheusExporter(engine).Handler()).Methods(http.MethodGet)

	r.HandleFunc("/signup", h.startSignup).Methods(http.MethodPost)
	r.HandleFunc("/signup/{secret}", h.acceptSignup).Methods(http.MethodPost)
	r.HandleFunc("/change-password/{secret}", h.acceptSignup).Methods(http.MethodPost)
	r.HandleFunc("/login", h.performLogin).Methods(http.MethodPost)
	r.HandleFunc("/login/verify", h.verifyLogin).Methods(http.MethodPost)
	r.HandleFunc("/consent", h.performConsent).Methods(http.MethodPost)
	r.HandleFunc("/change-email", h.startEmailChange).Methods(http.MethodPost)
	r.HandleFunc("/change-email/{secret}", h.acceptEmailChange).Methods(http.MethodPost)

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", requestIDHeader},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

func healthHandler(db *postgres.Connection, rdb redis.UniversalClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	}
}

// requestIDMiddleware assigns every request an id, honoring one supplied by
// an upstream proxy.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("request",
				"method", r.Method, "path", r.URL.Path, "status", rec.status,
				"duration", time.Since(start), "request_id", rec.Header().Get(requestIDHeader))
		})
	}
}
