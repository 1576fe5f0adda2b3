package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ledgerreports/internal/core"
	"ledgerreports/internal/log"
)

// ReportAPI is what the HTTP layer needs from the report service.
type ReportAPI interface {
	Generate(ctx context.Context) (string, error)
	Status(ctx context.Context, requestID string, kind core.Kind) (string, error)
	StatusAll(ctx context.Context, requestID string) (map[string]string, error)
}

type Server struct {
	http.Server
	reports     ReportAPI
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, reports ReportAPI, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}

	mux := http.NewServeMux()
	s := &Server{
		reports:     reports,
		rateLimiter: newRateLimiter(60, time.Minute),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("POST /api/v1/reports", s.withRateLimit(s.handleGenerate))
	mux.HandleFunc("GET /api/v1/reports/{requestId}", s.handleStatusAll)
	mux.HandleFunc("GET /api/v1/reports/{requestId}/{kind}", s.handleStatus)

	var handler http.Handler = withSecurityHeaders(mux)
	handler = log.RequestLogging()(handler)
	handler = log.TraceMiddleware()(handler)
	handler = log.ComponentMiddleware(log.ComponentHTTP)(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// withRateLimit throttles request creation per client IP
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)
		if !s.rateLimiter.allow(clientIP) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}
		next(w, r)
	}
}
