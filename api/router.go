package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/algoverse/cartoonbooth/booth"
)

// Runner runs the booth pipeline on an uploaded capture.
type Runner interface {
	RunBytes(ctx context.Context, data []byte) (*booth.Result, error)
}

// Server holds the dependencies for all HTTP handlers.
type Server struct {
	Runner    Runner
	Log       *slog.Logger
	Version   string
	Model     string
	Device    string
	StartTime time.Time

	// One visitor, one run at a time.
	busy sync.Mutex
}

// NewRouter returns a fully configured chi router with all routes.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.Log))

	// Kiosk UI
	r.Get("/", s.handleKioskPage)

	// Pipeline
	r.Post("/cartoonize", s.handleCartoonize)

	// Status
	r.Get("/status", s.handleStatus)

	return r
}

// --- helpers ----------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// --- middleware --------------------------------------------------------------

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"latency", time.Since(start),
				"remote", r.RemoteAddr)
		})
	}
}
