package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"Lantern-Tales/server/internal/config"
	"Lantern-Tales/server/internal/engine"
	"Lantern-Tales/server/internal/events"
	"Lantern-Tales/server/internal/persistence"
	"Lantern-Tales/server/internal/scenes"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the presentation layer runs locally
	},
}

// Deps is everything the HTTP surface talks to.
type Deps struct {
	Config     *config.Config
	Bus        events.Bus
	Dispatcher *events.Dispatcher
	Engine     *engine.ProgressionEngine
	Persister  *persistence.Persister
	Director   *scenes.Director
	Hub        *TransitionHub
	Logger     *zap.Logger
}

type Handlers struct {
	config     *config.Config
	bus        events.Bus
	dispatcher *events.Dispatcher
	engine     *engine.ProgressionEngine
	persister  *persistence.Persister
	director   *scenes.Director
	hub        *TransitionHub
	logger     *zap.Logger
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		config:     d.Config,
		bus:        d.Bus,
		dispatcher: d.Dispatcher,
		engine:     d.Engine,
		persister:  d.Persister,
		director:   d.Director,
		hub:        d.Hub,
		logger:     d.Logger.Named("http"),
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"service": "lantern-tales",
	}
	if h.persister != nil {
		status["slot"] = h.persister.Slot()
		status["dirty"] = h.persister.Dirty()
	}
	if h.hub != nil {
		sent, dropped := h.hub.Stats()
		status["clients"] = h.hub.GetClientCount()
		status["frames_sent"] = sent
		status["frames_dropped"] = dropped
	}
	if h.dispatcher != nil {
		status["queue"] = h.dispatcher.QueueSize()
	}
	writeJSON(w, http.StatusOK, status)
}

// StreamTransitions upgrades to a WebSocket carrying scene transitions.
func (h *Handlers) StreamTransitions(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Hub not initialized")
		return
	}

	// Upgrade writes its own error response
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Attach(conn)
}

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs every request once it has been served.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zapcore.Field{
				zap.Int("status", status),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("ip", r.RemoteAddr),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}

			switch {
			case status >= http.StatusInternalServerError:
				logger.Error("Request handled", fields...)
			case status >= http.StatusBadRequest:
				logger.Warn("Request handled", fields...)
			default:
				logger.Info("Request handled", fields...)
			}
		})
	}
}

func NewRouter(d Deps) *chi.Mux {
	h := NewHandlers(d)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))
	r.Use(corsMiddleware)

	// Public routes
	r.Get("/health", h.HealthCheck)
	r.Get("/ws", h.StreamTransitions)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/progress", func(r chi.Router) {
			r.Get("/", h.GetProgress)
			r.Get("/levels/{level_id}", h.GetLevel)
		})
		r.Get("/storybook", h.GetStorybook)
		r.Post("/signals", h.PostSignal)
		r.Post("/hub/levels/{level_id}/select", h.SelectLevel)
		r.Get("/scene", h.GetScene)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
