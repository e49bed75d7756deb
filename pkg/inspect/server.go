package inspect

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/statekit-dev/statekit/pkg/registry"
)

// Server serves the inspector API over a registry.
// It implements http.Handler; mount it wherever convenient.
type Server struct {
	reg    *registry.Registry
	log    *slog.Logger
	hub    *hub
	router chi.Router

	tracerName     string
	metricsHandler http.Handler
	stopObserve    func()
}

// Option configures the inspector server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.log = logger
	}
}

// WithMetricsHandler mounts h at /metrics, typically promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithTracing enables an OpenTelemetry span per request, using the named
// tracer from the global tracer provider.
func WithTracing(tracerName string) Option {
	return func(s *Server) {
		s.tracerName = tracerName
	}
}

// NewServer creates an inspector over reg and subscribes to its writes.
// Call Close when done to detach from the registry and drop stream
// clients.
func NewServer(reg *registry.Registry, opts ...Option) *Server {
	s := &Server{
		reg: reg,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.log)

	router := chi.NewRouter()
	if s.tracerName != "" {
		router.Use(tracing(s.tracerName))
	}
	router.Get("/healthz", s.handleHealthz)
	router.Route("/api", func(r chi.Router) {
		r.Get("/keys", s.handleKeys)
		r.Get("/keys/{key}", s.handleKeyGet)
		r.Put("/keys/{key}", s.handleKeyPut)
	})
	router.Get("/ws", s.hub.handleWebSocket)
	if s.metricsHandler != nil {
		router.Handle("/metrics", s.metricsHandler)
	}
	s.router = router

	s.stopObserve = reg.Observe(func(key string, value, old any) {
		s.hub.broadcast(changeEvent{Key: key, Value: value, OldValue: old})
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close detaches the inspector from the registry and closes all stream
// clients.
func (s *Server) Close() {
	s.stopObserve()
	s.hub.closeAll()
}

// keyView is the JSON shape of one key in API responses.
type keyView struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Subscribers int    `json:"subscribers"`
	Listeners   int    `json:"listeners"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	keys := s.reg.Keys()
	views := make([]keyView, 0, len(keys))
	for _, key := range keys {
		views = append(views, s.view(key))
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": views})
}

func (s *Server) handleKeyGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, ok := s.reg.Lookup(key); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "key not set"})
		return
	}
	writeJSON(w, http.StatusOK, s.view(key))
}

func (s *Server) handleKeyPut(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}

	force := r.URL.Query().Get("force") == "1"
	if force {
		s.reg.ForceSet(key, value)
	} else {
		s.reg.Set(key, value)
	}

	s.log.Info("inspector write", "key", key, "force", force)
	writeJSON(w, http.StatusOK, s.view(key))
}

func (s *Server) view(key string) keyView {
	return keyView{
		Key:         key,
		Value:       s.reg.Get(key),
		Subscribers: s.reg.SubscriberCount(key),
		Listeners:   s.reg.ListenerCount(key),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
