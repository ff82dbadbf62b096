package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	websocket_controller "github.com/telemetry-lab/magpie/pkg/controller/websocket"
	"github.com/telemetry-lab/magpie/pkg/utils/safe"
)

type Server struct {
	router         *chi.Mux
	websocketCtrl  *websocket_controller.Handler
	metricsHandler http.Handler
}

type Options func(*Server)

func WithWebSocketHandler(handler *websocket_controller.Handler) Options {
	return func(s *Server) {
		s.websocketCtrl = handler
	}
}

func WithMetricsHandler(handler http.Handler) Options {
	return func(s *Server) {
		s.metricsHandler = handler
	}
}

func New(opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(loggingMiddleware)
	r.Use(panicRecoveryMiddleware)

	r.Get("/health", healthHandler)

	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	if s.websocketCtrl != nil {
		r.Get("/ws", s.websocketCtrl.HandleRecording)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	safe.Write(r.Context(), w, []byte(`{"status":"ok"}`))
}
