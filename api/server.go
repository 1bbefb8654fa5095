// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package api maps REST requests onto the bridge's DeviceController and
// serializes results and errors to JSON.
//
// Routes:
//
//	GET  /status   server and device status
//	GET  /devices  rescan and list devices
//	POST /device   select the active device by index
//	GET  /vibrate  vibrate the active device (speed, position, duration)
//	GET  /linear   move the active device (position, duration in ms)
//	GET  /stop     stop the active device
//	GET  /scan     scan for devices
//	GET  /health   liveness check (rate limited)
//	GET  /metrics  Prometheus metrics
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/soothill/haptic-bridge/config"
	"github.com/soothill/haptic-bridge/pkg/interfaces"
	"github.com/soothill/haptic-bridge/pkg/logger"
	"github.com/soothill/haptic-bridge/pkg/metrics"
)

const readHeaderTimeout = 10 * time.Second

// Server is the HTTP front of the bridge.
type Server struct {
	cfg      *config.Config
	ctrl     interfaces.DeviceController
	validate *validator.Validate
	server   *http.Server
}

// NewServer creates the HTTP server and wires all routes.
func NewServer(cfg *config.Config, ctrl interfaces.DeviceController) *Server {
	s := &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		validate: validator.New(),
	}

	healthLimiter := rate.NewLimiter(10, 20)

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.route("/status", s.handleStatus))
	mux.HandleFunc("/devices", s.route("/devices", s.handleDevices))
	mux.HandleFunc("/device", s.route("/device", s.handleSelectDevice))
	mux.HandleFunc("/vibrate", s.route("/vibrate", s.handleVibrate))
	mux.HandleFunc("/linear", s.route("/linear", s.handleLinear))
	mux.HandleFunc("/stop", s.route("/stop", s.handleStop))
	mux.HandleFunc("/scan", s.route("/scan", s.handleScan))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", rateLimitMiddleware(healthLimiter, healthCheckHandler))

	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// ListenAndServe starts serving and blocks until the server stops.
func (s *Server) ListenAndServe() error {
	logger.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// route assembles the standard middleware chain for an API route: CORS,
// request metrics, and lazy bridge initialization.
func (s *Server) route(name string, handler http.HandlerFunc) http.HandlerFunc {
	return corsMiddleware(s.instrument(name, s.ensureInitialized(name, handler)))
}

// corsMiddleware allows cross-origin calls; the bridge is consumed by
// browser frontends on other origins.
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// statusRecorder captures the response status code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument counts requests per route and status code.
func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		metrics.RequestsTotal.WithLabelValues(name, strconv.Itoa(recorder.status)).Inc()
	}
}

// ensureInitialized lazily initializes the bridge on first use and scans
// when no devices are known yet. Failures are logged and left for the
// handler to surface; the status route skips the device check so it can
// report an unhealthy bridge.
func (s *Server) ensureInitialized(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debug().Str("path", r.URL.Path).Msg("Request received")

		if !s.ctrl.Initialized() {
			if err := s.ctrl.Initialize(r.Context()); err != nil {
				logger.Warn().Err(err).Msg("Lazy initialization failed")
			}
		}

		if name != "/status" && !s.ctrl.HasDevices() {
			logger.Info().Msg("No devices available, scanning")
			if _, err := s.ctrl.ScanDevices(r.Context()); err != nil {
				logger.Warn().Err(err).Msg("Device scan failed")
			}
		}

		next(w, r)
	}
}

// rateLimitMiddleware wraps an HTTP handler with rate limiting
func rateLimitMiddleware(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded for health endpoint")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// healthCheckHandler handles health check requests
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("OK")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write health check response")
	}
}
