// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package api serves the printer engine to dashboards: a JSON poll
// surface, a websocket push stream, settings storage and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/resinstat/pkg/printer"
	"github.com/Thermoquad/resinstat/pkg/settings"
)

// Printer is the engine surface served over HTTP
type Printer interface {
	Connect(ctx context.Context, address string) error
	Disconnect()
	Connected() bool
	Link() printer.LinkInfo
	Snapshot() printer.State
	Subscribe() *printer.Subscription
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	StartPrint(ctx context.Context, filename string) error
}

// Config configures the HTTP surface
type Config struct {
	Version        string
	AllowedOrigins []string
	// ControlPerMinute limits control requests per client IP. Zero disables.
	ControlPerMinute int
	// ConnectTimeout bounds connect requests from HTTP and websocket clients
	ConnectTimeout time.Duration

	Logger   zerolog.Logger
	Settings settings.Store       // nil disables /api/settings
	Gatherer prometheus.Gatherer // nil disables /metrics
}

// Server routes HTTP requests to the engine
type Server struct {
	cfg      Config
	printer  Printer
	origins  originPolicy
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New creates a server for p
func New(p Printer, cfg Config) *Server {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		printer: p,
		origins: newOriginPolicy(cfg.AllowedOrigins),
		logger:  cfg.Logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.origins.permits(r.Header.Get("Origin"))
		},
	}
	return s
}

var endpoints = []string{
	"GET    /health",
	"POST   /api/connect",
	"POST   /api/disconnect",
	"GET    /api/status",
	"POST   /api/print/start",
	"POST   /api/print/pause",
	"POST   /api/print/resume",
	"POST   /api/print/stop",
	"GET    /api/settings/{key}",
	"PUT    /api/settings/{key}",
	"GET    /ws",
	"GET    /metrics",
}

// Handler returns the router with the middleware stack applied
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(cors(s.origins))
	r.Use(requestLogger(s.logger))

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)
	if s.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/disconnect", s.handleDisconnect)

		r.Group(func(r chi.Router) {
			r.Use(controlRateLimit(s.cfg.ControlPerMinute))
			r.Post("/connect", s.handleConnect)
			r.Post("/print/start", s.handleStart)
			r.Post("/print/pause", s.command("Print paused", Printer.Pause))
			r.Post("/print/resume", s.command("Print resumed", Printer.Resume))
			r.Post("/print/stop", s.command("Print stopped", Printer.Stop))
		})

		if s.cfg.Settings != nil {
			r.Get("/settings/{key}", s.handleGetSetting)
			r.Put("/settings/{key}", s.handlePutSetting)
		}
	})

	return r
}

// StatusPayload is the body of GET /api/status and of websocket pushes
type StatusPayload struct {
	Connected   bool             `json:"connected"`
	PrinterIP   string           `json:"printerIP"`
	Link        printer.LinkInfo `json:"link"`
	PrinterData printer.State    `json:"printerData"`
}

func (s *Server) status(st printer.State) StatusPayload {
	link := s.printer.Link()
	return StatusPayload{
		Connected:   link.State == printer.Connected,
		PrinterIP:   link.Address,
		Link:        link,
		PrinterData: st,
	}
}

type successResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	PrinterIP string `json:"printerIP,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      "resinstat",
		"status":    "running",
		"version":   s.cfg.Version,
		"endpoints": endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status(s.printer.Snapshot()))
}

type connectRequest struct {
	PrinterIP string `json:"printerIP"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ConnectTimeout)
	defer cancel()

	if err := s.printer.Connect(ctx, req.PrinterIP); err != nil {
		writePrinterError(w, err)
		return
	}
	address := s.printer.Link().Address
	writeJSON(w, http.StatusOK, successResponse{
		Success:   true,
		Message:   "Connected to printer at " + address,
		PrinterIP: address,
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.printer.Disconnect()
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Disconnected from printer"})
}

type startRequest struct {
	FilePath string `json:"filePath"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.FilePath == "" {
		writeBadRequest(w, "filePath is required")
		return
	}

	if err := s.printer.StartPrint(r.Context(), req.FilePath); err != nil {
		writePrinterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Print started"})
}

// command adapts a no-argument printer command to a handler
func (s *Server) command(message string, fn func(Printer, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(s.printer, r.Context()); err != nil {
			writePrinterError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true, Message: message})
	}
}

const maxSettingBytes = 1 << 20

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := s.cfg.Settings.Get(r.Context(), key)
	switch {
	case errors.Is(err, settings.ErrInvalidKey):
		writeBadRequest(w, err.Error())
	case errors.Is(err, settings.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "setting not found"})
	case err != nil:
		s.logger.Error().Err(err).Str("key", key).Msg("Settings read failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "settings unavailable"})
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(value)
	}
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !settings.ValidKey(key) {
		writeBadRequest(w, "invalid settings key")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSettingBytes+1))
	if err != nil {
		writeBadRequest(w, "read body: "+err.Error())
		return
	}
	if len(body) > maxSettingBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "setting too large"})
		return
	}
	if !json.Valid(body) {
		writeBadRequest(w, "setting must be valid JSON")
		return
	}

	if err := s.cfg.Settings.Put(r.Context(), key, body); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Settings write failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "settings unavailable"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
