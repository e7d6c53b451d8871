package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	notConnected = "No conectado"
	countTimeout = 2 * time.Second
)

// Users counts the tracked users
type Users interface {
	Count(ctx context.Context) (int, error)
}

// BotStatus reports the gateway connection
type BotStatus interface {
	Username() string
	Ready() bool
	Uptime() time.Duration
}

type statusResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	UserCount   int    `json:"userCount"`
	BotUsername string `json:"botUsername"`
	Uptime      int64  `json:"uptime"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Discord string `json:"discord"`
	Store   string `json:"store"`
}

// Server exposes the bot status over HTTP
type Server struct {
	users        Users
	bot          BotStatus
	now          func() time.Time
	countTimeout time.Duration
	http         *http.Server
}

// New creates the status server listening on addr
func New(addr string, users Users, bot BotStatus) *Server {
	s := &Server{users: users, bot: bot, now: time.Now, countTimeout: countTimeout}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("status server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for the open ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// countUsers bounds the store lookup so a stalled store fails the request
// instead of holding it
func (s *Server) countUsers(r *http.Request) (int, error) {
	ctx, cancel := context.WithTimeout(r.Context(), s.countTimeout)
	defer cancel()
	return s.users.Count(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.countUsers(r)
	if err != nil {
		log.Error().Err(err).Msg("status: failed to count users")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error al obtener estado"})
		return
	}

	username := s.bot.Username()
	if username == "" {
		username = notConnected
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:      "online",
		Timestamp:   s.now().UTC().Format(time.RFC3339),
		UserCount:   count,
		BotUsername: username,
		Uptime:      s.bot.Uptime().Milliseconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Discord: "connected", Store: "ok"}
	code := http.StatusOK

	if !s.bot.Ready() {
		resp.Status, resp.Discord = "unhealthy", "disconnected"
		code = http.StatusServiceUnavailable
	}
	if _, err := s.countUsers(r); err != nil {
		resp.Status, resp.Store = "unhealthy", err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
