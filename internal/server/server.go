// Package server assembles the HTTP surface: stores, the reminder
// service, the websocket hub, and the API handlers.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/remindd/internal/handler"
	"github.com/dukerupert/remindd/internal/middleware"
	"github.com/dukerupert/remindd/internal/reminder"
	"github.com/dukerupert/remindd/internal/replay"
	"github.com/dukerupert/remindd/internal/store"
	ws "github.com/dukerupert/remindd/internal/websocket"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

type Server struct {
	db        *sql.DB
	hub       *ws.Hub
	service   *reminder.Service
	replayer  *replay.Replayer
	reminderH *handler.ReminderHandler
	listH     *handler.ListHandler
	syncH     *handler.SyncHandler
	logger    *slog.Logger
}

func New(db *sql.DB, svc *reminder.Service, replayer *replay.Replayer, queue *store.QueueStore, hub *ws.Hub, logger *slog.Logger) *Server {
	return &Server{
		db:        db,
		hub:       hub,
		service:   svc,
		replayer:  replayer,
		reminderH: handler.NewReminderHandler(svc, logger.With("component", "reminder_handler")),
		listH:     handler.NewListHandler(svc, logger.With("component", "list_handler")),
		syncH:     handler.NewSyncHandler(replayer, queue, logger.With("component", "sync_handler")),
		logger:    logger,
	}
}

// Service returns the reminder service for collaborators wired after
// construction, like the notification action listener.
func (s *Server) Service() *reminder.Service {
	return s.service
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /api/version", s.versionHandler)

	mux.HandleFunc("POST /api/reminders", s.reminderH.Create)
	mux.HandleFunc("GET /api/reminders", s.reminderH.List)
	mux.HandleFunc("GET /api/reminders/{id}", s.reminderH.Get)
	mux.HandleFunc("PUT /api/reminders/{id}", s.reminderH.Update)
	mux.HandleFunc("DELETE /api/reminders/{id}", s.reminderH.Delete)
	mux.HandleFunc("POST /api/reminders/{id}/complete", s.reminderH.SetCompleted)

	mux.HandleFunc("POST /api/lists", s.listH.Create)
	mux.HandleFunc("GET /api/lists", s.listH.List)
	mux.HandleFunc("GET /api/lists/{id}", s.listH.Get)
	mux.HandleFunc("PUT /api/lists/{id}", s.listH.Rename)
	mux.HandleFunc("DELETE /api/lists/{id}", s.listH.Delete)

	mux.HandleFunc("POST /api/sync/kick", s.syncH.Kick)
	mux.HandleFunc("GET /api/sync/status", s.syncH.Status)
	mux.HandleFunc("POST /api/sync/reauth/{id}", s.syncH.Reauth)

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"version": Version})
}
