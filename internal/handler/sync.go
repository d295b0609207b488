package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/remindd/internal/replay"
	"github.com/dukerupert/remindd/internal/store"
)

type SyncHandler struct {
	replayer *replay.Replayer
	queue    *store.QueueStore
	logger   *slog.Logger
}

func NewSyncHandler(replayer *replay.Replayer, queue *store.QueueStore, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{replayer: replayer, queue: queue, logger: logger}
}

// Kick requests an immediate replay pass; the pass itself runs in the
// background loop.
func (h *SyncHandler) Kick(w http.ResponseWriter, r *http.Request) {
	h.replayer.Kick()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "kicked"})
}

// Status reports the queue depth and accounts awaiting re-authentication.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.Count()
	if err != nil {
		h.logger.Error("count sync queue", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read sync queue")
		return
	}

	reauth := h.replayer.NeedsReauth()
	if reauth == nil {
		reauth = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending":      pending,
		"needs_reauth": reauth,
	})
}

// Reauth clears an account's credential-failure flag after the user
// updated its secret, then kicks a pass.
func (h *SyncHandler) Reauth(w http.ResponseWriter, r *http.Request) {
	h.replayer.ClearReauth(idParam(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
