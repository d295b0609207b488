package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/remindd/internal/model"
	"github.com/dukerupert/remindd/internal/reminder"
)

type ReminderHandler struct {
	svc    *reminder.Service
	logger *slog.Logger
}

func NewReminderHandler(svc *reminder.Service, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{svc: svc, logger: logger}
}

func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var fields reminder.Fields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	created, err := h.svc.Create(fields)
	if err != nil {
		if !reminder.IsValidation(err) {
			h.logger.Error("create reminder", "error", err)
		}
		writeServiceError(w, err, "failed to create reminder")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		reminders []model.Reminder
		err       error
	)
	switch {
	case r.URL.Query().Get("important") == "true":
		reminders, err = h.svc.ListImportant()
	case r.URL.Query().Get("list") != "":
		reminders, err = h.svc.ListByList(r.URL.Query().Get("list"))
	default:
		reminders, err = h.svc.List()
	}
	if err != nil {
		h.logger.Error("list reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	if reminders == nil {
		reminders = []model.Reminder{}
	}
	writeJSON(w, http.StatusOK, reminders)
}

func (h *ReminderHandler) Get(w http.ResponseWriter, r *http.Request) {
	got, err := h.svc.Get(idParam(r))
	if err != nil {
		writeServiceError(w, err, "failed to get reminder")
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (h *ReminderHandler) Update(w http.ResponseWriter, r *http.Request) {
	var fields reminder.Fields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	updated, err := h.svc.Update(idParam(r), fields)
	if err != nil {
		if !reminder.IsValidation(err) {
			h.logger.Error("update reminder", "reminder_id", idParam(r), "error", err)
		}
		writeServiceError(w, err, "failed to update reminder")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(idParam(r)); err != nil {
		writeServiceError(w, err, "failed to delete reminder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReminderHandler) SetCompleted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Completed bool `json:"completed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	updated, err := h.svc.SetCompleted(idParam(r), req.Completed)
	if err != nil {
		writeServiceError(w, err, "failed to update completion")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
