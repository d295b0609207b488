package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/remindd/internal/model"
	"github.com/dukerupert/remindd/internal/reminder"
)

type ListHandler struct {
	svc    *reminder.Service
	logger *slog.Logger
}

func NewListHandler(svc *reminder.Service, logger *slog.Logger) *ListHandler {
	return &ListHandler{svc: svc, logger: logger}
}

type listRequest struct {
	Name   string `json:"name"`
	UserID string `json:"user_id"`
}

func (h *ListHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	created, err := h.svc.CreateList(req.Name, req.UserID)
	if err != nil {
		if !reminder.IsValidation(err) {
			h.logger.Error("create list", "error", err)
		}
		writeServiceError(w, err, "failed to create list")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ListHandler) List(w http.ResponseWriter, r *http.Request) {
	lists, err := h.svc.Lists()
	if err != nil {
		h.logger.Error("list task lists", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list task lists")
		return
	}
	if lists == nil {
		lists = []model.TaskList{}
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *ListHandler) Get(w http.ResponseWriter, r *http.Request) {
	got, err := h.svc.GetList(idParam(r))
	if err != nil {
		writeServiceError(w, err, "failed to get list")
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (h *ListHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	renamed, err := h.svc.RenameList(idParam(r), req.Name)
	if err != nil {
		writeServiceError(w, err, "failed to rename list")
		return
	}
	writeJSON(w, http.StatusOK, renamed)
}

func (h *ListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteList(idParam(r)); err != nil {
		writeServiceError(w, err, "failed to delete list")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
