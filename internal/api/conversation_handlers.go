package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Conecta2Tel/WispFlow/internal/models"
)

// handleGetConversation returns the full conversation document for a phone
// number, message log included.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	conv, err := s.store.GetConversation(phone)
	if err != nil {
		slog.Error("conversation lookup failed", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, errorResult("failed to load conversation"))
		return
	}
	if conv == nil {
		writeJSONResponse(w, http.StatusNotFound, errorResult("conversation not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, okResult(conv))
}

// handleRelease takes thread control back from the human agent and resumes
// the bot at the main menu.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	unlock := s.orch.LockPhone(phone)
	defer unlock()
	conv, err := s.store.GetConversation(phone)
	if err != nil {
		slog.Error("conversation lookup failed", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, errorResult("failed to load conversation"))
		return
	}
	if conv == nil {
		writeJSONResponse(w, http.StatusNotFound, errorResult("conversation not found"))
		return
	}
	if !conv.IsHandedOverToHuman {
		writeJSONResponse(w, http.StatusConflict, errorResult("conversation is not handed over"))
		return
	}
	if err := s.handover.Release(r.Context(), conv); err != nil {
		slog.Error("conversation release failed", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, errorResult("failed to release conversation"))
		return
	}
	if err := s.store.SaveConversation(conv); err != nil {
		slog.Error("conversation save failed", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, errorResult("failed to save conversation"))
		return
	}
	slog.Info("conversation released", "phone", phone)
	writeJSONResponse(w, http.StatusOK, okResult(map[string]string{
		"phone_number": conv.PhoneNumber,
		"current_flow": string(conv.CurrentFlow),
	}))
}

// handleReset restores a conversation to its initial state. Administrative
// escape hatch for stuck conversations; the message log is preserved.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	unlock := s.orch.LockPhone(phone)
	defer unlock()
	conv, err := s.store.GetConversation(phone)
	if err != nil {
		slog.Error("conversation lookup failed", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, errorResult("failed to load conversation"))
		return
	}
	if conv == nil {
		writeJSONResponse(w, http.StatusNotFound, errorResult("conversation not found"))
		return
	}
	conv.Reset(time.Now())
	if err := s.store.SaveConversation(conv); err != nil {
		slog.Error("conversation save failed", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, errorResult("failed to save conversation"))
		return
	}
	slog.Info("conversation reset", "phone", phone)
	writeJSONResponse(w, http.StatusOK, okResult(map[string]string{
		"phone_number": conv.PhoneNumber,
		"current_flow": string(models.FlowPrivacy),
	}))
}
