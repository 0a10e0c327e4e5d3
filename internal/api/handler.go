// Package api provides the HTTP surface of the guardian service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"guardian/internal/config"
	"guardian/internal/domain"
	"guardian/internal/guardian"

	"github.com/go-chi/chi/v5"
)

// maxChatBodySize bounds chat request bodies (64KB is far beyond any
// reasonable message).
const maxChatBodySize = 64 << 10

// Handler provides the REST endpoints backed by the guardian service.
type Handler struct {
	svc *guardian.Service
	hub *Hub
	cfg *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(svc *guardian.Service, hub *Hub, cfg *config.Config) *Handler {
	return &Handler{svc: svc, hub: hub, cfg: cfg}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers the REST routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/boot", h.Boot)
		r.Post("/chat", h.Chat)
		r.Get("/chat/history", h.History)
		r.Get("/contracts", h.Contracts)
		r.Post("/contracts/{id}/verdict", h.Verdict)
		r.Post("/alerts/{id}/activated", h.AlertActivated)
		r.Get("/streak", h.Streak)
		r.Get("/stream", h.hub.HandleStream)
	})
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat handles one user message and returns the guardian's reply.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.svc.HandleMessage(r.Context(), req.Message)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// History returns the full chat transcript, oldest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"messages": h.svc.History(),
	})
}

// Contracts returns every contract, newest first.
func (h *Handler) Contracts(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"contracts": h.svc.Contracts(),
	})
}

type verdictRequest struct {
	Verdict string `json:"verdict"`
}

// Verdict finalizes a contract as fulfilled or broken.
func (h *Handler) Verdict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req verdictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	verdict := domain.Verdict(req.Verdict)
	if verdict != domain.VerdictFulfilled && verdict != domain.VerdictBroken {
		Error(w, http.StatusBadRequest, "verdict must be 'fulfilled' or 'broken'")
		return
	}

	reply, err := h.svc.ApplyVerdict(r.Context(), id, verdict)
	switch {
	case errors.Is(err, domain.ErrContractNotFound):
		Error(w, http.StatusNotFound, "contract not found")
		return
	case errors.Is(err, domain.ErrContractFinal):
		Error(w, http.StatusConflict, "contract already finalized")
		return
	case err != nil:
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"reply":  reply,
		"streak": h.svc.Streak(),
	})
}

// AlertActivated handles the user tapping a fired reminder.
func (h *Handler) AlertActivated(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	contract, err := h.svc.AlertActivated(id)
	if errors.Is(err, domain.ErrContractNotFound) {
		Error(w, http.StatusNotFound, "contract not found")
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"contract": contract})
}

// Streak returns the current streak counter.
func (h *Handler) Streak(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]int{"streak": h.svc.Streak()})
}

// Boot returns the terminal-style boot lines and the greeting for the
// current moment. Clients render this once per page load.
func (h *Handler) Boot(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"lines":    h.cfg.Persona.BootLines,
		"greeting": h.svc.Greeting(),
	})
}
