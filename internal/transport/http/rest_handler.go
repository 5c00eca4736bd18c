package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

// RESTHandler serves the battle commands that do not need a live socket:
// room creation, the waiting list, results, and disband.
type RESTHandler struct {
	service *app.BattleService
}

func NewRESTHandler(service *app.BattleService) *RESTHandler {
	return &RESTHandler{service: service}
}

// Register mounts the battle routes on the mux.
func (h *RESTHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /battles", h.createBattle)
	mux.HandleFunc("GET /battles", h.listWaiting)
	mux.HandleFunc("GET /battles/{id}", h.getState)
	mux.HandleFunc("GET /battles/{id}/participants", h.getParticipants)
	mux.HandleFunc("GET /battles/{id}/results", h.getResults)
	mux.HandleFunc("POST /battles/{id}/disband", h.disband)
}

type createBattleRequest struct {
	QuizID   string            `json:"quizId"`
	Mode     domain.BattleMode `json:"mode"`
	LeaderID string            `json:"leaderId"`
}

func (h *RESTHandler) createBattle(w http.ResponseWriter, r *http.Request) {
	var req createBattleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	battle, err := h.service.Create(r.Context(), req.QuizID, req.Mode, req.LeaderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, battle)
}

func (h *RESTHandler) listWaiting(w http.ResponseWriter, r *http.Request) {
	waiting := h.service.GetWaitingBattles(r.Context(), r.URL.Query().Get("quizId"))
	if waiting == nil {
		waiting = []domain.RoomState{}
	}
	writeJSON(w, http.StatusOK, waiting)
}

func (h *RESTHandler) getState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.GetState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *RESTHandler) getParticipants(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.GetParticipants(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *RESTHandler) getResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.GetResults(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type disbandRequest struct {
	UserID string `json:"userId"`
}

func (h *RESTHandler) disband(w http.ResponseWriter, r *http.Request) {
	var req disbandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.service.Disband(r.Context(), r.PathValue("id"), req.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrBattleNotFound),
		errors.Is(err, domain.ErrCodeNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAction):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrAlreadyMember):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}
