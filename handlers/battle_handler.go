package handlers

import (
	"errors"
	"net/http"

	"github.com/runbattle/runbattle-server/models"
	"github.com/runbattle/runbattle-server/services"
)

var errInvalidStatusFilter = errors.New("status filter must be one of pending, active, completed, cancelled")

type BattleHandler struct {
	matchmakingService services.MatchmakingService
	battleService      services.BattleService
}

func NewBattleHandler(
	matchmakingService services.MatchmakingService,
	battleService services.BattleService,
) *BattleHandler {
	return &BattleHandler{
		matchmakingService: matchmakingService,
		battleService:      battleService,
	}
}

type findMatchInput struct {
	DistanceKm float64 `json:"distance_km"`
}

type submitResultInput struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationSeconds int     `json:"duration_seconds"`
}

// FindMatch pairs the caller with an opponent and creates a pending battle.
func (h *BattleHandler) FindMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var input findMatchInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	battle, err := h.matchmakingService.FindMatch(r.Context(), userID, input.DistanceKm)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"battle": battle}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *BattleHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	battleID, err := urlParamInt(r, "battleID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	battle, err := h.battleService.Start(r.Context(), battleID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"battle": battle}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SubmitResult records the caller's result; when both sides have reported,
// the returned battle is completed with winner and rating changes applied.
func (h *BattleHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	battleID, err := urlParamInt(r, "battleID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input submitResultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	battle, err := h.battleService.SubmitResult(r.Context(), battleID, userID, input.DistanceKm, input.DurationSeconds)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"battle": battle}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *BattleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	battleID, err := urlParamInt(r, "battleID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.battleService.Cancel(r.Context(), battleID, userID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *BattleHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	battleID, err := urlParamInt(r, "battleID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	battle, err := h.battleService.GetByID(r.Context(), battleID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"battle": battle}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *BattleHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var status *models.BattleStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := models.BattleStatus(raw)
		switch s {
		case models.BattleStatusPending, models.BattleStatusActive,
			models.BattleStatusCompleted, models.BattleStatusCancelled:
			status = &s
		default:
			badRequestResponse(w, r, errInvalidStatusFilter)
			return
		}
	}

	battles, err := h.battleService.ListForUser(r.Context(), userID, status,
		queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"battles": battles}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
