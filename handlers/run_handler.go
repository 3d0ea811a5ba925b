package handlers

import (
	"net/http"

	"github.com/runbattle/runbattle-server/services"
)

type RunHandler struct {
	runService services.RunService
}

func NewRunHandler(runService services.RunService) *RunHandler {
	return &RunHandler{runService: runService}
}

func (h *RunHandler) LogRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var input services.LogRunInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	run, err := h.runService.LogRun(r.Context(), userID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"run": run}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	runs, err := h.runService.ListForUser(r.Context(), userID,
		queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"runs": runs}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	runID, err := urlParamInt(r, "runID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	run, err := h.runService.GetByID(r.Context(), runID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"run": run}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
