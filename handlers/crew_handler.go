package handlers

import (
	"net/http"

	"github.com/runbattle/runbattle-server/services"
)

type CrewHandler struct {
	crewService services.CrewService
}

func NewCrewHandler(crewService services.CrewService) *CrewHandler {
	return &CrewHandler{crewService: crewService}
}

func (h *CrewHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var input services.CreateCrewInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	crew, err := h.crewService.Create(r.Context(), userID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"crew": crew}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *CrewHandler) List(w http.ResponseWriter, r *http.Request) {
	crews, err := h.crewService.ListPublic(r.Context(),
		queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"crews": crews}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *CrewHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	crewID, err := urlParamInt(r, "crewID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	crew, err := h.crewService.GetByID(r.Context(), crewID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"crew": crew}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *CrewHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	crewID, err := urlParamInt(r, "crewID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	members, err := h.crewService.ListMembers(r.Context(), crewID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"members": members}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *CrewHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	crewID, err := urlParamInt(r, "crewID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.crewService.Join(r.Context(), crewID, userID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "successfully joined crew"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *CrewHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	crewID, err := urlParamInt(r, "crewID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.crewService.Leave(r.Context(), crewID, userID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CrewHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	crewID, err := urlParamInt(r, "crewID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.UpdateCrewInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	crew, err := h.crewService.Update(r.Context(), crewID, userID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"crew": crew}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *CrewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	crewID, err := urlParamInt(r, "crewID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.crewService.Delete(r.Context(), crewID, userID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
