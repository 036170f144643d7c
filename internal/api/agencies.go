package api

import (
	"database/sql"
	"net/http"

	"github.com/vodalab/vzorec/internal/model"
	"github.com/vodalab/vzorec/internal/store"
)

// AgenciesHandler handles agency and test type reference endpoints.
type AgenciesHandler struct {
	DB *sql.DB
}

type createAgencyRequest struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
}

type createTestTypeRequest struct {
	Name   string `json:"name"`
	Method string `json:"method"`
}

// List handles GET /api/agencies.
func (h *AgenciesHandler) List(w http.ResponseWriter, r *http.Request) {
	agencies, err := store.ListAgencies(r.Context(), h.DB)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list agencies")
		return
	}
	if agencies == nil {
		agencies = []model.Agency{}
	}
	jsonResponse(w, http.StatusOK, agencies)
}

// Create handles POST /api/agencies.
func (h *AgenciesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAgencyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	agency, err := store.CreateAgency(r.Context(), h.DB, req.Name, req.ContactEmail)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create agency")
		return
	}

	jsonResponse(w, http.StatusCreated, agency)
}

// ListTestTypes handles GET /api/testtypes.
func (h *AgenciesHandler) ListTestTypes(w http.ResponseWriter, r *http.Request) {
	types, err := store.ListTestTypes(r.Context(), h.DB)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list test types")
		return
	}
	if types == nil {
		types = []model.TestType{}
	}
	jsonResponse(w, http.StatusOK, types)
}

// CreateTestType handles POST /api/testtypes.
func (h *AgenciesHandler) CreateTestType(w http.ResponseWriter, r *http.Request) {
	var req createTestTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	tt, err := store.CreateTestType(r.Context(), h.DB, req.Name, req.Method)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create test type")
		return
	}

	jsonResponse(w, http.StatusCreated, tt)
}
