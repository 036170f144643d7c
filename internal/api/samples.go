package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vodalab/vzorec/internal/coc"
	"github.com/vodalab/vzorec/internal/model"
	"github.com/vodalab/vzorec/internal/store"
)

// SamplesHandler handles sample CRUD and history endpoints.
type SamplesHandler struct {
	DB  *sql.DB
	COC *coc.Service
}

type createSampleRequest struct {
	AgencyID    string    `json:"agency_id"`
	AccountID   string    `json:"account_id"`
	TestTypeID  string    `json:"test_type_id"`
	Description string    `json:"description"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	CollectedAt time.Time `json:"collected_at"`
}

// Create handles POST /api/samples.
func (h *SamplesHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req createSampleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Non-admins may only create samples for their own agency.
	if req.AgencyID == "" {
		req.AgencyID = claims.AgencyID
	}
	if req.AgencyID == "" {
		jsonError(w, http.StatusBadRequest, "agency_id required")
		return
	}
	if claims.Role != model.RoleLabAdmin && req.AgencyID != claims.AgencyID {
		jsonError(w, http.StatusForbidden, "cannot create samples for another agency")
		return
	}

	sample, err := store.CreateSample(r.Context(), h.DB, &model.Sample{
		AgencyID:    req.AgencyID,
		AccountID:   req.AccountID,
		CreatedBy:   claims.UserID,
		TestTypeID:  req.TestTypeID,
		Description: req.Description,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		CollectedAt: req.CollectedAt,
	})
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create sample")
		return
	}

	slog.Info("sample created", "sample", sample.ID, "agency", sample.AgencyID, "by", claims.Email)
	jsonResponse(w, http.StatusCreated, sample)
}

// List handles GET /api/samples. Non-admins only see their own agency.
func (h *SamplesHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	agencyID := r.URL.Query().Get("agency_id")
	if claims.Role != model.RoleLabAdmin {
		agencyID = claims.AgencyID
	}

	status := r.URL.Query().Get("status")
	if status != "" && !model.ValidStatus(status) {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}

	samples, err := store.ListSamples(r.Context(), h.DB, agencyID, status)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list samples")
		return
	}
	if samples == nil {
		samples = []model.Sample{}
	}
	jsonResponse(w, http.StatusOK, samples)
}

// Get handles GET /api/samples/{id}.
func (h *SamplesHandler) Get(w http.ResponseWriter, r *http.Request) {
	sample, err := store.GetSample(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get sample")
		return
	}
	if sample == nil || sample.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "sample not found")
		return
	}

	jsonResponse(w, http.StatusOK, sample)
}

// Delete handles DELETE /api/samples/{id} (soft delete).
func (h *SamplesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := store.DeleteSample(r.Context(), h.DB, r.PathValue("id")); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to delete sample")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "sample deleted"})
}

// Resubmit handles POST /api/samples/{id}/resubmit: the edit-and-resubmit
// path promoting a failed sample back to 'submitted'. Deliberately separate
// from the custody transfer engine.
func (h *SamplesHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sample, err := store.GetSample(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get sample")
		return
	}
	if sample == nil || sample.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "sample not found")
		return
	}

	if err := store.ResubmitSample(r.Context(), h.DB, id); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			jsonError(w, http.StatusConflict, "only failed samples can be resubmitted")
			return
		}
		jsonError(w, http.StatusInternalServerError, "failed to resubmit sample")
		return
	}

	slog.Info("sample resubmitted after failure", "sample", id)
	sample, _ = store.GetSample(r.Context(), h.DB, id)
	jsonResponse(w, http.StatusOK, sample)
}

// History handles GET /api/samples/{id}/history.
func (h *SamplesHandler) History(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.COC.History(r.Context(), GetClaims(r.Context()), r.PathValue("id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	if transfers == nil {
		transfers = []model.CustodyTransfer{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"transfers": transfers})
}
