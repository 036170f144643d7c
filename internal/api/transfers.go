package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vodalab/vzorec/internal/coc"
	"github.com/vodalab/vzorec/internal/evidence"
)

// TransfersHandler handles custody transfer endpoints.
type TransfersHandler struct {
	COC *coc.Service
}

type createTransferRequest struct {
	SampleID   string   `json:"sample_id"`
	ReceivedBy string   `json:"received_by"`
	Signature  string   `json:"signature"` // data URL or base64
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Timestamp  string   `json:"timestamp"` // RFC 3339, optional
}

// Create handles POST /api/transfers: a single custody handoff.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SampleID == "" || req.ReceivedBy == "" || req.Signature == "" {
		jsonError(w, http.StatusBadRequest, "received by and signature are required")
		return
	}

	signature, err := evidence.DecodeSignature(req.Signature)
	if err != nil {
		serviceError(w, err)
		return
	}

	var ts time.Time
	if req.Timestamp != "" {
		ts, err = time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid timestamp")
			return
		}
	}

	transfer, err := h.COC.TransferCustody(r.Context(), GetClaims(r.Context()), coc.TransferRequest{
		SampleID:   req.SampleID,
		ReceivedBy: req.ReceivedBy,
		Signature:  signature,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Timestamp:  ts,
	})
	if err != nil {
		serviceError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{"transfer": transfer})
}

// maxBulkBody bounds the multipart bulk request (signature + optional photo).
const maxBulkBody = 4 << 20

// BulkCreate handles POST /api/transfers/bulk: one physical handoff event
// covering many samples, submitted as a multipart form with fields
// sampleIds (JSON array string), receivedBy, timestamp (RFC 3339),
// signature (data URL), and an optional image file.
func (h *TransfersHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBulkBody)
	if err := r.ParseMultipartForm(maxBulkBody); err != nil {
		jsonError(w, http.StatusBadRequest, "request too large or invalid multipart form")
		return
	}

	rawIDs := r.FormValue("sampleIds")
	receivedBy := r.FormValue("receivedBy")
	rawSignature := r.FormValue("signature")
	if rawIDs == "" || receivedBy == "" || rawSignature == "" {
		jsonError(w, http.StatusBadRequest, "sample IDs, recipient, and signature are required")
		return
	}

	var sampleIDs []string
	if err := json.Unmarshal([]byte(rawIDs), &sampleIDs); err != nil || len(sampleIDs) == 0 {
		jsonError(w, http.StatusBadRequest, "invalid or empty sample IDs")
		return
	}

	signature, err := evidence.DecodeSignature(rawSignature)
	if err != nil {
		serviceError(w, err)
		return
	}

	var ts time.Time
	if raw := r.FormValue("timestamp"); raw != "" {
		ts, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid timestamp")
			return
		}
	}

	var photo []byte
	if file, _, err := r.FormFile("file"); err == nil {
		photo, err = io.ReadAll(file)
		file.Close()
		if err != nil {
			jsonError(w, http.StatusBadRequest, "failed to read photo")
			return
		}
	}

	result, err := h.COC.BulkTransferCustody(r.Context(), GetClaims(r.Context()), coc.BulkTransferRequest{
		SampleIDs:  sampleIDs,
		ReceivedBy: receivedBy,
		Signature:  signature,
		Photo:      photo,
		Timestamp:  ts,
	})
	if err != nil {
		serviceError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"success":       true,
		"transferCount": result.TransferCount,
		"message":       fmt.Sprintf("%d sample(s) transferred", result.TransferCount),
	})
}
