package api

import (
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"

	"github.com/vodalab/vzorec/internal/coc"
	"github.com/vodalab/vzorec/internal/evidence"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("error encoding response: %v", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// serviceError maps workflow errors onto the HTTP error taxonomy. Anything
// unrecognized is a 500 with a generic message; internals never leak to the
// caller.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case coc.IsValidation(err), evidence.IsRejection(err):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, coc.ErrUnauthorized):
		jsonError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, coc.ErrForbidden):
		jsonError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, coc.ErrSampleNotFound):
		jsonError(w, http.StatusNotFound, "sample not found")
	case errors.Is(err, coc.ErrSamplePassed), errors.Is(err, coc.ErrConflict):
		jsonError(w, http.StatusConflict, err.Error())
	case coc.IsPersistence(err):
		jsonError(w, http.StatusInternalServerError, err.Error())
	default:
		slog.Error("internal error", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
