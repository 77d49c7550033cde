package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"comic-tool/internal/errs"
	"comic-tool/internal/session"
)

// respondJSON sends a JSON response with the given data
func respondJSON(w http.ResponseWriter, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(data)
}

// respondJSONError sends a JSON error response
func respondJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// respondJSONSuccess sends a JSON success response
func respondJSONSuccess(w http.ResponseWriter, data map[string]interface{}) {
	if data == nil {
		data = make(map[string]interface{})
	}
	data["success"] = true
	respondJSON(w, data)
}

// respondOperationError reports a failed engine operation with its stable
// kind code and reason.
func respondOperationError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errs.Reason(err),
		"kind":    kind,
		"detail":  err.Error(),
	})
}

func statusFor(err error) (int, string) {
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusNotFound, "session_not_found"
	}
	if errors.Is(err, session.ErrChanged) {
		return http.StatusConflict, "session_stale"
	}
	kind := errs.Kind(err)
	switch kind {
	case "unreadable_path", "no_backup_found", "page_not_found":
		return http.StatusNotFound, kind
	case "corrupt_archive", "no_images_found":
		return http.StatusUnprocessableEntity, kind
	case "empty_selection":
		return http.StatusBadRequest, kind
	case "missing_tool":
		return http.StatusServiceUnavailable, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

// decodeJSON reads a JSON request body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
