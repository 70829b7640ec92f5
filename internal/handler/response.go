package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"sessionpulse/telemetry-service/pkg/helpers"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response in JSON format
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeValidationError writes a 422 with field-identifying messages
func writeValidationError(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"error":  "validation_error",
		"fields": fields,
	})
}

// writeServiceError maps a service-layer error onto an HTTP response:
// validation errors become 422, everything else a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *helpers.ValidationError
	if errors.As(err, &verr) {
		writeValidationError(w, verr.Fields)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// extractIDFromPath extracts the trailing path segment after a prefix
func extractIDFromPath(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	id = strings.Trim(id, "/")
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
