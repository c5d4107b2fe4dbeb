package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/logging"
	"github.com/community-pulse/internal/models"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error errors.Response `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Error: errors.Response{Code: code, Message: message, Details: details},
	})
}

// respondServiceError maps err through its category. Causes of server
// errors are logged, never returned.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := errors.Categorize(err)
	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}
	respondJSON(w, catErr.StatusCode, ErrorResponse{Error: catErr.ToResponse()})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data) // nolint:errcheck // client went away
	}
}

// parseDate parses a yyyy-mm-dd path or query value
func parseDate(param, value string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, errors.NewInvalidParameterError(param, "expected YYYY-MM-DD")
	}
	return t, nil
}

// queryInt reads a bounded integer query parameter. Missing values use
// fallback; values outside [lo, hi] are rejected.
func queryInt(r *http.Request, name string, fallback, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidParameterError(name, "must be an integer")
	}
	if v < lo || v > hi {
		return 0, errors.NewInvalidParameterError(name, "out of range ["+strconv.Itoa(lo)+", "+strconv.Itoa(hi)+"]")
	}
	return v, nil
}
