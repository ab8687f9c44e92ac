package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"wagate/internal/logging"
	"wagate/internal/server/app"
)

// envelope is the uniform response shape: {"success": bool, ...}.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, logger logging.Logger, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode JSON response: %v", err)
	}
}

func writeSuccess(w http.ResponseWriter, logger logging.Logger, fields envelope) {
	body := envelope{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, logger, http.StatusOK, body)
}

// writeError maps the app error taxonomy onto HTTP statuses. Unknown errors
// are reduced to a generic 500 so internals never leak to the caller.
func writeError(w http.ResponseWriter, logger logging.Logger, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, app.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, app.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrNotReady):
		status = http.StatusBadRequest
	case errors.Is(err, app.ErrProvider), errors.Is(err, app.ErrPersistence):
		status = http.StatusInternalServerError
	default:
		message = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("HTTP %d - %v", status, err)
	} else {
		logger.Warn("HTTP %d - %v", status, err)
	}
	writeJSON(w, logger, status, envelope{"success": false, "error": message})
}

func decodeBody(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return app.ValidationError("invalid JSON body")
	}
	return nil
}
