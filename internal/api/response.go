package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/venuefarm/bookingbot/internal/models"
)

// MaxRequestBodyBytes caps JSON request bodies.
const MaxRequestBodyBytes = 64 << 10

// internalErrorBody is written when a reply cannot be encoded.
var internalErrorBody = []byte(`{"status":"error","message":"Internal server error"}`)

// decodeJSONBody decodes a single JSON object from r into v.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON: trailing data after object")
	}
	return nil
}

// writeResult writes result in an "ok" envelope with status 200.
func writeResult(w http.ResponseWriter, result interface{}) {
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// writeError writes message in an "error" envelope.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, models.Error(message))
}

// writeJSONResponse encodes body before touching headers so an encoding
// failure can still become a 500.
func writeJSONResponse(w http.ResponseWriter, statusCode int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal response", "error", err, "status", statusCode)
		data, statusCode = internalErrorBody, http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(data); err != nil {
		slog.Debug("Server.writeJSONResponse: client went away", "error", err)
	}
}
