package api

import (
	"encoding/json"
	"log"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

// writeError is the shared error writer every handler and the auth
// middleware report through: it inspects err for a typed *Error to pick a
// status and message, otherwise logs the underlying cause and reports a
// generic 500 (spec §7).
func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*Error)
	if !ok {
		log.Printf("api: unhandled error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "internal error"})
		return
	}
	if apiErr.Cause != nil {
		log.Printf("api: %s: %v", apiErr.Message, apiErr.Cause)
	}
	writeJSON(w, statusFor(apiErr.Kind), map[string]any{"ok": false, "error": apiErr.Message})
}
