package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the wire shape of every API response.
type Envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// WriteData writes a success envelope with the given status code.
func WriteData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, Envelope{Success: true, Data: data})
}

// WriteError writes a failure envelope with a human-readable message.
func WriteError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, Envelope{Success: false, Message: message})
}

// WriteFieldErrors writes a 400 failure envelope carrying field-level
// validation detail.
func WriteFieldErrors(w http.ResponseWriter, message string, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, Envelope{Success: false, Message: message, Errors: fields})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// Required for sensitive responses like tokens and backup codes.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
