package twin

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Success           bool   `json:"success"`
	Message           string `json:"message,omitempty"`
	Data              any    `json:"data,omitempty"`
	Error             string `json:"error,omitempty"`
	RemainingAttempts *int   `json:"remainingAttempts,omitempty"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func failAttempts(w http.ResponseWriter, msg string, remaining int) {
	writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: msg, RemainingAttempts: &remaining})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
