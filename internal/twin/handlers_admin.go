package twin

import (
	"net/http"
	"strings"
	"time"
)

// OTPPeek is returned by GET /admin/otp.
type OTPPeek struct {
	Email             string    `json:"email"`
	Code              string    `json:"code"`
	ExpiresAt         time.Time `json:"expiresAt"`
	RemainingAttempts int       `json:"remainingAttempts"`
}

func (t *Twin) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (t *Twin) handleReset(w http.ResponseWriter, r *http.Request) {
	t.Reset()
	t.log.Info("twin state reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (t *Twin) handlePeekOTP(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if email == "" {
		fail(w, http.StatusBadRequest, "email query parameter is required")
		return
	}
	rec, found := t.otps.Get(email)
	if !found {
		fail(w, http.StatusNotFound, "no pending OTP for "+email)
		return
	}
	writeJSON(w, http.StatusOK, OTPPeek{
		Email:             email,
		Code:              rec.Code,
		ExpiresAt:         rec.ExpiresAt,
		RemainingAttempts: rec.Remaining,
	})
}

func (t *Twin) handleTimeAdvance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Duration string `json:"duration"` // Go duration string, e.g. "15m"
	}
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil || d < 0 {
		fail(w, http.StatusBadRequest, "invalid duration "+req.Duration)
		return
	}
	t.clock.Advance(d)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "advanced",
		"simulated": t.now().Format(time.RFC3339),
	})
}
