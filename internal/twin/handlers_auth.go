package twin

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wondertwin-ai/apiprobe/internal/apimodel"
	"github.com/wondertwin-ai/apiprobe/internal/auth"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func (t *Twin) findAccount(email string) (account, bool) {
	return t.users.Find(func(a account) bool { return a.Email == email })
}

func (t *Twin) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req apimodel.SendOTPRequest
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailPattern.MatchString(email) {
		fail(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	acct, exists := t.findAccount(email)
	verified := exists && acct.Verified
	switch {
	case req.IsLogin && !verified:
		fail(w, http.StatusBadRequest, "No account found for this email")
		return
	case !req.IsLogin && verified:
		fail(w, http.StatusConflict, "An account with this email already exists")
		return
	}

	if !exists {
		acct = account{ID: uuid.NewString(), Email: email, Role: auth.RoleUser}
		t.users.Set(acct.ID, acct)
	}

	code, err := newCode()
	if err != nil {
		fail(w, http.StatusInternalServerError, "Failed to generate OTP")
		return
	}
	t.otps.Set(email, otpCode{
		Code:      code,
		ExpiresAt: t.now().Add(t.opts.OTPTTL),
		Remaining: t.opts.MaxAttempts,
	})
	t.log.WithFields(logrus.Fields{"email": email, "login": req.IsLogin}).Info("otp issued")

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "OTP sent to " + email,
		Data: apimodel.SendOTPData{
			UserID:         acct.ID,
			IsNewUser:      !exists,
			IsExistingUser: verified,
		},
	})
}

func (t *Twin) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req apimodel.VerifyOTPRequest
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.OTP == "" {
		fail(w, http.StatusBadRequest, "Email and OTP are required")
		return
	}

	now := t.now()
	var reject string
	var remaining int
	_, found := t.otps.Update(email, func(rec *otpCode) bool {
		switch {
		case now.After(rec.ExpiresAt):
			reject = "OTP has expired"
			return false
		case rec.Remaining <= 0:
			reject = "Too many failed attempts"
			return true
		case rec.Code != req.OTP:
			rec.Remaining--
			reject, remaining = "Invalid OTP", rec.Remaining
			return true
		}
		// A matching code is consumed.
		return false
	})
	if !found {
		failAttempts(w, "No OTP found for this email", 0)
		return
	}
	if reject != "" {
		failAttempts(w, reject, remaining)
		return
	}

	acct, exists := t.findAccount(email)
	if !exists {
		fail(w, http.StatusBadRequest, "No account found for this email")
		return
	}
	if !req.IsLogin {
		role := req.Role
		if role == "" {
			role = auth.RoleUser
		}
		if role != auth.RoleUser && role != auth.RoleSeller {
			fail(w, http.StatusBadRequest, "Invalid role")
			return
		}
		acct.Role = role
	}
	acct.Verified = true
	t.users.Set(acct.ID, acct)

	token, err := t.forger.Forge(auth.Identity{UserID: acct.ID, Email: acct.Email, Role: acct.Role})
	if err != nil {
		fail(w, http.StatusInternalServerError, "Failed to issue session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     t.opts.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	t.log.WithFields(logrus.Fields{"email": email, "role": acct.Role}).Info("otp verified")

	ok(w, apimodel.VerifyOTPData{
		Token: token,
		User:  apimodel.User{UserID: acct.ID, Email: acct.Email, Role: acct.Role},
	})
}

func (t *Twin) handleMe(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r)
	writeJSON(w, http.StatusOK, apimodel.User{UserID: c.UserID, Email: c.Email, Role: c.Role})
}

// newCode returns a random six-digit code.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
