package probes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wondertwin-ai/apiprobe/internal/apimodel"
	"github.com/wondertwin-ai/apiprobe/internal/auth"
	"github.com/wondertwin-ai/apiprobe/internal/harness"
)

const (
	sendOTPPath   = "/api/auth/send-otp"
	verifyOTPPath = "/api/auth/verify-otp"
	mePath        = "/api/user/me"
)

func authSuite(ctx context.Context, env *Env) {
	h := env.H
	email := env.Email("auth")

	ok, resp := h.Run(ctx, "OTP send for new email", harness.Request{
		Method: "POST", Path: sendOTPPath, Expected: 200,
		JSON: apimodel.SendOTPRequest{Email: email},
	})
	if ok {
		expectPresent(h, "OTP send returns userId", resp, "data.userId")
	}
	env.countRows(ctx, "OTP code stored for email", "otp_codes", map[string]string{"email": email}, 1)

	h.Run(ctx, "OTP send malformed email", harness.Request{
		Method: "POST", Path: sendOTPPath, Expected: 400,
		JSON: apimodel.SendOTPRequest{Email: "not-an-email"},
	})

	h.Run(ctx, "OTP login for unknown account", harness.Request{
		Method: "POST", Path: sendOTPPath, Expected: 400,
		JSON: apimodel.SendOTPRequest{Email: env.Email("ghost"), IsLogin: true},
	})

	code, codeErr := realCode(ctx, env, email)

	ok, resp = h.Run(ctx, "OTP verify wrong code", harness.Request{
		Method: "POST", Path: verifyOTPPath, Expected: 400,
		JSON: apimodel.VerifyOTPRequest{Email: email, OTP: wrongCode(code), IsLogin: false},
	})
	if ok {
		if e, decoded := envelope(h, "OTP wrong code error structure", resp); decoded {
			h.Expect("OTP wrong code error structure", e.Error != "" && e.RemainingAttempts != nil,
				fmt.Sprintf("error=%q remainingAttempts present=%t", e.Error, e.RemainingAttempts != nil))
		}
	}

	h.Run(ctx, "Auth me unauthenticated", harness.Request{Path: mePath, Expected: 401})

	switch {
	case errors.Is(codeErr, errNoAdmin):
		h.Skip("OTP verify real code", "no twin admin URL configured")
	case codeErr != nil:
		h.Expect("OTP real code available", false, fmt.Sprintf("Error: %v", codeErr))
	default:
		realFlow(ctx, env, email, code)
	}

	forged := env.identity("forged", auth.RoleUser)
	if env.impersonate("Auth forged token", forged) {
		ok, resp = h.Run(ctx, "Auth me with forged token", harness.Request{Path: mePath, Expected: 200})
		if ok {
			expectField(h, "Auth me returns forged userId", resp, "userId", forged.UserID)
			expectField(h, "Auth me returns forged role", resp, "role", forged.Role)
		}
	}

	if env.Admin == nil {
		h.Skip("OTP lockout and expiry", "no twin admin URL configured")
		return
	}
	lockoutFlow(ctx, env)
	// Last: it moves the twin clock forward.
	expiryFlow(ctx, env)
}

// realFlow completes sign-up with the genuine code and checks the session
// it produces.
func realFlow(ctx context.Context, env *Env, email, code string) {
	h := env.H
	ok, resp := h.Run(ctx, "OTP verify real code", harness.Request{
		Method: "POST", Path: verifyOTPPath, Expected: 200,
		JSON: apimodel.VerifyOTPRequest{Email: email, OTP: code, Role: auth.RoleUser, IsLogin: false},
	})
	if !ok {
		return
	}
	expectPresent(h, "OTP verify returns token", resp, "data.token", "data.user.userId")
	cookie := h.Cookie(env.CookieName)
	h.Expect("Auth token cookie issued", cookie != "", fmt.Sprintf("%s cookie length %d", env.CookieName, len(cookie)))

	ok, resp = h.Run(ctx, "Auth me with session", harness.Request{Path: mePath, Expected: 200})
	if ok {
		expectField(h, "Auth me returns signed-in email", resp, "email", email)
	}
	h.ClearCookie(env.CookieName)
	h.Run(ctx, "Auth me after cookie cleared", harness.Request{Path: mePath, Expected: 401})

	h.Run(ctx, "OTP signup for verified email", harness.Request{
		Method: "POST", Path: sendOTPPath, Expected: 409,
		JSON: apimodel.SendOTPRequest{Email: email},
	})
	ok, resp = h.Run(ctx, "OTP login for verified account", harness.Request{
		Method: "POST", Path: sendOTPPath, Expected: 200,
		JSON: apimodel.SendOTPRequest{Email: email, IsLogin: true},
	})
	if ok {
		expectField(h, "OTP login marks existing user", resp, "data.isExistingUser", "true")
	}
}

var errNoAdmin = errors.New("no twin admin client")

func realCode(ctx context.Context, env *Env, email string) (string, error) {
	if env.Admin == nil {
		return "", errNoAdmin
	}
	otp, err := env.Admin.OTP(ctx, email)
	if err != nil {
		return "", err
	}
	return otp.Code, nil
}

// maxLockoutAttempts bounds the wrong-code loop against a server that never
// locks out.
const maxLockoutAttempts = 20

// lockoutFlow spends every attempt on a fresh code and checks that the
// genuine code is refused afterwards.
func lockoutFlow(ctx context.Context, env *Env) {
	h := env.H
	email := env.Email("lockout")
	if ok, _ := h.Run(ctx, "OTP send for lockout", harness.Request{
		Method: "POST", Path: sendOTPPath, Expected: 200,
		JSON: apimodel.SendOTPRequest{Email: email},
	}); !ok {
		return
	}
	code, err := realCode(ctx, env, email)
	if err != nil {
		h.Expect("OTP lockout code available", false, fmt.Sprintf("Error: %v", err))
		return
	}

	remaining := -1
	for i := 1; i <= maxLockoutAttempts && remaining != 0; i++ {
		ok, resp := h.Run(ctx, fmt.Sprintf("OTP lockout wrong code %d", i), harness.Request{
			Method: "POST", Path: verifyOTPPath, Expected: 400,
			JSON: apimodel.VerifyOTPRequest{Email: email, OTP: wrongCode(code)},
		})
		if !ok {
			return
		}
		v, found := resp.Lookup("remainingAttempts")
		n, isNumber := v.(float64)
		if !found || !isNumber {
			h.Expect("OTP lockout reports remaining attempts", false, "remainingAttempts missing")
			return
		}
		remaining = int(n)
	}
	if !h.Expect("OTP attempts exhausted", remaining == 0, fmt.Sprintf("remainingAttempts = %d", remaining)) {
		return
	}

	ok, resp := h.Run(ctx, "OTP verify after lockout", harness.Request{
		Method: "POST", Path: verifyOTPPath, Expected: 400,
		JSON: apimodel.VerifyOTPRequest{Email: email, OTP: code},
	})
	if ok {
		expectField(h, "OTP lockout refuses real code", resp, "error", "Too many failed attempts")
	}
}

// expiryFlow moves the twin clock past a fresh code's expiry and checks the
// code is refused.
func expiryFlow(ctx context.Context, env *Env) {
	h := env.H
	email := env.Email("expiry")
	if ok, _ := h.Run(ctx, "OTP send for expiry", harness.Request{
		Method: "POST", Path: sendOTPPath, Expected: 200,
		JSON: apimodel.SendOTPRequest{Email: email},
	}); !ok {
		return
	}
	otp, err := env.Admin.OTP(ctx, email)
	if err != nil {
		h.Expect("OTP expiry code available", false, fmt.Sprintf("Error: %v", err))
		return
	}

	d := max(time.Until(otp.ExpiresAt), 0) + time.Minute
	if err := env.Admin.AdvanceClock(ctx, d); err != nil {
		h.Expect("OTP clock advanced", false, fmt.Sprintf("Error: %v", err))
		return
	}
	h.Note("twin clock advanced by %s", d.Round(time.Second))

	ok, resp := h.Run(ctx, "OTP verify expired code", harness.Request{
		Method: "POST", Path: verifyOTPPath, Expected: 400,
		JSON: apimodel.VerifyOTPRequest{Email: email, OTP: otp.Code},
	})
	if ok {
		expectField(h, "OTP expired error", resp, "error", "OTP has expired")
	}
}

// wrongCode returns a six-digit code that differs from real.
func wrongCode(real string) string {
	if real == "000000" {
		return "111111"
	}
	return "000000"
}
