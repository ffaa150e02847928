package auth

import (
	"fmt"
)

// CookieSetter is the part of the harness that owns the cookie jar.
type CookieSetter interface {
	SetCookie(name, value string)
}

// Install puts token into the session under cookieName.
func Install(s CookieSetter, cookieName, token string) {
	s.SetCookie(cookieName, token)
}

// Impersonate forges a token for id and installs it, returning the token.
func Impersonate(s CookieSetter, f *Forger, cookieName string, id Identity) (string, error) {
	if f == nil {
		return "", ErrNoSecret
	}
	token, err := f.Forge(id)
	if err != nil {
		return "", fmt.Errorf("impersonating %s: %w", id.Email, err)
	}
	Install(s, cookieName, token)
	return token, nil
}
