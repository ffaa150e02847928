// Package client provides an HTTP client for the twin's /admin endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoOTP is returned when the twin has no pending code for an email.
var ErrNoOTP = errors.New("no pending OTP")

// AdminClient talks to twin /admin/* endpoints.
type AdminClient struct {
	base string
	http *http.Client
}

// New creates an AdminClient for the twin at baseURL with a 5-second timeout.
func New(baseURL string) *AdminClient {
	return &AdminClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// OTPCode is a pending one-time code as reported by the twin.
type OTPCode struct {
	Email             string    `json:"email"`
	Code              string    `json:"code"`
	ExpiresAt         time.Time `json:"expiresAt"`
	RemainingAttempts int       `json:"remainingAttempts"`
}

// Health checks GET /admin/health. Returns (ok, response body or error message).
func (c *AdminClient) Health(ctx context.Context) (bool, string) {
	status, body, err := c.do(ctx, http.MethodGet, "/admin/health", nil)
	if err != nil {
		return false, err.Error()
	}
	if status == http.StatusOK {
		return true, body
	}
	return false, fmt.Sprintf("status %d: %s", status, body)
}

// Reset calls POST /admin/reset.
func (c *AdminClient) Reset(ctx context.Context) (string, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/admin/reset", nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("reset returned status %d: %s", status, body)
	}
	return body, nil
}

// OTP fetches the pending code for email from GET /admin/otp.
func (c *AdminClient) OTP(ctx context.Context, email string) (*OTPCode, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/admin/otp?email="+url.QueryEscape(email), nil)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w for %s", ErrNoOTP, email)
	default:
		return nil, fmt.Errorf("otp lookup returned status %d: %s", status, body)
	}

	var code OTPCode
	if err := json.Unmarshal([]byte(body), &code); err != nil {
		return nil, fmt.Errorf("decoding otp: %w", err)
	}
	return &code, nil
}

// AdvanceClock moves the twin's simulated clock forward by d.
func (c *AdminClient) AdvanceClock(ctx context.Context, d time.Duration) error {
	payload, err := json.Marshal(map[string]string{"duration": d.String()})
	if err != nil {
		return fmt.Errorf("encoding duration: %w", err)
	}
	status, body, err := c.do(ctx, http.MethodPost, "/admin/time/advance", payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("time advance returned status %d: %s", status, body)
	}
	return nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, payload []byte) (int, string, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, "", fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(body)), nil
}
