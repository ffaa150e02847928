package twin

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/apiprobe/internal/auth"
)

const testSecret = "twin-test-secret"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type testTwin struct {
	t      *testing.T
	twin   *Twin
	srv    *httptest.Server
	forger *auth.Forger
}

func setupTwin(t *testing.T) *testTwin {
	t.Helper()
	tw, err := New(Options{Secret: testSecret, MaxAttempts: 3})
	require.NoError(t, err)
	srv := httptest.NewServer(tw)
	t.Cleanup(srv.Close)
	forger, err := auth.NewForger(testSecret, 0)
	require.NoError(t, err)
	return &testTwin{t: t, twin: tw, srv: srv, forger: forger}
}

func (tt *testTwin) token(id auth.Identity) string {
	tt.t.Helper()
	tok, err := tt.forger.Forge(id)
	require.NoError(tt.t, err)
	return tok
}

// call sends body as JSON and returns the status and decoded body.
func (tt *testTwin) call(method, path string, body any, token string) (int, map[string]any) {
	tt.t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(tt.t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, tt.srv.URL+path, rd)
	require.NoError(tt.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return tt.send(req)
}

func (tt *testTwin) send(req *http.Request) (int, map[string]any) {
	tt.t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(tt.t, err)
	defer resp.Body.Close()
	var m map[string]any
	json.NewDecoder(resp.Body).Decode(&m)
	return resp.StatusCode, m
}

func (tt *testTwin) upload(token, docType, name string, content []byte) (int, map[string]any) {
	tt.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if docType != "" {
		mw.WriteField("documentType", docType)
	}
	if content != nil {
		part, err := mw.CreateFormFile("document", name)
		require.NoError(tt.t, err)
		part.Write(content)
	}
	require.NoError(tt.t, mw.Close())

	req, err := http.NewRequest("POST", tt.srv.URL+"/api/kyc/upload", &buf)
	require.NoError(tt.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return tt.send(req)
}

func dataOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return data
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, auth.ErrNoSecret)
}

func TestSendOTPValidation(t *testing.T) {
	tt := setupTwin(t)

	status, body := tt.call("POST", "/api/auth/send-otp", map[string]any{"email": "not-an-email"}, "")
	assert.Equal(t, 400, status)
	assert.Equal(t, false, body["success"])

	status, _ = tt.call("POST", "/api/auth/send-otp", map[string]any{"email": "ghost@example.com", "isLogin": true}, "")
	assert.Equal(t, 400, status)

	status, body = tt.call("POST", "/api/auth/send-otp", map[string]any{"email": "new@example.com"}, "")
	require.Equal(t, 200, status)
	data := dataOf(t, body)
	assert.NotEmpty(t, data["userId"])
	assert.Equal(t, true, data["isNewUser"])
	assert.Equal(t, false, data["isExistingUser"])
}

func TestOTPSignupAndLoginFlow(t *testing.T) {
	tt := setupTwin(t)
	email := "flow@example.com"

	status, _ := tt.call("POST", "/api/auth/send-otp", map[string]any{"email": email}, "")
	require.Equal(t, 200, status)

	status, body := tt.call("POST", "/api/auth/verify-otp", map[string]any{"email": email, "otp": "000000x", "isLogin": false}, "")
	assert.Equal(t, 400, status)
	assert.Equal(t, "Invalid OTP", body["error"])
	assert.Equal(t, float64(2), body["remainingAttempts"])

	status, peek := tt.call("GET", "/admin/otp?email="+email, nil, "")
	require.Equal(t, 200, status)
	code := peek["code"].(string)
	assert.Len(t, code, 6)

	data, _ := json.Marshal(map[string]any{"email": email, "otp": code, "role": "seller", "isLogin": false})
	req, _ := http.NewRequest("POST", tt.srv.URL+"/api/auth/verify-otp", bytes.NewReader(data))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "auth-token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "auth-token cookie not set")
	assert.True(t, cookie.HttpOnly)

	meReq, _ := http.NewRequest("GET", tt.srv.URL+"/api/user/me", nil)
	meReq.AddCookie(cookie)
	status, me := tt.send(meReq)
	require.Equal(t, 200, status)
	assert.Equal(t, email, me["email"])
	assert.Equal(t, "seller", me["role"])

	status, _ = tt.call("POST", "/api/auth/send-otp", map[string]any{"email": email}, "")
	assert.Equal(t, 409, status, "signup for a verified email")

	status, body = tt.call("POST", "/api/auth/send-otp", map[string]any{"email": email, "isLogin": true}, "")
	require.Equal(t, 200, status)
	assert.Equal(t, true, dataOf(t, body)["isExistingUser"])
}

func TestVerifyOTPEdgeCases(t *testing.T) {
	tt := setupTwin(t)

	status, _ := tt.call("POST", "/api/auth/verify-otp", map[string]any{"email": "x@example.com"}, "")
	assert.Equal(t, 400, status)

	status, body := tt.call("POST", "/api/auth/verify-otp", map[string]any{"email": "none@example.com", "otp": "123456"}, "")
	assert.Equal(t, 400, status)
	assert.Equal(t, float64(0), body["remainingAttempts"])

	email := "limit@example.com"
	tt.call("POST", "/api/auth/send-otp", map[string]any{"email": email}, "")
	for i := 0; i < 3; i++ {
		tt.call("POST", "/api/auth/verify-otp", map[string]any{"email": email, "otp": "bad"}, "")
	}
	_, peek := tt.call("GET", "/admin/otp?email="+email, nil, "")
	status, body = tt.call("POST", "/api/auth/verify-otp", map[string]any{"email": email, "otp": peek["code"]}, "")
	assert.Equal(t, 400, status)
	assert.Equal(t, "Too many failed attempts", body["error"])

	email = "role@example.com"
	tt.call("POST", "/api/auth/send-otp", map[string]any{"email": email}, "")
	_, peek = tt.call("GET", "/admin/otp?email="+email, nil, "")
	status, body = tt.call("POST", "/api/auth/verify-otp", map[string]any{"email": email, "otp": peek["code"], "role": "admin"}, "")
	assert.Equal(t, 400, status)
	assert.Equal(t, "Invalid role", body["error"])
}

func TestOTPExpiresWithSimulatedClock(t *testing.T) {
	tt := setupTwin(t)
	email := "late@example.com"
	tt.call("POST", "/api/auth/send-otp", map[string]any{"email": email}, "")
	_, peek := tt.call("GET", "/admin/otp?email="+email, nil, "")

	status, _ := tt.call("POST", "/admin/time/advance", map[string]any{"duration": "11m"}, "")
	require.Equal(t, 200, status)

	status, body := tt.call("POST", "/api/auth/verify-otp", map[string]any{"email": email, "otp": peek["code"]}, "")
	assert.Equal(t, 400, status)
	assert.Equal(t, "OTP has expired", body["error"])
}

func TestSessionRequired(t *testing.T) {
	tt := setupTwin(t)

	for _, path := range []string{"/api/user/me", "/api/chat/conversations", "/api/refund-requests", "/api/kyc/upload", "/api/admin/refund-requests"} {
		status, body := tt.call("GET", path, nil, "")
		assert.Equal(t, 401, status, path)
		assert.Equal(t, "Unauthorized", body["error"], path)
	}

	other, err := auth.NewForger("some-other-secret", 0)
	require.NoError(t, err)
	bad, err := other.Forge(auth.Identity{Email: "x@example.com"})
	require.NoError(t, err)
	status, _ := tt.call("GET", "/api/user/me", nil, bad)
	assert.Equal(t, 401, status)
}

func TestForgedIdentityIsTrusted(t *testing.T) {
	tt := setupTwin(t)
	tok := tt.token(auth.Identity{UserID: "u-42", Email: "forged@example.com", Role: auth.RoleAdmin})

	status, me := tt.call("GET", "/api/user/me", nil, tok)
	require.Equal(t, 200, status)
	assert.Equal(t, "u-42", me["userId"])
	assert.Equal(t, "admin", me["role"])
}

func TestChatFlow(t *testing.T) {
	tt := setupTwin(t)
	alice := tt.token(auth.Identity{UserID: "alice", Email: "alice@example.com"})
	mallory := tt.token(auth.Identity{UserID: "mallory", Email: "mallory@example.com"})

	status, _ := tt.call("POST", "/api/chat/conversations", map[string]any{"subject": "  "}, alice)
	assert.Equal(t, 400, status)

	status, body := tt.call("POST", "/api/chat/conversations", map[string]any{"subject": "Order help"}, alice)
	require.Equal(t, 200, status)
	convID := dataOf(t, body)["id"].(string)
	msgs := "/api/chat/conversations/" + convID + "/messages"

	status, _ = tt.call("POST", msgs, map[string]any{"content": ""}, alice)
	assert.Equal(t, 400, status)
	status, _ = tt.call("POST", msgs, map[string]any{"content": strings.Repeat("a", 2001)}, alice)
	assert.Equal(t, 400, status)

	status, body = tt.call("POST", msgs, map[string]any{"content": "hello"}, alice)
	require.Equal(t, 200, status)
	sender := dataOf(t, body)["sender"].(map[string]any)
	assert.Equal(t, "alice", sender["id"])
	assert.Equal(t, "alice@example.com", sender["email"])

	status, body = tt.call("GET", msgs, nil, alice)
	require.Equal(t, 200, status)
	list := body["data"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "hello", list[0].(map[string]any)["content"])

	status, _ = tt.call("GET", msgs, nil, mallory)
	assert.Equal(t, 403, status)

	status, _ = tt.call("GET", "/api/chat/conversations/conv_999999/messages", nil, alice)
	assert.Equal(t, 404, status)

	status, body = tt.call("GET", "/api/chat/conversations", nil, mallory)
	require.Equal(t, 200, status)
	assert.Empty(t, body["data"])
}

func TestRefundFlow(t *testing.T) {
	tt := setupTwin(t)
	user := tt.token(auth.Identity{UserID: "buyer", Email: "buyer@example.com"})
	admin := tt.token(auth.Identity{UserID: "boss", Email: "boss@example.com", Role: auth.RoleAdmin})

	status, _ := tt.call("POST", "/api/refund-requests", map[string]any{"orderId": "o1", "amount": -5, "reason": "x"}, user)
	assert.Equal(t, 400, status)

	status, _ = tt.call("POST", "/api/refund-requests", map[string]any{"orderId": "o1", "amount": 10, "reason": "x"}, admin)
	assert.Equal(t, 403, status)

	status, body := tt.call("POST", "/api/refund-requests", map[string]any{"orderId": "o1", "amount": 10, "reason": "broken"}, user)
	require.Equal(t, 200, status)
	id := dataOf(t, body)["id"].(string)
	assert.Equal(t, "pending", dataOf(t, body)["status"])

	status, _ = tt.call("POST", "/api/refund-requests", map[string]any{"orderId": "o1", "amount": 10, "reason": "again"}, user)
	assert.Equal(t, 409, status)

	status, body = tt.call("GET", "/api/refund-requests", nil, user)
	require.Equal(t, 200, status)
	assert.Len(t, body["data"], 1)

	review := "/api/admin/refund-requests/" + id
	status, _ = tt.call("PATCH", review, map[string]any{"status": "approved"}, user)
	assert.Equal(t, 403, status)
	status, _ = tt.call("PATCH", review, map[string]any{"status": "maybe"}, admin)
	assert.Equal(t, 400, status)
	status, _ = tt.call("PATCH", "/api/admin/refund-requests/rr_999999", map[string]any{"status": "approved"}, admin)
	assert.Equal(t, 404, status)

	status, body = tt.call("PATCH", review, map[string]any{"status": "approved", "adminNote": "ok"}, admin)
	require.Equal(t, 200, status)
	assert.Equal(t, "approved", dataOf(t, body)["status"])

	status, _ = tt.call("PATCH", review, map[string]any{"status": "rejected"}, admin)
	assert.Equal(t, 409, status)

	status, body = tt.call("GET", "/api/admin/refund-requests?status=approved", nil, admin)
	require.Equal(t, 200, status)
	assert.Len(t, body["data"], 1)
}

// concurrently fires n identical JSON requests and returns their statuses.
func (tt *testTwin) concurrently(n int, method, path string, body any, token string) []int {
	tt.t.Helper()
	data, err := json.Marshal(body)
	require.NoError(tt.t, err)

	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := http.NewRequest(method, tt.srv.URL+path, bytes.NewReader(data))
			if err != nil {
				return
			}
			req.Header.Set("Content-Type", "application/json")
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()
	return statuses
}

func TestConcurrentReviewsApproveOnce(t *testing.T) {
	tt := setupTwin(t)
	user := tt.token(auth.Identity{UserID: "buyer", Email: "buyer@example.com"})
	admin := tt.token(auth.Identity{UserID: "boss", Email: "boss@example.com", Role: auth.RoleAdmin})

	status, body := tt.call("POST", "/api/refund-requests", map[string]any{"orderId": "o-race", "amount": 10, "reason": "broken"}, user)
	require.Equal(t, 200, status)
	id := dataOf(t, body)["id"].(string)

	statuses := tt.concurrently(20, "PATCH", "/api/admin/refund-requests/"+id, map[string]any{"status": "approved"}, admin)

	counts := map[int]int{}
	for _, s := range statuses {
		counts[s]++
	}
	assert.Equal(t, map[int]int{200: 1, 409: 19}, counts)
}

func TestConcurrentWrongCodesLoseNoAttempt(t *testing.T) {
	tw, err := New(Options{Secret: testSecret, MaxAttempts: 40})
	require.NoError(t, err)
	srv := httptest.NewServer(tw)
	t.Cleanup(srv.Close)
	tt := &testTwin{t: t, twin: tw, srv: srv}

	email := "race@example.com"
	tt.call("POST", "/api/auth/send-otp", map[string]any{"email": email}, "")
	_, peek := tt.call("GET", "/admin/otp?email="+email, nil, "")
	wrong := "000000"
	if peek["code"] == wrong {
		wrong = "111111"
	}

	statuses := tt.concurrently(30, "POST", "/api/auth/verify-otp", map[string]any{"email": email, "otp": wrong}, "")
	for _, s := range statuses {
		assert.Equal(t, 400, s)
	}

	_, peek = tt.call("GET", "/admin/otp?email="+email, nil, "")
	assert.Equal(t, float64(10), peek["remainingAttempts"])
}

func TestConcurrentCorrectCodesVerifyOnce(t *testing.T) {
	tt := setupTwin(t)
	email := "double@example.com"
	tt.call("POST", "/api/auth/send-otp", map[string]any{"email": email}, "")
	_, peek := tt.call("GET", "/admin/otp?email="+email, nil, "")

	statuses := tt.concurrently(20, "POST", "/api/auth/verify-otp", map[string]any{"email": email, "otp": peek["code"]}, "")

	counts := map[int]int{}
	for _, s := range statuses {
		counts[s]++
	}
	assert.Equal(t, map[int]int{200: 1, 400: 19}, counts)

	status, _ := tt.call("GET", "/admin/otp?email="+email, nil, "")
	assert.Equal(t, 404, status)
}

func TestKYCUpload(t *testing.T) {
	tt := setupTwin(t)
	user := tt.token(auth.Identity{UserID: "kyc-user", Email: "kyc@example.com"})
	admin := tt.token(auth.Identity{UserID: "boss", Role: auth.RoleAdmin})

	status, body := tt.call("GET", "/api/kyc/upload", nil, user)
	require.Equal(t, 200, status)
	assert.Equal(t, "not_submitted", dataOf(t, body)["status"])

	status, _ = tt.upload(user, "passport", "", nil)
	assert.Equal(t, 400, status, "missing file")

	status, _ = tt.upload(user, "selfie", "a.png", pngHeader)
	assert.Equal(t, 400, status, "bad document type")

	status, body = tt.upload(user, "passport", "notes.txt", []byte("plain text is not an id document"))
	assert.Equal(t, 400, status)
	assert.Equal(t, "Unsupported file type", body["error"])

	status, _ = tt.upload(admin, "passport", "a.png", pngHeader)
	assert.Equal(t, 403, status)

	status, body = tt.upload(user, "passport", "passport.png", pngHeader)
	require.Equal(t, 200, status)
	doc := dataOf(t, body)
	assert.Equal(t, "pending", doc["status"])
	assert.Equal(t, "image/png", doc["mimeType"])

	status, body = tt.call("GET", "/api/kyc/upload", nil, user)
	require.Equal(t, 200, status)
	assert.Equal(t, "pending", dataOf(t, body)["status"])
	assert.Len(t, dataOf(t, body)["documents"], 1)
}

func TestAdminReset(t *testing.T) {
	tt := setupTwin(t)
	tt.call("POST", "/api/auth/send-otp", map[string]any{"email": "r@example.com"}, "")

	status, body := tt.call("GET", "/admin/health", nil, "")
	require.Equal(t, 200, status)
	assert.Equal(t, "ok", body["status"])

	status, _ = tt.call("POST", "/admin/reset", nil, "")
	require.Equal(t, 200, status)

	status, _ = tt.call("GET", "/admin/otp?email=r@example.com", nil, "")
	assert.Equal(t, 404, status)
	assert.Equal(t, 0, tt.twin.users.Count())
}
