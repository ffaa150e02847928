// Package harness implements the probe request runner: one persistent HTTP
// session, a run/pass counter pair, and the ordered list of check results.
//
// A Harness is used from a single goroutine. Probes run one after another and
// every check, whether a request or a field assertion, lands in Results.
package harness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wondertwin-ai/apiprobe/internal/logging"
)

// previewLimit bounds how much of a response body is echoed to the console.
const previewLimit = 200

// Result is the outcome of one recorded check. It is never modified after
// it has been appended.
type Result struct {
	Name     string        `json:"name"`
	Suite    string        `json:"suite,omitempty"`
	Success  bool          `json:"success"`
	Details  string        `json:"details,omitempty"`
	Method   string        `json:"method,omitempty"`
	URL      string        `json:"url,omitempty"`
	Status   int           `json:"status,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// Recorder receives every result as it is recorded. The metrics package
// implements it.
type Recorder interface {
	Observe(r Result)
}

// Options configures a Harness.
type Options struct {
	BaseURL  string
	Timeout  time.Duration // zero keeps the net/http default (no timeout)
	Out      io.Writer     // console output; defaults to io.Discard
	Logger   *logrus.Logger
	Recorder Recorder
}

// Harness performs probe requests and keeps the bookkeeping.
type Harness struct {
	base    *url.URL
	timeout time.Duration
	http    *http.Client
	out     io.Writer
	log     *logrus.Logger
	rec     Recorder

	suite   string
	run     int
	passed  int
	results []Result
}

// New creates a Harness with a fresh cookie jar.
func New(opts Options) (*Harness, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	h := &Harness{
		base:    base,
		timeout: opts.Timeout,
		out:     out,
		log:     logger,
		rec:     opts.Recorder,
	}
	h.ResetSession()
	return h, nil
}

// BaseURL returns the base URL requests are resolved against.
func (h *Harness) BaseURL() string {
	return h.base.String()
}

// SetSuite labels subsequent results with the given suite name.
func (h *Harness) SetSuite(name string) {
	h.suite = name
}

// Suite returns the current suite label.
func (h *Harness) Suite() string {
	return h.suite
}

// Run performs one request and compares its status code against
// req.Expected. Transport errors are recorded as failures and never returned,
// so a dead endpoint cannot stop the remaining probes. The returned Response
// is never nil.
func (h *Harness) Run(ctx context.Context, name string, req Request) (bool, *Response) {
	start := time.Now()
	target := h.resolve(req.Path)
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	fmt.Fprintf(h.out, "\n  -> %s %s\n", method, target)

	resp := h.do(ctx, method, target, req)
	elapsed := time.Since(start)

	res := Result{
		Name:     name,
		Method:   method,
		URL:      target,
		Status:   resp.Status,
		Duration: elapsed,
	}

	entry := h.log.WithFields(logrus.Fields{
		"suite":    h.suite,
		"check":    name,
		"method":   method,
		"url":      target,
		"expected": req.Expected,
		"duration": elapsed.Round(time.Millisecond),
	})

	if resp.Err != nil {
		res.Details = fmt.Sprintf("Error: %v", resp.Err)
		fmt.Fprintf(h.out, "     %s\n", res.Details)
		entry.WithError(resp.Err).Warn("request failed")
	} else {
		fmt.Fprintf(h.out, "     status %d (%s)  body: %s\n", resp.Status, elapsed.Round(time.Millisecond), preview(resp.Raw))
		entry.WithField("status", resp.Status).Debug("request done")
		if resp.Status == req.Expected {
			res.Success = true
			res.Details = fmt.Sprintf("Got expected %d", resp.Status)
		} else {
			res.Details = fmt.Sprintf("Expected %d, got %d", req.Expected, resp.Status)
		}
	}

	h.record(res)
	return res.Success, resp
}

// Expect records a field-level check made by a probe after inspecting a
// response. It counts as one check.
func (h *Harness) Expect(name string, ok bool, details string) bool {
	h.record(Result{Name: name, Success: ok, Details: details})
	return ok
}

// Skip prints a notice for a check that could not run. Skipped checks are not
// counted.
func (h *Harness) Skip(name, reason string) {
	fmt.Fprintf(h.out, "  SKIP  %-50s %s\n", name, reason)
	h.log.WithFields(logrus.Fields{"suite": h.suite, "check": name}).Info("skipped: " + reason)
}

// Note prints an informational line.
func (h *Harness) Note(format string, args ...any) {
	fmt.Fprintf(h.out, "  "+format+"\n", args...)
}

// Counters returns the number of checks run and passed.
func (h *Harness) Counters() (run, passed int) {
	return h.run, h.passed
}

// Results returns a copy of the recorded results in order.
func (h *Harness) Results() []Result {
	out := make([]Result, len(h.results))
	copy(out, h.results)
	return out
}

func (h *Harness) record(res Result) {
	res.Suite = h.suite
	h.run++
	if res.Success {
		h.passed++
		fmt.Fprintf(h.out, "  PASS  %-50s %s\n", res.Name, res.Details)
	} else {
		fmt.Fprintf(h.out, "  FAIL  %-50s %s\n", res.Name, res.Details)
	}
	h.results = append(h.results, res)
	if h.rec != nil {
		h.rec.Observe(res)
	}
}

// resolve joins path onto the base URL. Absolute URLs pass through.
func (h *Harness) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return h.base.String() + path
}

func (h *Harness) do(ctx context.Context, method, target string, req Request) *Response {
	body, contentType, err := req.encode()
	if err != nil {
		return &Response{Err: fmt.Errorf("building request body: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &Response{Err: fmt.Errorf("building request: %w", err)}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.http.Do(httpReq)
	if err != nil {
		return &Response{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Response{Status: resp.StatusCode, Header: resp.Header, Err: fmt.Errorf("reading response body: %w", err)}
	}
	return newResponse(resp.StatusCode, resp.Header, raw)
}

func preview(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > previewLimit {
		cut := previewLimit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// ResetSession drops every cookie by replacing the jar.
func (h *Harness) ResetSession() {
	jar, _ := cookiejar.New(nil)
	h.http = &http.Client{Timeout: h.timeout, Jar: jar}
}

// SetCookie installs a cookie for the base URL, as if the server had set it.
func (h *Harness) SetCookie(name, value string) {
	h.http.Jar.SetCookies(h.base, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// Cookie returns the value of the named cookie for the base URL, or "".
func (h *Harness) Cookie(name string) string {
	for _, c := range h.http.Jar.Cookies(h.base) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// ClearCookie removes the named cookie for the base URL.
func (h *Harness) ClearCookie(name string) {
	h.http.Jar.SetCookies(h.base, []*http.Cookie{{Name: name, Value: "", Path: "/", MaxAge: -1}})
}
