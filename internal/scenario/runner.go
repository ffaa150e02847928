package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wondertwin-ai/apiprobe/internal/auth"
	"github.com/wondertwin-ai/apiprobe/internal/harness"
	"github.com/wondertwin-ai/apiprobe/internal/jsonpath"
	"github.com/wondertwin-ai/apiprobe/internal/logging"
)

// StepResult records the outcome of a single step.
type StepResult struct {
	Name     string
	Passed   bool
	Duration time.Duration
	Error    string // empty when passed
}

// Result records the outcome of an entire scenario.
type Result struct {
	ScenarioName string
	Passed       bool
	Skipped      bool
	Steps        []StepResult
	Duration     time.Duration
}

// Options configures a Runner.
type Options struct {
	Harness     *harness.Harness
	Forger      *auth.Forger // nil skips scenarios that need a session
	CookieName  string
	EmailDomain string
	Logger      *logrus.Logger
}

// Runner executes scenarios on a harness. Every step is one status check;
// a step with captures or body, header or substring assertions records one
// more check for those.
type Runner struct {
	opts Options
	h    *harness.Harness
	log  *logrus.Logger
	vars map[string]string
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.EmailDomain == "" {
		opts.EmailDomain = "example.com"
	}
	return &Runner{opts: opts, h: opts.Harness, log: logger}
}

// Run executes a single scenario with a fresh session.
func (r *Runner) Run(ctx context.Context, s *Scenario) *Result {
	start := time.Now()
	result := &Result{ScenarioName: s.Name, Passed: true}

	r.h.SetSuite(s.Name)
	r.h.ResetSession()
	r.h.Note("\n=== scenario: %s ===", s.Name)
	if s.Description != "" {
		r.h.Note("%s", s.Description)
	}

	r.vars = map[string]string{
		"base_url": r.h.BaseURL(),
		"email":    fmt.Sprintf("scenario-%s@%s", uuid.NewString()[:8], r.opts.EmailDomain),
	}
	if err := ExpandVariables(s.Variables, r.vars); err != nil {
		r.h.Expect(s.Name+": variables", false, err.Error())
		result.Passed = false
		result.Duration = time.Since(start)
		return result
	}

	if s.Auth != nil {
		if !r.authenticate(s) {
			result.Skipped = r.opts.Forger == nil
			result.Passed = result.Skipped
			result.Duration = time.Since(start)
			return result
		}
	}

	for i := range s.Steps {
		if ctx.Err() != nil {
			break
		}
		sr := r.runStep(ctx, s, &s.Steps[i])
		result.Steps = append(result.Steps, sr)
		if !sr.Passed {
			result.Passed = false
		}
	}

	result.Duration = time.Since(start)
	r.log.WithFields(logrus.Fields{
		"scenario": s.Name,
		"passed":   result.Passed,
		"duration": result.Duration.Round(time.Millisecond),
	}).Info("scenario finished")
	return result
}

// authenticate forges and installs the session the scenario asks for.
func (r *Runner) authenticate(s *Scenario) bool {
	name := s.Name + ": session"
	if r.opts.Forger == nil {
		r.h.Skip(name, "no JWT secret configured")
		return false
	}

	id := auth.Identity{Role: s.Auth.Role, Email: s.Auth.Email, UserID: s.Auth.UserID}
	for _, field := range []*string{&id.Role, &id.Email, &id.UserID} {
		expanded, err := ExpandTemplates(*field, r.vars)
		if err != nil {
			r.h.Expect(name, false, err.Error())
			return false
		}
		*field = expanded
	}
	if id.Email == "" {
		id.Email = r.vars["email"]
	}
	if id.UserID == "" {
		id.UserID = uuid.NewString()
	}
	if id.Role == "" {
		id.Role = auth.RoleUser
	}

	if _, err := auth.Impersonate(r.h, r.opts.Forger, r.opts.CookieName, id); err != nil {
		r.h.Expect(name, false, err.Error())
		return false
	}
	r.vars["auth.user_id"] = id.UserID
	r.vars["auth.email"] = id.Email
	r.vars["auth.role"] = id.Role
	return true
}

func (r *Runner) runStep(ctx context.Context, s *Scenario, step *Step) StepResult {
	start := time.Now()
	name := s.Name + ": " + step.Name
	sr := StepResult{Name: step.Name}
	finish := func(err error) StepResult {
		if err != nil {
			sr.Error = err.Error()
		} else {
			sr.Passed = true
		}
		sr.Duration = time.Since(start)
		return sr
	}

	req, err := r.buildRequest(s, step)
	if err != nil {
		r.h.Expect(name, false, err.Error())
		return finish(err)
	}

	ok, resp := r.h.Run(ctx, name, req)
	if resp.Err != nil {
		return finish(resp.Err)
	}
	var stepErr error
	if !ok {
		stepErr = fmt.Errorf("expected status %d, got %d", req.Expected, resp.Status)
	}

	if !hasExtraChecks(step) {
		return finish(stepErr)
	}
	checkErr := r.check(step, resp)
	details := "captures and assertions hold"
	if checkErr != nil {
		details = checkErr.Error()
	}
	r.h.Expect(name+" (body)", checkErr == nil, details)
	if stepErr == nil {
		stepErr = checkErr
	}
	return finish(stepErr)
}

func hasExtraChecks(step *Step) bool {
	if len(step.Capture) > 0 {
		return true
	}
	a := step.Assert
	return a != nil && (a.BodyContains != "" || len(a.Headers) > 0 || len(a.Body) > 0)
}

func (r *Runner) buildRequest(s *Scenario, step *Step) (harness.Request, error) {
	in := step.Request
	req := harness.Request{Method: strings.ToUpper(in.Method), Expected: 200}
	if step.Assert != nil && step.Assert.Status != 0 {
		req.Expected = step.Assert.Status
	}

	var err error
	if req.Path, err = ExpandTemplates(in.Path, r.vars); err != nil {
		return req, fmt.Errorf("template expansion in path: %w", err)
	}
	if req.Headers, err = expandMap(in.Headers, r.vars); err != nil {
		return req, fmt.Errorf("template expansion in header %w", err)
	}
	if req.Form, err = expandMap(in.Form, r.vars); err != nil {
		return req, fmt.Errorf("template expansion in form field %w", err)
	}

	if in.Body != nil {
		if raw, isString := in.Body.(string); isString {
			if req.RawBody, err = ExpandTemplates(raw, r.vars); err != nil {
				return req, fmt.Errorf("template expansion in body: %w", err)
			}
		} else if req.JSON, err = expandValue(in.Body, r.vars); err != nil {
			return req, fmt.Errorf("template expansion in body: %w", err)
		}
	}

	for _, f := range in.Files {
		file := harness.File{Field: f.Field, Name: f.Name, ContentType: f.ContentType}
		if f.Content != "" {
			file.Content = []byte(f.Content)
		} else {
			path := f.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(s.Dir, path)
			}
			if file.Content, err = os.ReadFile(path); err != nil {
				return req, fmt.Errorf("reading upload %s: %w", f.Field, err)
			}
		}
		switch {
		case file.Name != "":
		case f.Path != "":
			file.Name = filepath.Base(f.Path)
		default:
			file.Name = f.Field
		}
		req.Files = append(req.Files, file)
	}
	if req.Form == nil && len(req.Files) > 0 {
		req.Form = map[string]string{}
	}
	return req, nil
}

// check captures variables and evaluates the non-status assertions.
func (r *Runner) check(step *Step, resp *harness.Response) error {
	for varName, path := range step.Capture {
		if resp.JSON == nil {
			return fmt.Errorf("capture %q: response body is not JSON", varName)
		}
		results, err := jsonpath.Get(resp.JSON, path)
		if err != nil {
			return fmt.Errorf("capture %q: invalid JSONPath %q: %w", varName, path, err)
		}
		if len(results) == 0 {
			return fmt.Errorf("capture %q: JSONPath %q: no match found", varName, path)
		}
		r.vars[varName] = formatValue(results[0])
	}

	a := step.Assert
	if a == nil {
		return nil
	}
	if a.BodyContains != "" {
		want, err := ExpandTemplates(a.BodyContains, r.vars)
		if err != nil {
			return fmt.Errorf("template expansion in body_contains: %w", err)
		}
		if !strings.Contains(string(resp.Raw), want) {
			return fmt.Errorf("body does not contain %q", want)
		}
	}
	for key, expected := range a.Headers {
		want, err := ExpandTemplates(expected, r.vars)
		if err != nil {
			return fmt.Errorf("template expansion in header assertion %q: %w", key, err)
		}
		if got := resp.Header.Get(key); got != want {
			return fmt.Errorf("header %q: expected %q, got %q", key, want, got)
		}
	}
	if len(a.Body) > 0 {
		if resp.JSON == nil {
			return fmt.Errorf("body assertions need a JSON response")
		}
		expanded := make(map[string]any, len(a.Body))
		for path, expected := range a.Body {
			v, err := expandValue(expected, r.vars)
			if err != nil {
				return fmt.Errorf("template expansion in assertion %q: %w", path, err)
			}
			expanded[path] = v
		}
		if err := EvaluateBodyAssertions(resp.JSON, expanded); err != nil {
			return err
		}
	}
	return nil
}

// Vars returns a copy of the variables of the last run.
func (r *Runner) Vars() map[string]string {
	out := make(map[string]string, len(r.vars))
	for k, v := range r.vars {
		out[k] = v
	}
	return out
}
