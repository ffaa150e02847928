// Package probes holds the built-in probe suites. Each suite drives the API
// under test through one feature area, recording every status check and
// field assertion on the shared harness.
package probes

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wondertwin-ai/apiprobe/internal/apimodel"
	"github.com/wondertwin-ai/apiprobe/internal/auth"
	"github.com/wondertwin-ai/apiprobe/internal/client"
	"github.com/wondertwin-ai/apiprobe/internal/dbcheck"
	"github.com/wondertwin-ai/apiprobe/internal/harness"
	"github.com/wondertwin-ai/apiprobe/internal/logging"
)

// Env is what a suite runs against. Forger, Admin and DB are optional;
// checks that need a missing one are skipped with a notice.
type Env struct {
	H           *harness.Harness
	Forger      *auth.Forger
	CookieName  string
	Admin       *client.AdminClient
	DB          dbcheck.Verifier
	EmailDomain string
	Log         *logrus.Logger
}

// Suite is one named group of probes.
type Suite struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env)
}

// All returns the built-in suites in run order.
func All() []Suite {
	return []Suite{
		{Name: "auth", Description: "OTP sign-up, verification and session identity", Run: authSuite},
		{Name: "chat", Description: "conversations, messages and participant access", Run: chatSuite},
		{Name: "refund", Description: "refund requests and admin review", Run: refundSuite},
		{Name: "kyc", Description: "KYC document upload and status", Run: kycSuite},
		{Name: "admin", Description: "admin-only routes and role checks", Run: adminSuite},
	}
}

// Select returns the named suites in run order. No names selects all.
func Select(names []string) ([]Suite, error) {
	all := All()
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(n)] = true
	}

	var out []Suite
	for _, s := range all {
		if want[s.Name] {
			out = append(out, s)
			delete(want, s.Name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		return nil, fmt.Errorf("unknown suite(s): %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// Run executes suites one after another, each with a fresh session.
func Run(ctx context.Context, env *Env, suites []Suite) {
	for _, s := range suites {
		if ctx.Err() != nil {
			env.H.Note("run cancelled before suite %s", s.Name)
			return
		}
		env.H.SetSuite(s.Name)
		env.H.ResetSession()
		env.H.Note("\n=== %s: %s ===", s.Name, s.Description)
		env.logger().WithField("suite", s.Name).Info("suite started")
		s.Run(ctx, env)
	}
}

func (e *Env) logger() *logrus.Logger {
	if e.Log == nil {
		e.Log = logging.Discard()
	}
	return e.Log
}

// Email returns a fresh address so repeated runs never collide.
func (e *Env) Email(tag string) string {
	domain := e.EmailDomain
	if domain == "" {
		domain = "example.com"
	}
	return fmt.Sprintf("probe-%s-%s@%s", tag, uuid.NewString()[:8], domain)
}

// identity returns a fresh identity with the given role.
func (e *Env) identity(tag, role string) auth.Identity {
	return auth.Identity{UserID: uuid.NewString(), Email: e.Email(tag), Role: role}
}

// impersonate installs a forged session for id. It returns false, after
// recording why, when that is not possible.
func (e *Env) impersonate(name string, id auth.Identity) bool {
	if e.Forger == nil {
		e.H.Skip(name, "no JWT secret configured")
		return false
	}
	if _, err := auth.Impersonate(e.H, e.Forger, e.CookieName, id); err != nil {
		e.H.Expect(name, false, err.Error())
		return false
	}
	e.H.Note("session: %s (%s, %s)", id.Email, id.Role, id.UserID)
	return true
}

// countRows records a backing-store check that at least min rows match.
func (e *Env) countRows(ctx context.Context, name, table string, filters map[string]string, min int) {
	if e.DB == nil {
		e.H.Skip(name, "no database configured")
		return
	}
	n, err := e.DB.Count(ctx, table, filters)
	if err != nil {
		e.H.Expect(name, false, fmt.Sprintf("Error: %v", err))
		return
	}
	e.H.Expect(name, n >= min, fmt.Sprintf("%d row(s) in %s", n, table))
}

// envelope decodes the standard response wrapper, recording a failure
// when the body does not have that shape.
func envelope(h *harness.Harness, name string, resp *harness.Response) (*apimodel.Envelope, bool) {
	var env apimodel.Envelope
	if err := resp.Decode(&env); err != nil {
		h.Expect(name, false, err.Error())
		return nil, false
	}
	return &env, true
}

// expectField records whether the value at path equals want.
func expectField(h *harness.Harness, name string, resp *harness.Response, path, want string) bool {
	got := resp.String(path)
	return h.Expect(name, got == want, fmt.Sprintf("%s = %q, want %q", path, got, want))
}

// expectPresent records whether path is present and non-empty.
func expectPresent(h *harness.Harness, name string, resp *harness.Response, paths ...string) bool {
	var missing []string
	for _, p := range paths {
		if v, ok := resp.Lookup(p); !ok || v == nil || v == "" {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return h.Expect(name, false, "missing "+strings.Join(missing, ", "))
	}
	return h.Expect(name, true, "present: "+strings.Join(paths, ", "))
}
