package scenario

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestExpandTemplates(t *testing.T) {
	t.Setenv("PROBE_TEST_ORDER", "order-9")
	vars := map[string]string{"conv_id": "conv_000001", "base_url": "http://localhost:3000"}

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"no templates", "/api/user/me", "/api/user/me", false},
		{"captured variable", "/api/chat/conversations/{{conv_id}}/messages", "/api/chat/conversations/conv_000001/messages", false},
		{"spaces inside braces", "{{ conv_id }}", "conv_000001", false},
		{"env", "{{env.PROBE_TEST_ORDER}}", "order-9", false},
		{"unset env is empty", "x{{env.PROBE_TEST_UNSET_VAR}}y", "xy", false},
		{"several", "{{base_url}}/{{conv_id}}", "http://localhost:3000/conv_000001", false},
		{"unresolved", "{{nope}}", "", true},
		{"unterminated", "{{conv_id", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandTemplates(tt.in, vars)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExpandTemplates(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExpandTemplates(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpandTemplatesUUIDIsFresh(t *testing.T) {
	a, err := ExpandTemplates("{{uuid}}", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := ExpandTemplates("{{uuid}}", nil)
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("not a uuid: %q", a)
	}
	if a == b {
		t.Error("expected a fresh uuid per expansion")
	}
}

func TestExpandVariablesFollowsReferences(t *testing.T) {
	defs := map[string]string{"a": "x", "b": "{{a}}-y", "c": "{{b}}-z", "d": "{{c}}"}
	// Map order varies between runs; every run must resolve the chain.
	for i := 0; i < 50; i++ {
		vars := map[string]string{}
		if err := ExpandVariables(defs, vars); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if vars["d"] != "x-y-z" {
			t.Fatalf("run %d: d = %q, want %q", i, vars["d"], "x-y-z")
		}
	}
}

func TestExpandVariablesSeesBuiltins(t *testing.T) {
	vars := map[string]string{"email": "a@example.com", "base_url": "http://localhost:3000"}
	defs := map[string]string{
		"email":   "copy-{{email}}",
		"inbox":   "{{base_url}}/inbox/{{email}}",
		"order":   "order-{{uuid}}",
		"profile": "{{env.PROBE_TEST_UNSET_VAR}}me",
	}
	if err := ExpandVariables(defs, vars); err != nil {
		t.Fatal(err)
	}
	if vars["email"] != "copy-a@example.com" {
		t.Errorf("email = %q", vars["email"])
	}
	if vars["inbox"] != "http://localhost:3000/inbox/copy-a@example.com" {
		t.Errorf("inbox = %q, want the redefined email", vars["inbox"])
	}
	if !strings.HasPrefix(vars["order"], "order-") || len(vars["order"]) != len("order-")+36 {
		t.Errorf("order = %q", vars["order"])
	}
	if vars["profile"] != "me" {
		t.Errorf("profile = %q", vars["profile"])
	}
}

func TestExpandVariablesErrors(t *testing.T) {
	tests := []struct {
		name string
		defs map[string]string
		want string
	}{
		{"cycle", map[string]string{"a": "{{b}}", "b": "{{a}}", "c": "ok"}, "variables a, b reference each other"},
		{"undefined", map[string]string{"a": "{{missing}}"}, `variable "a"`},
		{"self without builtin", map[string]string{"a": "{{a}}"}, `variable "a"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ExpandVariables(tt.defs, map[string]string{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestExpandValue(t *testing.T) {
	vars := map[string]string{"email": "a@example.com"}
	in := map[string]any{
		"email":   "{{email}}",
		"isLogin": false,
		"tags":    []any{"x", "{{email}}"},
		"nested":  map[string]any{"amount": 10},
	}
	out, err := expandValue(in, vars)
	if err != nil {
		t.Fatal(err)
	}
	m := out.(map[string]any)
	if m["email"] != "a@example.com" {
		t.Errorf("email = %v", m["email"])
	}
	if m["isLogin"] != false {
		t.Errorf("isLogin = %v", m["isLogin"])
	}
	if tags := m["tags"].([]any); tags[1] != "a@example.com" {
		t.Errorf("tags = %v", tags)
	}
	if in["email"] != "{{email}}" {
		t.Error("input was modified")
	}
}
