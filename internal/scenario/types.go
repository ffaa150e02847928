// Package scenario loads declarative probe scenarios from JSON or YAML files
// and runs them on a harness, with variable capture, templates and
// JSONPath body assertions.
package scenario

// Scenario is a complete probe scenario loaded from a file.
type Scenario struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Variables   map[string]string `json:"variables,omitempty" yaml:"variables"`
	Auth        *Auth             `json:"auth,omitempty" yaml:"auth"`
	Steps       []Step            `json:"steps" yaml:"steps"`

	// Dir is the directory the scenario was loaded from. File uploads
	// resolve relative to it.
	Dir string `json:"-" yaml:"-"`
}

// Auth asks the runner to forge a session before the first step.
type Auth struct {
	Role   string `json:"role,omitempty" yaml:"role"`
	Email  string `json:"email,omitempty" yaml:"email"`
	UserID string `json:"user_id,omitempty" yaml:"user_id"`
}

// Step is a single request/assert pair within a scenario.
type Step struct {
	Name    string            `json:"name" yaml:"name"`
	Request Request           `json:"request" yaml:"request"`
	Capture map[string]string `json:"capture,omitempty" yaml:"capture"`
	Assert  *Assert           `json:"assert,omitempty" yaml:"assert"`
}

// Request defines the HTTP request to make during a step. Path is joined
// to the base URL unless it is absolute.
type Request struct {
	Method  string            `json:"method" yaml:"method"`
	Path    string            `json:"path" yaml:"path"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers"`
	Body    any               `json:"body,omitempty" yaml:"body"`
	Form    map[string]string `json:"form,omitempty" yaml:"form"`
	Files   []File            `json:"files,omitempty" yaml:"files"`
}

// File is a multipart upload. Content is used verbatim when set, otherwise
// the file at Path is read.
type File struct {
	Field       string `json:"field" yaml:"field"`
	Name        string `json:"name,omitempty" yaml:"name"`
	Path        string `json:"path,omitempty" yaml:"path"`
	Content     string `json:"content,omitempty" yaml:"content"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type"`
}

// Assert defines the expected results of a step. A zero Status means 200.
type Assert struct {
	Status       int               `json:"status,omitempty" yaml:"status"`
	BodyContains string            `json:"body_contains,omitempty" yaml:"body_contains"`
	Headers      map[string]string `json:"headers,omitempty" yaml:"headers"`
	Body         map[string]any    `json:"body,omitempty" yaml:"body"`
}
