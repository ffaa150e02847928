package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const yamlScenario = `
name: Refund lifecycle
description: customer files a refund
auth:
  role: user
  user_id: "{{uid}}"
variables:
  uid: fixed-user
steps:
  - name: create
    request:
      method: POST
      path: /api/refund-requests
      body:
        orderId: order-1
        amount: 12.5
        reason: broken
    capture:
      refund_id: data.id
    assert:
      status: 200
      body:
        data.status: pending
        data.amount:
          gte: 10
  - name: upload
    request:
      method: POST
      path: /api/kyc/upload
      form:
        documentType: passport
      files:
        - field: document
          path: fixtures/passport.png
`

func TestLoadScenarioYAML(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadScenario(writeScenario(t, dir, "refund.yaml", yamlScenario))
	require.NoError(t, err)

	assert.Equal(t, "Refund lifecycle", s.Name)
	assert.Equal(t, dir, s.Dir)
	require.NotNil(t, s.Auth)
	assert.Equal(t, "user", s.Auth.Role)
	assert.Equal(t, "{{uid}}", s.Auth.UserID)
	require.Len(t, s.Steps, 2)

	create := s.Steps[0]
	assert.Equal(t, "POST", create.Request.Method)
	assert.Equal(t, map[string]string{"refund_id": "data.id"}, create.Capture)
	require.NotNil(t, create.Assert)
	assert.Equal(t, 200, create.Assert.Status)
	assert.Equal(t, "pending", create.Assert.Body["data.status"])
	body, ok := create.Request.Body.(map[string]any)
	require.True(t, ok, "yaml mapping should decode to map[string]any")
	assert.Equal(t, "order-1", body["orderId"])

	upload := s.Steps[1]
	require.Len(t, upload.Request.Files, 1)
	assert.Equal(t, "fixtures/passport.png", upload.Request.Files[0].Path)
	assert.Nil(t, upload.Assert)
}

func TestLoadScenarioJSON(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "me.json", `{
		"name": "Me requires a session",
		"steps": [{"name": "anonymous", "request": {"method": "GET", "path": "/api/user/me"}, "assert": {"status": 401}}]
	}`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, 401, s.Steps[0].Assert.Status)
	assert.Nil(t, s.Auth)
}

func TestLoadScenarioInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unsupported extension", "a.txt", "name: x"},
		{"missing name", "a.yaml", "steps: [{name: s, request: {path: /}}]"},
		{"no steps", "a.yaml", "name: x"},
		{"step without path", "a.yaml", "name: x\nsteps: [{name: s, request: {method: GET}}]"},
		{"file without source", "a.yaml", "name: x\nsteps: [{name: s, request: {path: /, files: [{field: document}]}}]"},
		{"bad json", "a.json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, dir, tt.file, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.json", `{"name": "B", "steps": [{"name": "s", "request": {"path": "/"}}]}`)
	writeScenario(t, dir, "a.yml", "name: A\nsteps: [{name: s, request: {path: /}}]\n")
	writeScenario(t, dir, "notes.md", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "fixtures"), 0o755))

	scenarios, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "A", scenarios[0].Name)
	assert.Equal(t, "B", scenarios[1].Name)

	single, err := Load(filepath.Join(dir, "b.json"))
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = Load(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
