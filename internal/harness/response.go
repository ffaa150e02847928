package harness

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wondertwin-ai/apiprobe/internal/jsonpath"
)

// Response is what a probe gets back from Run. On transport failure Err is
// set and Status is zero.
type Response struct {
	Status int
	Header http.Header
	Raw    []byte
	JSON   any // decoded body, nil when the body is not JSON
	Err    error
}

func newResponse(status int, header http.Header, raw []byte) *Response {
	r := &Response{Status: status, Header: header, Raw: raw}
	if doc, err := jsonpath.Parse(raw); err == nil {
		r.JSON = doc
	}
	return r
}

// Body returns the decoded JSON body, or the raw text when it was not JSON.
func (r *Response) Body() any {
	if r.JSON != nil {
		return r.JSON
	}
	return string(r.Raw)
}

// Lookup returns the value at path ("data.id", "$.data.messages[0]").
func (r *Response) Lookup(path string) (any, bool) {
	if r.JSON == nil {
		return nil, false
	}
	return jsonpath.Lookup(r.JSON, path)
}

// String returns the value at path formatted with %v, or "" when absent.
// Whole-number floats print without a fraction so numeric IDs round-trip.
func (r *Response) String(path string) string {
	v, ok := r.Lookup(path)
	if !ok || v == nil {
		return ""
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%v", v)
}

// Decode unmarshals the raw body into v.
func (r *Response) Decode(v any) error {
	if r.Err != nil {
		return r.Err
	}
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Cookie returns the value of a cookie set by this response, or "".
func (r *Response) Cookie(name string) string {
	if r.Header == nil {
		return ""
	}
	resp := http.Response{Header: r.Header}
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
