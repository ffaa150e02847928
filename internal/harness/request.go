package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Request describes one probe request.
type Request struct {
	Method   string
	Path     string
	Expected int
	Headers  map[string]string

	// JSON is marshaled as the request body when set.
	JSON any
	// RawBody is sent verbatim (as application/json unless a Content-Type
	// header is given). It wins over JSON.
	RawBody string

	// Form and Files switch the request to multipart/form-data.
	Form  map[string]string
	Files []File
}

// File is one part of a multipart upload.
type File struct {
	Field       string
	Name        string
	Content     []byte
	ContentType string // sniffed from Content when empty
}

// isMultipart reports whether the request carries a multipart body.
func (r Request) isMultipart() bool {
	return len(r.Files) > 0 || r.Form != nil
}

// encode returns the body reader and the Content-Type to send.
func (r Request) encode() (io.Reader, string, error) {
	switch {
	case r.isMultipart():
		return encodeMultipart(r.Form, r.Files)
	case r.RawBody != "":
		return strings.NewReader(r.RawBody), "application/json", nil
	case r.JSON != nil:
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("marshaling body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	default:
		return nil, "", nil
	}
}

func encodeMultipart(form map[string]string, files []File) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, form[k]); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", k, err)
		}
	}

	for _, f := range files {
		ct := f.ContentType
		if ct == "" {
			ct = mimetype.Detect(f.Content).String()
		}
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(f.Field), escapeQuotes(f.Name)))
		hdr.Set("Content-Type", ct)
		part, err := w.CreatePart(hdr)
		if err != nil {
			return nil, "", fmt.Errorf("creating part %s: %w", f.Field, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("writing part %s: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
