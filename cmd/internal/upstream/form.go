package upstream

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// File is one uploaded file forwarded to the API.
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// Form is a multipart body: ordered text fields plus files.
type Form struct {
	fields [][2]string
	files  []File
}

// Set appends a text field.
func (f *Form) Set(name, value string) {
	f.fields = append(f.fields, [2]string{name, value})
}

// Attach appends a file. Empty files are ignored.
func (f *Form) Attach(file File) {
	if len(file.Data) == 0 {
		return
	}
	f.files = append(f.files, file)
}

// HasFile reports whether a file is attached under field.
func (f *Form) HasFile(field string) bool {
	for _, file := range f.files {
		if file.Field == field {
			return true
		}
	}
	return false
}

func (f *Form) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, kv := range f.fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", kv[0], err)
		}
	}
	for _, file := range f.files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(file.Field), quoteEscaper.Replace(file.Name)))
		ct := file.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", file.Field, err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", file.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
