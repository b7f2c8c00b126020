package console

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"cmsconsole/cmd/internal/upstream"
)

// fieldSpec is one text input of a content form.
type fieldSpec struct {
	Name      string
	Label     string
	Required  string // validation message; empty means optional
	Multiline bool
}

// fileSpec is one file input of a content form.
type fileSpec struct {
	Name  string
	Label string
	// RequiredOnCreate is the validation message when a new item has no file.
	RequiredOnCreate string
	// Max is the number of files accepted; values above one make a multi-file input.
	Max int
}

type formSpec struct {
	Fields []fieldSpec
	Files  []fileSpec
}

// formState is what a form re-renders with.
type formState struct {
	Values map[string]string
	Errors map[string]string
}

func newFormState() formState {
	return formState{Values: map[string]string{}, Errors: map[string]string{}}
}

// Invalid reports whether any field failed validation.
func (s formState) Invalid() bool { return len(s.Errors) > 0 }

// read validates r's parsed form against spec and builds the upstream body.
func (spec formSpec) read(r *http.Request, creating bool, maxUpload int64) (upstream.Form, formState, error) {
	var form upstream.Form
	state := newFormState()

	for _, f := range spec.Fields {
		v := strings.TrimSpace(r.PostFormValue(f.Name))
		state.Values[f.Name] = v
		if v == "" && f.Required != "" {
			state.Errors[f.Name] = f.Required
			continue
		}
		form.Set(f.Name, v)
	}

	for _, fs := range spec.Files {
		files, err := uploadedFiles(r, fs, maxUpload)
		if err != nil {
			return upstream.Form{}, state, err
		}
		if len(files) == 0 && creating && fs.RequiredOnCreate != "" {
			state.Errors[fs.Name] = fs.RequiredOnCreate
			continue
		}
		for _, file := range files {
			form.Attach(file)
		}
	}
	return form, state, nil
}

func uploadedFiles(r *http.Request, fs fileSpec, maxUpload int64) ([]upstream.File, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[fs.Name]
	limit := fs.Max
	if limit <= 0 {
		limit = 1
	}
	if len(headers) > limit {
		headers = headers[:limit]
	}

	out := make([]upstream.File, 0, len(headers))
	for _, fh := range headers {
		if fh == nil || fh.Size == 0 {
			continue
		}
		file, err := readUpload(fs.Name, fh, maxUpload)
		if err != nil {
			return nil, err
		}
		out = append(out, file)
	}
	return out, nil
}

func readUpload(field string, fh *multipart.FileHeader, maxUpload int64) (upstream.File, error) {
	f, err := fh.Open()
	if err != nil {
		return upstream.File{}, fmt.Errorf("open upload %s: %w", field, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxUpload))
	if err != nil {
		return upstream.File{}, fmt.Errorf("read upload %s: %w", field, err)
	}
	return upstream.File{
		Field:       field,
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

type fieldView struct {
	Name      string
	Label     string
	Value     string
	Error     string
	Required  bool
	Multiline bool
}

type fileView struct {
	Name     string
	Label    string
	Error    string
	Multiple bool
}

// formView is everything the "form" partial renders.
type formView struct {
	Action string
	Submit string
	CSRF   string
	Fields []fieldView
	Files  []fileView
}

func (spec formSpec) view(csrf, action, submit string, state formState) formView {
	v := formView{Action: action, Submit: submit, CSRF: csrf}
	for _, f := range spec.Fields {
		v.Fields = append(v.Fields, fieldView{
			Name:      f.Name,
			Label:     f.Label,
			Value:     state.Values[f.Name],
			Error:     state.Errors[f.Name],
			Required:  f.Required != "",
			Multiline: f.Multiline,
		})
	}
	for _, f := range spec.Files {
		v.Files = append(v.Files, fileView{
			Name:     f.Name,
			Label:    f.Label,
			Error:    state.Errors[f.Name],
			Multiple: f.Max > 1,
		})
	}
	return v
}
