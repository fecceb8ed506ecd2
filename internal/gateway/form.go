package gateway

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
)

// Form is a multipart payload: plain fields plus at most one file part.
// Passing a *Form as the body of Do sends it with the multipart boundary
// content type instead of JSON.
type Form struct {
	buf    bytes.Buffer
	writer *multipart.Writer
	closed bool
	err    error
}

// NewForm creates an empty multipart form.
func NewForm() *Form {
	f := &Form{}
	f.writer = multipart.NewWriter(&f.buf)
	return f
}

// AddField appends a plain text field.
func (f *Form) AddField(name, value string) *Form {
	if f.err != nil {
		return f
	}
	f.err = f.writer.WriteField(name, value)
	return f
}

// AddFile appends a file part read fully from r.
func (f *Form) AddFile(field, filename string, r io.Reader) *Form {
	if f.err != nil {
		return f
	}
	part, err := f.writer.CreateFormFile(field, filename)
	if err != nil {
		f.err = err
		return f
	}
	if _, err := io.Copy(part, r); err != nil {
		f.err = err
	}
	return f
}

func (f *Form) encoded() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", fmt.Errorf("build form: %w", f.err)
	}
	if !f.closed {
		if err := f.writer.Close(); err != nil {
			return nil, "", fmt.Errorf("close form: %w", err)
		}
		f.closed = true
	}
	return bytes.NewReader(f.buf.Bytes()), f.writer.FormDataContentType(), nil
}
