package restclient

import (
	"bytes"
	"mime/multipart"
	"sort"

	"github.com/pkg/errors"
)

// Multipart is a pre-encoded form body. With Config.IsFormData it goes out
// as is, carrying its own boundary.
type Multipart struct {
	ContentType string
	Body        []byte
}

type File struct {
	Field   string
	Name    string
	Content []byte
}

// NewMultipart encodes fields in key order followed by files.
func NewMultipart(fields map[string]string, files ...File) (*Multipart, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, errors.Wrapf(err, "write field %s", k)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "create file part %s", f.Field)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, errors.Wrapf(err, "write file part %s", f.Field)
		}
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart writer")
	}

	return &Multipart{ContentType: w.FormDataContentType(), Body: buf.Bytes()}, nil
}
