package handler

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/model"
)

// multipartMemory is how much of a multipart body is kept in memory; the
// rest spills to temp files.
const multipartMemory = 8 << 20

// uploadKeys maps the multipart file field to the attachment type.
var uploadKeys = []struct {
	key  string
	kind model.FileType
}{
	{"file_question", model.FileTypeQuestion},
	{"file_official", model.FileTypeOfficial},
	{"file_unofficial", model.FileTypeUnofficial},
}

// readMultipart parses a multipart body of at most maxBytes. On failure the
// response is already written and ok is false.
func readMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) (form *multipart.Form, ok bool) {
	if r.ContentLength > maxBytes {
		writeTooLarge(w)
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeTooLarge(w)
			return nil, false
		}
		writeError(w, apperror.ValidationFailed("body", "expected a multipart/form-data body"))
		return nil, false
	}
	return r.MultipartForm, true
}

// openedUploads holds the open multipart parts behind a batch of
// model.UploadFile values. Close must run once the service returns.
type openedUploads struct {
	files []multipart.File
}

func (o *openedUploads) Close() {
	for _, f := range o.files {
		f.Close()
	}
}

// open turns one file header into an UploadFile.
func (o *openedUploads) open(fh *multipart.FileHeader, kind model.FileType) (model.UploadFile, error) {
	f, err := fh.Open()
	if err != nil {
		return model.UploadFile{}, apperror.ValidationFailed("file", "could not read uploaded file "+fh.Filename)
	}
	o.files = append(o.files, f)
	return model.UploadFile{
		Type:     kind,
		Name:     filepath.Base(fh.Filename),
		MimeType: mimeTypeOf(fh),
		Content:  f,
	}, nil
}

// examUploads collects every attachment of an exam upload form, in field
// order question, official, unofficial.
func (o *openedUploads) examUploads(form *multipart.Form) ([]model.UploadFile, error) {
	var uploads []model.UploadFile
	for _, k := range uploadKeys {
		for _, fh := range form.File[k.key] {
			up, err := o.open(fh, k.kind)
			if err != nil {
				return nil, err
			}
			uploads = append(uploads, up)
		}
	}
	return uploads, nil
}

// single opens the one file under key; more than one is not an error, the
// first wins.
func (o *openedUploads) single(form *multipart.Form, key string) (model.UploadFile, error) {
	headers := form.File[key]
	if len(headers) == 0 {
		return model.UploadFile{}, apperror.ValidationFailed(key, key+" is required")
	}
	return o.open(headers[0], "")
}

func mimeTypeOf(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(filepath.Ext(fh.Filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// formValue returns the first value of a multipart text field.
func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func writeTooLarge(w http.ResponseWriter) {
	writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
		Error:   "too_large",
		Message: "upload exceeds the size limit",
	})
}
