package forwarder

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// multipartFileField is the conventional key for recognizing a file part
// in a parsed multipart body.
const multipartFileField = "qqfile"

func isMultipartRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// hasFilePart reports whether the already-parsed multipart form carries a
// file under the conventional qqfile key, or any file part at all.
func hasFilePart(r *http.Request) bool {
	if r.MultipartForm == nil {
		return false
	}
	if _, ok := r.MultipartForm.File[multipartFileField]; ok {
		return true
	}
	return len(r.MultipartForm.File) > 0
}

// buildMultipartBody re-encodes an already-parsed multipart/form-data
// request into a fresh multipart body for the upstream call: non-file
// fields are carried as-is, each file part is attached with its original
// filename and content-type.
func buildMultipartBody(r *http.Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for key, values := range r.MultipartForm.Value {
		for _, v := range values {
			if err := mw.WriteField(key, v); err != nil {
				return nil, "", err
			}
		}
	}

	for key, files := range r.MultipartForm.File {
		for _, fh := range files {
			if err := copyFilePart(mw, key, fh); err != nil {
				return nil, "", err
			}
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func copyFilePart(mw *multipart.Writer, field string, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, fh.Filename))
	header.Set("Content-Type", contentType)

	pw, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(pw, src)
	return err
}
