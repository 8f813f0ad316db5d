// Package upload persists multipart file fields as transient files that live
// for the duration of a single request.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	defaultMaxMemory = 8 << 20
	sniffLen         = 512
)

var (
	ErrMissingFile     = errors.New("file field is missing")
	ErrMalformedForm   = errors.New("malformed multipart form")
	ErrTooLarge        = errors.New("request body too large")
	ErrTooManyPages    = errors.New("document has too many pages")
	ErrInvalidDocument = errors.New("document cannot be opened")
)

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingFile) ||
		errors.Is(err, ErrMalformedForm) ||
		errors.Is(err, ErrTooManyPages) ||
		errors.Is(err, ErrInvalidDocument)
}

// Attachment describes a transient uploaded file.
type Attachment struct {
	Path         string
	MIMEType     string
	OriginalName string
	Size         int64

	removeOnce sync.Once
	removeErr  error
}

// Remove deletes the transient file. Only the first call touches the
// filesystem; later calls return the first result.
func (a *Attachment) Remove() error {
	a.removeOnce.Do(func() {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.removeErr = fmt.Errorf("failed to remove %s: %w", a.Path, err)
		}
	})
	return a.removeErr
}

type Option func(*Receiver)

// WithMaxPDFPages rejects PDF attachments with more than n pages. Zero disables the check.
func WithMaxPDFPages(n int) Option {
	return func(r *Receiver) {
		r.maxPDFPages = n
	}
}

type Receiver struct {
	dir         string
	maxBytes    int64
	maxPDFPages int
}

func NewReceiver(dir string, maxBytes int64, opts ...Option) (*Receiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	r := &Receiver{
		dir:      dir,
		maxBytes: maxBytes,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (rc *Receiver) Dir() string {
	return rc.dir
}

// Receive parses the multipart body of req and stores the file sent under
// field in the upload directory. The caller owns the returned attachment and
// must call Remove on it.
func (rc *Receiver) Receive(w http.ResponseWriter, req *http.Request, field string) (*Attachment, error) {
	if rc.maxBytes > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, rc.maxBytes)
	}

	maxMemory := int64(defaultMaxMemory)
	if rc.maxBytes > 0 && rc.maxBytes < maxMemory {
		maxMemory = rc.maxBytes
	}
	if err := req.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedForm, err)
	}
	defer req.MultipartForm.RemoveAll()

	src, header, err := req.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, fmt.Errorf("%w: %q", ErrMissingFile, field)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedForm, err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(filepath.Base(header.Filename)))
	path := filepath.Join(rc.dir, uuid.NewString()+ext)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create transient file: %w", err)
	}

	att := &Attachment{
		Path:         path,
		OriginalName: header.Filename,
	}

	head, err := readHead(src)
	if err != nil {
		_ = dst.Close()
		_ = att.Remove()
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	written, err := io.Copy(dst, io.MultiReader(bytes.NewReader(head), src))
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = att.Remove()
		return nil, fmt.Errorf("failed to write transient file: %w", err)
	}
	att.Size = written
	att.MIMEType = resolveMIMEType(header.Header.Get("Content-Type"), ext, head)

	if rc.maxPDFPages > 0 && att.MIMEType == "application/pdf" {
		if err := checkPDFPages(path, rc.maxPDFPages); err != nil {
			_ = att.Remove()
			return nil, err
		}
	}
	return att, nil
}

// readHead reads up to sniffLen bytes. A short upload is not an error.
func readHead(src io.Reader) ([]byte, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return head[:n], nil
}

// resolveMIMEType passes the declared type through and falls back to the
// extension, then to content sniffing, when the client did not declare one.
func resolveMIMEType(declared, ext string, head []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return stripParams(byExt)
	}
	if len(head) == 0 {
		return "application/octet-stream"
	}
	return stripParams(http.DetectContentType(head))
}

func stripParams(mimeType string) string {
	return strings.TrimSpace(strings.Split(mimeType, ";")[0])
}
