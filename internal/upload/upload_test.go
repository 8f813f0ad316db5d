package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type formFile struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func newMultipartRequest(t *testing.T, files []formFile, values map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestReceiver(t *testing.T, maxBytes int64, opts ...Option) *Receiver {
	t.Helper()
	rc, err := NewReceiver(filepath.Join(t.TempDir(), "uploads"), maxBytes, opts...)
	require.NoError(t, err)
	return rc
}

func TestReceiveStoresFile(t *testing.T) {
	rc := newTestReceiver(t, 1<<20)
	data := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	req := newMultipartRequest(t,
		[]formFile{{field: "image", filename: "cat.PNG", contentType: "image/png", data: data}},
		map[string]string{"prompt": "what is it"},
	)

	att, err := rc.Receive(httptest.NewRecorder(), req, "image")
	require.NoError(t, err)

	assert.Equal(t, "image/png", att.MIMEType)
	assert.Equal(t, "cat.PNG", att.OriginalName)
	assert.EqualValues(t, len(data), att.Size)
	assert.Equal(t, rc.Dir(), filepath.Dir(att.Path))
	assert.True(t, strings.HasSuffix(att.Path, ".png"))
	assert.Equal(t, "what is it", req.FormValue("prompt"))

	stored, err := os.ReadFile(att.Path)
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	require.NoError(t, att.Remove())
	assert.NoFileExists(t, att.Path)
	assert.NoError(t, att.Remove())
}

func TestReceiveMissingField(t *testing.T) {
	rc := newTestReceiver(t, 1<<20)
	req := newMultipartRequest(t,
		[]formFile{{field: "other", filename: "a.txt", data: []byte("x")}},
		nil,
	)

	_, err := rc.Receive(httptest.NewRecorder(), req, "document")
	require.ErrorIs(t, err, ErrMissingFile)
	assert.True(t, IsClientError(err))

	entries, err := os.ReadDir(rc.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReceiveNotMultipart(t *testing.T) {
	rc := newTestReceiver(t, 1<<20)
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"prompt":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	_, err := rc.Receive(httptest.NewRecorder(), req, "image")
	require.ErrorIs(t, err, ErrMalformedForm)
	assert.True(t, IsClientError(err))
}

func TestReceiveTooLarge(t *testing.T) {
	rc := newTestReceiver(t, 1024)
	req := newMultipartRequest(t,
		[]formFile{{field: "audio", filename: "a.wav", contentType: "audio/wav", data: bytes.Repeat([]byte{1}, 64<<10)}},
		nil,
	)

	_, err := rc.Receive(httptest.NewRecorder(), req, "audio")
	require.ErrorIs(t, err, ErrTooLarge)
	assert.False(t, IsClientError(err))

	entries, err := os.ReadDir(rc.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReceiveConcurrentUniqueNames(t *testing.T) {
	rc := newTestReceiver(t, 1<<20)

	const n = 32
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		paths = make(map[string]struct{}, n)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := []byte(fmt.Sprintf("payload-%d", i))
			req := newMultipartRequest(t,
				[]formFile{{field: "document", filename: "same.txt", contentType: "text/plain", data: data}},
				nil,
			)
			att, err := rc.Receive(httptest.NewRecorder(), req, "document")
			if !assert.NoError(t, err) {
				return
			}
			defer att.Remove()

			stored, err := os.ReadFile(att.Path)
			assert.NoError(t, err)
			assert.Equal(t, data, stored)

			mu.Lock()
			paths[att.Path] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, paths, n)
}

func TestReadHead(t *testing.T) {
	head, err := readHead(strings.NewReader("short"))
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), head)

	head, err = readHead(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, head)

	head, err = readHead(bytes.NewReader(bytes.Repeat([]byte{1}, sniffLen+10)))
	require.NoError(t, err)
	assert.Len(t, head, sniffLen)

	broken := errors.New("connection reset")
	_, err = readHead(io.MultiReader(strings.NewReader("ab"), iotest.ErrReader(broken)))
	assert.ErrorIs(t, err, broken)
}

func TestResolveMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		ext      string
		head     []byte
		want     string
	}{
		{"declared wins", "audio/mpeg", ".bin", nil, "audio/mpeg"},
		{"octet stream falls back to extension", "application/octet-stream", ".pdf", nil, "application/pdf"},
		{"missing falls back to extension", "", ".png", nil, "image/png"},
		{"sniffed", "", "", []byte("%PDF-1.4\n"), "application/pdf"},
		{"empty", "", "", nil, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveMIMEType(tt.declared, tt.ext, tt.head))
		})
	}
}
