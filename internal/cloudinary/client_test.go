package cloudinary

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadBytesSignsRequest(t *testing.T) {
	var form map[string][]string
	var fileBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/image/upload", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		form = r.MultipartForm.Value
		f, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		fileBody, _ = io.ReadAll(f)
		_, _ = w.Write([]byte(`{"public_id":"classwatch/capture-1","secure_url":"https://x/capture-1.png","format":"png"}`))
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "classwatch")
	c.BaseURL = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := c.UploadBytes(context.Background(), []byte("png-bytes"), "capture-1.png")
	require.NoError(t, err)
	assert.Equal(t, "https://x/capture-1.png", res.SecureURL)
	assert.Equal(t, []byte("png-bytes"), fileBody)
	assert.Equal(t, "capture-1", form["public_id"][0])

	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=classwatch&public_id=capture-1&timestamp=1700000000secret")))
	assert.Equal(t, want, form["signature"][0])
	assert.Equal(t, "key", form["api_key"][0])
}

func TestSignatureIgnoresInsertionOrder(t *testing.T) {
	a := Signature(map[string]string{"timestamp": "1", "folder": "f"}, "s")
	b := Signature(map[string]string{"folder": "f", "timestamp": "1"}, "s")
	assert.Equal(t, a, b)
	assert.Len(t, a, 40)
}

func TestUploadFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad signature", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	_, err := c.UploadDataURL(context.Background(), "data:image/jpeg;base64,AAAA", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
