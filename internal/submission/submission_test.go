package submission

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullUploaderAlwaysFails(t *testing.T) {
	_, err := NullUploader{}.Upload(context.Background(), "report.json", "application/json", []byte("{}"))
	assert.Error(t, err)
}

func TestHTTPUploaderParsesCIDResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cid":"bafyabc123"}`))
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, "tok")
	cid, err := u.Upload(context.Background(), "report.json", "application/json", []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, "bafyabc123", cid)
}

func TestHTTPUploaderParsesKuboHashResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Hash":"QmXyz"}`))
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, "")
	cid, err := u.Upload(context.Background(), "report.md", "text/markdown", []byte("# report"))
	require.NoError(t, err)
	assert.Equal(t, "QmXyz", cid)
}

func TestHTTPUploaderNon2xxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, "")
	_, err := u.Upload(context.Background(), "report.json", "application/json", []byte("{}"))
	assert.Error(t, err)
}

func TestHTTPUploaderEmptyResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, "")
	_, err := u.Upload(context.Background(), "report.json", "application/json", []byte("{}"))
	assert.Error(t, err)
}
