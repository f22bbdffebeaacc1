package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoClaim отвечает телом запроса с заданными типом и статусом.
func echoClaim(contentType string, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}
}

func gzipped(t *testing.T, s string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	const claim = `{"title":"Water boils at 100C","body":"At sea level."}`

	tests := []struct {
		name           string
		contentType    string
		status         int
		acceptGzip     bool
		gzipRequest    bool
		wantCompressed bool
	}{
		{name: "json for gzip client", contentType: "application/json", status: http.StatusCreated, acceptGzip: true, wantCompressed: true},
		{name: "html for gzip client", contentType: "text/html; charset=utf-8", status: http.StatusOK, acceptGzip: true, wantCompressed: true},
		{name: "client without gzip", contentType: "application/json", status: http.StatusOK},
		{name: "plain text stays plain", contentType: "text/plain; charset=utf-8", status: http.StatusOK, acceptGzip: true},
		{name: "error stays plain", contentType: "application/json", status: http.StatusConflict, acceptGzip: true},
		{name: "gzipped request", contentType: "application/json", status: http.StatusCreated, acceptGzip: true, gzipRequest: true, wantCompressed: true},
		{name: "gzipped request plain response", contentType: "application/json", status: http.StatusCreated, gzipRequest: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(claim)
			if tt.gzipRequest {
				body = gzipped(t, claim)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/claims", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip, deflate")
			}
			if tt.gzipRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}

			w := httptest.NewRecorder()
			GzipMiddleware(echoClaim(tt.contentType, tt.status)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.contentType, res.Header.Get("Content-Type"))

			var reader io.Reader = res.Body
			if tt.wantCompressed {
				require.Equal(t, "gzip", res.Header.Get("Content-Encoding"))
				gr, err := gzip.NewReader(res.Body)
				require.NoError(t, err)
				defer gr.Close()
				reader = gr
			} else {
				assert.Empty(t, res.Header.Get("Content-Encoding"))
			}

			got, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.Equal(t, claim, string(got))
		})
	}
}

func TestGzipMiddleware_InvalidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/claims", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called")
	})).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
