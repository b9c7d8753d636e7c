package rapidapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytmp3convert/internal/core/domain"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.ConversionStatus
	}{
		{"ok", `{"status":"ok","link":"https://cdn/x.mp3","title":"x","msg":"success"}`, domain.ConversionStatus{Status: "ok", Link: "https://cdn/x.mp3", Message: "success"}},
		{"processing", `{"status":"processing","msg":"in queue"}`, domain.ConversionStatus{Status: "processing", Message: "in queue"}},
		{"fail", `{"status":"fail","msg":"Invalid video id"}`, domain.ConversionStatus{Status: "fail", Message: "Invalid video id"}},
		{"link without status", `{"link":" https://cdn/y.mp3 "}`, domain.ConversionStatus{Link: "https://cdn/y.mp3"}},
		{"upper case status", `{"status":"OK","link":"l"}`, domain.ConversionStatus{Status: "ok", Link: "l"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/dl", r.URL.Path)
				assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("id"))
				assert.Equal(t, "key", r.Header.Get(HeaderKey))
				assert.Equal(t, DefaultHost, r.Header.Get(HeaderHost))
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewClient("key", "", srv.URL, srv.Client())
			require.NoError(t, err)

			got, err := c.Convert(context.Background(), "dQw4w9WgXcQ")
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestConvert_TransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "status":
			http.Error(w, "too many requests", http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte("<html>not json</html>"))
		}
	}))
	defer srv.Close()

	c, err := NewClient("key", "", srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = c.Convert(context.Background(), "status")
	assert.ErrorIs(t, err, domain.ErrTransport)

	_, err = c.Convert(context.Background(), "garbage")
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("", "", "", nil)
	assert.Error(t, err)
}
