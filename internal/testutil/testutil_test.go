package testutil

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRequest(t *testing.T) {
	req := LocalRequest(http.MethodGet, "/debug/", nil)
	assert.Equal(t, "127.0.0.1:12345", req.RemoteAddr)
	assert.Equal(t, "/debug/", req.URL.Path)
}

func TestJSONBodyAndDecode(t *testing.T) {
	body := JSONBody(t, map[string]int{"count": 2})
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":2}`, string(b))

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"safe"}`))
	})
	rec := Serve(h, LocalRequest(http.MethodGet, "/", nil))
	got := DecodeJSON[map[string]string](t, rec)
	assert.Equal(t, "safe", got["status"])
}
