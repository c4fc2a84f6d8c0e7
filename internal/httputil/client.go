// Package httputil holds the JSON response helpers shared by the HTTP
// handlers and a client abstraction for code that calls them.
package httputil

import (
	"net/http"
	"net/http/httptest"
)

// HTTPClient sends requests. *http.Client implements it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewStandardClient returns c, or http.DefaultClient when c is nil.
func NewStandardClient(c *http.Client) HTTPClient {
	if c == nil {
		return http.DefaultClient
	}
	return c
}

// HandlerClient serves requests in-process with an http.Handler, for tests
// and for callers that embed a server.
type HandlerClient struct {
	Handler http.Handler
	// RemoteAddr is set on every request; loopback by default so that
	// debug routes guarded by tsweb accept it.
	RemoteAddr string
}

// Do runs req through the handler and returns the recorded response.
func (c HandlerClient) Do(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	req.RemoteAddr = c.RemoteAddr
	if req.RemoteAddr == "" {
		req.RemoteAddr = "127.0.0.1:12345"
	}
	if req.RequestURI == "" {
		req.RequestURI = req.URL.RequestURI()
	}
	rec := httptest.NewRecorder()
	c.Handler.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}
