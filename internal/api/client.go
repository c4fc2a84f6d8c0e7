package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/assistant"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/httputil"
)

// Client calls a running assistant server, used by replay --server.
type Client struct {
	BaseURL string
	HTTP    httputil.HTTPClient
}

// NewClient returns a client for baseURL using c, or http.DefaultClient.
func NewClient(baseURL string, c httputil.HTTPClient) *Client {
	if c == nil {
		c = httputil.NewStandardClient(nil)
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: c}
}

// SessionInfo is the server's view of a session.
type SessionInfo struct {
	ID       string             `json:"id"`
	Language crosswalk.Language `json:"language"`
}

// CreateSession starts a session on the server.
func (c *Client) CreateSession(ctx context.Context, spec assistant.SessionSpec) (SessionInfo, error) {
	var info SessionInfo
	err := c.do(ctx, http.MethodPost, "/api/sessions", spec, http.StatusCreated, &info)
	return info, err
}

// PostFrame sends one frame to a session and returns the decision.
func (c *Client) PostFrame(ctx context.Context, sessionID string, frame crosswalk.Frame) (assistant.Result, error) {
	var res assistant.Result
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/frames", frame, http.StatusOK, &res)
	return res, err
}

// CloseSession ends a session on the server.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+sessionID, nil, http.StatusNoContent, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, httputil.MaxJSONBody)).Decode(&apiErr)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
