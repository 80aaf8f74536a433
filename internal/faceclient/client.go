// Package faceclient calls the external face recognition service used by the
// live monitor. With Skip set it answers locally with fixed results.
package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Match is one gallery hit.
type Match struct {
	UserID     string  `json:"user_id"`
	Similarity float64 `json:"similarity"`
	Name       string  `json:"name,omitempty"`
}

// SearchResult lists gallery hits, best first.
type SearchResult struct {
	Matches       []Match `json:"matches"`
	FacesDetected int     `json:"faces_detected"`
}

// Best returns the top match if there is one.
func (r *SearchResult) Best() (Match, bool) {
	if r == nil || len(r.Matches) == 0 {
		return Match{}, false
	}
	return r.Matches[0], true
}

type EnrollResult struct {
	UserID  string `json:"user_id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type searchRequest struct {
	Image     string  `json:"image"`
	TopK      int     `json:"top_k"`
	Threshold float64 `json:"threshold,omitempty"`
}

type enrollRequest struct {
	UserID string `json:"user_id"`
	Image  string `json:"image"`
	Name   string `json:"name,omitempty"`
}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("face service: %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Skip-mode answers.
var (
	mockMatch  = Match{UserID: "mock-user", Similarity: 0.92, Name: "Mock User"}
	mockEnroll = "face enrolled (mock)"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. A non-positive timeout uses 10s.
func New(baseURL string, skip bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{BaseURL: baseURL, Skip: skip, HTTP: &http.Client{Timeout: timeout}}
}

// Search identifies the faces in a base64 image data URL against the
// enrolled gallery.
func (c *Client) Search(ctx context.Context, image string, topK int, threshold float64) (*SearchResult, error) {
	if c.Skip {
		return &SearchResult{Matches: []Match{mockMatch}, FacesDetected: 1}, nil
	}
	var out SearchResult
	err := c.do(ctx, http.MethodPost, "/search", searchRequest{Image: image, TopK: topK, Threshold: threshold}, &out)
	if err != nil {
		return nil, fmt.Errorf("face search: %w", err)
	}
	return &out, nil
}

// Enroll adds a registered person's photo to the recognition gallery.
func (c *Client) Enroll(ctx context.Context, userID, image, name string) (*EnrollResult, error) {
	if c.Skip {
		return &EnrollResult{UserID: userID, Success: true, Message: mockEnroll}, nil
	}
	var out EnrollResult
	if err := c.do(ctx, http.MethodPost, "/enroll", enrollRequest{UserID: userID, Image: image, Name: name}, &out); err != nil {
		return nil, fmt.Errorf("face enroll %s: %w", userID, err)
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// do sends payload as JSON when non-nil and decodes into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode face service response: %w", err)
	}
	return nil
}
