// Package backend is the HTTP client for the external query service.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/starford/mtvsearch/internal/models"
)

const maxBodyBytes = 8 << 20

// ErrMalformedResponse is returned when the query service answers with
// something that is neither a busy signal nor a result.
var ErrMalformedResponse = errors.New("backend: malformed response")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request is the body of POST /query.
type Request struct {
	Limit         int                  `json:"limit"`
	Rules         []string             `json:"rules"`
	Page          int                  `json:"page"`
	SortField     string               `json:"sort_field"`
	SortDirection models.SortDirection `json:"sort_direction"`
}

// Response is either a busy signal or a result page.
type Response struct {
	Busy       bool
	BusyReason string

	Rows      []models.ResultRow
	Page      int
	LastPage  int
	ItemCount int
}

type wireResponse struct {
	Busy      json.RawMessage     `json:"busy"`
	Result    *[]models.ResultRow `json:"result"`
	Page      int                 `json:"page"`
	LastPage  int                 `json:"last_page"`
	ItemCount int                 `json:"item_count"`
}

// Client talks to the query service rooted at a base URL.
type Client struct {
	base string
	http HTTPClient
}

// New creates a Client. baseURL must not carry a trailing slash.
func New(baseURL string, client HTTPClient) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: client}
}

// Query posts req and decodes the answer.
func (c *Client) Query(ctx context.Context, req Request) (Response, error) {
	if req.Rules == nil {
		req.Rules = []string{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("backend: encode query: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/query", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("backend: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	data, err := c.do(httpReq)
	if err != nil {
		return Response{}, err
	}
	return decodeResponse(data)
}

func decodeResponse(data []byte) (Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if busy, reason := decodeBusy(wire.Busy); busy {
		return Response{Busy: true, BusyReason: reason}, nil
	}
	if wire.Result == nil {
		return Response{}, fmt.Errorf("%w: neither busy nor result", ErrMalformedResponse)
	}
	return Response{
		Rows:      *wire.Result,
		Page:      wire.Page,
		LastPage:  wire.LastPage,
		ItemCount: wire.ItemCount,
	}, nil
}

// decodeBusy accepts `true` as well as the reason string the service sends
// while it reloads or refreshes its database.
func decodeBusy(raw json.RawMessage) (bool, string) {
	if len(raw) == 0 {
		return false, ""
	}
	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		return flag, ""
	}
	var reason string
	if err := json.Unmarshal(raw, &reason); err == nil && reason != "" {
		return true, reason
	}
	return false, ""
}

// Status fetches the database status text.
func (c *Client) Status(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/database_status", nil)
	if err != nil {
		return "", fmt.Errorf("backend: create request: %w", err)
	}
	data, err := c.do(req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Refresh asks the service to refresh its database and returns the
// acknowledgement text.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/refresh_database", nil)
	if err != nil {
		return "", fmt.Errorf("backend: create request: %w", err)
	}
	data, err := c.do(req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// StatusStream consumes the status event stream, calling fn with every status
// text. It returns when the stream ends, fails or ctx is cancelled.
func (c *Client) StatusStream(ctx context.Context, fn func(string)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/database_status/events", nil)
	if err != nil {
		return fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: status stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend: status stream: unexpected status %d", resp.StatusCode)
	}

	var data []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				fn(strings.Join(data, "\n"))
				data = data[:0]
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("backend: status stream: %w", err)
	}
	return io.ErrUnexpectedEOF
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("backend: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend: %s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return data, nil
}
