package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aurax/internal/generation"
	"aurax/internal/services"
)

// ErrDaemonUnavailable reports that the daemon API could not be reached.
var ErrDaemonUnavailable = errors.New("daemon unavailable")

// Client provides HTTP access to the daemon's run API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the daemon listening on bind. A bare
// host:port gets an http:// scheme.
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Submit queues a run.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var resp SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/runs", req, &resp)
	return resp, err
}

// List returns runs, optionally filtered by status.
func (c *Client) List(ctx context.Context, statuses ...generation.RunStatus) ([]Run, error) {
	path := "/api/runs"
	if len(statuses) > 0 {
		query := url.Values{}
		for _, status := range statuses {
			query.Add("status", string(status))
		}
		path += "?" + query.Encode()
	}
	var resp RunListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Get returns one run with its attempt trail.
func (c *Client) Get(ctx context.Context, id string) (RunResponse, error) {
	var resp RunResponse
	err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Progress returns the live snapshot of a run.
func (c *Client) Progress(ctx context.Context, id string) (Progress, error) {
	var resp Progress
	err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id)+"/progress", nil, &resp)
	return resp, err
}

// Log fetches a page of a run's log.
func (c *Client) Log(ctx context.Context, id string, q LogQuery) (LogTail, error) {
	query := url.Values{}
	query.Set("offset", strconv.FormatInt(q.Offset, 10))
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Wait > 0 {
		query.Set("wait", q.Wait.String())
	}
	var resp LogTail
	err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id)+"/log?"+query.Encode(), nil, &resp)
	return resp, err
}

// Cancel requests cancellation of a run.
func (c *Client) Cancel(ctx context.Context, id string) (Run, error) {
	var resp Run
	err := c.do(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(id)+"/cancel", nil, &resp)
	return resp, err
}

// Status retrieves daemon diagnostics.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

// Wait polls a run until it reaches a terminal status or ctx ends. onUpdate,
// when set, sees every polled snapshot.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration, onUpdate func(Progress)) (Progress, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snap, err := c.Progress(ctx, id)
		if err != nil {
			return snap, err
		}
		if onUpdate != nil {
			onUpdate(snap)
		}
		if generation.RunStatus(snap.Status).Terminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: api bind not configured", ErrDaemonUnavailable)
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, payload []byte) error {
	var body ErrorResponse
	_ = json.Unmarshal(payload, &body)
	message := strings.TrimSpace(body.Error)
	if message == "" {
		message = strings.TrimSpace(string(payload))
	}
	if message == "" {
		message = http.StatusText(status)
	}
	if marker := services.MarkerForKind(body.Kind); marker != nil {
		return fmt.Errorf("%w: %s", marker, message)
	}
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", services.ErrNotFound, message)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", services.ErrConfiguration, message)
	}
	return fmt.Errorf("api error (%d): %s", status, message)
}
