package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"roost/internal/api"
)

// apiClient talks to a running roostd over its HTTP control API.
type apiClient struct {
	base   string
	token  string
	client *http.Client
}

func newAPIClient(bind, token string) *apiClient {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil
	}
	// A wildcard bind is dialed on loopback.
	if host, port, ok := strings.Cut(bind, ":"); ok {
		if host == "" || host == "0.0.0.0" || host == "::" {
			bind = "127.0.0.1:" + port
		} else {
			bind = host + ":" + port
		}
	}
	return &apiClient{
		base:   "http://" + bind,
		token:  token,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *apiClient) reachable() bool {
	var status api.DaemonStatus
	return c.get("/api/status", nil, &status) == nil
}

func (c *apiClient) status() (api.DaemonStatus, error) {
	var status api.DaemonStatus
	err := c.get("/api/status", nil, &status)
	return status, err
}

func (c *apiClient) queueList(kind string, limit int) (api.QueueListResponse, error) {
	query := url.Values{}
	if kind != "" {
		query.Set("kind", kind)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp api.QueueListResponse
	err := c.get("/api/queue", query, &resp)
	return resp, err
}

func (c *apiClient) timeline(identity string, limit int) (api.TimelineResponse, error) {
	query := url.Values{}
	query.Set("identity", identity)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp api.TimelineResponse
	err := c.get("/api/timeline", query, &resp)
	return resp, err
}

func (c *apiClient) retryParked(kind string) (api.RetryResponse, error) {
	query := url.Values{}
	if kind != "" {
		query.Set("kind", kind)
	}
	var resp api.RetryResponse
	err := c.post("/api/queue/retry", query, &resp)
	return resp, err
}

func (c *apiClient) clearFailed() (api.ClearResponse, error) {
	var resp api.ClearResponse
	err := c.post("/api/queue/clear", nil, &resp)
	return resp, err
}

func (c *apiClient) get(path string, query url.Values, out any) error {
	return c.do(http.MethodGet, path, query, out)
}

func (c *apiClient) post(path string, query url.Values, out any) error {
	return c.do(http.MethodPost, path, query, out)
}

func (c *apiClient) do(method, path string, query url.Values, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, target, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
