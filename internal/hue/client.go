// Package hue provides a typed client for the Hue bridge v1 HTTP API.
package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a single Hue bridge over the v1 API.
type Client struct {
	host       string
	token      string
	httpClient *http.Client
}

// NewClient creates a new Hue client.
func NewClient(host, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		host:  host,
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Close closes the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Host returns the bridge host.
func (c *Client) Host() string {
	return c.host
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("http://%s/api/%s/%s", c.host, c.token, path)
}

func (c *Client) request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// GetLight returns a light by ID.
// A response without a state object is an error: reachability decisions must
// never be made from a partial payload.
func (c *Client) GetLight(ctx context.Context, lightID int) (Light, error) {
	resp, err := c.request(ctx, http.MethodGet, fmt.Sprintf("lights/%d", lightID), nil)
	if err != nil {
		return Light{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Light{}, fmt.Errorf("get light %d: unexpected status %d: %s", lightID, resp.StatusCode, string(body))
	}

	var light Light
	if err := json.NewDecoder(resp.Body).Decode(&light); err != nil {
		return Light{}, fmt.Errorf("get light %d: decode response: %w", lightID, err)
	}
	if light.State == nil {
		return Light{}, fmt.Errorf("get light %d: response has no state object", lightID)
	}

	return light, nil
}

// SetLightState writes the on/off state of a light.
func (c *Client) SetLightState(ctx context.Context, lightID int, on bool) error {
	bodyBytes, err := json.Marshal(StateUpdate{On: on})
	if err != nil {
		return err
	}

	resp, err := c.request(ctx, http.MethodPut, fmt.Sprintf("lights/%d/state", lightID), bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("set light %d state: unexpected status %d: %s", lightID, resp.StatusCode, string(body))
	}

	return nil
}
