// Package httpclient provides basic http functions
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// UserAgent identifies this service to upstream feed servers.
const UserAgent = "stopcast/0.1"

// Client performs feed retrievals with a fixed per-request timeout.
type Client struct {
	httpClient *http.Client
}

// New builds a Client. A zero timeout means requests never time out.
func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchBytes retrieves the complete body at url.
// Responses outside the 2xx range are returned as errors.
func (c *Client) FetchBytes(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return body, nil
}
