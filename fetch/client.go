package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Error is a transport or decode failure against an upstream feed. The
// fetchers return it alongside whatever pages they had already
// accumulated; callers decide whether partial data is enough.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client is a small wrapper around http.Client with sane defaults and the
// headers the upstream feeds expect.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
}

// NewClient builds a Client with a tuned transport and overall timeout.
func NewClient(timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout, Transport: transport},
		UserAgent: "ngx-pipeline/1.0",
		Headers:   map[string]string{"Accept": "application/json, text/plain, */*"},
	}
}

// GetJSON performs a GET with the given query parameters and decodes the
// JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	fullURL := rawURL
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return &Error{URL: rawURL, Err: err}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &Error{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{URL: rawURL, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
