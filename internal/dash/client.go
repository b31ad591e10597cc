package dash

import (
	"context"
	"dashplayer/internal/logger"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is responsible for all HTTP communication with the origin server.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
	userAgent  string
}

// NewClient creates a new client. Redirects are followed by Open, one hop at a
// time, so callers learn the final location.
func NewClient(log logger.Logger, userAgent string) *Client {
	transport := &http.Transport{
		ResponseHeaderTimeout: 3 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:    log,
		userAgent: userAgent,
	}
}

// NewClientWith wraps an existing http.Client, for tests against httptest servers.
func NewClientWith(httpClient *http.Client, log logger.Logger, userAgent string) *Client {
	return &Client{httpClient: httpClient, logger: log, userAgent: userAgent}
}

// HttpClient returns the underlying http.Client instance.
func (c *Client) HttpClient() *http.Client {
	return c.httpClient
}

// maxRedirects bounds the hops Open follows.
const maxRedirects = 5

// Open issues the request and returns the successful response together with
// the URL it was finally served from. The caller must close the body.
func (c *Client) Open(ctx context.Context, method, rawURL string) (*http.Response, string, error) {
	finalURL := rawURL
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, method, finalURL, nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create request for %s: %w", finalURL, err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch %s: %w", finalURL, err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return resp, finalURL, nil
		case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			location, err := resp.Location()
			resp.Body.Close()
			if err != nil {
				return nil, "", fmt.Errorf("redirect location error: %w", err)
			}
			if hop+1 >= maxRedirects {
				return nil, "", fmt.Errorf("too many redirects fetching %s", rawURL)
			}
			finalURL = location.String()
			c.logger.Debugf("Redirected to: %s", finalURL)
		default:
			resp.Body.Close()
			return nil, "", fmt.Errorf("received status code %d from %s", resp.StatusCode, finalURL)
		}
	}
}

// FetchManifest downloads and parses the MPD at rawURL.
func (c *Client) FetchManifest(ctx context.Context, rawURL string) (*Manifest, error) {
	c.logger.Debugf("Fetching MPD from URL: %s", rawURL)

	resp, finalURL, err := c.Open(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch MPD: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read MPD response body: %w", err)
	}

	m, err := ParseManifest(data, finalURL)
	if err != nil {
		c.logger.Errorf("Failed to parse MPD from %s: %v", finalURL, err)
		return nil, err
	}
	c.logger.Debugf("Successfully fetched and parsed MPD for profile %s from %s", m.MPD().Profiles, finalURL)
	return m, nil
}

// resolveURL resolves a path against a base URL, handling potential errors.
func resolveURL(base *url.URL, path string) (*url.URL, error) {
	resolvedPath, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse path '%s': %w", path, err)
	}
	return base.ResolveReference(resolvedPath), nil
}
