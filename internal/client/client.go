// Package client speaks to the EITB streaming platforms (primeran.eus,
// makusi.eus, etbon.eus). All three share the same API shape and the same
// Gigya SSO login, differing only in host and API key, so a single client
// parameterised by a platform definition covers them all.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/xezpeleta/eitbren-mugak/internal/httpclient"
	"github.com/xezpeleta/eitbren-mugak/internal/platform"
)

const userAgent = "mugak/1.0"

// Client is an authenticated API client for one platform. Safe for use from a
// single goroutine; the crawl is sequential by design.
type Client struct {
	platform      platform.Platform
	http          *http.Client
	probeClient   *http.Client
	segmentClient *http.Client
	username      string
	password      string
	language      string
	authenticated bool
}

// Option adjusts client construction.
type Option func(*Client)

// WithLanguage sets the manifest language used for constructed fallback
// manifest URLs. Defaults to "eu".
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// WithTimeouts overrides the probe and CDN-segment deadlines.
func WithTimeouts(probe, segment time.Duration) Option {
	return func(c *Client) {
		c.probeClient = httpclient.WithTimeout(probe)
		c.segmentClient = httpclient.WithTimeout(segment)
	}
}

// New builds a client for the given platform. Credentials are required up
// front: every useful endpoint sits behind the SSO session.
func New(p platform.Platform, username, password string, opts ...Option) (*Client, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("client: missing credentials for %s: %w", p.Name, ErrAuth)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("client: cookie jar: %w", err)
	}
	c := &Client{
		platform: p,
		http: &http.Client{
			Timeout:   httpclient.DefaultTimeout,
			Transport: httpclient.Default().Transport,
			Jar:       jar,
		},
		probeClient:   httpclient.WithTimeout(10 * time.Second),
		segmentClient: httpclient.WithTimeout(5 * time.Second),
		username:      username,
		password:      password,
		language:      "eu",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Platform returns the platform definition this client was built for.
func (c *Client) Platform() platform.Platform {
	return c.platform
}

// Login establishes the Gigya SSO session. The SSO endpoint answers 200 even
// on failure; success is errorCode 0 in the body.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{
		"apiKey":   {c.platform.GigyaAPIKey},
		"loginID":  {c.username},
		"password": {c.password},
		"format":   {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.platform.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("client: login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: login %s: %w", c.platform.Name, err)
	}
	defer resp.Body.Close()

	var result struct {
		ErrorCode    int    `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("client: login %s: decode: %w", c.platform.Name, err)
	}
	if result.ErrorCode != 0 {
		return fmt.Errorf("client: login %s: gigya error %d (%s): %w",
			c.platform.Name, result.ErrorCode, result.ErrorMessage, ErrAuth)
	}
	c.authenticated = true
	return nil
}

func (c *Client) ensureAuthenticated(ctx context.Context) error {
	if c.authenticated {
		return nil
	}
	return c.Login(ctx)
}

// Media fetches the media document for a slug.
func (c *Client) Media(ctx context.Context, slug string) (*Media, error) {
	raw, err := c.getJSON(ctx, c.platform.BaseURL+"/media/"+slug)
	if err != nil {
		return nil, err
	}
	return parseMedia(slug, raw), nil
}

// Series fetches the series document for a slug, seasons included.
func (c *Client) Series(ctx context.Context, slug string) (*Series, error) {
	raw, err := c.getJSON(ctx, c.platform.BaseURL+"/series/"+slug)
	if err != nil {
		return nil, err
	}
	return parseSeries(slug, raw), nil
}

// Home fetches the platform home page document used for discovery.
func (c *Client) Home(ctx context.Context) (map[string]any, error) {
	return c.getJSON(ctx, c.platform.BaseURL+"/home")
}

// Page fetches an arbitrary page document by path, e.g. "/telesailak".
func (c *Client) Page(ctx context.Context, path string) (map[string]any, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.getJSON(ctx, c.platform.BaseURL+"/pages"+path)
}

// Search queries the platform search endpoint. An empty query returns the
// whole catalog on platforms that expose search; callers should check
// HasSearch first.
func (c *Client) Search(ctx context.Context, query string) (map[string]any, error) {
	return c.getJSON(ctx, c.platform.BaseURL+"/search?q="+url.QueryEscape(query))
}

// Episodes fetches a series and returns its episodes flattened across
// seasons.
func (c *Client) Episodes(ctx context.Context, seriesSlug string) ([]Episode, error) {
	s, err := c.Series(ctx, seriesSlug)
	if err != nil {
		return nil, err
	}
	return s.Episodes(), nil
}

// getJSON performs an authenticated GET and decodes the JSON body. Non-200
// responses come back as *APIError with the decoded error payload attached.
func (c *Client) getJSON(ctx context.Context, rawURL string) (map[string]any, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("client: request %s: %w", rawURL, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("client: read %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload map[string]any
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Payload = payload
			apiErr.Message = str(payload, "message")
		}
		return nil, apiErr
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("client: decode %s: %w", rawURL, err)
	}
	return doc, nil
}
