// Package tracking is a client for the MLflow tracking server REST API,
// covering experiments, runs and dataset inputs.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const apiPrefix = "api/2.0/mlflow/"

// maxErrorBody bounds how much of an error reply is kept.
const maxErrorBody = 64 << 10

type Client struct {
	base     *url.URL
	http     *http.Client
	token    string
	username string
	password string
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	lastRunID string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock replaces time.Now for run start and end timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient returns a client for the server at trackingURI.
func NewClient(trackingURI string, opts ...Option) (*Client, error) {
	u, err := url.Parse(trackingURI)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to parse tracking URI %q", trackingURI)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported tracking URI scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	c := &Client{
		base:   u,
		http:   http.DefaultClient,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

// TrackingURI returns the server base URI.
func (c *Client) TrackingURI() string {
	return strings.TrimSuffix(c.base.String(), "/")
}

// LastActiveRunID returns the id of the most recent run started through c.
func (c *Client) LastActiveRunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRunID
}

func (c *Client) setLastRun(id string) {
	c.mu.Lock()
	c.lastRunID = id
	c.mu.Unlock()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: apiPrefix + path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, c.endpoint(path, query), nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	return c.do(ctx, http.MethodPost, c.endpoint(path, nil), in, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "Unable to encode request")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrap(err, "Unable to build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, req.URL.Path)
	}
	defer resp.Body.Close()
	c.logger.Debug("tracking request",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "Unable to decode reply from %s", req.URL.Path)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(raw, apiErr); err != nil || (apiErr.Code == "" && apiErr.Message == "") {
		apiErr.Code = ""
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
