// Package backend is the client for the GreenEye REST backend. It owns
// the authenticated-fetch contract: bearer credential attached when the
// session has one, JSON content negotiation for JSON bodies, multipart
// left untouched, and non-2xx responses surfaced as status errors
// rather than panics.
package backend

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

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/greeneye/companion/internal/identity"
	"github.com/greeneye/companion/internal/resilience"
)

// ErrNotOK is wrapped by errors returned for non-2xx responses.
var ErrNotOK = errors.New("backend: request failed")

// StatusError reports a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s returned %d", e.Path, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrNotOK }

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the backend origin, e.g. "http://127.0.0.1:8000".
	BaseURL string

	// Session supplies the bearer token; may be a guest session.
	Session *identity.Session

	// HTTPClient is the transport; a resilient default is created when
	// nil.
	HTTPClient *resilience.Client

	// Logger for request diagnostics.
	Logger zerolog.Logger
}

// Client is a GreenEye backend API client.
type Client struct {
	baseURL    string
	session    *identity.Session
	httpClient *resilience.Client
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewClient creates a backend client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultConfig("greeneye-backend"))
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		session:    cfg.Session,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", "backend").Logger(),
		tracer:     otel.Tracer("greeneye/backend"),
	}
}

// do builds and executes an authenticated request. contentType is
// applied only when body is non-nil; multipart callers pass their own
// boundary-bearing value.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "backend."+method+" "+path)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.path", path))

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.session != nil {
		if token := c.session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		return nil, &StatusError{StatusCode: resp.StatusCode, Path: path}
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	return c.do(ctx, method, path, "application/json", body)
}

// cacheBust appends a timestamp query parameter; the backend sits
// behind caches that otherwise serve stale sensor reads.
func cacheBust(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "t=" + strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func pathEscape(s string) string {
	return url.PathEscape(s)
}
