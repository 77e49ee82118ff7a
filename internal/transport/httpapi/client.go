// Package httpapi delivers autosave operations to the document service over
// HTTP/JSON
package httpapi

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

	"github.com/pstuifzand/section-outliner/internal/autosave"
	"github.com/pstuifzand/section-outliner/internal/model"
)

// ErrStaleSequence is returned when the service already holds newer content
// for a section
var ErrStaleSequence = errors.New("stale sequence")

// ErrNotFound is returned when the service does not know the document
var ErrNotFound = errors.New("document not found")

// ConflictError reports a 409 response
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	if e.Path == "" {
		return "stale sequence"
	}
	return fmt.Sprintf("stale sequence for %s", e.Path)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrStaleSequence
}

// HTTPError is any other non-success response
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// RemoteDocument is a document as stored by the service
type RemoteDocument struct {
	Document  json.RawMessage `json:"document"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Encrypted bool            `json:"encrypted,omitempty"`
}

// HasContent reports whether the service holds a document body
func (d RemoteDocument) HasContent() bool {
	trimmed := bytes.TrimSpace(d.Document)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Client implements autosave.Persister against the document service
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var _ autosave.Persister = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetry sets the retry budget and backoff bounds
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL, token string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	c := &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func articlePath(articleID string, rest ...string) string {
	parts := []string{"/v1/articles", url.PathEscape(articleID)}
	for _, r := range rest {
		parts = append(parts, url.PathEscape(r))
	}
	return strings.Join(parts, "/")
}

func (c *Client) SaveStructureSnapshot(ctx context.Context, articleID string, nodes []model.StructureNode) (autosave.Outcome, error) {
	body := autosave.StructurePayload{Nodes: nodes}
	return c.save(ctx, articlePath(articleID, "structure"), body)
}

func (c *Client) SaveSectionContent(ctx context.Context, articleID, sectionID string, heading model.InlineContent, body model.BlockContent, seq int64) (autosave.Outcome, error) {
	payload := autosave.SectionPayload{Heading: heading, Body: body, Seq: seq}
	return c.save(ctx, articlePath(articleID, "sections", sectionID), payload)
}

func (c *Client) SaveFullDocument(ctx context.Context, articleID string, doc json.RawMessage, staleVersionHours int) (autosave.Outcome, error) {
	payload := autosave.DocumentPayload{Document: doc, StaleVersionHours: staleVersionHours}
	return c.save(ctx, articlePath(articleID), payload)
}

// FetchDocument reads the stored document
func (c *Client) FetchDocument(ctx context.Context, articleID string) (RemoteDocument, error) {
	var out RemoteDocument
	_, err := c.doJSON(ctx, http.MethodGet, articlePath(articleID), nil, &out)
	return out, err
}

func (c *Client) save(ctx context.Context, requestPath string, body any) (autosave.Outcome, error) {
	status, err := c.doJSON(ctx, http.MethodPut, requestPath, body, nil)
	if err != nil {
		return 0, err
	}
	if status == http.StatusAccepted {
		return autosave.QueuedOffline, nil
	}
	return autosave.Delivered, nil
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body any, out any) (int, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return 0, err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return 0, err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("X-Correlation-Id", correlationID())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return 0, waitErr
				}
				continue
			}
			return 0, err
		}
		payloadBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return 0, readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payloadBytes) == 0 {
				return resp.StatusCode, nil
			}
			return resp.StatusCode, json.Unmarshal(payloadBytes, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return 0, waitErr
			}
			continue
		}

		if resp.StatusCode == http.StatusConflict {
			return resp.StatusCode, &ConflictError{Path: requestPath}
		}
		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payloadBytes, &errPayload)
		return resp.StatusCode, &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

func correlationID() string {
	return fmt.Sprintf("outliner_%d", time.Now().UnixNano())
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
