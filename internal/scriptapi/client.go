// Package scriptapi is the HTTP client for the script REST endpoints.
package scriptapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/script"
)

// Envelope is the response wrapper used by every endpoint.
type Envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// SaveRequest is the PUT body: the full paragraph set.
type SaveRequest struct {
	Paragraphs []script.ParagraphText `json:"paragraphs"`
}

// SeedRequest is the body that creates a script.
type SeedRequest struct {
	Paragraphs []script.Paragraph `json:"paragraphs"`
}

// HistoryEntry is one stored version as listed by the history endpoint.
type HistoryEntry struct {
	Version   int       `json:"version"`
	Reason    string    `json:"reason"`
	Hash      string    `json:"hash,omitempty"`
	Author    string    `json:"author,omitempty"`
	Changed   []string  `json:"changed"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusError is a non-success response from the server.
type StatusError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("script api: status %d code %d: %s", e.HTTPStatus, e.Code, e.Message)
	}
	return fmt.Sprintf("script api: status %d code %d", e.HTTPStatus, e.Code)
}

// Conflict reports whether the server rejected a save because the
// document version moved.
func (e *StatusError) Conflict() bool {
	return e.Code == http.StatusConflict || e.HTTPStatus == http.StatusConflict
}

// QuotaExceeded reports whether the regenerate quota is exhausted.
func (e *StatusError) QuotaExceeded() bool {
	return e.Code == http.StatusTooManyRequests || e.HTTPStatus == http.StatusTooManyRequests
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GetScript(ctx context.Context, taskID int64) (*script.Document, error) {
	return c.do(ctx, http.MethodGet, scriptPath(taskID), nil, nil)
}

// SaveScript submits the full paragraph set. baseVersion is sent as an
// If-Match precondition so the server can detect a concurrent change.
func (c *Client) SaveScript(ctx context.Context, taskID int64, baseVersion int, paragraphs []script.ParagraphText) (*script.Document, error) {
	header := http.Header{}
	header.Set("If-Match", strconv.Quote(strconv.Itoa(baseVersion)))
	return c.do(ctx, http.MethodPut, scriptPath(taskID), SaveRequest{Paragraphs: paragraphs}, header)
}

func (c *Client) RegenerateScript(ctx context.Context, taskID int64) (*script.Document, error) {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tasks/%d/regenerate-script", taskID), nil, nil)
}

// History lists stored versions of the task's script, newest first.
func (c *Client) History(ctx context.Context, taskID int64) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := c.call(ctx, http.MethodGet, scriptPath(taskID)+"/history", nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SeedScript creates version 1 of a task's script. The reference server
// only accepts it from admins.
func (c *Client) SeedScript(ctx context.Context, taskID int64, paragraphs []script.Paragraph) (*script.Document, error) {
	return c.do(ctx, http.MethodPost, scriptPath(taskID), SeedRequest{Paragraphs: paragraphs}, nil)
}

func scriptPath(taskID int64) string {
	return fmt.Sprintf("/tasks/%d/script", taskID)
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) (*script.Document, error) {
	var doc script.Document
	if err := c.call(ctx, method, path, body, header, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// call performs one request and decodes the envelope's data into out.
func (c *Client) call(ctx context.Context, method, path string, body any, header http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env Envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || (decodeErr == nil && env.Code != 0) {
		statusErr := &StatusError{HTTPStatus: resp.StatusCode, Code: env.Code, Message: env.Message}
		if statusErr.Code == 0 {
			statusErr.Code = resp.StatusCode
		}
		return statusErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &StatusError{HTTPStatus: resp.StatusCode, Code: resp.StatusCode, Message: "response carried no data"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
