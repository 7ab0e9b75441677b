// Package gateway is the HTTP client for the page persistence service.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/starford/notecanvas/internal/apperr"
)

// maxResponseBytes caps page bodies read from the service.
const maxResponseBytes = 16 << 20

// TokenSource supplies the bearer token of the current identity.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Credentials is a TokenSource holding one token. Clear is called on 401 so
// that later requests fail closed until a new token is set.
type Credentials struct {
	mu    sync.RWMutex
	token string
}

// NewCredentials returns credentials for token. An empty token means anonymous.
func NewCredentials(token string) *Credentials {
	return &Credentials{token: token}
}

// Token returns the current token.
func (c *Credentials) Token(_ context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, nil
}

// Set replaces the token.
func (c *Credentials) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Clear drops the token.
func (c *Credentials) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// Client talks to the page REST API mounted at baseURL (for example
// http://localhost:8080/api).
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource

	// failedClosed is set after a 401 so no further requests are sent.
	mu           sync.Mutex
	failedClosed bool
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PageDetail is the page payload returned by the service.
type PageDetail struct {
	DocumentID string    `json:"document_id"`
	Number     int       `json:"number"`
	Content    string    `json:"content"`
	Checksum   string    `json:"checksum"`
	Strokes    int       `json:"strokes"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PageListItem describes one stored page.
type PageListItem struct {
	Number    int       `json:"number"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	Strokes   int       `json:"strokes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageList is the response of the page listing endpoint.
type PageList struct {
	Pages []PageListItem `json:"pages"`
	Total int            `json:"total"`
}

// LoadPage fetches page content. A missing page or empty content is a blank
// page and yields "".
func (c *Client) LoadPage(ctx context.Context, documentID string, page int) (string, error) {
	var detail PageDetail
	err := c.do(ctx, http.MethodGet, pagePath(documentID, page), nil, "", &detail)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return detail.Content, nil
}

// SavePage stores page content (last write wins).
func (c *Client) SavePage(ctx context.Context, documentID string, page int, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("gateway: encode body: %w", err)
	}
	return c.do(ctx, http.MethodPut, pagePath(documentID, page), bytes.NewReader(body), "application/json", nil)
}

// ListPages returns the stored pages of a document.
func (c *Client) ListPages(ctx context.Context, documentID string) (*PageList, error) {
	var out PageList
	if err := c.do(ctx, http.MethodGet, "/notes/"+url.PathEscape(documentID)+"/pages", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PageCount returns the highest stored page number, at least 1.
func (c *Client) PageCount(ctx context.Context, documentID string) (int, error) {
	list, err := c.ListPages(ctx, documentID)
	if err != nil {
		return 0, err
	}
	return max(1, list.Total), nil
}

// SaveText stores text recognized on a page so the service can search it.
func (c *Client) SaveText(ctx context.Context, documentID string, page int, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("gateway: encode body: %w", err)
	}
	return c.do(ctx, http.MethodPut, pagePath(documentID, page)+"/text", bytes.NewReader(body), "application/json", nil)
}

// UploadImage stores a rendered PNG of a page.
func (c *Client) UploadImage(ctx context.Context, documentID string, page int, png []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fmt.Sprintf("page-%02d.png", page))
	if err != nil {
		return fmt.Errorf("gateway: create form file: %w", err)
	}
	if _, err := fw.Write(png); err != nil {
		return fmt.Errorf("gateway: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("gateway: close multipart: %w", err)
	}
	return c.do(ctx, http.MethodPost, pagePath(documentID, page)+"/image", &buf, mw.FormDataContentType(), nil)
}

func pagePath(documentID string, page int) string {
	return "/notes/" + url.PathEscape(documentID) + "/pages/" + strconv.Itoa(page)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	c.mu.Lock()
	closed := c.failedClosed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("gateway: %w: session rejected", apperr.ErrUnauthorized)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("gateway: token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.failClosed()
		return fmt.Errorf("gateway: %s %s: %w", method, path, apperr.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("gateway: %s %s: %w", method, path, apperr.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("gateway: %s %s: %w", method, path, apperr.ErrConflict)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("gateway: %s %s: unexpected status %d: %s", method, path, resp.StatusCode, errorMessage(resp.Body))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("gateway: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) failClosed() {
	c.mu.Lock()
	c.failedClosed = true
	c.mu.Unlock()
	if cl, ok := c.tokens.(interface{ Clear() }); ok {
		cl.Clear()
	}
}

// Reauthorize clears the fail-closed state after the caller installed a new token.
func (c *Client) Reauthorize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedClosed = false
}

func errorMessage(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
