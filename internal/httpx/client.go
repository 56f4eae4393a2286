// Package httpx is the typed REST client every moderation-side worker
// shares: session manager, report agent, list manager. It owns the
// retry-on-EOF policy and the JSON field-aliasing table for wire names
// that collide with reserved identifiers.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atscope/modguard/pkg/mlog"
)

// MaxRetries is the bound on retry-on-EOF attempts shared by every call
// kind (session create/refresh, createReport, emitEvent, createRecord).
const MaxRetries = 5

const (
	connectTimeout = 2 * time.Second
	ioTimeout      = 2 * time.Second
)

// Client wraps http.Client with the retry/alias conventions every
// outbound call in this system needs.
type Client struct {
	host       string
	httpClient *http.Client
	headers    map[string]string
}

// New builds a Client rooted at host (e.g. "https://bsky.social/xrpc/").
func New(host string) *Client {
	return &Client{
		host: host,
		httpClient: &http.Client{
			Timeout: connectTimeout + ioTimeout,
		},
		headers: map[string]string{},
	}
}

// SetHeader sets a header sent with every subsequent request, e.g. an
// Authorization bearer token or Atproto-Proxy.
func (c *Client) SetHeader(key, value string) { c.headers[key] = value }

// ClearHeader removes a previously set header.
func (c *Client) ClearHeader(key string) { delete(c.headers, key) }

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.host+path, rdr)
		if err != nil {
			return nil, fmt.Errorf("httpx: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if isRetryableEOF(err) && attempt < MaxRetries {
				mlog.Warnf("httpx: %s %s: %v, retry %d/%d", method, path, err, attempt+1, MaxRetries)
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("httpx: %s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		out, err := io.ReadAll(resp.Body)
		if err != nil {
			if isRetryableEOF(err) && attempt < MaxRetries {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("httpx: read %s %s: %w", method, path, err)
		}
		if resp.StatusCode >= 300 {
			return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: out}
		}
		return out, nil
	}
	return nil, fmt.Errorf("httpx: %s %s: exhausted retries: %w", method, path, lastErr)
}

func isRetryableEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpx: %s %s: status %d: %s", e.Method, e.Path, e.Code, string(e.Body))
}

// Get issues a typed GET against path, decoding the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// Post issues a typed POST, encoding in as the JSON body and decoding
// the response into out (out may be nil to discard the body).
func (c *Client) Post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("httpx: encode %s: %w", path, err)
	}
	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// GetRecord fetches com.atproto.repo.getRecord for (repo, collection, rkey).
func (c *Client) GetRecord(ctx context.Context, repo, collection, rkey string, out interface{}) error {
	path := fmt.Sprintf("com.atproto.repo.getRecord?repo=%s&collection=%s&rkey=%s", repo, collection, rkey)
	return c.Get(ctx, path, out)
}

// PutRecordRequest is the shared body shape for putRecord/createRecord.
type PutRecordRequest struct {
	Repo       string      `json:"repo"`
	Collection string      `json:"collection"`
	Rkey       string      `json:"rkey,omitempty"`
	Record     interface{} `json:"record"`
}

// PutRecord issues com.atproto.repo.putRecord.
func (c *Client) PutRecord(ctx context.Context, req PutRecordRequest, out interface{}) error {
	return c.Post(ctx, "com.atproto.repo.putRecord", req, out)
}

// CreateRecord issues com.atproto.repo.createRecord.
func (c *Client) CreateRecord(ctx context.Context, req PutRecordRequest, out interface{}) error {
	return c.Post(ctx, "com.atproto.repo.createRecord", req, out)
}
