package blob

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
)

// maxErrorBody caps how much of a non-2xx body is read when decoding errors.
const maxErrorBody = 64 << 10

// HTTPConfig configures HTTPClient.
type HTTPConfig struct {
	// BaseURL is the backend endpoint, e.g. "https://da.example.net".
	BaseURL string
	// APIKey is sent as a bearer token.
	APIKey string
	// MaxBlobSize caps payloads; values <= 0 default to MaxBlobSize.
	MaxBlobSize int
	// Timeout is the transport-level ceiling for any single request. Callers
	// should still pass a context with a tighter per-call deadline.
	Timeout time.Duration
	// HTTP overrides the underlying client (tests use httptest servers).
	HTTP *http.Client
}

// HTTPClient talks to the durability network's REST API.
//
//	POST {base}/v1/blobs                  upload (body = payload)
//	GET  {base}/v1/blobs/{hash}           download
//	GET  {base}/v1/blobs/{hash}/reference receipt for an existing blob
//	GET  {base}/v1/height                 current sequence height
type HTTPClient struct {
	base    *url.URL
	apiKey  string
	maxSize int
	http    *http.Client
}

// NewHTTPClient validates cfg and returns a ready client. Missing endpoint or
// credentials yield ErrNotConfigured so callers can choose the local fallback.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http(s), got %q", cfg.BaseURL)
	}

	maxSize := cfg.MaxBlobSize
	if maxSize <= 0 {
		maxSize = MaxBlobSize
	}
	hc := cfg.HTTP
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{base: u, apiKey: cfg.APIKey, maxSize: maxSize, http: hc}, nil
}

// MaxSize reports the effective blob size limit.
func (c *HTTPClient) MaxSize() int { return c.maxSize }

// Submit uploads req.Payload. Oversize payloads are rejected locally.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (*Receipt, error) {
	limit := c.maxSize
	if req.SizeLimit > 0 && req.SizeLimit < limit {
		limit = req.SizeLimit
	}
	if len(req.Payload) > limit {
		return nil, ErrPayloadTooLarge
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("v1", "blobs"), bytes.NewReader(req.Payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.Header.Set("X-Size-Limit", strconv.Itoa(limit))
	if req.Hash != "" {
		httpReq.Header.Set("X-Content-Hash", req.Hash)
	}
	for k, v := range req.Metadata {
		if k = strings.TrimSpace(k); k != "" {
			httpReq.Header.Set("X-Blob-Meta-"+k, v)
		}
	}

	var rec Receipt
	if err := c.doJSON(httpReq, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Fetch downloads the blob stored under hash.
func (c *HTTPClient) Fetch(ctx context.Context, hash string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("v1", "blobs", hash), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The backend never returns more than a blob's worth of bytes.
	return io.ReadAll(io.LimitReader(resp.Body, int64(c.maxSize)+1))
}

// Lookup returns the receipt of a blob the backend already holds.
func (c *HTTPClient) Lookup(ctx context.Context, hash string) (*Receipt, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("v1", "blobs", hash, "reference"), nil)
	if err != nil {
		return nil, err
	}
	var rec Receipt
	if err := c.doJSON(httpReq, &rec); err != nil {
		return nil, err
	}
	if rec.ConfirmationReference == "" {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Height returns the backend's current sequence height.
func (c *HTTPClient) Height(ctx context.Context) (uint64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("v1", "height"), nil)
	if err != nil {
		return 0, err
	}
	var body struct {
		Height uint64 `json:"height"`
	}
	if err := c.doJSON(httpReq, &body); err != nil {
		return 0, err
	}
	return body.Height, nil
}

func (c *HTTPClient) endpoint(parts ...string) string {
	u := *c.base
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(escaped, "/")
	return u.String()
}

// send executes req and converts non-2xx answers into errors. The caller
// owns the returned body on success.
func (c *HTTPClient) send(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	return nil, decodeBackendError(resp)
}

func (c *HTTPClient) doJSON(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &BackendError{StatusCode: resp.StatusCode, Code: "malformed_response", Message: err.Error()}
	}
	return nil
}

// decodeBackendError reads a {code, message} body when present and falls
// back to the raw text otherwise.
func decodeBackendError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	be := &BackendError{StatusCode: resp.StatusCode}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		be.Code = body.Code
		be.Message = body.Message
		if be.Message == "" {
			be.Message = body.Error
		}
	} else {
		be.Message = strings.TrimSpace(string(raw))
	}
	return be
}

// IsNotFound reports whether err means the backend has no such blob.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
