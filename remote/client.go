package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/velmie/syncbox"
)

const (
	defaultMutatePath  = "/v1/mutations"
	defaultComparePath = "/v1/compare"
	defaultTimeout     = 20 * time.Second
	maxResponseBody    = 1 << 20
)

// TokenProvider supplies the bearer token for each request.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken returns a TokenProvider for a fixed token. An empty token
// disables the Authorization header.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// ClientOptions configures the HTTP client for both remote endpoints.
type ClientOptions struct {
	// BaseURL is the remote service root, e.g. https://api.example.com.
	BaseURL string
	// MutatePath is the mutation endpoint path.
	MutatePath string
	// ComparePath is the compare endpoint path.
	ComparePath string
	// TokenProvider supplies bearer tokens; nil sends no Authorization header.
	TokenProvider TokenProvider
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	// UserAgent is sent when non-empty.
	UserAgent string
}

// Client talks to the remote mutation and compare endpoints. It implements
// syncbox.Sender and syncbox.Comparer.
type Client struct {
	baseURL       string
	mutatePath    string
	comparePath   string
	tokenProvider TokenProvider
	httpClient    *http.Client
	userAgent     string
}

var _ syncbox.Sender = (*Client)(nil)
var _ syncbox.Comparer = (*Client)(nil)

// NewClient constructs a Client with defaults applied.
func NewClient(opts ClientOptions) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remote: base url is required")
	}
	mutatePath := strings.TrimSpace(opts.MutatePath)
	if mutatePath == "" {
		mutatePath = defaultMutatePath
	}
	comparePath := strings.TrimSpace(opts.ComparePath)
	if comparePath == "" {
		comparePath = defaultComparePath
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL:       baseURL,
		mutatePath:    mutatePath,
		comparePath:   comparePath,
		tokenProvider: opts.TokenProvider,
		httpClient:    httpClient,
		userAgent:     strings.TrimSpace(opts.UserAgent),
	}, nil
}

type mutateRequest struct {
	IdempotencyKey string          `json:"idempotencyKey"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	ProjectID      string          `json:"projectId"`
	BaseVersion    int64           `json:"baseVersion"`
}

type mutateResponse struct {
	Success       bool   `json:"success"`
	Conflict      bool   `json:"conflict"`
	ServerVersion int64  `json:"serverVersion"`
	Error         string `json:"error"`
	Retryable     bool   `json:"retryable"`
}

// Send implements syncbox.Sender. Transport failures and 408/429/5xx map to
// TransientError, version conflicts (body flag or HTTP 409) to ConflictError,
// and remaining 4xx to PermanentError.
func (c *Client) Send(ctx context.Context, req syncbox.SendRequest) error {
	body := mutateRequest{
		IdempotencyKey: req.IdempotencyKey.String(),
		Kind:           string(req.Kind),
		Payload:        req.Payload,
		ProjectID:      req.ProjectID,
		BaseVersion:    req.BaseVersion,
	}

	status, respBody, err := c.post(ctx, c.mutatePath, req.IdempotencyKey.String(), body)
	if err != nil {
		return &syncbox.TransientError{Err: err}
	}

	var resp mutateResponse
	parsed := json.Unmarshal(respBody, &resp) == nil

	switch {
	case status >= 200 && status <= 299:
		if parsed && resp.Conflict {
			return &syncbox.ConflictError{ServerVersion: resp.ServerVersion}
		}
		if parsed && !resp.Success {
			// A parsed body that does not confirm application is never
			// treated as success, even without an error message.
			return classifyBodyError(resp)
		}

		return nil
	case status == http.StatusConflict:
		if parsed {
			return &syncbox.ConflictError{ServerVersion: resp.ServerVersion}
		}

		return &syncbox.ConflictError{}
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return &syncbox.TransientError{Err: httpError(status, respBody)}
	default:
		return &syncbox.PermanentError{Err: httpError(status, respBody)}
	}
}

type compareRequest struct {
	ResourceID string `json:"resourceId"`
	LocalHash  string `json:"localHash"`
}

type compareResponse struct {
	Status string `json:"status"`
}

// Compare implements syncbox.Comparer. Any transport or protocol failure is
// returned as an error, which the detector reports as unknown.
func (c *Client) Compare(ctx context.Context, resourceID, localHash string) (bool, error) {
	status, respBody, err := c.post(ctx, c.comparePath, "", compareRequest{
		ResourceID: resourceID,
		LocalHash:  localHash,
	})
	if err != nil {
		return false, err
	}
	if status < 200 || status > 299 {
		return false, httpError(status, respBody)
	}

	var resp compareResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return false, fmt.Errorf("remote: decode compare response: %w", err)
	}

	switch resp.Status {
	case "equal":
		return true, nil
	case "drift":
		return false, nil
	default:
		return false, fmt.Errorf("remote: unexpected compare status %q", resp.Status)
	}
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("remote: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if c.tokenProvider != nil {
		token, err := c.tokenProvider(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("remote: token: %w", err)
		}
		if token = strings.TrimSpace(token); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, err
	}

	return httpResp.StatusCode, respBody, nil
}

func classifyBodyError(resp mutateResponse) error {
	msg := resp.Error
	if msg == "" {
		msg = "mutation not applied"
	}
	err := fmt.Errorf("remote: %s", msg)
	if resp.Retryable {
		return &syncbox.TransientError{Err: err}
	}

	return &syncbox.PermanentError{Err: err}
}

func httpError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	if msg == "" {
		return fmt.Errorf("remote: unexpected status %d", status)
	}

	return fmt.Errorf("remote: unexpected status %d: %s", status, msg)
}
