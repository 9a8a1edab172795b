// Package remote is the HTTP client for the backend's appdata REST
// surface. It classifies responses into the error kinds the push engine
// keys its retry/repair decisions on.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bradmartin/ksync/internal/config"
	"github.com/bradmartin/ksync/internal/entity"
)

// Sentinel errors for the HTTP error classes the push engine acts on.
var (
	// ErrNotFound maps 404. On a DELETE the engine treats it as success.
	ErrNotFound = errors.New("entity not found")

	// ErrInsufficientCredentials maps 401/403. The engine repairs local
	// state instead of retrying.
	ErrInsufficientCredentials = errors.New("insufficient credentials")
)

// StatusError is any other >= 400 response.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// NetworkError wraps transport failures (dial, timeout, reset). These
// are always retryable.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }

func (e *NetworkError) Unwrap() error { return e.Err }

// Client talks to one app's datastore namespace.
type Client struct {
	baseURL   string
	namespace string
	appKey    string
	timeout   time.Duration

	// Authorize injects credentials into each request. Nil leaves
	// requests unauthenticated.
	Authorize func(*http.Request)

	HTTP *http.Client
}

// New creates a client from the engine configuration.
func New(cfg config.Config) *Client {
	return &Client{
		baseURL:   cfg.BaseURL(),
		namespace: cfg.Namespace,
		appKey:    cfg.AppKey,
		timeout:   cfg.RequestTimeout,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

// collectionPath returns /<ns>/<app>/<col>.
func (c *Client) collectionPath(collection string) string {
	return fmt.Sprintf("/%s/%s/%s", c.namespace, c.appKey, collection)
}

// entityPath returns /<ns>/<app>/<col>/<id>.
func (c *Client) entityPath(collection, id string) string {
	return c.collectionPath(collection) + "/" + id
}

// Create POSTs a new entity and returns the server's copy, which
// carries the server-assigned id.
func (c *Client) Create(ctx context.Context, collection string, body entity.Entity) (entity.Entity, error) {
	var out entity.Entity
	if err := c.do(ctx, http.MethodPost, c.collectionPath(collection), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update PUTs an entity under its id and returns the server's copy.
func (c *Client) Update(ctx context.Context, collection, id string, body entity.Entity) (entity.Entity, error) {
	var out entity.Entity
	if err := c.do(ctx, http.MethodPut, c.entityPath(collection, id), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an entity. A 404 surfaces as ErrNotFound for the
// caller to interpret.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, c.entityPath(collection, id), nil, nil)
}

// Get fetches the remote's current copy of an entity.
func (c *Client) Get(ctx context.Context, collection, id string) (entity.Entity, error) {
	var out entity.Entity
	if err := c.do(ctx, http.MethodGet, c.entityPath(collection, id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// apiError is the standard error body from the backend.
type apiError struct {
	Code    string `json:"error"`
	Message string `json:"description"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Authorize != nil {
		c.Authorize(req)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		json.Unmarshal(respBody, &apiErr)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrInsufficientCredentials, apiErr.Message)
		default:
			return &StatusError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Message}
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
