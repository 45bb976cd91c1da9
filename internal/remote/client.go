// Package remote implements the engine's boundary contracts over HTTP: the
// metadata source, the lookup transport, and the persistence transport, all
// against a single upstream backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/formwork-ui/formwork/internal/lookup"
	"github.com/formwork-ui/formwork/internal/schema"
)

// Client talks to the upstream backend. It implements schema.Source,
// lookup.Transport, and mutation.Transport.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates an upstream client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// statusError reports a non-2xx upstream response.
type statusError struct {
	URL    string
	Status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.Status, e.URL)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &statusError{URL: u, Status: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FetchSchema retrieves the field descriptors for an entity type.
func (c *Client) FetchSchema(ctx context.Context, entityType string) ([]schema.FieldDescriptor, error) {
	var payload struct {
		Fields []schema.FieldDescriptor `json:"fields"`
	}
	path := "/meta/schemas/" + url.PathEscape(entityType)
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.Fields, nil
}

// FetchOptions retrieves an option list for a lookup key.
func (c *Client) FetchOptions(ctx context.Context, kind schema.SourceKind, key string) ([]lookup.Option, error) {
	var payload struct {
		Options []lookup.Option `json:"options"`
	}
	path := fmt.Sprintf("/meta/lookups/%s/%s", url.PathEscape(string(kind)), url.PathEscape(key))
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.Options, nil
}

// Persist sends changed fields for an entity instance and returns the
// server-confirmed values.
func (c *Client) Persist(ctx context.Context, entityType, instanceID string, changes map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/entities/%s/%s", c.baseURL, url.PathEscape(entityType), url.PathEscape(instanceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &statusError{URL: u, Status: resp.StatusCode}
	}

	var confirmed map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&confirmed); err != nil {
		return nil, err
	}
	return confirmed, nil
}
