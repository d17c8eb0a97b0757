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
	"strings"
	"time"
)

// ErrNotFound indicates the referenced object does not exist in the gateway.
var ErrNotFound = errors.New("blob: not found")

// Client talks to an HTTP object-storage gateway:
//
//	POST   {base}/v1/objects       (raw body, Content-Type, X-Object-Name) -> 201 {id,url}
//	DELETE {base}/v1/objects/{id}  -> 204
type Client struct {
	base   string
	token  string
	client *http.Client
}

var _ Store = (*Client)(nil)

// ClientOption configures Client behavior.
type ClientOption func(*Client)

// WithToken sets a bearer token attached to every gateway request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithHTTPClient overrides the underlying transport (useful for tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient constructs a gateway client with sensible timeouts.
func NewClient(base string, opts ...ClientOption) (*Client, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return nil, errors.New("blob: gateway base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("blob: invalid gateway URL: %w", err)
	}
	c := &Client{
		base:   base,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Put(ctx context.Context, data []byte, contentType, name string) (Object, error) {
	if len(data) == 0 {
		return Object{}, errors.New("blob: empty content")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/objects", bytes.NewReader(data))
	if err != nil {
		return Object{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if name != "" {
		req.Header.Set("X-Object-Name", name)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return Object{}, fmt.Errorf("blob: upload: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return Object{}, fmt.Errorf("blob: upload failed with status %d", resp.StatusCode)
	}
	var obj Object
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return Object{}, fmt.Errorf("blob: decode upload response: %w", err)
	}
	if obj.ID == "" || obj.URL == "" {
		return Object{}, errors.New("blob: gateway returned incomplete object reference")
	}
	return obj, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("blob: object id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/v1/objects/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("blob: delete: %w", err)
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("blob: delete failed with status %d", resp.StatusCode)
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	_ = body.Close()
}
