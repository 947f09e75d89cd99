package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"entitydb/pkg/dberrors"
)

// Document is a JSON object stored by the server.
type Document = map[string]any

// WriteResult is the outcome of a write as reported by the server.
type WriteResult struct {
	Mutation string `json:"mutation"`
	Seq      uint64 `json:"seq"`
	Total    int    `json:"total"`
}

type response struct {
	Status string          `json:"status"`
	Value  json.RawMessage `json:"value"`
	Error  string          `json:"error"`
	WriteResult
}

// StatusError is returned for non-2xx answers. A 404 matches
// dberrors.ErrNotFound.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("entitydb: status=%d: %s", e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == dberrors.ErrNotFound && e.Code == http.StatusNotFound
}

// Client talks to the JSON API of an entitydb server.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

func (c *Client) Collections(ctx context.Context) ([]string, error) {
	var names []string
	err := c.read(ctx, "/api/collections", &names)
	return names, err
}

func (c *Client) Get(ctx context.Context, collection, key string) (Document, error) {
	var doc Document
	err := c.read(ctx, entityPath(collection, key), &doc)
	return doc, err
}

// List returns the documents of a collection, filtered by where when set.
func (c *Client) List(ctx context.Context, collection, where string) ([]Document, error) {
	path := "/api/collections/" + url.PathEscape(collection) + "/entities"
	if where != "" {
		path += "?where=" + url.QueryEscape(where)
	}
	var docs []Document
	err := c.read(ctx, path, &docs)
	return docs, err
}

func (c *Client) Bucket(ctx context.Context, collection, index, value string) ([]Document, error) {
	path := "/api/collections/" + url.PathEscape(collection) + "/indexes/" + url.PathEscape(index) + "/" + url.PathEscape(value)
	var docs []Document
	err := c.read(ctx, path, &docs)
	return docs, err
}

func (c *Client) Add(ctx context.Context, collection string, docs ...Document) (WriteResult, error) {
	return c.writeJSON(ctx, http.MethodPost, entitiesPath(collection), docs)
}

func (c *Client) Upsert(ctx context.Context, collection string, docs ...Document) (WriteResult, error) {
	return c.writeJSON(ctx, http.MethodPut, entitiesPath(collection), docs)
}

func (c *Client) Update(ctx context.Context, collection, key string, changes map[string]any) (WriteResult, error) {
	return c.writeJSON(ctx, http.MethodPatch, entityPath(collection, key), changes)
}

// Patch sends an RFC 6902 JSON Patch.
func (c *Client) Patch(ctx context.Context, collection, key string, patch []byte) (WriteResult, error) {
	return c.write(ctx, http.MethodPatch, entityPath(collection, key), "application/json-patch+json", patch)
}

func (c *Client) Remove(ctx context.Context, collection, key string) (WriteResult, error) {
	return c.write(ctx, http.MethodDelete, entityPath(collection, key), "", nil)
}

func entitiesPath(collection string) string {
	return "/api/collections/" + url.PathEscape(collection) + "/entities"
}

func entityPath(collection, key string) string {
	return entitiesPath(collection) + "/" + url.PathEscape(key)
}

func (c *Client) read(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Value, out); err != nil {
		return fmt.Errorf("decode: %w value=%s", err, string(resp.Value))
	}
	return nil
}

func (c *Client) writeJSON(ctx context.Context, method, path string, payload any) (WriteResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return WriteResult{}, err
	}
	return c.write(ctx, method, path, "application/json", body)
}

func (c *Client) write(ctx context.Context, method, path, contentType string, body []byte) (WriteResult, error) {
	resp, err := c.do(ctx, method, path, contentType, body)
	if err != nil {
		return WriteResult{}, err
	}
	return resp.WriteResult, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) (*response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var r response
	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(b))}
		if json.Unmarshal(b, &r) == nil && r.Error != "" {
			se.Message = r.Error
		}
		if se.Message == "" {
			se.Message = http.StatusText(resp.StatusCode)
		}
		return nil, se
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("decode: %w body=%s", err, string(b))
		}
	}
	return &r, nil
}
