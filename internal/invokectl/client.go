// Package invokectl implements the command line client for the
// invokeai HTTP API.
package invokectl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/heyross/InvokeAI/pkg/types"
)

// Client is a thin HTTP client for the invokeai API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient builds a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var er types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
			return fmt.Errorf("%s %s: %s (HTTP %d)", method, path, er.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CacheStatus fetches the cache residency report.
func (c *Client) CacheStatus() (types.CacheStatusResponse, error) {
	var st types.CacheStatusResponse
	err := c.do(http.MethodGet, "/v1/cache/status", nil, &st)
	return st, err
}

// CacheLoad asks the server to load a model; nil targetBytes loads fully.
func (c *Client) CacheLoad(key string, targetBytes *int64) (types.CacheLoadResponse, error) {
	var lr types.CacheLoadResponse
	err := c.do(http.MethodPost, "/v1/cache/load/"+key, types.CacheLoadRequest{TargetBytes: targetBytes}, &lr)
	return lr, err
}

// CacheUnload asks the server to free device memory; nil targetFreeBytes
// unloads fully.
func (c *Client) CacheUnload(key string, targetFreeBytes *int64) (types.CacheUnloadResponse, error) {
	var ur types.CacheUnloadResponse
	err := c.do(http.MethodPost, "/v1/cache/unload/"+key, types.CacheUnloadRequest{TargetFreeBytes: targetFreeBytes}, &ur)
	return ur, err
}

// ListModels fetches all model configs.
func (c *Client) ListModels() (types.ModelsResponse, error) {
	var mr types.ModelsResponse
	err := c.do(http.MethodGet, "/v1/models", nil, &mr)
	return mr, err
}

// GetModel fetches one model config by key.
func (c *Client) GetModel(key string) (types.ModelConfig, error) {
	var cfg types.ModelConfig
	err := c.do(http.MethodGet, "/v1/models/i/"+key, nil, &cfg)
	return cfg, err
}

// DeleteModel removes a model config.
func (c *Client) DeleteModel(key string) error {
	return c.do(http.MethodDelete, "/v1/models/i/"+key, nil, nil)
}

// ListWorkflows fetches a page of workflows.
func (c *Client) ListWorkflows(page, perPage int) (types.PaginatedResults[types.WorkflowRecord], error) {
	var pr types.PaginatedResults[types.WorkflowRecord]
	err := c.do(http.MethodGet, fmt.Sprintf("/v1/workflows?page=%d&per_page=%d", page, perPage), nil, &pr)
	return pr, err
}

// GetWorkflow fetches one workflow by id.
func (c *Client) GetWorkflow(id string) (types.WorkflowRecord, error) {
	var rec types.WorkflowRecord
	err := c.do(http.MethodGet, "/v1/workflows/i/"+id, nil, &rec)
	return rec, err
}

// DeleteWorkflow removes a workflow.
func (c *Client) DeleteWorkflow(id string) error {
	return c.do(http.MethodDelete, "/v1/workflows/i/"+id, nil, nil)
}
