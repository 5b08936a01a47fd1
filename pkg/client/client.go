package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cordum/stageflow/core/catalog"
	"github.com/cordum/stageflow/core/preview"
	"github.com/cordum/stageflow/core/workflow"
)

// Client is a minimal HTTP client for the stageflow gateway.
type Client struct {
	BaseURL    string
	APIKey     string
	Principal  string
	HTTPClient *http.Client
}

// New returns a client with a default HTTP timeout.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SaveResponse captures the save endpoint response.
type SaveResponse struct {
	ApplicationID      string `json:"applicationId"`
	WorkflowInstanceID string `json:"workflowInstanceId"`
	Revision           int64  `json:"revision"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) endpoint(path string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	return base + path
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		payload = buf
	}
	return c.do(ctx, method, path, payload, body != nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload io.Reader, hasBody bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), payload)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	if c.Principal != "" {
		req.Header.Set("X-Principal-Id", c.Principal)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func catalogPath(applicationID, suffix string) string {
	return "/api/v1/applications/" + url.PathEscape(applicationID) + "/catalog" + suffix
}

func configPath(applicationID, instanceID string) string {
	return "/api/v1/workflow-configs/" + url.PathEscape(applicationID) + "/" + url.PathEscape(instanceID)
}

// GetCatalog returns the full template set of an application.
func (c *Client) GetCatalog(ctx context.Context, applicationID string) (*catalog.Document, error) {
	var out catalog.Document
	if err := c.doJSON(ctx, http.MethodGet, catalogPath(applicationID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStages returns the stage templates of an application.
func (c *Client) ListStages(ctx context.Context, applicationID string) ([]catalog.StageTemplate, error) {
	var out []catalog.StageTemplate
	err := c.doJSON(ctx, http.MethodGet, catalogPath(applicationID, "/stages"), nil, &out)
	return out, err
}

// ListAttestations returns the attestation templates of an application.
func (c *Client) ListAttestations(ctx context.Context, applicationID string) ([]catalog.AttestationTemplate, error) {
	var out []catalog.AttestationTemplate
	err := c.doJSON(ctx, http.MethodGet, catalogPath(applicationID, "/attestations"), nil, &out)
	return out, err
}

// PublishCatalog replaces the published catalog of an application.
func (c *Client) PublishCatalog(ctx context.Context, doc catalog.Document) error {
	if doc.Application.ID == "" {
		return fmt.Errorf("application id required")
	}
	return c.doJSON(ctx, http.MethodPut, catalogPath(doc.Application.ID, ""), doc, nil)
}

// SaveConfig persists a workflow config and returns its new revision.
func (c *Client) SaveConfig(ctx context.Context, cfg *workflow.WorkflowConfig) (*SaveResponse, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	var out SaveResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/workflow-configs", cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveRawConfig posts an already encoded workflow config document.
func (c *Client) SaveRawConfig(ctx context.Context, raw []byte) (*SaveResponse, error) {
	var out SaveResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/workflow-configs", bytes.NewReader(raw), true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConfig fetches a saved workflow config.
func (c *Client) GetConfig(ctx context.Context, applicationID, instanceID string) (*workflow.WorkflowConfig, error) {
	var out workflow.WorkflowConfig
	if err := c.doJSON(ctx, http.MethodGet, configPath(applicationID, instanceID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConfigs lists recently saved configs, optionally for one application.
func (c *Client) ListConfigs(ctx context.Context, applicationID string, limit int) ([]*workflow.WorkflowConfig, error) {
	q := url.Values{}
	if applicationID != "" {
		q.Set("application_id", applicationID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/workflow-configs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []*workflow.WorkflowConfig
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// ConfigHistory returns the save history of a config, oldest first.
func (c *Client) ConfigHistory(ctx context.Context, applicationID, instanceID string) ([]workflow.SaveRecord, error) {
	var out []workflow.SaveRecord
	err := c.doJSON(ctx, http.MethodGet, configPath(applicationID, instanceID)+"/history", nil, &out)
	return out, err
}

// DeleteConfig removes a saved config.
func (c *Client) DeleteConfig(ctx context.Context, applicationID, instanceID string) error {
	return c.doJSON(ctx, http.MethodDelete, configPath(applicationID, instanceID), nil, nil)
}

// Preview asks the gateway to preview the file at location.
func (c *Client) Preview(ctx context.Context, location string) (*preview.Preview, error) {
	var out preview.Preview
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/preview", map[string]string{"location": location}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStatus returns gateway status information.
func (c *Client) GetStatus(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
