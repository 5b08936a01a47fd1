// Package preview fetches spreadsheet previews of reference files from the
// Java processing backend.
package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cordum/stageflow/core/infra/logging"
)

const (
	dataPath = "/api/process/data"

	// NoDataSentinel is the first cell of the [sentinel, null] row the backend returns for an empty sheet.
	NoDataSentinel = "NO DATA FOUND"

	maxErrorBody = 4 << 10
)

// Preview outcome labels recorded on the metrics recorder.
const (
	StatusOK    = "ok"
	StatusEmpty = "empty"
	StatusError = "error"
)

// Sheet is one worksheet of a previewed file.
type Sheet struct {
	Name    string  `json:"name"`
	Data    [][]any `json:"data"`
	MaxCols int     `json:"maxCols"`
	Empty   bool    `json:"empty"`
}

// Preview is the rendered content of a file. Error is set instead of returning one.
type Preview struct {
	Location string  `json:"location"`
	FileName string  `json:"fileName,omitempty"`
	Sheets   []Sheet `json:"sheets"`
	Error    string  `json:"error,omitempty"`
}

// Recorder receives exactly one status per fetch.
type Recorder interface {
	IncPreview(status string)
}

// Client calls the backend data endpoint.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Metrics    Recorder
}

// New returns a client with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type request struct {
	Location string  `json:"location"`
	Name     *string `json:"name"`
}

type response struct {
	FileName string `json:"fileName"`
	Sheets   []struct {
		Name    string  `json:"name"`
		Data    [][]any `json:"data"`
		MaxCols int     `json:"maxCols"`
	} `json:"sheets"`
}

// Fetch previews the file at location. Failures are reported on Preview.Error.
func (c *Client) Fetch(ctx context.Context, location string) Preview {
	out := Preview{Location: location, Sheets: []Sheet{}}
	location = strings.TrimSpace(location)
	if location == "" {
		return c.fail(out, fmt.Errorf("location required"))
	}
	resp, err := c.post(ctx, location)
	if err != nil {
		return c.fail(out, err)
	}
	out.FileName = resp.FileName
	allEmpty := len(resp.Sheets) > 0
	for _, s := range resp.Sheets {
		sheet := Sheet{Name: s.Name, Data: s.Data, MaxCols: s.MaxCols}
		if IsNoData(s.Data) {
			// The marker row is not table content.
			sheet = Sheet{Name: s.Name, Data: [][]any{}, Empty: true}
		} else {
			allEmpty = false
		}
		if sheet.Data == nil {
			sheet.Data = [][]any{}
		}
		if sheet.MaxCols == 0 {
			sheet.MaxCols = maxCols(sheet.Data)
		}
		out.Sheets = append(out.Sheets, sheet)
	}
	if allEmpty {
		c.record(StatusEmpty)
	} else {
		c.record(StatusOK)
	}
	return out
}

func (c *Client) post(ctx context.Context, location string) (*response, error) {
	if strings.TrimSpace(c.BaseURL) == "" {
		return nil, fmt.Errorf("preview backend not configured")
	}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(request{Location: location}); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+dataPath, buf)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	httpResp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = httpResp.Status
		}
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, msg)
	}
	var out response
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return &out, nil
}

func (c *Client) fail(out Preview, err error) Preview {
	logging.Error("preview", "fetch failed", "location", out.Location, "error", err)
	out.Error = err.Error()
	c.record(StatusError)
	return out
}

func (c *Client) record(status string) {
	if c.Metrics != nil {
		c.Metrics.IncPreview(status)
	}
}

// IsNoData reports whether rows is exactly the backend's empty-sheet marker,
// [[NoDataSentinel, null]].
func IsNoData(rows [][]any) bool {
	if len(rows) != 1 || len(rows[0]) != 2 {
		return false
	}
	s, ok := rows[0][0].(string)
	return ok && s == NoDataSentinel && rows[0][1] == nil
}

func maxCols(rows [][]any) int {
	n := 0
	for _, r := range rows {
		if len(r) > n {
			n = len(r)
		}
	}
	return n
}
