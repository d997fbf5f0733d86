package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteDriver drives a browser through a local automation agent that exposes
// the page operations over a small JSON API. Connection failures and agent
// 5xx responses surface as ErrPageUnreachable so callers retry them; a miss
// on a selector set surfaces as ErrElementNotFound.
type RemoteDriver struct {
	agentURL string
	client   *http.Client
}

// NewRemote builds a driver against the agent at agentURL. A zero timeout
// falls back to 30 seconds.
func NewRemote(agentURL string, timeout time.Duration) *RemoteDriver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteDriver{
		agentURL: strings.TrimRight(strings.TrimSpace(agentURL), "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

type remoteElement struct {
	ID   string `json:"id"`
	Desc string `json:"description"`
}

func (e remoteElement) Description() string { return e.Desc }

func (d *RemoteDriver) Navigate(ctx context.Context, url string) error {
	return d.post(ctx, "/session/navigate", map[string]string{"url": url}, nil)
}

func (d *RemoteDriver) FindFirst(ctx context.Context, selectors []string) (Element, error) {
	var out struct {
		Found   bool          `json:"found"`
		Element remoteElement `json:"element"`
	}
	if err := d.post(ctx, "/session/find", map[string]any{"selectors": selectors}, &out); err != nil {
		return nil, err
	}
	if !out.Found {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, strings.Join(selectors, ", "))
	}
	return out.Element, nil
}

func (d *RemoteDriver) Click(ctx context.Context, el Element) error {
	re, ok := el.(remoteElement)
	if !ok {
		return fmt.Errorf("click: foreign element %q", el.Description())
	}
	return d.post(ctx, "/session/click", map[string]string{"element_id": re.ID}, nil)
}

func (d *RemoteDriver) FillField(ctx context.Context, el Element, value string) error {
	re, ok := el.(remoteElement)
	if !ok {
		return fmt.Errorf("fill: foreign element %q", el.Description())
	}
	return d.post(ctx, "/session/fill", map[string]string{"element_id": re.ID, "value": value}, nil)
}

func (d *RemoteDriver) ListJobs(ctx context.Context) ([]Job, error) {
	var out struct {
		Jobs []Job `json:"jobs"`
	}
	if err := d.get(ctx, "/session/jobs", &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

func (d *RemoteDriver) DownloadCurrentArtifact(ctx context.Context) (string, error) {
	var out struct {
		Path string `json:"path"`
	}
	if err := d.post(ctx, "/session/download", struct{}{}, &out); err != nil {
		return "", err
	}
	if out.Path == "" {
		return "", errors.New("download: agent returned no path")
	}
	return out.Path, nil
}

func (d *RemoteDriver) TakeScreenshot(ctx context.Context) (string, error) {
	var out struct {
		Path string `json:"path"`
	}
	if err := d.post(ctx, "/session/screenshot", struct{}{}, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}

func (d *RemoteDriver) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode agent request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.agentURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return d.do(req, out)
}

func (d *RemoteDriver) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.agentURL+path, nil)
	if err != nil {
		return fmt.Errorf("build agent request: %w", err)
	}
	return d.do(req, out)
}

func (d *RemoteDriver) do(req *http.Request, out any) error {
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPageUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: agent returned %d", ErrPageUnreachable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("agent %s: %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode agent response: %w", err)
	}
	return nil
}
