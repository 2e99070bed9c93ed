// Package browser provisions remote browser sessions with the hosting
// vendor's HTTP API. The vendor's response schemas vary across versions, so
// everything beyond the session id is probed out of opaque JSON rather than
// schema-bound.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/browserteacher/browserteacher/internal/config"
)

const apiKeyHeader = "X-BB-API-Key"

// inspectorURLFormat derives a human-viewable inspector page from a devtools
// websocket endpoint when the vendor returns no live view URL.
const inspectorURLFormat = "https://www.browserbase.com/devtools/inspector.html?wss=%s&debug=true"

// ProviderSession is the provisioning result consumed by the session
// registry.
type ProviderSession struct {
	ID              string
	LiveViewURL     string
	ControlEndpoint string
}

// Client talks to the hosted-browser provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	projectID  string
}

// NewClient creates a provisioning client from browser configuration.
func NewClient(cfg config.BrowserConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		apiKey:     cfg.APIKey,
		projectID:  cfg.ProjectID,
	}
}

// Create provisions a new browser session and resolves its live view and
// devtools endpoints. The create response often carries only partial URLs;
// the debug endpoint is authoritative, with retrieve-session fields and a
// derived inspector URL as fallbacks.
func (c *Client) Create(ctx context.Context) (*ProviderSession, error) {
	created, err := c.postJSON(ctx, c.baseURL+"/v1/sessions", map[string]string{"projectId": c.projectID})
	if err != nil {
		return nil, fmt.Errorf("create browser session: %w", err)
	}

	id := stringField(created, "id")
	if id == "" {
		return nil, fmt.Errorf("create browser session: response missing id")
	}

	session := &ProviderSession{ID: id}

	if dbg, err := c.getJSON(ctx, c.baseURL+"/v1/sessions/"+id+"/debug"); err == nil {
		session.LiveViewURL = stringField(dbg, "debuggerFullscreenUrl", "debuggerUrl")
		session.ControlEndpoint = stringField(dbg, "wsUrl")
		if session.ControlEndpoint == "" {
			session.ControlEndpoint = firstPageWsURL(dbg)
		}
	} else {
		slog.Debug("browser debug endpoint unavailable", "session_id", id, "error", err)
	}

	if session.LiveViewURL == "" || session.ControlEndpoint == "" {
		fetched, err := c.getJSON(ctx, c.baseURL+"/v1/sessions/"+id)
		if err != nil {
			fetched = created
		}
		if session.ControlEndpoint == "" {
			session.ControlEndpoint = stringField(fetched,
				"devtoolsWsUrl", "devtoolsUrl", "connectUrl", "devtools_url", "connect_url")
		}
		if session.LiveViewURL == "" {
			session.LiveViewURL = stringField(fetched,
				"inspectorUrl", "liveViewUrl", "inspector_url", "live_url")
		}
		if session.LiveViewURL == "" && session.ControlEndpoint != "" {
			wss := strings.TrimPrefix(session.ControlEndpoint, "wss://")
			session.LiveViewURL = fmt.Sprintf(inspectorURLFormat, url.QueryEscape(wss))
		}
	}

	slog.Info("Browser session provisioned",
		"session_id", session.ID,
		"live_view_url", session.LiveViewURL,
		"control_endpoint", session.ControlEndpoint)
	return session, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body interface{}) (map[string]interface{}, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) getJSON(ctx context.Context, endpoint string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (map[string]interface{}, error) {
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("failed to close provider response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	return decoded, nil
}

// stringField returns the first non-empty string value among keys.
func stringField(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// firstPageWsURL probes pages[0].wsUrl, the per-page devtools endpoint some
// API versions report instead of a session-level one.
func firstPageWsURL(m map[string]interface{}) string {
	pages, ok := m["pages"].([]interface{})
	if !ok || len(pages) == 0 {
		return ""
	}
	page, ok := pages[0].(map[string]interface{})
	if !ok {
		return ""
	}
	if v, ok := page["wsUrl"].(string); ok {
		return v
	}
	return ""
}
