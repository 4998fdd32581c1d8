package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// streamIDHeader carries the engine stream id so the gateway can correlate interrupts.
const streamIDHeader = "X-Stream-Id"

// APIError represents an HTTP error from the OpenAI-compatible gateway.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai api error: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to an OpenAI-compatible chat/completions endpoint and can
// interrupt the streams it started.
type Client struct {
	// baseURL points to the OpenAI-compatible gateway.
	baseURL string
	// apiKey is sent as a bearer token, if provided.
	apiKey string
	// interruptPath is the optional gateway endpoint for upstream cancellation.
	interruptPath string
	// httpClient executes requests with timeouts.
	httpClient *http.Client
	// logger records transport events.
	logger *slog.Logger
	// mu guards inflight.
	mu sync.Mutex
	// inflight maps stream id to the cancel function of its request.
	inflight map[string]context.CancelFunc
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithInterruptPath enables the upstream interrupt request at path relative to the base URL.
func WithInterruptPath(path string) ClientOption {
	return func(c *Client) { c.interruptPath = path }
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient constructs a new client with timeout settings.
func NewClient(baseURL string, apiKey string, timeout time.Duration, options ...ClientOption) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		inflight: make(map[string]context.CancelFunc),
	}
	for _, option := range options {
		option(client)
	}
	if client.logger == nil {
		client.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return client
}

// Interrupt stops a stream started by this client. The local request is
// cancelled first; when an interrupt path is configured the gateway is then
// asked to stop generating. Only the gateway request can fail.
func (c *Client) Interrupt(ctx context.Context, streamID string) error {
	c.mu.Lock()
	cancel, tracked := c.inflight[streamID]
	c.mu.Unlock()
	if tracked {
		cancel()
		c.logger.Debug("stream request cancelled", "stream_id", streamID)
	}
	if c.interruptPath == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"stream_id": streamID})
	if err != nil {
		return fmt.Errorf("marshal interrupt request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.interruptURL(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create interrupt request: %w", err)
	}
	c.setHeaders(httpReq, streamID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send interrupt request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

// track records the cancel function of an in-flight stream.
func (c *Client) track(streamID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[streamID] = cancel
}

// untrack forgets an in-flight stream.
func (c *Client) untrack(streamID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, streamID)
}

// setHeaders applies content type, auth and stream correlation headers.
func (c *Client) setHeaders(httpReq *http.Request, streamID string) {
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if streamID != "" {
		httpReq.Header.Set(streamIDHeader, streamID)
	}
}

// completionsURL normalizes the base URL to a chat/completions endpoint.
func (c *Client) completionsURL() string {
	if strings.HasSuffix(c.baseURL, "/chat/completions") {
		return c.baseURL
	}
	return c.baseURL + "/chat/completions"
}

// interruptURL joins the interrupt path onto the gateway root.
func (c *Client) interruptURL() string {
	if strings.HasPrefix(c.interruptPath, "http://") || strings.HasPrefix(c.interruptPath, "https://") {
		return c.interruptPath
	}
	root := strings.TrimSuffix(c.baseURL, "/chat/completions")
	return root + "/" + strings.TrimLeft(c.interruptPath, "/")
}
