package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// doneSentinel terminates an SSE stream.
const doneSentinel = "[DONE]"

// StreamChunks executes a streaming chat/completions request and hands every
// SSE event to sink as a raw chunk. Choice payloads are delivered as
// "data: ..." strings and gateway tool events as json.RawMessage objects.
// The terminating "data: [DONE]" frame is delivered before returning.
// The request is tracked under streamID so Interrupt can cancel it.
func (c *Client) StreamChunks(ctx context.Context, streamID string, req *ChatRequest, sink ChunkSink) (*StreamSummary, error) {
	if sink == nil {
		return nil, errors.New("chunk sink is required")
	}
	if req == nil {
		return nil, errors.New("chat request is required")
	}

	req.Stream = true
	if req.StreamOptions == nil {
		req.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if streamID != "" {
		c.track(streamID, cancel)
		defer c.untrack(streamID)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.completionsURL(),
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	c.setHeaders(httpReq, streamID)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read stream error body: %w", readErr)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	reader := bufio.NewReader(resp.Body)
	summary := &StreamSummary{}

	for {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		data, err := readSSEEvent(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return summary, nil
			}
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			return summary, fmt.Errorf("read stream event: %w", err)
		}
		if data == "" {
			continue
		}
		if data == doneSentinel {
			summary.Done = true
			return summary, sink("data: " + doneSentinel)
		}
		summary.observe(data)
		if err := sink(chunkFor(data)); err != nil {
			return summary, err
		}
	}
}

// chunkFor wraps one SSE payload in the shape the engine decodes.
func chunkFor(data string) any {
	if gjson.Valid(data) {
		parsed := gjson.Parse(data)
		if parsed.IsObject() && !parsed.Get("choices").Exists() && parsed.Get("type").Type == gjson.String {
			return json.RawMessage(data)
		}
	}
	return "data: " + data
}

// observe records request metadata from a payload.
func (s *StreamSummary) observe(data string) {
	s.Chunks++
	if !gjson.Valid(data) {
		return
	}
	parsed := gjson.Parse(data)
	if s.ID == "" {
		s.ID = parsed.Get("id").String()
	}
	if s.Model == "" {
		s.Model = parsed.Get("model").String()
	}
	if usage := parsed.Get("usage"); usage.IsObject() {
		s.Usage = Usage{
			PromptTokens:     int(usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens:      int(usage.Get("total_tokens").Int()),
		}
		s.HasUsage = true
	}
}

// readSSEEvent reads a single SSE event payload.
func readSSEEvent(reader *bufio.Reader) (string, error) {
	var builder strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if builder.Len() == 0 {
				if errors.Is(err, io.EOF) {
					return "", io.EOF
				}
				continue
			}
			return strings.TrimSuffix(builder.String(), "\n"), nil
		}
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			builder.WriteString(payload)
			builder.WriteByte('\n')
		}
		if errors.Is(err, io.EOF) {
			if builder.Len() == 0 {
				return "", io.EOF
			}
			return strings.TrimSuffix(builder.String(), "\n"), nil
		}
	}
}
