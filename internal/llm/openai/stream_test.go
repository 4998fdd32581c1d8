package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaude/streamhub/internal/testutil"
)

// TestStreamChunksDeliversRawChunks verifies SSE frames reach the sink in order and shape.
func TestStreamChunksDeliversRawChunks(testingHandle *testing.T) {
	// Arrange a deterministic SSE server response.
	server := testutil.NewSSEServer(testingHandle,
		`{"id":"req-1","model":"model-x","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
		testutil.ContentPayload("Hello "),
		`{"type":"tool_start","id":"t1","name":"read_file","args":{"path":"a.go"}}`,
		testutil.ContentPayload("world"),
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":2,"completion_tokens":2,"total_tokens":4}}`,
	)
	client := NewClient(server.URL, "", 5*time.Second)

	// Act.
	var collected []any
	summary, err := client.StreamChunks(context.Background(), "s1", &ChatRequest{
		Model:    "model-x",
		Messages: []Message{{Role: "user", Content: "hello"}},
	}, func(raw any) error {
		collected = append(collected, raw)
		return nil
	})

	// Assert.
	require.NoError(testingHandle, err)
	assert.Equal(testingHandle, "req-1", summary.ID)
	assert.Equal(testingHandle, "model-x", summary.Model)
	assert.True(testingHandle, summary.HasUsage)
	assert.Equal(testingHandle, 4, summary.Usage.TotalTokens)
	assert.Equal(testingHandle, 5, summary.Chunks)
	assert.True(testingHandle, summary.Done)

	require.Len(testingHandle, collected, 6)
	assert.Equal(testingHandle, testutil.ContentChunk("Hello "), collected[1])
	assert.IsType(testingHandle, json.RawMessage{}, collected[2])
	assert.Equal(testingHandle, testutil.ContentChunk("world"), collected[3])
	assert.Equal(testingHandle, testutil.DoneChunk, collected[5])
}

// TestStreamChunksReturnsAPIError verifies non-2xx responses become APIError.
func TestStreamChunksReturnsAPIError(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		http.Error(responseWriter, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()
	client := NewClient(server.URL, "key", time.Second)

	_, err := client.StreamChunks(context.Background(), "s1", &ChatRequest{Model: "m"}, func(any) error { return nil })

	var apiErr *APIError
	require.ErrorAs(testingHandle, err, &apiErr)
	assert.Equal(testingHandle, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(testingHandle, "overloaded", apiErr.Body)
}

// TestInterruptCancelsStreamAndNotifiesGateway verifies both halves of Interrupt.
func TestInterruptCancelsStreamAndNotifiesGateway(testingHandle *testing.T) {
	// Arrange a server that sends one chunk and then holds the stream open.
	var mu sync.Mutex
	var interrupted []string
	var sawHeader string
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		switch request.URL.Path {
		case "/v1/chat/completions":
			mu.Lock()
			sawHeader = request.Header.Get(streamIDHeader)
			mu.Unlock()
			responseWriter.Header().Set("Content-Type", "text/event-stream")
			_, _ = fmt.Fprintf(responseWriter, "data: %s\n\n", testutil.ContentPayload("partial"))
			responseWriter.(http.Flusher).Flush()
			<-request.Context().Done()
		case "/v1/interrupt":
			body, _ := io.ReadAll(request.Body)
			var decoded map[string]string
			_ = json.Unmarshal(body, &decoded)
			mu.Lock()
			interrupted = append(interrupted, decoded["stream_id"])
			mu.Unlock()
			responseWriter.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(responseWriter, request)
		}
	}))
	defer server.Close()
	client := NewClient(server.URL+"/v1", "", 5*time.Second, WithInterruptPath("/interrupt"))

	// Act: interrupt from the sink after the first chunk.
	var interruptErr error
	_, err := client.StreamChunks(context.Background(), "s9", &ChatRequest{Model: "m"}, func(raw any) error {
		interruptErr = client.Interrupt(context.Background(), "s9")
		return nil
	})

	// Assert.
	require.ErrorIs(testingHandle, err, context.Canceled)
	require.NoError(testingHandle, interruptErr)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(testingHandle, []string{"s9"}, interrupted)
	assert.Equal(testingHandle, "s9", sawHeader)
}

// TestInterruptReportsGatewayFailure verifies a refused interrupt surfaces an error.
func TestInterruptReportsGatewayFailure(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		http.Error(responseWriter, "no such stream", http.StatusNotFound)
	}))
	defer server.Close()
	client := NewClient(server.URL, "", time.Second, WithInterruptPath("interrupt"))

	err := client.Interrupt(context.Background(), "ghost")

	var apiErr *APIError
	require.True(testingHandle, errors.As(err, &apiErr))
	assert.Equal(testingHandle, http.StatusNotFound, apiErr.StatusCode)
}

// TestInterruptWithoutGatewayPath verifies local-only interrupts always succeed.
func TestInterruptWithoutGatewayPath(testingHandle *testing.T) {
	client := NewClient("http://127.0.0.1:1", "", time.Second)

	assert.NoError(testingHandle, client.Interrupt(context.Background(), "unknown"))
}
