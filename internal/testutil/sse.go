// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ContentPayload returns an OpenAI-style chunk body carrying one content fragment.
func ContentPayload(text string) string {
	encoded, _ := json.Marshal(text)
	return fmt.Sprintf(`{"choices":[{"index":0,"delta":{"content":%s}}]}`, encoded)
}

// ContentChunk returns the SSE string form of ContentPayload.
func ContentChunk(text string) string {
	return "data: " + ContentPayload(text)
}

// DoneChunk is the SSE completion sentinel.
const DoneChunk = "data: [DONE]"

// NewSSEServer serves payloads as SSE frames on /chat/completions followed by
// the sentinel. The server is closed when the test ends.
func NewSSEServer(testingHandle testing.TB, payloads ...string) *httptest.Server {
	testingHandle.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/chat/completions" {
			http.NotFound(responseWriter, request)
			return
		}
		responseWriter.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := responseWriter.(http.Flusher)
		if !ok {
			http.Error(responseWriter, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		for _, payload := range payloads {
			_, _ = fmt.Fprintf(responseWriter, "data: %s\n\n", payload)
			flusher.Flush()
		}
		_, _ = fmt.Fprint(responseWriter, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	testingHandle.Cleanup(server.Close)
	return server
}
