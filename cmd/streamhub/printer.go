package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/openclaude/streamhub/internal/stream"
)

// streamPrinter renders one growing message as plain text. Content is
// append-only while streaming, so only the unseen suffix is printed.
type streamPrinter struct {
	// mu serializes the render loop and interrupt warnings.
	mu sync.Mutex
	// out receives assistant text and tool markers.
	out io.Writer
	// errOut receives reasoning and warnings.
	errOut io.Writer
	// verbose prints reasoning and tool output.
	verbose bool
	// printed is the byte length of content already written.
	printed int
	// reasoned is the byte length of reasoning already written.
	reasoned int
	// toolStatus is the last printed status per tool call.
	toolStatus map[string]string
	// lineOpen tracks whether a streaming line is in progress.
	lineOpen bool
}

// newStreamPrinter constructs a printer for one reply.
func newStreamPrinter(out io.Writer, errOut io.Writer, verbose bool) *streamPrinter {
	return &streamPrinter{
		out:        out,
		errOut:     errOut,
		verbose:    verbose,
		toolStatus: make(map[string]string),
	}
}

// Update prints whatever message gained since the previous call.
func (p *streamPrinter) Update(message stream.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.verbose && len(message.ReasoningContent) > p.reasoned {
		fmt.Fprint(p.errOut, message.ReasoningContent[p.reasoned:])
		p.reasoned = len(message.ReasoningContent)
	}

	for index, call := range message.ToolCalls {
		key := call.ID
		if key == "" {
			key = fmt.Sprintf("#%d", index)
		}
		status := string(call.Status)
		if status == "" {
			status = "requested"
		}
		if p.toolStatus[key] == status {
			continue
		}
		p.toolStatus[key] = status
		p.ensureNewline()
		fmt.Fprintf(p.out, "-> tool %s %s\n", call.Function.Name, status)
		if call.ResultPreview != "" && (call.Status == stream.ToolStatusError || p.verbose) {
			fmt.Fprintf(p.out, "   output: %s\n", summarizeToolOutput(call.ResultPreview, 240))
		}
	}

	if len(message.Content) > p.printed {
		fmt.Fprint(p.out, message.Content[p.printed:])
		p.printed = len(message.Content)
		p.lineOpen = !strings.HasSuffix(message.Content, "\n")
	}
}

// Finish terminates the reply line.
func (p *streamPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureNewline()
}

// Warn prints an out-of-band notice on its own line.
func (p *streamPrinter) Warn(text string) {
	if text == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureNewline()
	fmt.Fprintln(p.errOut, text)
}

// ensureNewline terminates a streaming line if one is active. The caller holds mu.
func (p *streamPrinter) ensureNewline() {
	if !p.lineOpen {
		return
	}
	fmt.Fprintln(p.out)
	p.lineOpen = false
}

// summarizeToolOutput formats tool output for optional display.
func summarizeToolOutput(output string, max int) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return ""
	}
	return truncateForDisplay(compactWhitespace(trimmed), max)
}

// compactWhitespace collapses internal whitespace into single spaces.
func compactWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// truncateForDisplay shortens long strings without breaking runes.
func truncateForDisplay(value string, max int) string {
	if max <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max]) + "...(truncated)"
}
