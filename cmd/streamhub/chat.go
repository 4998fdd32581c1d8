package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/openclaude/streamhub/internal/agent"
	"github.com/openclaude/streamhub/internal/config"
	"github.com/openclaude/streamhub/internal/llm/openai"
	"github.com/openclaude/streamhub/internal/pane"
	"github.com/openclaude/streamhub/internal/session"
	"github.com/openclaude/streamhub/internal/stream"
)

// chatHelp lists the slash commands.
const chatHelp = `/open <path>...  add files to the edit context
/files           list open files
/changes         show and clear proposed changes
/stats           show conversation stats
/quit            leave the chat`

// chatOptions holds chat flags.
type chatOptions struct {
	// Model overrides gateway.model.
	Model string
	// SystemPrompt replaces the default system prompt.
	SystemPrompt string
	// Record captures raw chunks into a transcript.
	Record bool
	// Plain forces the line printer even on a TTY.
	Plain bool
	// Files are opened into the edit context at startup.
	Files []string
	// Verbose prints reasoning and tool output.
	Verbose bool
	// DisableSlashCommands sends every line as a message.
	DisableSlashCommands bool
}

// chatSession binds one chat pane to the gateway through a router.
type chatSession struct {
	// opts are the chat flags.
	opts *chatOptions
	// logger records session events.
	logger *slog.Logger
	// model is the resolved provider model.
	model string
	// router routes chunks into the pane.
	router *stream.Router
	// launcher starts generations.
	launcher *agent.Launcher
	// pane holds the conversation.
	pane *pane.Pane
	// transcript is the recording path, when recording.
	transcript string
	// markers are the agentic mode markers.
	markers []string
	// active mirrors the router activity indicator.
	active atomic.Bool
}

// chatCommand runs an interactive session against the configured gateway.
func chatCommand(state *app) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the configured gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.cfg.ValidateGateway(); err != nil {
				return err
			}
			chat, err := newChatSession(state.cfg, state.logger, newClient(state.cfg, state.logger), opts)
			if err != nil {
				return err
			}
			if !opts.Plain && isTerminal(os.Stdin) && isTerminal(os.Stdout) {
				return runChatTUI(chat)
			}
			return runChatPlain(cmd.Context(), chat, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.Model, "model", "", "Model for the session")
	flags.StringVar(&opts.SystemPrompt, "system-prompt", "", "System prompt")
	flags.BoolVar(&opts.Record, "record", false, "Record raw chunks to a transcript")
	flags.BoolVar(&opts.Plain, "plain", false, "Use the line printer instead of the TUI")
	flags.StringSliceVar(&opts.Files, "file", nil, "Files to open into the edit context")
	flags.BoolVar(&opts.Verbose, "show-reasoning", false, "Print reasoning and tool output")
	flags.BoolVar(&opts.DisableSlashCommands, "disable-slash-commands", false, "Disable slash commands")
	return cmd
}

// chatTransport is the gateway surface a chat session needs.
type chatTransport interface {
	agent.Streamer
	stream.Interrupter
}

// newChatSession wires a pane, router and launcher around transport.
func newChatSession(cfg *config.Config, logger *slog.Logger, transport chatTransport, opts *chatOptions) (*chatSession, error) {
	chat := &chatSession{
		opts:    opts,
		logger:  logger,
		model:   cfg.ResolveModel(opts.Model),
		pane:    pane.New("", pane.KindChat),
		markers: cfg.Engine.AgenticMarkers,
	}
	chat.router = newRouter(cfg, logger, transport, chat.active.Store)

	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = agent.DefaultSystemPrompt(cfg.Engine.AgenticMarkers)
	}
	chat.launcher = &agent.Launcher{
		Client:       transport,
		Router:       chat.router,
		Model:        chat.model,
		SystemPrompt: systemPrompt,
		Logger:       logger,
	}

	if opts.Record {
		store, err := session.NewStore(cfg.Transcripts.Dir)
		if err != nil {
			return nil, err
		}
		recorder := store.Recorder(uuid.NewString())
		chat.launcher.Recorder = recorder
		chat.transcript = store.TranscriptPath(recorder.TranscriptID())
	}
	if len(opts.Files) > 0 {
		if _, err := chat.openFiles(opts.Files); err != nil {
			return nil, err
		}
	}
	return chat, nil
}

// send appends the user line and starts a generation.
func (c *chatSession) send(ctx context.Context, line string) (string, <-chan agent.Generation, error) {
	c.pane.AddUser(line)
	return c.launcher.Start(ctx, c.pane)
}

// interrupt cancels the pane's streaming message.
func (c *chatSession) interrupt() <-chan error {
	return c.router.InterruptConsumer(c.pane)
}

// openFiles reads paths into the pane's edit context, replacing entries
// with the same path. Nothing changes when any file fails to read.
func (c *chatSession) openFiles(paths []string) ([]string, error) {
	files := c.pane.OpenFiles()
	positions := make(map[string]int, len(files))
	for index, file := range files {
		positions[file.Path] = index
	}

	opened := make([]string, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		clean := filepath.ToSlash(filepath.Clean(path))
		file := stream.FileContext{Path: clean, Content: string(content)}
		if index, ok := positions[clean]; ok {
			files[index] = file
		} else {
			positions[clean] = len(files)
			files = append(files, file)
		}
		opened = append(opened, clean)
	}
	c.pane.SetOpenFiles(files)
	return opened, nil
}

// slashResult is the outcome of a slash command.
type slashResult struct {
	// Handled reports whether the line was consumed as a command.
	Handled bool
	// Output is shown to the user.
	Output string
	// Quit ends the session.
	Quit bool
}

// handleSlashCommand runs a slash command. Lines starting with an agentic
// marker are messages, not commands.
func (c *chatSession) handleSlashCommand(line string) slashResult {
	if c.opts.DisableSlashCommands {
		return slashResult{}
	}
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return slashResult{}
	}
	parts := strings.Fields(strings.TrimPrefix(trimmed, "/"))
	if len(parts) == 0 {
		return slashResult{}
	}

	switch command := strings.ToLower(parts[0]); command {
	case "help":
		return slashResult{Handled: true, Output: chatHelp}
	case "open":
		if len(parts) < 2 {
			return slashResult{Handled: true, Output: "Usage: /open <path>..."}
		}
		opened, err := c.openFiles(parts[1:])
		if err != nil {
			return slashResult{Handled: true, Output: err.Error()}
		}
		return slashResult{Handled: true, Output: "Opened " + strings.Join(opened, ", ")}
	case "files":
		return slashResult{Handled: true, Output: formatOpenFiles(c.pane.OpenFiles())}
	case "changes":
		return slashResult{Handled: true, Output: formatChanges(c.pane.TakePendingChanges())}
	case "stats":
		return slashResult{Handled: true, Output: formatStats(c.pane.Stats())}
	case "quit", "exit":
		return slashResult{Handled: true, Quit: true}
	default:
		for _, marker := range c.markers {
			if strings.HasPrefix(trimmed, marker) {
				return slashResult{}
			}
		}
		return slashResult{Handled: true, Output: fmt.Sprintf("Unknown command: /%s", command)}
	}
}

// runChatPlain reads lines from input and streams each reply as it grows.
func runChatPlain(ctx context.Context, chat *chatSession, input io.Reader, out io.Writer, errOut io.Writer) error {
	reader := bufio.NewScanner(input)
	reader.Buffer(make([]byte, 0, 64*1024), maxChunkLine)
	if chat.transcript != "" {
		fmt.Fprintf(errOut, "Recording chunks to %s\n", chat.transcript)
	}

	for {
		fmt.Fprint(out, "\n> ")
		if !reader.Scan() {
			break
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		if result := chat.handleSlashCommand(line); result.Handled {
			if result.Output != "" {
				fmt.Fprintln(out, result.Output)
			}
			if result.Quit {
				return nil
			}
			continue
		}
		printer := newStreamPrinter(out, errOut, chat.opts.Verbose)
		if err := chat.runTurn(ctx, line, printer); err != nil {
			fmt.Fprintln(errOut, formatChatError(err))
		}
	}
	return reader.Err()
}

// runTurn sends one line and prints the reply until the generation ends.
// SIGINT interrupts the reply instead of killing the process.
func (c *chatSession) runTurn(ctx context.Context, line string, printer *streamPrinter) error {
	changes, stopWatch := c.pane.Watch()
	defer stopWatch()

	streamID, done, err := c.send(ctx, line)
	if err != nil {
		return err
	}
	stopInterrupt := withInterrupt(func() {
		result := c.interrupt()
		go func() {
			if err := <-result; err != nil {
				printer.Warn(formatChatError(err))
			}
		}()
	})
	defer stopInterrupt()

	for {
		select {
		case <-changes:
			if message, ok := c.pane.Message(streamID); ok {
				printer.Update(message)
			}
		case generation := <-done:
			message, _ := c.pane.Message(streamID)
			printer.Update(message)
			printer.Finish()
			if pending := c.pane.PendingCount(); pending > 0 {
				printer.Warn(fmt.Sprintf("%d proposed change set(s) pending; /changes to review", pending))
			}
			if generation.Err != nil {
				c.logger.Debug("generation ended with error", "stream_id", streamID, "error", generation.Err)
			}
			return nil
		}
	}
}

// withInterrupt calls onInterrupt on every SIGINT until the returned stop runs.
func withInterrupt(onInterrupt func()) func() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-interrupt:
				onInterrupt()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(interrupt)
		close(done)
	}
}

// formatChatError normalizes engine and transport errors for terminal output.
func formatChatError(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *openai.APIError
	switch {
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, stream.ErrNoActiveStream):
		return "Nothing to interrupt."
	case errors.Is(err, stream.ErrInterruptFailed):
		return "Interrupt request failed: " + err.Error()
	case errors.As(err, &apiErr):
		return fmt.Sprintf("Gateway returned %d: %s", apiErr.StatusCode, truncateForDisplay(compactWhitespace(apiErr.Body), 240))
	default:
		return err.Error()
	}
}

// formatOpenFiles lists the edit context.
func formatOpenFiles(files []stream.FileContext) string {
	if len(files) == 0 {
		return "No open files."
	}
	lines := make([]string, 0, len(files))
	for _, file := range files {
		lines = append(lines, fmt.Sprintf("%s (%d bytes)", file.Path, len(file.Content)))
	}
	return strings.Join(lines, "\n")
}

// formatChanges renders pending change sets, patches included.
func formatChanges(sets [][]stream.ProposedChange) string {
	if len(sets) == 0 {
		return "No pending changes."
	}
	var builder strings.Builder
	for index, changes := range sets {
		if index > 0 {
			builder.WriteString("\n")
		}
		fmt.Fprintf(&builder, "Change set %d:\n", index+1)
		for _, change := range changes {
			fmt.Fprintf(&builder, "  %s (+%d -%d)\n", change.Path, change.LinesAdded, change.LinesRemoved)
			if change.Patch != "" {
				for _, line := range strings.Split(strings.TrimRight(change.Patch, "\n"), "\n") {
					builder.WriteString("    " + line + "\n")
				}
			}
		}
	}
	return strings.TrimRight(builder.String(), "\n")
}

// formatStats renders conversation stats on one line.
func formatStats(stats stream.Stats) string {
	return fmt.Sprintf("messages:%d user:%d assistant:%d errors:%d tools:%d tokens:~%d",
		stats.Messages, stats.UserMessages, stats.AssistantMessages, stats.ErrorMessages, stats.ToolCalls, stats.EstimatedTokens)
}

// isTerminal reports whether file is attached to a TTY.
func isTerminal(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}
