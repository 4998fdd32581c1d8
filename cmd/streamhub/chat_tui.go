package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/openclaude/streamhub/internal/agent"
	"github.com/openclaude/streamhub/internal/stream"
)

// paneChangedMsg signals that the chat pane mutated.
type paneChangedMsg struct{}

// generationDoneMsg signals the end of the running generation.
type generationDoneMsg struct {
	// Generation is the launcher outcome.
	Generation agent.Generation
}

// interruptResultMsg carries the upstream interrupt outcome.
type interruptResultMsg struct {
	// Err is nil when the gateway accepted the interrupt.
	Err error
}

// systemNotice is a local line shown in the conversation.
type systemNotice struct {
	// Content is the notice text.
	Content string
	// After is the number of pane messages preceding the notice.
	After int
}

// tuiModel drives the interactive terminal UI.
type tuiModel struct {
	// chat is the bound session.
	chat *chatSession
	// notices are slash-command outputs interleaved with the conversation.
	notices []systemNotice
	// inputHistory stores prior user inputs for recall.
	inputHistory []string
	// historyIndex tracks the active position in inputHistory.
	historyIndex int
	// historyDraft preserves the in-progress input when browsing history.
	historyDraft string
	// chatView renders the conversation.
	chatView viewport.Model
	// activityView renders tool calls and pending edits.
	activityView viewport.Model
	// input collects user input for new turns.
	input textarea.Model
	// markdownRenderer formats finalized replies when available.
	markdownRenderer *glamour.TermRenderer
	// statusText is the bottom status line.
	statusText string
	// chatAutoScroll keeps the chat viewport pinned to the bottom.
	chatAutoScroll bool
	// activityAutoScroll keeps the activity viewport pinned to the bottom.
	activityAutoScroll bool
	// width tracks the terminal width.
	width int
	// height tracks the terminal height.
	height int
	// activePane identifies which pane is focused.
	activePane string
	// streamID is the running generation, empty when idle.
	streamID string
	// streamCh delivers pane and generation messages into the update loop.
	streamCh chan tea.Msg
	// quitting indicates a user-requested exit.
	quitting bool
}

// runChatTUI starts the full-screen terminal UI.
func runChatTUI(chat *chatSession) error {
	program := tea.NewProgram(newTUIModel(chat), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// newTUIModel constructs the initial TUI model state.
func newTUIModel(chat *chatSession) *tuiModel {
	input := textarea.New()
	input.Placeholder = "Type a message... (/help for commands)"
	input.Focus()
	input.CharLimit = 0
	input.Prompt = "> "
	input.SetHeight(3)
	input.SetWidth(20)

	chatView := viewport.New(20, 10)
	activityView := viewport.New(20, 10)
	activityView.SetContent("No activity yet.")

	var renderer *glamour.TermRenderer
	if glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle()); err == nil {
		renderer = glam
	}

	modelState := &tuiModel{
		chat:               chat,
		chatView:           chatView,
		activityView:       activityView,
		input:              input,
		markdownRenderer:   renderer,
		statusText:         "Enter: send | Alt+Enter: newline | Ctrl+P/N: history | Tab: panes | Ctrl+C: interrupt | Ctrl+Q: quit",
		activePane:         "input",
		chatAutoScroll:     true,
		activityAutoScroll: true,
	}
	if chat.transcript != "" {
		modelState.addNotice("Recording chunks to " + chat.transcript)
	}
	return modelState
}

// Init starts the blinking cursor for the input field.
func (m *tuiModel) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles UI events and streaming updates.
func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.applyWindowSize(typed)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	case paneChangedMsg:
		m.refreshChat()
		m.refreshActivity()
		return m, m.listenStream()
	case generationDoneMsg:
		m.finishRun(typed.Generation)
		return m, nil
	case interruptResultMsg:
		if typed.Err != nil {
			m.statusText = formatChatError(typed.Err)
		} else {
			m.statusText = "Interrupted."
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the full UI layout.
func (m *tuiModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.renderBody(), m.renderInput(), m.renderStatus())
}

// handleKey routes keyboard input and command submission.
func (m *tuiModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		if m.running() {
			m.statusText = "Interrupting..."
			return m, waitInterrupt(m.chat.interrupt())
		}
		m.quitting = true
		return m, tea.Quit
	case "ctrl+q":
		if m.running() {
			m.chat.interrupt()
		}
		m.quitting = true
		return m, tea.Quit
	case "tab":
		m.cyclePane(1)
		return m, nil
	case "shift+tab":
		m.cyclePane(-1)
		return m, nil
	case "esc":
		m.setActivePane("input")
		return m, nil
	case "pgup":
		m.scrollActivePane(-10)
		return m, nil
	case "pgdown":
		m.scrollActivePane(10)
		return m, nil
	case "home":
		m.gotoActivePaneTop()
		return m, nil
	case "end":
		m.gotoActivePaneBottom()
		return m, nil
	case "ctrl+p":
		if m.activePane == "input" {
			m.cycleInputHistory(-1)
			return m, nil
		}
	case "ctrl+n":
		if m.activePane == "input" {
			m.cycleInputHistory(1)
			return m, nil
		}
	}

	if key.Type == tea.KeyEnter {
		if key.Alt {
			m.input.InsertString("\n")
			return m, nil
		}
		return m.submitInput()
	}

	if key.String() == "ctrl+j" {
		m.input.InsertString("\n")
		return m, nil
	}

	if m.activePane != "input" {
		switch key.String() {
		case "up", "left":
			m.scrollActivePane(-1)
			return m, nil
		case "down", "right":
			m.scrollActivePane(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// running reports whether a generation is in flight.
func (m *tuiModel) running() bool {
	return m.streamID != ""
}

// submitInput sends the current input as a new user message.
func (m *tuiModel) submitInput() (tea.Model, tea.Cmd) {
	if m.running() {
		m.statusText = "Wait for the current response or interrupt with Ctrl+C."
		return m, nil
	}
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	m.input.SetValue("")
	m.statusText = ""
	m.appendInputHistory(value)

	if result := m.chat.handleSlashCommand(value); result.Handled {
		if result.Quit {
			m.quitting = true
			return m, tea.Quit
		}
		m.addNotice(result.Output)
		m.refreshChat()
		m.refreshActivity()
		return m, nil
	}

	changes, stopWatch := m.chat.pane.Watch()
	streamID, done, err := m.chat.send(context.Background(), value)
	if err != nil {
		stopWatch()
		m.statusText = formatChatError(err)
		m.refreshChat()
		return m, nil
	}
	m.streamID = streamID
	m.statusText = "Streaming..."
	m.streamCh = make(chan tea.Msg, 16)
	go bridgeStream(changes, stopWatch, done, m.streamCh)
	m.refreshChat()
	return m, m.listenStream()
}

// bridgeStream forwards pane changes and the generation outcome into streamCh.
func bridgeStream(changes <-chan struct{}, stopWatch func(), done <-chan agent.Generation, streamCh chan<- tea.Msg) {
	defer close(streamCh)
	defer stopWatch()
	for {
		select {
		case <-changes:
			streamCh <- paneChangedMsg{}
		case generation := <-done:
			streamCh <- generationDoneMsg{Generation: generation}
			return
		}
	}
}

// waitInterrupt turns an interrupt outcome into a UI message.
func waitInterrupt(result <-chan error) tea.Cmd {
	return func() tea.Msg {
		return interruptResultMsg{Err: <-result}
	}
}

// listenStream waits for the next streaming message.
func (m *tuiModel) listenStream() tea.Cmd {
	streamCh := m.streamCh
	if streamCh == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-streamCh
		if !ok {
			return nil
		}
		return msg
	}
}

// finishRun marks the session idle and refreshes every pane.
func (m *tuiModel) finishRun(generation agent.Generation) {
	m.streamID = ""
	m.streamCh = nil
	if m.statusText == "Streaming..." {
		m.statusText = ""
	}
	if pending := m.chat.pane.PendingCount(); pending > 0 {
		m.statusText = fmt.Sprintf("%d proposed change set(s) pending; /changes to review", pending)
	}
	if generation.Err != nil {
		m.chat.logger.Debug("generation ended with error", "stream_id", generation.StreamID, "error", generation.Err)
	}
	m.refreshChat()
	m.refreshActivity()
}

// appendInputHistory records an input line for history navigation.
func (m *tuiModel) appendInputHistory(value string) {
	if value == "" {
		return
	}
	m.inputHistory = append(m.inputHistory, value)
	if len(m.inputHistory) > 200 {
		m.inputHistory = m.inputHistory[len(m.inputHistory)-200:]
	}
	m.historyIndex = len(m.inputHistory)
	m.historyDraft = ""
}

// cycleInputHistory moves the input buffer through stored history entries.
func (m *tuiModel) cycleInputHistory(delta int) {
	if len(m.inputHistory) == 0 {
		return
	}
	if m.historyIndex == len(m.inputHistory) {
		m.historyDraft = m.input.Value()
	}
	m.historyIndex = min(max(m.historyIndex+delta, 0), len(m.inputHistory))
	if m.historyIndex == len(m.inputHistory) {
		m.input.SetValue(m.historyDraft)
		return
	}
	m.input.SetValue(m.inputHistory[m.historyIndex])
}

// addNotice records a local line after the current conversation.
func (m *tuiModel) addNotice(content string) {
	if content == "" {
		return
	}
	m.notices = append(m.notices, systemNotice{Content: content, After: len(m.chat.pane.Snapshot())})
}

// refreshChat rebuilds the chat viewport from a pane snapshot.
func (m *tuiModel) refreshChat() {
	m.chatView.SetContent(m.renderConversation(m.chat.pane.Snapshot()))
	if m.chatAutoScroll {
		m.chatView.GotoBottom()
	}
}

// renderConversation interleaves messages and notices.
func (m *tuiModel) renderConversation(messages []stream.Message) string {
	var builder strings.Builder
	notice := 0
	for index := 0; index <= len(messages); index++ {
		for notice < len(m.notices) && m.notices[notice].After == index {
			builder.WriteString(m.renderLabelled("system", m.notices[notice].Content))
			builder.WriteString("\n\n")
			notice++
		}
		if index == len(messages) {
			break
		}
		builder.WriteString(m.renderMessage(messages[index]))
		builder.WriteString("\n\n")
	}
	return builder.String()
}

// refreshActivity rebuilds the activity viewport content.
func (m *tuiModel) refreshActivity() {
	var lines []string
	for _, message := range m.chat.pane.Snapshot() {
		for _, call := range message.ToolCalls {
			status := string(call.Status)
			if status == "" {
				status = "requested"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", call.Function.Name, status))
			if summary := summarizeToolOutput(call.ResultPreview, 160); summary != "" {
				lines = append(lines, "  "+summary)
			}
		}
	}
	if pending := m.chat.pane.PendingCount(); pending > 0 {
		lines = append(lines, fmt.Sprintf("%d change set(s) pending", pending))
	}
	if files := m.chat.pane.OpenFiles(); len(files) > 0 {
		lines = append(lines, fmt.Sprintf("%d open file(s)", len(files)))
	}
	if len(lines) == 0 {
		m.activityView.SetContent("No activity yet.")
		return
	}
	if len(lines) > 200 {
		lines = lines[len(lines)-200:]
	}
	m.activityView.SetContent(strings.Join(lines, "\n"))
	if m.activityAutoScroll {
		m.activityView.GotoBottom()
	}
}

// applyWindowSize recalculates the layout for a new window size.
func (m *tuiModel) applyWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 1
	statusHeight := 1
	inputHeight := m.input.Height()
	bodyHeight := max(m.height-headerHeight-statusHeight-inputHeight, 4)

	activityWidth := min(max(24, m.width/4), 60)
	chatWidth := m.width - activityWidth - 3
	if chatWidth < 20 {
		chatWidth = 20
		activityWidth = max(20, m.width-chatWidth-3)
	}

	m.chatView.Width = chatWidth - 2
	m.chatView.Height = bodyHeight - 2
	m.activityView.Width = activityWidth - 2
	m.activityView.Height = bodyHeight - 2
	m.input.SetWidth(m.width - 2)

	m.refreshChat()
	m.refreshActivity()
}

// renderHeader builds the top status line.
func (m *tuiModel) renderHeader() string {
	style := lipgloss.NewStyle().Bold(true)
	header := fmt.Sprintf("StreamHub | pane %s | model %s", m.chat.pane.ID(), m.chat.model)
	if m.chat.active.Load() {
		header += " | streaming"
	}
	return style.Render(padRight(header, m.width))
}

// renderBody composes the chat and activity panes.
func (m *tuiModel) renderBody() string {
	chat := m.renderPane("Conversation", m.chatView.View(), m.chatView.Width+2)
	activity := m.renderPane("Activity", m.activityView.View(), m.activityView.Width+2)
	return lipgloss.JoinHorizontal(lipgloss.Top, chat, activity)
}

// setActivePane updates focus and input state for the requested pane.
func (m *tuiModel) setActivePane(pane string) {
	switch pane {
	case "chat", "activity":
		m.activePane = pane
		m.input.Blur()
	default:
		m.activePane = "input"
		m.input.Focus()
	}
}

// cyclePane moves focus between input, chat, and activity.
func (m *tuiModel) cyclePane(delta int) {
	order := []string{"input", "chat", "activity"}
	index := 0
	for i, name := range order {
		if name == m.activePane {
			index = i
			break
		}
	}
	next := (index + delta) % len(order)
	if next < 0 {
		next += len(order)
	}
	m.setActivePane(order[next])
}

// scrollActivePane scrolls the currently focused pane.
func (m *tuiModel) scrollActivePane(delta int) {
	switch m.activePane {
	case "activity":
		m.activityAutoScroll = false
		if delta > 0 {
			m.activityView.LineDown(delta)
		} else {
			m.activityView.LineUp(-delta)
		}
	case "chat":
		m.chatAutoScroll = false
		if delta > 0 {
			m.chatView.LineDown(delta)
		} else {
			m.chatView.LineUp(-delta)
		}
	}
}

// gotoActivePaneTop moves the active pane to the top.
func (m *tuiModel) gotoActivePaneTop() {
	switch m.activePane {
	case "activity":
		m.activityView.GotoTop()
		m.activityAutoScroll = false
	case "chat":
		m.chatView.GotoTop()
		m.chatAutoScroll = false
	}
}

// gotoActivePaneBottom moves the active pane to the bottom.
func (m *tuiModel) gotoActivePaneBottom() {
	switch m.activePane {
	case "activity":
		m.activityView.GotoBottom()
		m.activityAutoScroll = true
	case "chat":
		m.chatView.GotoBottom()
		m.chatAutoScroll = true
	}
}

// renderInput returns the input box rendering.
func (m *tuiModel) renderInput() string {
	style := lipgloss.NewStyle().Border(m.border()).Padding(0, 1)
	return style.Render(m.input.View())
}

// renderStatus returns the bottom status line.
func (m *tuiModel) renderStatus() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	text := m.statusText
	if text == "" {
		text = "Ready"
	}
	if info := m.renderStatusInfo(); info != "" {
		text = fmt.Sprintf("%s | %s", text, info)
	}
	return style.Render(padRight(text, m.width))
}

// renderStatusInfo assembles auxiliary status information.
func (m *tuiModel) renderStatusInfo() string {
	parts := []string{fmt.Sprintf("focus:%s", m.activePane)}
	stats := m.chat.pane.Stats()
	if stats.Messages > 0 {
		parts = append(parts, fmt.Sprintf("messages:%d", stats.Messages))
	}
	if stats.EstimatedTokens > 0 {
		parts = append(parts, fmt.Sprintf("tokens:~%d", stats.EstimatedTokens))
	}
	return strings.Join(parts, " ")
}

// renderPane formats a bordered pane with a title.
func (m *tuiModel) renderPane(title string, content string, width int) string {
	style := lipgloss.NewStyle().Border(m.border()).Padding(0, 1)
	header := fmt.Sprintf("[%s]", title)
	return style.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, header, content))
}

// renderMessage formats a pane message. Streaming replies stay raw until final.
func (m *tuiModel) renderMessage(message stream.Message) string {
	content := message.Content
	if !message.IsStreaming && message.Role != stream.RoleUser {
		content = m.renderMarkdown(content)
	}
	if message.IsStreaming && content == "" {
		content = "..."
	}
	return m.renderLabelled(string(message.Role), content)
}

// renderLabelled prefixes content with a styled role label.
func (m *tuiModel) renderLabelled(role string, content string) string {
	label := strings.ToUpper(role)
	style := lipgloss.NewStyle()
	switch role {
	case string(stream.RoleUser):
		style = style.Foreground(lipgloss.Color("39")).Bold(true)
		label = "YOU"
	case string(stream.RoleAssistant):
		style = style.Foreground(lipgloss.Color("10")).Bold(true)
	case string(stream.RoleDecision):
		style = style.Foreground(lipgloss.Color("13")).Bold(true)
	case string(stream.RoleError):
		style = style.Foreground(lipgloss.Color("9")).Bold(true)
	case "system":
		style = style.Foreground(lipgloss.Color("3"))
	}
	return fmt.Sprintf("%s\n%s", style.Render(label+":"), content)
}

// renderMarkdown converts markdown into terminal-friendly output when possible.
func (m *tuiModel) renderMarkdown(content string) string {
	if m.markdownRenderer == nil || content == "" {
		return content
	}
	rendered, err := m.markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// border defines a simple ASCII border.
func (m *tuiModel) border() lipgloss.Border {
	return lipgloss.Border{
		Top:         "-",
		Bottom:      "-",
		Left:        "|",
		Right:       "|",
		TopLeft:     "+",
		TopRight:    "+",
		BottomLeft:  "+",
		BottomRight: "+",
	}
}

// padRight pads a string with spaces to the target width.
func padRight(value string, width int) string {
	runes := []rune(value)
	if len(runes) >= width {
		return value
	}
	return value + strings.Repeat(" ", width-len(runes))
}
