package stream

import (
	"sync"
	"sync/atomic"
)

// recordingConsumer is an in-memory Consumer guarded by its own mutex.
type recordingConsumer struct {
	sync.Mutex
	// id names the consumer.
	id string
	// messages is the history, guarded by the embedded mutex.
	messages []*Message
	// notified counts NotifyMutated calls.
	notified atomic.Int32
	// onNotify runs inside NotifyMutated when set.
	onNotify func()
}

// newRecordingConsumer builds a consumer seeded with history.
func newRecordingConsumer(id string, history ...*Message) *recordingConsumer {
	return &recordingConsumer{id: id, messages: history}
}

func (c *recordingConsumer) ID() string { return c.id }

func (c *recordingConsumer) FindMessage(id string) *Message {
	for _, message := range c.messages {
		if message.ID == id {
			return message
		}
	}
	return nil
}

func (c *recordingConsumer) Messages() []*Message { return c.messages }

func (c *recordingConsumer) NotifyMutated() {
	c.notified.Add(1)
	if c.onNotify != nil {
		c.onNotify()
	}
}

// startStream appends a streaming placeholder for streamID.
func (c *recordingConsumer) startStream(streamID string) {
	c.Lock()
	defer c.Unlock()
	c.messages = append(c.messages, NewStreamingMessage(streamID))
}

// snapshot returns a copy of the message with the given id.
func (c *recordingConsumer) snapshot(id string) Message {
	c.Lock()
	defer c.Unlock()
	return c.FindMessage(id).Clone()
}

// notifications returns how many times the consumer was notified.
func (c *recordingConsumer) notifications() int {
	return int(c.notified.Load())
}

// workspaceConsumer adds files, review and stats to recordingConsumer.
type workspaceConsumer struct {
	*recordingConsumer
	// mu guards the slices below.
	mu sync.Mutex
	// files are returned from OpenFiles.
	files []FileContext
	// reviewed records every ReviewChanges call.
	reviewed [][]ProposedChange
	// recorded records every RecordStats call.
	recorded []Stats
}

func (w *workspaceConsumer) OpenFiles() []FileContext {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]FileContext(nil), w.files...)
}

func (w *workspaceConsumer) ReviewChanges(changes []ProposedChange) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reviewed = append(w.reviewed, changes)
}

func (w *workspaceConsumer) RecordStats(stats Stats) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recorded = append(w.recorded, stats)
}

// userMessage builds a user history entry.
func userMessage(id, content string) *Message {
	return &Message{ID: id, Role: RoleUser, Content: content}
}

// activityLog records activity hook transitions.
type activityLog struct {
	mu      sync.Mutex
	entries []bool
}

func (a *activityLog) record(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, active)
}

func (a *activityLog) snapshot() []bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]bool(nil), a.entries...)
}
