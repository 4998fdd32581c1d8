// Package pane provides the in-memory message collections that streams write into.
package pane

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/openclaude/streamhub/internal/stream"
)

// Kind names the surface a pane backs.
type Kind string

const (
	// KindChat is a multi-turn chat surface.
	KindChat Kind = "chat"
	// KindModal is an inline edit modal.
	KindModal Kind = "modal"
	// KindQuery is a one-shot query generation request.
	KindQuery Kind = "query"
)

// ErrMessageExists is returned when a message id is already present.
var ErrMessageExists = errors.New("message already exists")

var (
	_ stream.Consumer      = (*Pane)(nil)
	_ stream.Workspace     = (*Pane)(nil)
	_ stream.StatsRecorder = (*Pane)(nil)
	_ sync.Locker          = (*Pane)(nil)
)

// Pane is an id-indexed message collection implementing stream.Consumer,
// stream.Workspace and stream.StatsRecorder. The engine locks it through
// Lock and Unlock; every other exported method locks internally.
type Pane struct {
	// mu guards all fields below.
	mu sync.Mutex
	// id names the pane.
	id string
	// kind is the surface this pane backs.
	kind Kind
	// messages is the history in insertion order.
	messages []*stream.Message
	// index maps message id to message.
	index map[string]*stream.Message
	// files are the open file contexts.
	files []stream.FileContext
	// pending holds change sets awaiting review.
	pending [][]stream.ProposedChange
	// stats is the latest recorded stats.
	stats stream.Stats
	// version increments on every notification.
	version atomic.Uint64
	// watchersMu guards watchers.
	watchersMu sync.Mutex
	// watchers receive coalesced change signals.
	watchers map[int]chan struct{}
	// nextWatcher allocates watcher keys.
	nextWatcher int
}

// New creates an empty pane. An empty id gets a generated one.
func New(id string, kind Kind) *Pane {
	if id == "" {
		id = uuid.NewString()
	}
	if kind == "" {
		kind = KindChat
	}
	return &Pane{
		id:       id,
		kind:     kind,
		index:    make(map[string]*stream.Message),
		watchers: make(map[int]chan struct{}),
	}
}

// Lock acquires the pane lock for the engine.
func (p *Pane) Lock() { p.mu.Lock() }

// Unlock releases the pane lock.
func (p *Pane) Unlock() { p.mu.Unlock() }

// ID returns the pane id.
func (p *Pane) ID() string { return p.id }

// Kind returns the pane kind.
func (p *Pane) Kind() Kind { return p.kind }

// FindMessage returns the message with id. The caller holds the lock.
func (p *Pane) FindMessage(id string) *stream.Message {
	return p.index[id]
}

// Messages returns the history. The caller holds the lock.
func (p *Pane) Messages() []*stream.Message {
	return p.messages
}

// NotifyMutated bumps the version and signals watchers without blocking.
func (p *Pane) NotifyMutated() {
	p.version.Add(1)
	p.watchersMu.Lock()
	defer p.watchersMu.Unlock()
	for _, watcher := range p.watchers {
		select {
		case watcher <- struct{}{}:
		default:
		}
	}
}

// Version returns how many notifications the pane has received.
func (p *Pane) Version() uint64 {
	return p.version.Load()
}

// Watch returns a channel signalled after mutations and a cancel function.
// Signals coalesce; readers should re-snapshot on every receive.
func (p *Pane) Watch() (<-chan struct{}, func()) {
	signal := make(chan struct{}, 1)
	p.watchersMu.Lock()
	key := p.nextWatcher
	p.nextWatcher++
	p.watchers[key] = signal
	p.watchersMu.Unlock()

	var once sync.Once
	return signal, func() {
		once.Do(func() {
			p.watchersMu.Lock()
			delete(p.watchers, key)
			p.watchersMu.Unlock()
		})
	}
}

// AddUser appends a user message and returns a copy of it.
func (p *Pane) AddUser(content string) stream.Message {
	message := &stream.Message{ID: uuid.NewString(), Role: stream.RoleUser, Content: content}
	p.mu.Lock()
	p.appendLocked(message)
	copied := message.Clone()
	p.mu.Unlock()
	p.NotifyMutated()
	return copied
}

// BeginAssistant appends the streaming placeholder for streamID.
func (p *Pane) BeginAssistant(streamID string) error {
	p.mu.Lock()
	if _, exists := p.index[streamID]; exists {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMessageExists, streamID)
	}
	p.appendLocked(stream.NewStreamingMessage(streamID))
	p.mu.Unlock()
	p.NotifyMutated()
	return nil
}

// appendLocked stores a message. The caller holds the lock.
func (p *Pane) appendLocked(message *stream.Message) {
	p.messages = append(p.messages, message)
	p.index[message.ID] = message
}

// Snapshot returns deep copies of every message.
func (p *Pane) Snapshot() []stream.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := make([]stream.Message, len(p.messages))
	for index, message := range p.messages {
		snapshot[index] = message.Clone()
	}
	return snapshot
}

// Message returns a copy of the message with id.
func (p *Pane) Message(id string) (stream.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	message, ok := p.index[id]
	if !ok {
		return stream.Message{}, false
	}
	return message.Clone(), true
}

// Streaming reports whether any message in the pane is still streaming.
func (p *Pane) Streaming() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, message := range p.messages {
		if message.IsStreaming {
			return true
		}
	}
	return false
}

// SetOpenFiles replaces the open file contexts.
func (p *Pane) SetOpenFiles(files []stream.FileContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files = append([]stream.FileContext(nil), files...)
}

// OpenFiles returns the open file contexts.
func (p *Pane) OpenFiles() []stream.FileContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]stream.FileContext(nil), p.files...)
}

// ReviewChanges queues a change set for review.
func (p *Pane) ReviewChanges(changes []stream.ProposedChange) {
	p.mu.Lock()
	p.pending = append(p.pending, append([]stream.ProposedChange(nil), changes...))
	p.mu.Unlock()
	p.NotifyMutated()
}

// TakePendingChanges returns and clears queued change sets.
func (p *Pane) TakePendingChanges() [][]stream.ProposedChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending := p.pending
	p.pending = nil
	return pending
}

// PendingCount reports how many change sets await review.
func (p *Pane) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// RecordStats stores the latest stats.
func (p *Pane) RecordStats(stats stream.Stats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = stats
}

// Stats returns the latest recorded stats.
func (p *Pane) Stats() stream.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
