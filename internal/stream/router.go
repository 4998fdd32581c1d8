package stream

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// session is one registered stream.
type session struct {
	// mu serializes chunk application and terminal transitions.
	mu sync.Mutex
	// streamID is the registry key.
	streamID string
	// consumer owns the message.
	consumer Consumer
	// state is guarded by mu.
	state SessionState
}

// Router routes transport events to the consumer that registered each stream.
// It is safe for concurrent use; events for one stream are applied in
// arrival order and events for different streams do not block each other
// beyond registry lookups.
type Router struct {
	// mu guards sessions.
	mu sync.Mutex
	// sessions maps stream id to its live session.
	sessions map[string]*session
	// activityMu serializes activity notifications.
	activityMu sync.Mutex
	// active is the last published activity flag, guarded by activityMu.
	active bool
	// onActivity observes transitions of the global activity flag.
	onActivity func(active bool)
	// decoder normalizes chunks.
	decoder *Decoder
	// coordinator finalizes completed streams.
	coordinator *Coordinator
	// errors finalizes failed streams.
	errors *ErrorHandler
	// canceller finalizes interrupted streams.
	canceller *Canceller
	// logger records routing decisions.
	logger *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger and the logger of default collaborators.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithActivityHook registers a callback for global activity transitions.
// The hook runs synchronously and must not register or terminate streams.
func WithActivityHook(hook func(active bool)) Option {
	return func(r *Router) { r.onActivity = hook }
}

// WithDecoder replaces the chunk decoder.
func WithDecoder(decoder *Decoder) Option {
	return func(r *Router) { r.decoder = decoder }
}

// WithCoordinator replaces the completion coordinator.
func WithCoordinator(coordinator *Coordinator) Option {
	return func(r *Router) { r.coordinator = coordinator }
}

// WithErrorHandler replaces the error handler.
func WithErrorHandler(handler *ErrorHandler) Option {
	return func(r *Router) { r.errors = handler }
}

// WithCanceller replaces the cancellation controller.
func WithCanceller(canceller *Canceller) Option {
	return func(r *Router) { r.canceller = canceller }
}

// NewRouter builds a router with default collaborators for anything not configured.
func NewRouter(options ...Option) *Router {
	router := &Router{sessions: make(map[string]*session)}
	for _, option := range options {
		option(router)
	}
	router.logger = orDiscard(router.logger)
	if router.decoder == nil {
		router.decoder = NewDecoder(router.logger)
	}
	if router.coordinator == nil {
		router.coordinator = NewCoordinator(CoordinatorOptions{Logger: router.logger})
	}
	if router.errors == nil {
		router.errors = NewErrorHandler("", router.logger)
	}
	if router.canceller == nil {
		router.canceller = NewCanceller(nil, Annotations{}, 0, router.logger)
	}
	return router
}

// Subscription is the handle returned by Register.
type Subscription struct {
	// router owns the session.
	router *Router
	// session is the registered entry.
	session *session
	// once makes Close idempotent.
	once sync.Once
}

// StreamID returns the registered stream id.
func (s *Subscription) StreamID() string {
	return s.session.streamID
}

// Close retires the session if it is still active. A terminal event that
// already retired it makes Close a no-op. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.router.dispose(s.session) })
}

// Register binds a stream id to a consumer.
func (r *Router) Register(streamID string, consumer Consumer) (*Subscription, error) {
	if streamID == "" || consumer == nil {
		return nil, ErrInvalidRegistration
	}
	entry := &session{streamID: streamID, consumer: consumer, state: SessionActive}

	r.mu.Lock()
	if _, exists := r.sessions[streamID]; exists {
		r.mu.Unlock()
		r.logger.Warn("duplicate stream registration rejected", "stream_id", streamID, "consumer", consumer.ID())
		return nil, fmt.Errorf("%w: %s", ErrDuplicateStream, streamID)
	}
	r.sessions[streamID] = entry
	r.mu.Unlock()

	r.logger.Debug("stream registered", "stream_id", streamID, "consumer", consumer.ID())
	r.publishActivity()
	return &Subscription{router: r, session: entry}, nil
}

// Dispatch decodes one chunk and applies it to the stream's message.
// Chunks for unknown or retired streams are dropped.
func (r *Router) Dispatch(streamID string, raw any) {
	defer r.recoverBoundary("dispatch", streamID)

	entry := r.lookup(streamID)
	if entry == nil {
		r.logger.Debug("chunk for unknown stream dropped", "stream_id", streamID)
		return
	}

	decoded := r.decoder.Decode(raw)
	switch decoded.Outcome {
	case OutcomeDropped:
		return
	case OutcomeDone:
		r.Complete(streamID)
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.state != SessionActive {
		r.logger.Debug("late chunk dropped", "stream_id", streamID, "state", entry.state.String())
		return
	}

	var message *Message
	withConsumerLock(entry.consumer, func() {
		message = entry.consumer.FindMessage(streamID)
		Apply(message, decoded.Delta)
	})
	if message == nil {
		r.logger.Debug("stream has no message", "stream_id", streamID, "consumer", entry.consumer.ID())
		return
	}
	entry.consumer.NotifyMutated()
}

// Complete finalizes a stream that ended normally.
func (r *Router) Complete(streamID string) {
	defer r.recoverBoundary("complete", streamID)
	r.terminate("complete", streamID, SessionCompleted, func(entry *session) {
		r.coordinator.Finalize(entry.consumer, streamID)
	})
}

// Error finalizes a stream that failed in the transport.
func (r *Router) Error(streamID string, cause error) {
	defer r.recoverBoundary("error", streamID)
	r.terminate("error", streamID, SessionErrored, func(entry *session) {
		r.errors.Handle(entry.consumer, &TransportError{StreamID: streamID, Err: cause})
	})
}

// Interrupt cancels one registered stream. The returned channel yields the
// upstream outcome once and is then closed; unknown ids yield ErrUnknownStream.
func (r *Router) Interrupt(streamID string) <-chan error {
	done := make(chan error, 1)
	entry := r.claim(streamID, SessionInterrupted)
	if entry == nil {
		done <- fmt.Errorf("%w: %s", ErrUnknownStream, streamID)
		close(done)
		return done
	}
	r.cancel(entry.consumer, streamID, entry, done)
	return done
}

// InterruptConsumer cancels the consumer's most recent streaming message.
// When the consumer has none, an arbitrary still-registered stream is
// cancelled so a stale activity indicator can be cleared. The local
// annotation and retirement happen before this returns; the channel yields
// the upstream outcome.
func (r *Router) InterruptConsumer(consumer Consumer) <-chan error {
	streamID := streamingMessageID(consumer)
	if streamID == "" {
		fallback := r.anyStreamID()
		if fallback == "" {
			done := make(chan error, 1)
			done <- ErrNoActiveStream
			close(done)
			r.publishActivity()
			return done
		}
		r.logger.Info("consumer has no streaming message; interrupting a registered stream", "consumer", consumer.ID(), "stream_id", fallback)
		return r.Interrupt(fallback)
	}

	done := make(chan error, 1)
	entry := r.claim(streamID, SessionInterrupted)
	target := consumer
	if entry != nil {
		target = entry.consumer
	}
	r.cancel(target, streamID, entry, done)
	return done
}

// cancel runs the local half synchronously and the upstream half in the background.
// entry, when non-nil, is locked by claim and is released here.
func (r *Router) cancel(consumer Consumer, streamID string, entry *session, done chan<- error) {
	func() {
		defer r.recoverBoundary("interrupt", streamID)
		if entry != nil {
			defer entry.mu.Unlock()
		}
		r.canceller.markInterrupted(consumer, streamID)
	}()
	r.publishActivity()

	go func() {
		defer close(done)
		done <- r.canceller.requestUpstream(consumer, streamID)
	}()
}

// IsAnyActive reports whether at least one stream is registered.
func (r *Router) IsAnyActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions) > 0
}

// ActiveStreams returns the registered stream ids in sorted order.
func (r *Router) ActiveStreams() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// lookup returns the registered session or nil.
func (r *Router) lookup(streamID string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[streamID]
}

// anyStreamID returns some registered stream id, or "".
func (r *Router) anyStreamID() string {
	ids := r.ActiveStreams()
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// claim removes a session from the registry and moves it to a terminal state.
// The returned session is locked; the caller must unlock it. Nil means the id
// was not registered.
func (r *Router) claim(streamID string, next SessionState) *session {
	r.mu.Lock()
	entry, ok := r.sessions[streamID]
	if ok {
		delete(r.sessions, streamID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	entry.mu.Lock()
	entry.state = next
	return entry
}

// terminate claims a session, runs its terminal handler and refreshes activity.
func (r *Router) terminate(op, streamID string, next SessionState, handle func(entry *session)) {
	entry := r.claim(streamID, next)
	if entry == nil {
		r.logger.Debug("terminal event for unknown stream dropped", "op", op, "stream_id", streamID)
		return
	}
	defer r.publishActivity()
	defer entry.mu.Unlock()
	defer r.recoverBoundary(op, streamID)
	handle(entry)
}

// dispose retires a session through its subscription.
func (r *Router) dispose(entry *session) {
	defer r.recoverBoundary("dispose", entry.streamID)

	r.mu.Lock()
	if current, ok := r.sessions[entry.streamID]; ok && current == entry {
		delete(r.sessions, entry.streamID)
	}
	r.mu.Unlock()

	entry.mu.Lock()
	wasActive := entry.state == SessionActive
	if wasActive {
		entry.state = SessionDisposed
	}
	entry.mu.Unlock()

	if wasActive {
		r.logger.Debug("stream disposed without terminal event", "stream_id", entry.streamID)
		r.finishSilently(entry.consumer, entry.streamID)
	}
	r.publishActivity()
}

// finishSilently ends streaming on a disposed session's message without annotation.
func (r *Router) finishSilently(consumer Consumer, streamID string) {
	changed := false
	withConsumerLock(consumer, func() {
		message := consumer.FindMessage(streamID)
		changed = message != nil && message.IsStreaming
		if changed {
			message.finish()
		}
	})
	if changed {
		consumer.NotifyMutated()
	}
}

// publishActivity reports the activity flag to the hook when it changed.
func (r *Router) publishActivity() {
	r.activityMu.Lock()
	defer r.activityMu.Unlock()
	active := r.IsAnyActive()
	if active == r.active {
		return
	}
	r.active = active
	if r.onActivity == nil {
		return
	}
	defer r.recoverBoundary("activity", "")
	r.onActivity(active)
}

// recoverBoundary keeps handler panics from escaping into the transport.
func (r *Router) recoverBoundary(op, streamID string) {
	if recovered := recover(); recovered != nil {
		r.logger.Error("stream handler panicked", "op", op, "stream_id", streamID, "panic", recovered)
	}
}
