package testutil

import (
	"context"
	"sync"
)

// FakeInterrupter records interrupt requests and returns a scripted outcome.
type FakeInterrupter struct {
	// Err is returned from every call.
	Err error
	// Release, when non-nil, blocks each call until it is closed or the context ends.
	Release chan struct{}
	// mu guards calls.
	mu sync.Mutex
	// calls lists requested stream ids.
	calls []string
}

// Interrupt records the call and returns Err.
func (f *FakeInterrupter) Interrupt(ctx context.Context, streamID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, streamID)
	f.mu.Unlock()
	if f.Release != nil {
		select {
		case <-f.Release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.Err
}

// Calls returns the stream ids interrupted so far.
func (f *FakeInterrupter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
