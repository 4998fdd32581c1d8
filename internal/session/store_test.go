package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaude/streamhub/internal/pane"
	"github.com/openclaude/streamhub/internal/stream"
	"github.com/openclaude/streamhub/internal/testutil"
)

// TestRecorderRoundTripsChunkShapes verifies every chunk shape survives capture.
func TestRecorderRoundTripsChunkShapes(testingHandle *testing.T) {
	// Arrange.
	store, err := NewStore(testingHandle.TempDir())
	require.NoError(testingHandle, err)
	recorder := store.Recorder("t1")

	// Act.
	require.NoError(testingHandle, recorder.RecordStart("s1", "chat"))
	require.NoError(testingHandle, recorder.Record("s1", testutil.ContentChunk("hi")))
	require.NoError(testingHandle, recorder.Record("s1", json.RawMessage(`{"type":"tool_start","id":"t","name":"ls"}`)))
	require.NoError(testingHandle, recorder.Record("s1", []byte("not json")))
	require.NoError(testingHandle, recorder.Record("s1", map[string]any{"choices": []any{}}))
	require.NoError(testingHandle, recorder.RecordEnd("s1", errors.New("reset")))

	// Assert.
	entries, err := store.Load("t1")
	require.NoError(testingHandle, err)
	streams := GroupStreams(entries)
	require.Len(testingHandle, streams, 1)
	recorded := streams[0]
	assert.Equal(testingHandle, "chat", recorded.ConsumerID)
	assert.True(testingHandle, recorded.Ended)
	assert.Equal(testingHandle, "reset", recorded.Error)
	require.Len(testingHandle, recorded.Chunks, 4)
	assert.Equal(testingHandle, testutil.ContentChunk("hi"), recorded.Chunks[0])
	assert.JSONEq(testingHandle, `{"type":"tool_start","id":"t","name":"ls"}`, string(recorded.Chunks[1].(json.RawMessage)))
	assert.Equal(testingHandle, "not json", recorded.Chunks[2])
	assert.JSONEq(testingHandle, `{"choices":[]}`, string(recorded.Chunks[3].(json.RawMessage)))
}

// TestLoadEntriesSkipsMalformedLines verifies partial writes do not break loading.
func TestLoadEntriesSkipsMalformedLines(testingHandle *testing.T) {
	path := filepath.Join(testingHandle.TempDir(), "broken.jsonl")
	content := `{"type":"chunk","stream_id":"s","text":"ok"}` + "\n{not json\n\n"
	require.NoError(testingHandle, os.WriteFile(path, []byte(content), 0o600))

	entries, err := LoadEntries(path)

	require.NoError(testingHandle, err)
	require.Len(testingHandle, entries, 1)
	assert.Equal(testingHandle, "ok", entries[0].Chunk())
}

// TestReplayReproducesMessages verifies recorded streams replay through a router.
func TestReplayReproducesMessages(testingHandle *testing.T) {
	router := stream.NewRouter()
	host := pane.New("replay", pane.KindChat)
	recorded := RecordedStream{StreamID: "s1", Chunks: []any{
		testutil.ContentChunk("Hel"),
		testutil.ContentChunk("lo"),
		testutil.DoneChunk,
		testutil.ContentChunk(" late"),
	}}

	require.NoError(testingHandle, Replay(router, recorded, host))

	message, ok := host.Message("s1")
	require.True(testingHandle, ok)
	assert.Equal(testingHandle, "Hello", message.Content)
	assert.False(testingHandle, message.IsStreaming)
	assert.False(testingHandle, router.IsAnyActive())
}

// TestReplayRoutesRecordedError verifies a recorded failure is re-applied.
func TestReplayRoutesRecordedError(testingHandle *testing.T) {
	router := stream.NewRouter()
	host := pane.New("replay", pane.KindChat)

	require.NoError(testingHandle, Replay(router, RecordedStream{StreamID: "s2", Chunks: []any{"x"}, Error: "reset"}, host))

	message, _ := host.Message("s2")
	assert.Equal(testingHandle, "x\n\n[Error: reset]", message.Content)
	assert.Equal(testingHandle, stream.RoleError, message.Role)
}

// TestListTranscriptsNewestFirst verifies listing and limits.
func TestListTranscriptsNewestFirst(testingHandle *testing.T) {
	store, err := NewStore(testingHandle.TempDir())
	require.NoError(testingHandle, err)
	require.NoError(testingHandle, store.Recorder("a").Record("s", "x"))
	require.NoError(testingHandle, store.Recorder("b").Record("s", "y"))

	ids, err := store.ListTranscripts(0)
	require.NoError(testingHandle, err)
	assert.ElementsMatch(testingHandle, []string{"a", "b"}, ids)

	limited, err := store.ListTranscripts(1)
	require.NoError(testingHandle, err)
	assert.Len(testingHandle, limited, 1)
}

// TestAppendEntryRequiresID verifies the id guard.
func TestAppendEntryRequiresID(testingHandle *testing.T) {
	store, err := NewStore(testingHandle.TempDir())
	require.NoError(testingHandle, err)

	assert.ErrorIs(testingHandle, store.AppendEntry("", Entry{}), ErrTranscriptIDRequired)
}
