// Package session records raw stream chunks as JSONL transcripts for replay.
package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// Entry types stored in a transcript.
const (
	EntryStreamStart = "stream_start"
	EntryChunk       = "chunk"
	EntryStreamEnd   = "stream_end"
)

// ErrTranscriptIDRequired is returned for an empty transcript id.
var ErrTranscriptIDRequired = errors.New("transcript id required")

// Entry is one transcript line.
type Entry struct {
	// Type is one of the Entry* constants.
	Type string `json:"type"`
	// StreamID is the stream the entry belongs to.
	StreamID string `json:"stream_id"`
	// ConsumerID names the consumer on stream_start entries.
	ConsumerID string `json:"consumer_id,omitempty"`
	// Text holds string chunks verbatim.
	Text *string `json:"text,omitempty"`
	// JSON holds structured chunks.
	JSON json.RawMessage `json:"json,omitempty"`
	// Error holds the transport error on stream_end entries.
	Error string `json:"error,omitempty"`
	// At is the capture time.
	At time.Time `json:"at"`
}

// Chunk returns the raw chunk the entry captured, in the shape the decoder accepts.
func (e Entry) Chunk() any {
	if e.Text != nil {
		return *e.Text
	}
	if len(e.JSON) > 0 && string(e.JSON) != "null" {
		return e.JSON
	}
	return nil
}

// Store manages transcripts under a base directory.
type Store struct {
	// BaseDir is the root for all transcripts.
	BaseDir string
	// mu serializes appends from concurrent streams.
	mu sync.Mutex
}

// NewStore constructs a Store rooted at dir, or ~/.streamhub/transcripts when dir is empty.
func NewStore(dir string) (*Store, error) {
	if dir != "" {
		return &Store{BaseDir: dir}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	return &Store{BaseDir: filepath.Join(home, ".streamhub", "transcripts")}, nil
}

// TranscriptPath returns the JSONL path for a transcript.
func (s *Store) TranscriptPath(transcriptID string) string {
	return filepath.Join(s.BaseDir, transcriptID+".jsonl")
}

// AppendEntry writes one entry to a transcript.
func (s *Store) AppendEntry(transcriptID string, entry Entry) error {
	if transcriptID == "" {
		return ErrTranscriptIDRequired
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal transcript entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.TranscriptPath(transcriptID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write transcript entry: %w", err)
	}
	return nil
}

// LoadEntries reads every entry of a transcript file. Malformed lines are skipped.
func LoadEntries(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	const maxEntrySize = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxEntrySize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript file: %w", err)
	}
	return entries, nil
}

// Load reads a transcript by id.
func (s *Store) Load(transcriptID string) ([]Entry, error) {
	return LoadEntries(s.TranscriptPath(transcriptID))
}

// ListTranscripts returns transcript ids sorted by modification time, newest first.
func (s *Store) ListTranscripts(limit int) ([]string, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return nil, err
	}

	type entry struct {
		Name string
		Time time.Time
	}

	var list []entry
	for _, item := range entries {
		if item.IsDir() || filepath.Ext(item.Name()) != ".jsonl" {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(item.Name(), filepath.Ext(item.Name()))
		list = append(list, entry{Name: name, Time: info.ModTime()})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Time.After(list[j].Time)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	result := make([]string, 0, len(list))
	for _, item := range list {
		result = append(result, item.Name)
	}
	return result, nil
}

// Recorder appends chunks of many streams to one transcript.
type Recorder struct {
	// store owns the file.
	store *Store
	// transcriptID names the file.
	transcriptID string
}

// Recorder returns a recorder writing to transcriptID.
func (s *Store) Recorder(transcriptID string) *Recorder {
	return &Recorder{store: s, transcriptID: transcriptID}
}

// TranscriptID returns the transcript the recorder writes to.
func (r *Recorder) TranscriptID() string {
	return r.transcriptID
}

// RecordStart marks the beginning of a stream.
func (r *Recorder) RecordStart(streamID string, consumerID string) error {
	return r.store.AppendEntry(r.transcriptID, Entry{Type: EntryStreamStart, StreamID: streamID, ConsumerID: consumerID})
}

// Record captures one raw chunk.
func (r *Recorder) Record(streamID string, raw any) error {
	entry := Entry{Type: EntryChunk, StreamID: streamID}
	switch typed := raw.(type) {
	case string:
		entry.Text = &typed
	case json.RawMessage:
		entry.JSON, entry.Text = captureBytes(typed)
	case []byte:
		entry.JSON, entry.Text = captureBytes(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Errorf("encode chunk: %w", err)
		}
		entry.JSON = encoded
	}
	return r.store.AppendEntry(r.transcriptID, entry)
}

// RecordEnd marks the end of a stream with its transport error, if any.
func (r *Recorder) RecordEnd(streamID string, cause error) error {
	entry := Entry{Type: EntryStreamEnd, StreamID: streamID}
	if cause != nil {
		entry.Error = cause.Error()
	}
	return r.store.AppendEntry(r.transcriptID, entry)
}

// captureBytes keeps valid JSON as JSON and everything else as text.
func captureBytes(data []byte) (json.RawMessage, *string) {
	if !gjson.ValidBytes(data) {
		text := string(data)
		return nil, &text
	}
	return append(json.RawMessage(nil), data...), nil
}
