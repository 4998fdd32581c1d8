package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openclaude/streamhub/internal/config"
	"github.com/openclaude/streamhub/internal/pane"
	"github.com/openclaude/streamhub/internal/session"
	"github.com/openclaude/streamhub/internal/stats"
	"github.com/openclaude/streamhub/internal/stream"
	"github.com/openclaude/streamhub/internal/streamjson"
)

// replayCommand replays recorded transcripts through one router.
func replayCommand(state *app) *cobra.Command {
	var sessionID string
	var stored bool
	cmd := &cobra.Command{
		Use:   "replay <transcript.jsonl|id>...",
		Short: "Replay recorded chunk transcripts and print stream-json events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if stored {
				store, err := session.NewStore(state.cfg.Transcripts.Dir)
				if err != nil {
					return err
				}
				paths = make([]string, len(args))
				for index, transcriptID := range args {
					paths[index] = store.TranscriptPath(transcriptID)
				}
			}
			if sessionID == "" {
				sessionID = streamjson.NewUUID()
			}
			emitter := streamjson.NewEmitter(streamjson.NewWriter(cmd.OutOrStdout()), sessionID, state.logger)
			_, err := runReplay(cmd.Context(), state.cfg, state.logger, emitter, paths)
			return err
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session id stamped on emitted events")
	cmd.Flags().BoolVar(&stored, "stored", false, "Treat arguments as transcript ids in the configured transcript dir")
	return cmd
}

// runReplay replays every transcript concurrently, one headless pane per
// transcript, and writes the observation events. Unreadable transcripts are
// reported as failures without stopping the others.
func runReplay(ctx context.Context, cfg *config.Config, logger *slog.Logger, emitter *streamjson.Emitter, paths []string) ([]*pane.Pane, error) {
	started := time.Now()
	router := newRouter(cfg, logger, nil, emitter.Activity)
	hosts := make([]*pane.Pane, len(paths))

	var failuresMu sync.Mutex
	var failures []string
	fail := func(streamID string, err error) {
		emitter.Failed(streamID, err)
		failuresMu.Lock()
		failures = append(failures, err.Error())
		failuresMu.Unlock()
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for index, path := range paths {
		group.Go(func() error {
			host := pane.New(fmt.Sprintf("%s#%d", strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), index), pane.KindQuery)
			hosts[index] = host

			entries, err := session.LoadEntries(path)
			if err != nil {
				fail("", err)
				return nil
			}
			for _, recorded := range session.GroupStreams(entries) {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				emitter.Registered(recorded.StreamID, host.ID())
				for _, chunk := range recorded.Chunks {
					emitter.Chunk(recorded.StreamID, chunk)
				}
				if err := session.Replay(router, recorded, host); err != nil {
					fail(recorded.StreamID, err)
					continue
				}
				if message, ok := host.Message(recorded.StreamID); ok {
					emitter.Finalized(host.ID(), message)
				}
			}
			return nil
		})
	}
	err := group.Wait()

	var messages []stream.Message
	for _, host := range hosts {
		if host == nil {
			continue
		}
		messages = append(messages, host.Snapshot()...)
	}
	pointers := make([]*stream.Message, len(messages))
	for index := range messages {
		pointers[index] = &messages[index]
	}
	total := stats.Compute(pointers)
	emitter.Result(messages, &total, time.Since(started), failures)
	return hosts, err
}
