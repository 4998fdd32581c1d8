package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclaude/streamhub/internal/stream"
	"github.com/openclaude/streamhub/internal/streamjson"
)

// maxChunkLine bounds one raw chunk line.
const maxChunkLine = 4 * 1024 * 1024

// decodeLine is one decode outcome written as JSON.
type decodeLine struct {
	// Line is the 1-based input line number.
	Line int `json:"line"`
	// Outcome is delta, done, or dropped.
	Outcome string `json:"outcome"`
	// Kind is the classified chunk shape.
	Kind string `json:"kind"`
	// Delta is set for delta outcomes.
	Delta *stream.Delta `json:"delta,omitempty"`
}

// decodeCommand reads raw chunk lines and prints their decode outcomes.
func decodeCommand(state *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode raw chunk lines and print one outcome per line",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open chunk file: %w", err)
				}
				defer file.Close()
				input = file
			}
			return runDecode(input, cmd.OutOrStdout(), stream.NewDecoder(state.logger))
		},
	}
}

// runDecode decodes every non-blank line of input. Lines holding a JSON
// object take the structured path; everything else is a string chunk.
func runDecode(input io.Reader, output io.Writer, decoder *stream.Decoder) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChunkLine)
	writer := streamjson.NewWriter(output)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		decoded := decoder.Decode([]byte(line))
		result := decodeLine{Line: lineNumber, Outcome: decoded.Outcome.String(), Kind: decoded.Kind.String()}
		if decoded.Outcome == stream.OutcomeDelta {
			delta := decoded.Delta
			result.Delta = &delta
		}
		if err := writer.Write(result); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read chunks: %w", err)
	}
	return nil
}
