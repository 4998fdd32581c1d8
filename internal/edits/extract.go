// Package edits extracts proposed file changes from finalized model responses.
package edits

import (
	"path"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/openclaude/streamhub/internal/stream"
)

// fence opens and closes a code block.
const fence = "```"

// block is one fenced code block from a response.
type block struct {
	// info is the text after the opening fence.
	info string
	// body is the block content without fences.
	body string
}

// Extract derives proposed changes from fenced blocks in content.
// Unified diff blocks are parsed per file; blocks labelled with a path are
// treated as full replacements. Later proposals for the same path win.
// It matches stream.ExtractFunc.
func Extract(content string, files []stream.FileContext) []stream.ProposedChange {
	open := make(map[string]string, len(files))
	for _, file := range files {
		open[cleanPath(file.Path)] = file.Content
	}

	var order []string
	byPath := make(map[string]stream.ProposedChange)
	add := func(change stream.ProposedChange) {
		if _, seen := byPath[change.Path]; !seen {
			order = append(order, change.Path)
		}
		byPath[change.Path] = change
	}

	for _, fenced := range fencedBlocks(content) {
		if isDiffBlock(fenced) {
			for _, change := range diffChanges(fenced.body, open) {
				add(change)
			}
			continue
		}
		target := labelledPath(fenced.info)
		if target == "" {
			continue
		}
		target = resolveOpenPath(target, open)
		original := open[target]
		added, removed := countLineChanges(original, fenced.body)
		add(stream.ProposedChange{
			Path:         target,
			Original:     original,
			Proposed:     fenced.body,
			LinesAdded:   added,
			LinesRemoved: removed,
		})
	}

	changes := make([]stream.ProposedChange, 0, len(order))
	for _, target := range order {
		changes = append(changes, byPath[target])
	}
	return changes
}

// fencedBlocks splits content into closed fenced blocks. An unclosed block is ignored.
func fencedBlocks(content string) []block {
	var blocks []block
	var current *block
	var body []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if current == nil {
			if strings.HasPrefix(trimmed, fence) {
				current = &block{info: strings.TrimSpace(strings.TrimPrefix(trimmed, fence))}
				body = body[:0]
			}
			continue
		}
		if trimmed == fence {
			current.body = strings.Join(body, "\n")
			if current.body != "" {
				current.body += "\n"
			}
			blocks = append(blocks, *current)
			current = nil
			continue
		}
		body = append(body, line)
	}
	return blocks
}

// isDiffBlock reports whether a block carries a unified diff.
func isDiffBlock(fenced block) bool {
	if fields := strings.Fields(fenced.info); len(fields) > 0 {
		language := strings.ToLower(fields[0])
		if language == "diff" || language == "patch" {
			return true
		}
	}
	body := strings.TrimLeft(fenced.body, "\n")
	return strings.HasPrefix(body, "--- ") || strings.HasPrefix(body, "diff --git ")
}

// diffChanges parses a unified diff into one change per file.
func diffChanges(patch string, open map[string]string) []stream.ProposedChange {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil
	}
	changes := make([]stream.ProposedChange, 0, len(fileDiffs))
	for _, fileDiff := range fileDiffs {
		target := fileDiff.NewName
		if target == "" || target == "/dev/null" {
			target = fileDiff.OrigName
		}
		target = strings.TrimPrefix(target, "a/")
		target = strings.TrimPrefix(target, "b/")
		target = resolveOpenPath(cleanPath(target), open)

		change := stream.ProposedChange{Path: target, Original: open[target]}
		for _, hunk := range fileDiff.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+"):
					change.LinesAdded++
				case strings.HasPrefix(line, "-"):
					change.LinesRemoved++
				}
			}
		}
		printed, err := diff.PrintFileDiff(fileDiff)
		if err == nil {
			change.Patch = string(printed)
		}
		changes = append(changes, change)
	}
	return changes
}

// labelledPath extracts a file path from a fence info string such as
// "go cmd/main.go", "go:cmd/main.go" or "path=cmd/main.go".
func labelledPath(info string) string {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return ""
	}
	for _, field := range fields {
		if value, ok := strings.CutPrefix(field, "path="); ok {
			return cleanPath(strings.Trim(value, `"'`))
		}
		if value, ok := strings.CutPrefix(field, "file="); ok {
			return cleanPath(strings.Trim(value, `"'`))
		}
	}
	if _, value, ok := strings.Cut(fields[0], ":"); ok && looksLikePath(value) {
		return cleanPath(value)
	}
	if len(fields) > 1 && looksLikePath(fields[len(fields)-1]) {
		return cleanPath(fields[len(fields)-1])
	}
	return ""
}

// looksLikePath accepts tokens with a directory separator or an extension.
func looksLikePath(token string) bool {
	if token == "" || strings.ContainsAny(token, "{}()=") {
		return false
	}
	return strings.Contains(token, "/") || strings.Contains(path.Base(token), ".")
}

// resolveOpenPath maps a path onto an open file when one ends with it.
func resolveOpenPath(target string, open map[string]string) string {
	if _, ok := open[target]; ok {
		return target
	}
	for candidate := range open {
		if strings.HasSuffix(candidate, "/"+target) {
			return candidate
		}
	}
	return target
}

// cleanPath normalizes separators and strips a leading "./".
func cleanPath(value string) string {
	if value == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(value, "\\", "/")), "./")
}

// countLineChanges approximates added and removed lines by multiset difference.
func countLineChanges(original, proposed string) (added, removed int) {
	counts := make(map[string]int)
	for _, line := range splitLines(original) {
		counts[line]++
	}
	for _, line := range splitLines(proposed) {
		if counts[line] > 0 {
			counts[line]--
			continue
		}
		added++
	}
	for _, remaining := range counts {
		removed += remaining
	}
	return added, removed
}

// splitLines splits text into lines without a trailing empty element.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
