package edits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaude/streamhub/internal/stream"
)

// TestExtractUnifiedDiff verifies diff blocks become per-file changes with line counts.
func TestExtractUnifiedDiff(testingHandle *testing.T) {
	content := "Here is the fix:\n\n```diff\n" +
		"--- a/internal/app/main.go\n" +
		"+++ b/internal/app/main.go\n" +
		"@@ -1,3 +1,3 @@\n" +
		" package main\n" +
		"-func old() {}\n" +
		"+func updated() {}\n" +
		" // end\n" +
		"```\n"
	files := []stream.FileContext{{Path: "internal/app/main.go", Content: "package main\nfunc old() {}\n// end\n"}}

	changes := Extract(content, files)

	require.Len(testingHandle, changes, 1)
	change := changes[0]
	assert.Equal(testingHandle, "internal/app/main.go", change.Path)
	assert.Equal(testingHandle, files[0].Content, change.Original)
	assert.Equal(testingHandle, 1, change.LinesAdded)
	assert.Equal(testingHandle, 1, change.LinesRemoved)
	assert.Contains(testingHandle, change.Patch, "+func updated() {}")
}

// TestExtractLabelledFullFile verifies path-labelled blocks replace open files.
func TestExtractLabelledFullFile(testingHandle *testing.T) {
	content := "Updated:\n```go app/main.go\npackage main\n\nfunc main() {}\n```\n"
	files := []stream.FileContext{{Path: "src/app/main.go", Content: "package main\n"}}

	changes := Extract(content, files)

	require.Len(testingHandle, changes, 1)
	assert.Equal(testingHandle, "src/app/main.go", changes[0].Path)
	assert.Equal(testingHandle, "package main\n\nfunc main() {}\n", changes[0].Proposed)
	assert.Equal(testingHandle, 2, changes[0].LinesAdded)
	assert.Equal(testingHandle, 0, changes[0].LinesRemoved)
}

// TestExtractLabelForms verifies the accepted fence label syntaxes.
func TestExtractLabelForms(testingHandle *testing.T) {
	cases := map[string]string{
		"go cmd/main.go":      "cmd/main.go",
		"go:cmd/main.go":      "cmd/main.go",
		"python path=tool.py": "tool.py",
		"yaml file=./c.yaml":  "c.yaml",
		"go":                  "",
		"":                    "",
		"js {title}":          "",
	}
	for info, want := range cases {
		assert.Equal(testingHandle, want, labelledPath(info), info)
	}
}

// TestExtractIgnoresUnlabelledBlocks verifies plain snippets propose nothing.
func TestExtractIgnoresUnlabelledBlocks(testingHandle *testing.T) {
	content := "Run this:\n```bash\ngo test ./...\n```\nand an unclosed\n```go main.go\npackage main\n"

	assert.Empty(testingHandle, Extract(content, nil))
}

// TestExtractLaterBlockWins verifies duplicate paths keep the last proposal in first-seen order.
func TestExtractLaterBlockWins(testingHandle *testing.T) {
	content := "```go a.go\nv1\n```\n```go b.go\nb\n```\n```go a.go\nv2\n```\n"

	changes := Extract(content, nil)

	require.Len(testingHandle, changes, 2)
	assert.Equal(testingHandle, "a.go", changes[0].Path)
	assert.Equal(testingHandle, "v2\n", changes[0].Proposed)
	assert.Equal(testingHandle, "b.go", changes[1].Path)
}
