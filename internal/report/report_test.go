package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleReport struct {
	Meta
	Items    []string `json:"items"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *sampleReport) Title() string { return "Sample Audit" }

func (r *sampleReport) RenderMarkdown(md *Markdown) {
	md.Warnings(r.Warnings)
	md.Heading(2, "Items")
	if len(r.Items) == 0 {
		md.Italic("No items.")
		return
	}
	for _, it := range r.Items {
		md.Bullet(0, "%s", it)
		md.Bullet(1, "Suggestion: fix %s", it)
	}
}

var fixed = time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)

func TestNewMeta(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2026-03-04T05:06:07.008Z", NewMeta(fixed).GeneratedAt)
	local := fixed.In(time.FixedZone("X", 3600))
	assert.Equal(t, "2026-03-04T05:06:07.008Z", NewMeta(local).GeneratedAt)
}

func TestWritePair(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	doc := &sampleReport{Meta: NewMeta(fixed), Items: []string{"a", "b"}, Warnings: []string{"w1"}}

	paths, err := Write(dir, "sample", doc)
	require.NoError(t, err)

	data, err := os.ReadFile(paths.JSON)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "}\n"))
	assert.True(t, strings.HasPrefix(string(data), "{\n  \"generatedAt\": \"2026-03-04T05:06:07.008Z\""))

	var back map[string]any
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []any{"a", "b"}, back["items"])

	md, err := os.ReadFile(paths.Markdown)
	require.NoError(t, err)
	want := `# Sample Audit

Generated at: 2026-03-04T05:06:07.008Z

## Warnings

- w1

## Items

- a
  - Suggestion: fix a
- b
  - Suggestion: fix b
`
	assert.Equal(t, want, string(md))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestWriteIsDeterministic(t *testing.T) {
	t.Parallel()

	doc := &sampleReport{Meta: NewMeta(fixed), Items: []string{"x"}}
	first, err := Marshal(doc)
	require.NoError(t, err)
	second, err := Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, Render(doc), Render(doc))
}

func TestWriteFailsWithoutPartialOutput(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	blocker := filepath.Join(base, "out")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	_, err := Write(blocker, "sample", &sampleReport{Meta: NewMeta(fixed)})
	require.Error(t, err)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
