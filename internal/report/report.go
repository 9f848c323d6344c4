// Package report writes an analyzer's result as a JSON record and a
// companion markdown rendering.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// TimeLayout is the ISO-8601 layout of generatedAt.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Meta is embedded first in every report so generatedAt leads the record.
type Meta struct {
	GeneratedAt string `json:"generatedAt"`
}

// NewMeta stamps a report with t in UTC.
func NewMeta(t time.Time) Meta {
	return Meta{GeneratedAt: t.UTC().Format(TimeLayout)}
}

// Generated returns the generation timestamp.
func (m Meta) Generated() string {
	return m.GeneratedAt
}

// Document is a report record that can render itself as markdown. The
// rendering only presents facts already in the record.
type Document interface {
	Title() string
	Generated() string
	RenderMarkdown(md *Markdown)
}

// Paths are the locations of a written artifact pair.
type Paths struct {
	JSON     string
	Markdown string
}

// Render returns the full markdown for doc, including the title header.
func Render(doc Document) string {
	md := &Markdown{}
	md.Heading(1, doc.Title())
	md.Line("Generated at: %s", doc.Generated())
	md.Blank()
	doc.RenderMarkdown(md)
	return md.String()
}

// Marshal encodes doc as indented JSON with a trailing newline.
func Marshal(doc Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Write stores doc as <dir>/<name>.json and <dir>/<name>.md. Both files are
// staged before either is renamed into place, so a failure never leaves a
// half-written pair.
func Write(dir, name string, doc Document) (Paths, error) {
	data, err := Marshal(doc)
	if err != nil {
		return Paths{}, fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("creating output dir: %w", err)
	}

	paths := Paths{
		JSON:     filepath.Join(dir, name+".json"),
		Markdown: filepath.Join(dir, name+".md"),
	}
	staged := []struct {
		path string
		data []byte
	}{
		{paths.JSON, data},
		{paths.Markdown, []byte(Render(doc))},
	}

	var tmps []string
	cleanup := func() {
		for _, t := range tmps {
			_ = os.Remove(t)
		}
	}
	for _, s := range staged {
		tmp, err := stage(s.path, s.data)
		if err != nil {
			cleanup()
			return Paths{}, fmt.Errorf("writing %s: %w", s.path, err)
		}
		tmps = append(tmps, tmp)
	}
	for i, s := range staged {
		if err := os.Rename(tmps[i], s.path); err != nil {
			cleanup()
			return Paths{}, fmt.Errorf("writing %s: %w", s.path, err)
		}
	}
	_ = syncDir(dir)
	return paths, nil
}

// stage writes data to a temp file next to path and fsyncs it.
func stage(path string, data []byte) (string, error) {
	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	return d.Sync()
}

// Markdown accumulates markdown lines.
type Markdown struct {
	lines []string
}

// Heading appends a heading followed by a blank line.
func (m *Markdown) Heading(level int, text string) {
	m.lines = append(m.lines, strings.Repeat("#", level)+" "+text, "")
}

// Line appends one formatted line.
func (m *Markdown) Line(format string, args ...any) {
	m.lines = append(m.lines, fmt.Sprintf(format, args...))
}

// Bullet appends a list item indented two spaces per depth level.
func (m *Markdown) Bullet(depth int, format string, args ...any) {
	m.lines = append(m.lines, strings.Repeat("  ", depth)+"- "+fmt.Sprintf(format, args...))
}

// Blank appends an empty line.
func (m *Markdown) Blank() {
	m.lines = append(m.lines, "")
}

// Italic appends an emphasized note followed by a blank line.
func (m *Markdown) Italic(text string) {
	m.lines = append(m.lines, "_"+text+"_", "")
}

// Warnings renders a warnings section when there are any.
func (m *Markdown) Warnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	m.Heading(2, "Warnings")
	for _, w := range warnings {
		m.Bullet(0, "%s", w)
	}
	m.Blank()
}

// String joins the lines with a single trailing newline.
func (m *Markdown) String() string {
	return strings.TrimRight(strings.Join(m.lines, "\n"), "\n") + "\n"
}
