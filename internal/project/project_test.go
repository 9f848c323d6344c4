package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/surfaceaudit/internal/lang"
	"github.com/phobologic/surfaceaudit/internal/model"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func loadOne(t *testing.T, rel, content string) *SourceFile {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, rel, content)
	p := New(dir)
	t.Cleanup(p.Close)
	_, err := p.Load(context.Background(), rel)
	require.NoError(t, err)
	f, ok := p.File(rel)
	require.True(t, ok, "%s not loaded", rel)
	return f
}

func TestLoadIsIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "apps/web/lib/a.ts", "export const a = 1;\n")
	writeFile(t, dir, "apps/web/lib/b.ts", "export const b = 2;\n")

	p := New(dir)
	defer p.Close()

	_, err := p.Load(context.Background(), "apps/web/lib/**/*.ts")
	require.NoError(t, err)
	first, ok := p.File("apps/web/lib/a.ts")
	require.True(t, ok)

	_, err = p.Load(context.Background(), "apps/web/lib/a.ts", "apps/web/lib/**/*.ts")
	require.NoError(t, err)
	second, ok := p.File("apps/web/lib/a.ts")
	require.True(t, ok)

	assert.Same(t, first, second)
	assert.Len(t, p.Files(), 2)
}

func TestLoadWarnsOnUnmatchedPattern(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "apps/api/src/main.ts", "export {}\n")

	p := New(dir)
	defer p.Close()

	warnings, err := p.Load(context.Background(), "apps/api/src/**/*.ts", "apps/worker/src/**/*.ts")
	require.NoError(t, err)
	assert.Equal(t, []string{`pattern "apps/worker/src/**/*.ts" matched no files`}, warnings)
}

func TestLoadSkipsSyntaxErrorsAndLargeFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/good.ts", "export const ok = true;\n")
	writeFile(t, dir, "src/bad.ts", "export const = ;\nfunction (\n")
	writeFile(t, dir, "src/big.ts", "export const big = '0123456789';\n")

	p := New(dir, WithMaxFileSize(30))
	defer p.Close()

	_, err := p.Load(context.Background(), "src/**/*.ts")
	require.NoError(t, err)

	var got []string
	for _, f := range p.Files() {
		got = append(got, f.Path)
	}
	assert.Equal(t, []string{"src/good.ts"}, got)
}

func TestFilesFiltersByPattern(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "apps/web/app/page.tsx", "export default function Home() { return null; }\n")
	writeFile(t, dir, "apps/web/lib/api.ts", "export {}\n")

	p := New(dir)
	defer p.Close()
	_, err := p.Load(context.Background(), "apps/web/**/*.{ts,tsx}")
	require.NoError(t, err)

	files := p.Files("apps/web/app/**/*.tsx")
	require.Len(t, files, 1)
	assert.Equal(t, "apps/web/app/page.tsx", files[0].Path)
	assert.Equal(t, "tsx", files[0].Language)
}

func TestPositions(t *testing.T) {
	t.Parallel()

	f := loadOne(t, "src/a.ts", "const a = 1;\n  fetch('/x');\n")

	calls := f.Nodes(lang.CaptureCall)
	require.Len(t, calls, 1)
	assert.Equal(t, model.Position{Line: 2, Column: 3}, f.Position(calls[0]))
	assert.Equal(t, model.Position{Line: 2, Column: 3}, f.PositionAt(15))
	assert.Equal(t, model.Position{Line: 1, Column: 1}, f.PositionAt(0))
}

func TestBindings(t *testing.T) {
	t.Parallel()

	src := `import Default, { named, other as renamed } from './x';
import * as ns from './ns';
const { a, b: bee, c = 1, ...rest } = props();
let [first, , third] = list;
function handle(x, { y }, [z], ...more) {}
const arrow = e => e;
class Widget {}
try { run(); } catch (err) {}
for (const item of items) {}
export async function save(formData: FormData, opt?: string) {}
`
	f := loadOne(t, "src/b.ts", src)
	b := f.Bindings()

	for _, name := range []string{
		"Default", "named", "renamed", "ns", "a", "bee", "c", "rest", "first", "third",
		"handle", "x", "y", "z", "more", "arrow", "e", "Widget", "err", "item", "save",
		"formData", "opt",
	} {
		assert.Contains(t, b, name)
	}
	for _, name := range []string{"other", "b", "props", "list", "run", "items"} {
		assert.NotContains(t, b, name)
	}
}

func TestExports(t *testing.T) {
	t.Parallel()

	src := `'use client';
export const metadata = { title: 'x' };
export async function GET() {}
export interface QuoteDto { id: string }
export type Line = { sku: string };
export { helper as publicHelper };
export default function WidgetsPage() { return null; }
function helper() {}
`
	f := loadOne(t, "app/page.tsx", src)

	var names []string
	for _, e := range f.Exports() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"metadata", "GET", "QuoteDto", "Line", "publicHelper", "default"}, names)

	exports := f.Exports()
	last := exports[len(exports)-1]
	assert.True(t, last.Default)
	assert.Equal(t, "WidgetsPage", last.Local)
}

func TestObjectHelpers(t *testing.T) {
	t.Parallel()

	f := loadOne(t, "src/c.ts", "fetch('/api/x', { method: 'POST', 'body': data, headers });\n")
	calls := f.Nodes(lang.CaptureCall)
	require.Len(t, calls, 1)

	args := Arguments(calls[0])
	require.Len(t, args, 2)
	assert.Equal(t, "fetch", f.CalleeName(calls[0]))
	assert.Equal(t, []string{"method", "body", "headers"}, f.ObjectKeys(args[1]))

	v, ok := f.ObjectProperty(args[1], "method")
	require.True(t, ok)
	assert.Equal(t, "'POST'", f.Text(v))

	_, ok = f.ObjectProperty(args[1], "headers")
	assert.True(t, ok)
	_, ok = f.ObjectProperty(args[1], "cache")
	assert.False(t, ok)
}
