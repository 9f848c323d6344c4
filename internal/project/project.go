// Package project loads source files into syntax trees and answers structural
// queries over them.
package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/surfaceaudit/internal/discover"
	"github.com/phobologic/surfaceaudit/internal/lang"
	"github.com/phobologic/surfaceaudit/internal/parse"
)

const defaultMaxFileSize = 1_000_000 // 1 MB

// Project is an index of parsed files keyed by repo-relative path.
// Loading is idempotent: a path already indexed, or already rejected, is
// never parsed again.
type Project struct {
	root        string
	maxFileSize int
	logger      *slog.Logger

	mu       sync.Mutex
	files    map[string]*SourceFile
	rejected map[string]struct{}
}

// Option configures a Project.
type Option func(*Project)

// WithLogger sets the logger used for skipped-file diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Project) { p.logger = l }
}

// WithMaxFileSize skips files larger than n bytes.
func WithMaxFileSize(n int) Option {
	return func(p *Project) {
		if n > 0 {
			p.maxFileSize = n
		}
	}
}

// New returns an empty project rooted at root.
func New(root string, opts ...Option) *Project {
	p := &Project{
		root:        root,
		maxFileSize: defaultMaxFileSize,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		files:       make(map[string]*SourceFile),
		rejected:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Root returns the absolute repository root.
func (p *Project) Root() string {
	return p.root
}

// Load discovers files matching patterns and parses the ones not yet indexed.
// It returns a warning for every pattern that matched nothing. Files that
// cannot be read or do not parse cleanly are skipped.
func (p *Project) Load(ctx context.Context, patterns ...string) ([]string, error) {
	found, err := discover.Files(p.root, patterns)
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}

	var warnings []string
	for _, pat := range found.Unmatched {
		warnings = append(warnings, fmt.Sprintf("pattern %q matched no files", pat))
	}

	p.mu.Lock()
	var todo []discover.FileEntry
	for _, f := range found.Files {
		if _, ok := p.files[f.Path]; ok {
			continue
		}
		if _, ok := p.rejected[f.Path]; ok {
			continue
		}
		todo = append(todo, f)
	}
	p.mu.Unlock()

	todo = p.filterBySize(todo)
	parsed := p.parseFilesConcurrent(ctx, todo)

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, f := range todo {
		if parsed[i] == nil {
			p.rejected[f.Path] = struct{}{}
			continue
		}
		p.files[f.Path] = parsed[i]
	}

	if err := ctx.Err(); err != nil {
		return warnings, err
	}
	return warnings, nil
}

// Files returns indexed files matching any of patterns, sorted by path.
// With no patterns every indexed file is returned.
func (p *Project) Files(patterns ...string) []*SourceFile {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*SourceFile
	for path, f := range p.files {
		if len(patterns) == 0 || discover.Match(patterns, path) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// File returns the indexed file at a repo-relative path.
func (p *Project) File(path string) (*SourceFile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.files[filepath.ToSlash(path)]
	return f, ok
}

// Close releases every syntax tree.
func (p *Project) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.files {
		f.tree.Close()
	}
	p.files = make(map[string]*SourceFile)
}

func (p *Project) filterBySize(files []discover.FileEntry) []discover.FileEntry {
	var kept []discover.FileEntry
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(p.root, f.Path))
		if err != nil {
			kept = append(kept, f) // read error surfaces during parsing
			continue
		}
		if fi.Size() > int64(p.maxFileSize) {
			p.logger.Debug("skipping file", "path", f.Path, "reason", "size limit", "bytes", fi.Size())
			p.mu.Lock()
			p.rejected[f.Path] = struct{}{}
			p.mu.Unlock()
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// parseFilesConcurrent parses files with one parser per worker. The result
// slice is indexed like files; nil marks a skipped file.
func (p *Project) parseFilesConcurrent(ctx context.Context, files []discover.FileEntry) []*SourceFile {
	out := make([]*SourceFile, len(files))
	if len(files) == 0 {
		return out
	}

	type result struct {
		index int
		file  *SourceFile
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make(chan result, len(files))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Each goroutine gets its own parser
			parsers := make(map[string]*parserPair)

			for idx := range work {
				if ctx.Err() != nil {
					continue
				}
				f := files[idx]
				pp, ok := parsers[f.Language]
				if !ok {
					l, found := lang.Lookup(f.Language)
					if !found {
						continue
					}
					q, err := l.Query()
					if err != nil {
						p.logger.Warn("index query unavailable", "language", f.Language, "error", err)
						continue
					}
					pp = &parserPair{parser: l.Parser(), query: q}
					parsers[f.Language] = pp
				}

				sf, err := p.parseFile(ctx, pp, f)
				if err != nil {
					p.logger.Debug("skipping file", "path", f.Path, "reason", err)
					continue
				}
				results <- result{index: idx, file: sf}
			}
		}()
	}

	for i := range files {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in original order
	for r := range results {
		out[r.index] = r.file
	}
	return out
}

func (p *Project) parseFile(ctx context.Context, pp *parserPair, f discover.FileEntry) (*SourceFile, error) {
	source, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(f.Path)))
	if err != nil {
		return nil, err
	}
	res, err := parse.Index(ctx, pp.parser, pp.query, source)
	if err != nil {
		if errors.Is(err, parse.ErrSyntax) {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		return nil, err
	}
	return newSourceFile(f.Path, f.Language, source, res), nil
}

type parserPair struct {
	parser *sitter.Parser
	query  *sitter.Query
}
