// Package discover finds source files in a repository that match glob patterns.
package discover

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/surfaceaudit/internal/lang"
)

// FileEntry is one discovered source file.
type FileEntry struct {
	Path     string // slash-separated, relative to the root
	Language string
}

// Result is the outcome of one discovery walk.
type Result struct {
	Files []FileEntry
	// Unmatched lists the patterns that matched no file, in input order.
	Unmatched []string
}

var skipDirs = map[string]struct{}{
	"node_modules": {},
	"build":        {},
	"dist":         {},
	"coverage":     {},
	"out":          {},
}

// SkipDir reports whether a directory name is never descended into. Hidden
// directories (.git, .next, .turbo and the like) are always skipped.
func SkipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, skip := skipDirs[name]
	return skip
}

// Match reports whether the slash-separated relative path matches any pattern.
func Match(patterns []string, rel string) bool {
	return slices.ContainsFunc(patterns, func(p string) bool {
		ok, err := doublestar.Match(p, rel)
		return err == nil && ok
	})
}

// excluded reports whether a relative path is left out of discovery.
type excluded func(rel string) bool

// exclusions prefers git's own view of the tree (tracked plus untracked, minus
// ignored) and falls back to the root .gitignore when git is unavailable.
func exclusions(root string) excluded {
	if tracked := gitLsFiles(root); tracked != nil {
		return func(rel string) bool {
			_, ok := tracked[rel]
			return !ok
		}
	}
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return func(string) bool { return false }
	}
	return gi.MatchesPath
}

// Files discovers parseable source files under root matching any of patterns.
// Patterns use doublestar syntax (`**`, `{a,b}`) against slash-separated
// paths relative to root. Files come back sorted by path.
func Files(root string, patterns []string) (*Result, error) {
	skip := exclusions(root)
	hits := make([]int, len(patterns))
	res := &Result{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return nil
		case d.IsDir():
			if path != root && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		case d.Type()&fs.ModeSymlink != 0, strings.HasPrefix(d.Name(), "."):
			return nil
		}

		l, ok := lang.ForPath(path)
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if skip(rel) {
			return nil
		}

		matched := false
		for i, p := range patterns {
			if ok, err := doublestar.Match(p, rel); err == nil && ok {
				hits[i]++
				matched = true
			}
		}
		if matched {
			res.Files = append(res.Files, FileEntry{Path: rel, Language: l.Name})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(res.Files, func(a, b FileEntry) int { return strings.Compare(a.Path, b.Path) })
	for i, p := range patterns {
		if hits[i] == 0 {
			res.Unmatched = append(res.Unmatched, p)
		}
	}
	return res, nil
}

// gitLsFiles returns the files git considers part of the tree, or nil when
// root is not a git checkout or git fails.
func gitLsFiles(root string) map[string]struct{} {
	if fi, err := os.Stat(filepath.Join(root, ".git")); err != nil || !fi.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	tracked := map[string]struct{}{}
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			tracked[line] = struct{}{}
		}
	}
	return tracked
}
