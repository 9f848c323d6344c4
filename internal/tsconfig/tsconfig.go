// Package tsconfig reads the repository's module-resolution configuration.
package tsconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailscale/hujson"
)

// FileName is the configuration file expected at the repository root.
const FileName = "tsconfig.json"

// Config is the subset of tsconfig.json the analyzers use.
type Config struct {
	Path            string          `json:"-"`
	Extends         string          `json:"extends,omitempty"`
	CompilerOptions CompilerOptions `json:"compilerOptions"`
	Include         []string        `json:"include,omitempty"`
	Exclude         []string        `json:"exclude,omitempty"`
}

// CompilerOptions holds the module-resolution options.
type CompilerOptions struct {
	BaseURL string              `json:"baseUrl,omitempty"`
	Paths   map[string][]string `json:"paths,omitempty"`
}

// Load reads tsconfig.json from root. Comments and trailing commas are
// accepted. A missing or malformed file is an error.
func Load(root string) (*Config, error) {
	p := filepath.Join(root, FileName)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading module-resolution config: %w", err)
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", p, err)
	}
	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", p, err)
	}
	cfg.Path = p
	return &cfg, nil
}

// SourceGlobs returns glob patterns, relative to the repository root, for
// the files a path alias of module can resolve to. A target ending in `/*`
// or naming a file inside a directory covers that whole directory tree.
// Aliases are matched exactly and by their `module/*` wildcard form.
func (c *Config) SourceGlobs(module string) []string {
	if c == nil || module == "" {
		return nil
	}
	base := strings.TrimPrefix(path.Clean(filepath.ToSlash(c.CompilerOptions.BaseURL)), "./")
	if base == "." {
		base = ""
	}

	seen := map[string]struct{}{}
	var globs []string
	for alias, targets := range c.CompilerOptions.Paths {
		if alias != module && alias != module+"/*" {
			continue
		}
		for _, target := range targets {
			dir := strings.TrimSuffix(filepath.ToSlash(target), "/*")
			if path.Ext(dir) != "" {
				dir = path.Dir(dir)
			}
			dir = path.Clean(path.Join(base, dir))
			dir = strings.TrimPrefix(dir, "./")
			g := dir + "/**/*.{ts,tsx}"
			if dir == "." {
				g = "**/*.{ts,tsx}"
			}
			if _, dup := seen[g]; dup {
				continue
			}
			seen[g] = struct{}{}
			globs = append(globs, g)
		}
	}
	sort.Strings(globs)
	return globs
}
