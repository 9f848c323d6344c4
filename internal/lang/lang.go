// Package lang registers the tree-sitter grammars surfaceaudit can read and
// the index query embedded for each of them.
package lang

import (
	"embed"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

//go:embed queries/*.scm
var queries embed.FS

// Capture names used by the index queries.
const (
	CaptureCall         = "call"
	CaptureNew          = "new"
	CaptureImport       = "import"
	CaptureJSXAttribute = "jsx.attribute"
)

// Language is one registered grammar.
type Language struct {
	Name       string
	Extensions []string
	// JSX reports whether the grammar produces JSX nodes.
	JSX bool

	grammar *sitter.Language
	once    sync.Once
	query   *sitter.Query
	err     error
}

var (
	registry = map[string]*Language{}
	byExt    = map[string]*Language{}
)

// register is called from the init function of each grammar file.
func register(l *Language) {
	registry[l.Name] = l
	for _, ext := range l.Extensions {
		byExt[ext] = l
	}
}

// Lookup returns the language registered under name.
func Lookup(name string) (*Language, bool) {
	l, ok := registry[name]
	return l, ok
}

// Names returns every registered language name.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// ForExtension returns the language name for ext, or "" when no grammar
// handles it. Matching ignores case.
func ForExtension(ext string) string {
	if l, ok := byExt[strings.ToLower(ext)]; ok {
		return l.Name
	}
	return ""
}

// ForPath is ForExtension keyed by a file path.
func ForPath(path string) (*Language, bool) {
	l, ok := byExt[strings.ToLower(filepath.Ext(path))]
	return l, ok
}

func (l *Language) Grammar() *sitter.Language { return l.grammar }

// Parser returns a new parser for the grammar. Parsers are not safe for
// concurrent use; give each worker its own.
func (l *Language) Parser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.grammar)
	return p
}

// Query compiles the embedded index query on first use. The compiled query
// is shared by every caller.
func (l *Language) Query() (*sitter.Query, error) {
	l.once.Do(func() {
		src, err := queries.ReadFile("queries/" + l.Name + ".scm")
		if err != nil {
			l.err = fmt.Errorf("%s: reading index query: %w", l.Name, err)
			return
		}
		if l.query, err = sitter.NewQuery(src, l.grammar); err != nil {
			l.err = fmt.Errorf("%s: compiling index query: %w", l.Name, err)
		}
	})
	return l.query, l.err
}

// NodeText slices the bytes n spans out of source. A nil node is "".
func NodeText(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	return string(source[n.StartByte():n.EndByte()])
}

var spaces = regexp.MustCompile(`\s+`)

// CollapseWhitespace folds every whitespace run to one space and trims the ends.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
