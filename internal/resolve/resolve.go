// Package resolve turns expressions into stable static keys: literal values
// where they can be known, or a canonical rendering of the source otherwise.
package resolve

import (
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/project"
)

// MissingKey is the key of an absent expression.
const MissingKey = "<missing>"

const constTableCacheSize = 512

// Resolver resolves expressions against same-file constant declarations.
// Constant tables are cached per file path.
type Resolver struct {
	consts *lru.Cache[string, map[string]string]
}

// New returns a Resolver with an empty cache.
func New() *Resolver {
	c, err := lru.New[string, map[string]string](constTableCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &Resolver{consts: c}
}

// Resolve derives the token for node. It is total: every node, including
// nil, yields a token with a non-empty key.
//
//  1. string literal: key and literal are the unquoted value
//  2. template without substitutions: as a string literal
//  3. template with substitutions: key is the literal text before the first
//     substitution, or the full text when that head is empty
//  4. identifier naming a same-file constant with a literal initializer:
//     resolved as that literal, alias is the identifier
//  5. anything else: key and alias are the whitespace-collapsed source text
func (r *Resolver) Resolve(f *project.SourceFile, n *sitter.Node) model.ResolvedToken {
	n = project.Unwrap(n)
	if n == nil {
		return model.ResolvedToken{Key: MissingKey}
	}
	full := canonical(f.Text(n))

	if v, ok := StringLiteral(f, n); ok {
		return literalToken(v, full, "")
	}

	switch n.Type() {
	case "template_string":
		if head := templateHead(f, n); head != "" {
			return model.ResolvedToken{Key: head, AliasName: full}
		}
		return model.ResolvedToken{Key: nonEmpty(full), AliasName: full}
	case "identifier":
		name := f.Text(n)
		if v, ok := r.constTable(f)[name]; ok {
			return literalToken(v, full, name)
		}
	}
	return model.ResolvedToken{Key: nonEmpty(full), AliasName: full}
}

// Literal returns the literal value of node when it is a string literal, a
// substitution-free template, or an identifier naming such a constant.
func (r *Resolver) Literal(f *project.SourceFile, n *sitter.Node) (string, bool) {
	n = project.Unwrap(n)
	if n == nil {
		return "", false
	}
	if v, ok := StringLiteral(f, n); ok {
		return v, true
	}
	if n.Type() == "identifier" {
		v, ok := r.constTable(f)[f.Text(n)]
		return v, ok
	}
	return "", false
}

// StringLiteral returns the value of a string literal or a template with no
// substitutions.
func StringLiteral(f *project.SourceFile, n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	text := f.Text(n)
	switch n.Type() {
	case "string":
		if len(text) < 2 {
			return "", false
		}
		return unescape(text[1 : len(text)-1]), true
	case "template_string":
		for _, c := range project.NamedChildren(n) {
			if c.Type() == "template_substitution" {
				return "", false
			}
		}
		if len(text) < 2 {
			return "", false
		}
		return unescape(text[1 : len(text)-1]), true
	}
	return "", false
}

// NumberLiteral returns the integer value of a numeric literal.
func NumberLiteral(f *project.SourceFile, n *sitter.Node) (int, bool) {
	n = project.Unwrap(n)
	if n == nil || n.Type() != "number" {
		return 0, false
	}
	v, err := strconv.Atoi(strings.ReplaceAll(f.Text(n), "_", ""))
	if err != nil {
		return 0, false
	}
	return v, true
}

func (r *Resolver) constTable(f *project.SourceFile) map[string]string {
	if t, ok := r.consts.Get(f.Path); ok {
		return t
	}
	t := make(map[string]string)
	for _, decl := range f.Descendants(f.Root(), "lexical_declaration") {
		if !project.HasToken(decl, "const") {
			continue
		}
		for _, d := range project.VariableDeclarators(decl) {
			name := d.ChildByFieldName("name")
			if name == nil || name.Type() != "identifier" {
				continue
			}
			if v, ok := StringLiteral(f, project.Unwrap(d.ChildByFieldName("value"))); ok {
				if _, dup := t[f.Text(name)]; !dup {
					t[f.Text(name)] = v
				}
			}
		}
	}
	r.consts.Add(f.Path, t)
	return t
}

func literalToken(value, full, alias string) model.ResolvedToken {
	v := value
	key := value
	if key == "" {
		key = nonEmpty(full)
	}
	return model.ResolvedToken{Key: key, LiteralValue: &v, AliasName: alias}
}

// templateHead returns the literal text between the opening backtick and the
// first substitution.
func templateHead(f *project.SourceFile, n *sitter.Node) string {
	for _, c := range project.NamedChildren(n) {
		if c.Type() == "template_substitution" {
			start := n.StartByte() + 1
			if c.StartByte() <= start {
				return ""
			}
			return unescape(string(f.Source[start:c.StartByte()]))
		}
	}
	return ""
}

func canonical(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func nonEmpty(s string) string {
	if s == "" {
		return MissingKey
	}
	return s
}

var escapes = strings.NewReplacer(
	`\\`, `\`,
	`\'`, `'`,
	`\"`, `"`,
	"\\`", "`",
	`\n`, "\n",
	`\t`, "\t",
	`\r`, "\r",
	`\$`, `$`,
)

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return escapes.Replace(s)
}
