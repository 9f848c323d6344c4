package project

import (
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/surfaceaudit/internal/lang"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/parse"
)

// SourceFile is one parsed file. Nodes handed out by a SourceFile belong to
// its tree and are only valid while the project is open.
type SourceFile struct {
	Path     string
	Language string
	Source   []byte

	tree       *sitter.Tree
	captures   map[string][]*sitter.Node
	lineStarts []int

	bindingsOnce sync.Once
	bindings     map[string]struct{}
}

func newSourceFile(path, language string, source []byte, res *parse.Result) *SourceFile {
	starts := []int{0}
	for i, b := range source {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &SourceFile{
		Path:       path,
		Language:   language,
		Source:     source,
		tree:       res.Tree,
		captures:   res.Captures,
		lineStarts: starts,
	}
}

// Root returns the program node.
func (f *SourceFile) Root() *sitter.Node {
	return f.tree.RootNode()
}

// Text returns the source text of n.
func (f *SourceFile) Text(n *sitter.Node) string {
	return lang.NodeText(n, f.Source)
}

// Position returns the 1-based line and column where n starts.
func (f *SourceFile) Position(n *sitter.Node) model.Position {
	p := n.StartPoint()
	return model.Position{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

// PositionAt returns the 1-based line and column of a byte offset.
func (f *SourceFile) PositionAt(offset int) model.Position {
	line := sort.Search(len(f.lineStarts), func(i int) bool { return f.lineStarts[i] > offset }) - 1
	if line < 0 {
		line = 0
	}
	return model.Position{Line: line + 1, Column: offset - f.lineStarts[line] + 1}
}

// Nodes returns the nodes captured under name by the index query, in
// document order.
func (f *SourceFile) Nodes(capture string) []*sitter.Node {
	return f.captures[capture]
}

// Statements returns the top-level statements, skipping comments.
func (f *SourceFile) Statements() []*sitter.Node {
	return NamedChildren(f.Root())
}

// Descendants returns every named node below n (n included) whose type is
// one of kinds, in pre-order. With no kinds every named node is returned.
func (f *SourceFile) Descendants(n *sitter.Node, kinds ...string) []*sitter.Node {
	return Descendants(n, kinds...)
}

// Descendants walks n in pre-order and collects nodes of the given kinds.
func Descendants(n *sitter.Node, kinds ...string) []*sitter.Node {
	if n == nil {
		return nil
	}
	want := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		want[k] = struct{}{}
	}

	var out []*sitter.Node
	stack := []*sitter.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := want[cur.Type()]; ok || len(want) == 0 {
			out = append(out, cur)
		}
		for i := int(cur.NamedChildCount()) - 1; i >= 0; i-- {
			if c := cur.NamedChild(i); c != nil {
				stack = append(stack, c)
			}
		}
	}
	return out
}

// NamedChildren returns the named children of n, skipping comments.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// HasToken reports whether n has a direct anonymous child token with the
// given text, such as "async", "const" or "default".
func HasToken(n *sitter.Node, token string) bool {
	if n == nil {
		return false
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && !c.IsNamed() && c.Type() == token {
			return true
		}
	}
	return false
}

// Ancestor returns the nearest ancestor of n whose type is one of kinds.
func Ancestor(n *sitter.Node, kinds ...string) *sitter.Node {
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		for _, k := range kinds {
			if cur.Type() == k {
				return cur
			}
		}
	}
	return nil
}

// Unwrap strips type assertions, `satisfies`, non-null assertions and
// parentheses around an expression.
func Unwrap(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "as_expression", "satisfies_expression", "parenthesized_expression", "non_null_expression":
			children := NamedChildren(n)
			if len(children) == 0 {
				return n
			}
			n = children[0]
		default:
			return n
		}
	}
	return n
}

// Arguments returns the argument expressions of a call or new expression.
func Arguments(call *sitter.Node) []*sitter.Node {
	if call == nil {
		return nil
	}
	return NamedChildren(call.ChildByFieldName("arguments"))
}

// Callee returns the function of a call expression or the constructor of a
// new expression, unwrapped.
func Callee(call *sitter.Node) *sitter.Node {
	if call == nil {
		return nil
	}
	if fn := call.ChildByFieldName("function"); fn != nil {
		return Unwrap(fn)
	}
	return Unwrap(call.ChildByFieldName("constructor"))
}

// Member splits a member expression into its object node and property name.
func (f *SourceFile) Member(n *sitter.Node) (object *sitter.Node, property string, ok bool) {
	if n == nil || n.Type() != "member_expression" {
		return nil, "", false
	}
	prop := n.ChildByFieldName("property")
	if prop == nil {
		return nil, "", false
	}
	return n.ChildByFieldName("object"), f.Text(prop), true
}

// CalleeName returns the bare name a call or construction targets: the
// identifier itself, or the property of a member expression.
func (f *SourceFile) CalleeName(call *sitter.Node) string {
	fn := Callee(call)
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return f.Text(fn)
	case "member_expression":
		_, prop, _ := f.Member(fn)
		return prop
	}
	return ""
}

// PropertyKey returns the name of an object or class member key with any
// quotes removed.
func (f *SourceFile) PropertyKey(key *sitter.Node) string {
	if key == nil {
		return ""
	}
	text := f.Text(key)
	if key.Type() == "string" && len(text) >= 2 {
		return text[1 : len(text)-1]
	}
	return text
}

// ObjectProperty finds the property called name in an object literal. It
// returns the value node (the identifier itself for shorthand entries).
func (f *SourceFile) ObjectProperty(obj *sitter.Node, name string) (*sitter.Node, bool) {
	obj = Unwrap(obj)
	if obj == nil || obj.Type() != "object" {
		return nil, false
	}
	for _, c := range NamedChildren(obj) {
		switch c.Type() {
		case "pair":
			if f.PropertyKey(c.ChildByFieldName("key")) == name {
				return c.ChildByFieldName("value"), true
			}
		case "shorthand_property_identifier":
			if f.Text(c) == name {
				return c, true
			}
		}
	}
	return nil, false
}

// ObjectKeys returns the keys of an object literal's pairs and shorthand
// entries in declaration order. Spreads and methods are ignored.
func (f *SourceFile) ObjectKeys(obj *sitter.Node) []string {
	obj = Unwrap(obj)
	if obj == nil || obj.Type() != "object" {
		return nil
	}
	var keys []string
	for _, c := range NamedChildren(obj) {
		switch c.Type() {
		case "pair":
			keys = append(keys, f.PropertyKey(c.ChildByFieldName("key")))
		case "shorthand_property_identifier":
			keys = append(keys, f.Text(c))
		}
	}
	return keys
}
