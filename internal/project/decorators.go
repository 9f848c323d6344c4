package project

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Decorator is one `@Name(args)` annotation.
type Decorator struct {
	Name string
	Args []*sitter.Node
	Node *sitter.Node
}

// Member is a class body member with the decorators written before it.
type Member struct {
	Node       *sitter.Node
	Decorators []Decorator
}

func (f *SourceFile) decorator(d *sitter.Node) Decorator {
	dec := Decorator{Node: d}
	children := NamedChildren(d)
	if len(children) == 0 {
		return dec
	}
	switch expr := children[0]; expr.Type() {
	case "call_expression":
		dec.Name = f.CalleeName(expr)
		dec.Args = Arguments(expr)
	case "identifier":
		dec.Name = f.Text(expr)
	case "member_expression":
		_, dec.Name, _ = f.Member(expr)
	}
	return dec
}

func (f *SourceFile) childDecorators(n *sitter.Node) []Decorator {
	var out []Decorator
	for _, c := range NamedChildren(n) {
		if c.Type() == "decorator" {
			out = append(out, f.decorator(c))
		}
	}
	return out
}

// ClassDecorators returns the decorators of a class, including the ones
// written before an `export` keyword.
func (f *SourceFile) ClassDecorators(cls *sitter.Node) []Decorator {
	var out []Decorator
	if p := cls.Parent(); p != nil && p.Type() == "export_statement" {
		out = append(out, f.childDecorators(p)...)
	}
	return append(out, f.childDecorators(cls)...)
}

// ParamDecorators returns the decorators of a formal parameter.
func (f *SourceFile) ParamDecorators(param *sitter.Node) []Decorator {
	return f.childDecorators(param)
}

// ClassMembers lists the members of a class body. Method decorators are
// siblings preceding the method; field decorators are children of the field.
func (f *SourceFile) ClassMembers(cls *sitter.Node) []Member {
	var out []Member
	var pending []Decorator
	for _, c := range NamedChildren(cls.ChildByFieldName("body")) {
		if c.Type() == "decorator" {
			pending = append(pending, f.decorator(c))
			continue
		}
		m := Member{Node: c, Decorators: pending}
		m.Decorators = append(m.Decorators, f.childDecorators(c)...)
		out = append(out, m)
		pending = nil
	}
	return out
}

// Classes returns every class declaration in the file.
func (f *SourceFile) Classes() []*sitter.Node {
	return Descendants(f.Root(), "class_declaration", "abstract_class_declaration")
}

// HasDecorator reports whether any decorator is called name.
func HasDecorator(decs []Decorator, names map[string]struct{}) bool {
	for _, d := range decs {
		if _, ok := names[d.Name]; ok {
			return true
		}
	}
	return false
}

// FindDecorator returns the first decorator called name.
func FindDecorator(decs []Decorator, name string) (Decorator, bool) {
	for _, d := range decs {
		if d.Name == name {
			return d, true
		}
	}
	return Decorator{}, false
}
