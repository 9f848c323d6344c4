package project

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Export is one name a module exports.
type Export struct {
	// Name is the exported name; "default" for the default export.
	Name string
	// Local is the declared name inside the file when there is one.
	Local string
	// Decl is the declaring node: a function, class, interface or type
	// declaration, a variable_declarator, or the default-exported expression.
	// It is nil for re-exports through an export clause.
	Decl    *sitter.Node
	Default bool
}

var namedDeclarations = map[string]struct{}{
	"function_declaration":           {},
	"generator_function_declaration": {},
	"class_declaration":              {},
	"abstract_class_declaration":     {},
	"interface_declaration":          {},
	"type_alias_declaration":         {},
	"enum_declaration":               {},
}

// Exports lists the file's top-level exports in declaration order.
func (f *SourceFile) Exports() []Export {
	var out []Export
	for _, stmt := range f.Statements() {
		if stmt.Type() != "export_statement" {
			continue
		}
		isDefault := HasToken(stmt, "default")

		if decl := stmt.ChildByFieldName("declaration"); decl != nil {
			if _, ok := namedDeclarations[decl.Type()]; ok {
				local := f.Text(decl.ChildByFieldName("name"))
				name := local
				if isDefault {
					name = "default"
				}
				out = append(out, Export{Name: name, Local: local, Decl: decl, Default: isDefault})
				continue
			}
			for _, d := range VariableDeclarators(decl) {
				id := d.ChildByFieldName("name")
				if id == nil || id.Type() != "identifier" {
					continue
				}
				out = append(out, Export{Name: f.Text(id), Local: f.Text(id), Decl: d})
			}
			continue
		}

		if value := stmt.ChildByFieldName("value"); value != nil {
			e := Export{Name: "default", Decl: value, Default: true}
			switch v := Unwrap(value); v.Type() {
			case "identifier":
				e.Local = f.Text(v)
			case "function_expression", "function", "class":
				e.Local = f.Text(v.ChildByFieldName("name"))
			}
			out = append(out, e)
			continue
		}

		for _, clause := range NamedChildren(stmt) {
			if clause.Type() != "export_clause" {
				continue
			}
			for _, spec := range NamedChildren(clause) {
				if spec.Type() != "export_specifier" {
					continue
				}
				local := f.Text(spec.ChildByFieldName("name"))
				name := local
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					name = f.Text(alias)
				}
				out = append(out, Export{Name: name, Local: local, Default: name == "default"})
			}
		}
	}
	return out
}

// VariableDeclarators returns the declarators of a lexical or variable
// declaration.
func VariableDeclarators(decl *sitter.Node) []*sitter.Node {
	if decl == nil || (decl.Type() != "lexical_declaration" && decl.Type() != "variable_declaration") {
		return nil
	}
	var out []*sitter.Node
	for _, c := range NamedChildren(decl) {
		if c.Type() == "variable_declarator" {
			out = append(out, c)
		}
	}
	return out
}

// Bindings returns every name the file declares anywhere: declarations,
// imports, parameters, destructuring patterns, catch parameters and loop
// variables. Scoping is ignored.
func (f *SourceFile) Bindings() map[string]struct{} {
	f.bindingsOnce.Do(func() {
		f.bindings = make(map[string]struct{})
		add := func(n *sitter.Node) {
			if n != nil {
				f.bindings[f.Text(n)] = struct{}{}
			}
		}

		for _, n := range Descendants(f.Root()) {
			switch n.Type() {
			case "variable_declarator":
				f.collectPattern(n.ChildByFieldName("name"))
			case "function_declaration", "generator_function_declaration", "function_expression", "function",
				"class_declaration", "abstract_class_declaration", "class", "enum_declaration",
				"interface_declaration", "type_alias_declaration":
				add(n.ChildByFieldName("name"))
			case "import_specifier":
				if alias := n.ChildByFieldName("alias"); alias != nil {
					add(alias)
				} else {
					add(n.ChildByFieldName("name"))
				}
			case "import_clause":
				for _, c := range NamedChildren(n) {
					if c.Type() == "identifier" {
						add(c)
					}
				}
			case "namespace_import":
				for _, c := range NamedChildren(n) {
					if c.Type() == "identifier" {
						add(c)
					}
				}
			case "formal_parameters":
				for _, p := range NamedChildren(n) {
					f.collectPattern(p)
				}
			case "arrow_function":
				if p := n.ChildByFieldName("parameter"); p != nil {
					add(p)
				}
			case "catch_clause":
				f.collectPattern(n.ChildByFieldName("parameter"))
			case "for_in_statement":
				f.collectPattern(n.ChildByFieldName("left"))
			}
		}
	})
	return f.bindings
}

func (f *SourceFile) collectPattern(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		f.bindings[f.Text(n)] = struct{}{}
	case "required_parameter", "optional_parameter":
		f.collectPattern(n.ChildByFieldName("pattern"))
	case "pair_pattern":
		f.collectPattern(n.ChildByFieldName("value"))
	case "object_assignment_pattern", "assignment_pattern":
		f.collectPattern(n.ChildByFieldName("left"))
	case "object_pattern", "array_pattern", "rest_pattern":
		for _, c := range NamedChildren(n) {
			f.collectPattern(c)
		}
	}
}
