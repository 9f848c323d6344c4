package contracts

import (
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/project"
)

var schemaShapeMethods = map[string]struct{}{
	"object":       {},
	"strictObject": {},
}

// Declarations returns the structural definitions declared at the top level
// of f: interfaces, type aliases of inline object types, and variables
// initialized by a schema-builder object call. Each carries its flat
// property names.
func Declarations(f *project.SourceFile) []model.ContractDefinition {
	var out []model.ContractDefinition
	for _, stmt := range topLevelDeclarations(f) {
		switch stmt.Type() {
		case "interface_declaration":
			out = append(out, model.ContractDefinition{
				Name:       f.Text(stmt.ChildByFieldName("name")),
				File:       f.Path,
				Kind:       model.KindInterface,
				Properties: signatureNames(f, stmt.ChildByFieldName("body")),
			})
		case "type_alias_declaration":
			value := stmt.ChildByFieldName("value")
			if value == nil || value.Type() != "object_type" {
				continue
			}
			out = append(out, model.ContractDefinition{
				Name:       f.Text(stmt.ChildByFieldName("name")),
				File:       f.Path,
				Kind:       model.KindType,
				Properties: signatureNames(f, value),
			})
		case "lexical_declaration", "variable_declaration":
			out = append(out, schemaDefinitions(f, stmt, model.KindSchemaBuilder)...)
		}
	}
	return out
}

// BackendDefinitions returns the exported classes of f whose name matches
// classPattern, and every top-level schema-builder variable.
func BackendDefinitions(f *project.SourceFile, classPattern *regexp.Regexp) (classes, schemas []model.ContractDefinition) {
	for _, e := range f.Exports() {
		if e.Decl == nil || e.Local == "" {
			continue
		}
		switch e.Decl.Type() {
		case "class_declaration", "abstract_class_declaration":
		default:
			continue
		}
		if !classPattern.MatchString(e.Local) {
			continue
		}
		classes = append(classes, model.ContractDefinition{
			Name:       e.Local,
			File:       f.Path,
			Kind:       model.KindBackendClass,
			Properties: fieldNames(f, e.Decl),
		})
	}
	for _, stmt := range topLevelDeclarations(f) {
		switch stmt.Type() {
		case "lexical_declaration", "variable_declaration":
			schemas = append(schemas, schemaDefinitions(f, stmt, model.KindBackendSchema)...)
		}
	}
	return classes, schemas
}

// topLevelDeclarations returns top-level statements with export wrappers
// removed.
func topLevelDeclarations(f *project.SourceFile) []*sitter.Node {
	var out []*sitter.Node
	for _, stmt := range f.Statements() {
		if stmt.Type() == "export_statement" {
			if decl := stmt.ChildByFieldName("declaration"); decl != nil {
				out = append(out, decl)
			}
			continue
		}
		out = append(out, stmt)
	}
	return out
}

func schemaDefinitions(f *project.SourceFile, decl *sitter.Node, kind model.ContractKind) []model.ContractDefinition {
	var out []model.ContractDefinition
	for _, d := range project.VariableDeclarators(decl) {
		name := d.ChildByFieldName("name")
		if name == nil || name.Type() != "identifier" {
			continue
		}
		shape := SchemaShape(f, d.ChildByFieldName("value"))
		if shape == nil {
			continue
		}
		props := dedupe(f.ObjectKeys(shape))
		if len(props) == 0 {
			continue
		}
		out = append(out, model.ContractDefinition{
			Name:       f.Text(name),
			File:       f.Path,
			Kind:       kind,
			Properties: props,
		})
	}
	return out
}

// SchemaShape finds the object literal of a schema-builder chain such as
// `z.object({...})`, `z.object({...}).strict()` or a curried builder. The
// object call must take exactly one object-literal argument.
func SchemaShape(f *project.SourceFile, n *sitter.Node) *sitter.Node {
	n = project.Unwrap(n)
	for n != nil && n.Type() == "call_expression" {
		fn := project.Unwrap(n.ChildByFieldName("function"))
		if fn == nil {
			return nil
		}
		switch fn.Type() {
		case "member_expression":
			obj, method, _ := f.Member(fn)
			if _, ok := schemaShapeMethods[method]; ok {
				args := project.Arguments(n)
				if len(args) == 1 && project.Unwrap(args[0]).Type() == "object" {
					return project.Unwrap(args[0])
				}
			}
			n = project.Unwrap(obj)
		case "call_expression":
			n = fn
		default:
			return nil
		}
	}
	return nil
}

// signatureNames returns the property signature names of an interface body
// or object type.
func signatureNames(f *project.SourceFile, body *sitter.Node) []string {
	var names []string
	for _, c := range project.NamedChildren(body) {
		if c.Type() == "property_signature" {
			names = append(names, f.PropertyKey(c.ChildByFieldName("name")))
		}
	}
	return dedupe(names)
}

// fieldNames returns the declared field names of a class.
func fieldNames(f *project.SourceFile, cls *sitter.Node) []string {
	var names []string
	for _, m := range f.ClassMembers(cls) {
		if m.Node.Type() == "public_field_definition" {
			names = append(names, f.PropertyKey(m.Node.ChildByFieldName("name")))
		}
	}
	return dedupe(names)
}

func dedupe(names []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
