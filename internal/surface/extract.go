package surface

import (
	"path"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/surfaceaudit/internal/config"
	"github.com/phobologic/surfaceaudit/internal/lang"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/project"
	"github.com/phobologic/surfaceaudit/internal/resolve"
)

const (
	directiveClient = "use client"
	directiveServer = "use server"
)

var roles = map[string]model.FileRole{
	"page":      model.RolePage,
	"layout":    model.RoleLayout,
	"loading":   model.RoleLoading,
	"error":     model.RoleError,
	"template":  model.RoleTemplate,
	"not-found": model.RoleNotFound,
	"default":   model.RoleDefault,
}

// Role classifies a routed file by its base name alone.
func Role(file string) model.FileRole {
	base := path.Base(file)
	base = strings.TrimSuffix(base, path.Ext(base))
	if r, ok := roles[base]; ok {
		return r
	}
	return model.RoleRoute
}

// Directives returns the directive prologue of a statement list: the string
// expression statements it opens with.
func Directives(f *project.SourceFile, stmts []*sitter.Node) []string {
	var out []string
	for _, stmt := range stmts {
		if stmt.Type() != "expression_statement" {
			break
		}
		children := project.NamedChildren(stmt)
		if len(children) != 1 {
			break
		}
		v, ok := resolve.StringLiteral(f, children[0])
		if !ok || children[0].Type() != "string" {
			break
		}
		out = append(out, v)
	}
	return out
}

// HasDirective reports whether the file's prologue contains directive.
func HasDirective(f *project.SourceFile, directive string) bool {
	return slices.Contains(Directives(f, f.Statements()), directive)
}

// Extractor turns routed files into RouteRecords.
type Extractor struct {
	metadata map[string]struct{}
	verbs    map[string]struct{}
	hooks    map[string]struct{}
}

// NewExtractor builds an extractor over the vocabulary's metadata exports,
// HTTP verbs and hook names.
func NewExtractor(v config.Vocabulary) *Extractor {
	verbs := make(map[string]struct{}, len(v.HTTPVerbs))
	for _, verb := range v.HTTPVerbs {
		verbs[strings.ToUpper(verb)] = struct{}{}
	}
	return &Extractor{
		metadata: config.Set(v.MetadataExports),
		verbs:    verbs,
		hooks:    config.Set(v.Hooks),
	}
}

// Record describes f, which serves route.
func (x *Extractor) Record(f *project.SourceFile, route Route) model.RouteRecord {
	rec := model.RouteRecord{
		Route:                route.Path,
		File:                 f.Path,
		FileRole:             Role(f.Path),
		ExportedMetadataKeys: []string{},
		ParallelSlots:        route.ParallelSlots,
		Params:               route.Params,
		IsClientExecuted:     HasDirective(f, directiveClient),
		ExportedActions:      []model.ActionRef{},
		ImportedHandlers:     ImportedHandlers(f),
		HooksUsed:            x.hooksUsed(f),
		HTTPHandlerNames:     []string{},
	}

	seenMeta := make(map[string]struct{})
	for _, e := range f.Exports() {
		if e.Default {
			rec.ComponentName = orDefault(e.Local, "default")
		}
		if e.Decl == nil {
			continue
		}
		if _, ok := x.metadata[e.Name]; ok {
			if _, dup := seenMeta[e.Name]; !dup {
				seenMeta[e.Name] = struct{}{}
				rec.ExportedMetadataKeys = append(rec.ExportedMetadataKeys, e.Name)
			}
		}

		fn := exportedFunction(e)
		if fn == nil {
			continue
		}
		if rec.FileRole == model.RoleRoute {
			if _, ok := x.verbs[e.Name]; ok {
				rec.HTTPHandlerNames = append(rec.HTTPHandlerNames, e.Name)
			}
		}
		name := e.Local
		if name == "" {
			continue
		}
		async := project.HasToken(fn, "async")
		server := bodyHasServerDirective(f, fn)
		if async || server {
			rec.ExportedActions = append(rec.ExportedActions, model.ActionRef{
				Name:            name,
				Async:           async,
				ServerDirective: server,
			})
		}
	}
	return rec
}

// hooksUsed scans identifiers for hook names in first-appearance order.
func (x *Extractor) hooksUsed(f *project.SourceFile) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, id := range f.Descendants(f.Root(), "identifier") {
		name := f.Text(id)
		if _, ok := x.hooks[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// ImportedHandlers lists named imports that look like actions or handlers,
// or that come from a module whose path mentions actions.
func ImportedHandlers(f *project.SourceFile) []model.HandlerRef {
	out := []model.HandlerRef{}
	for _, imp := range f.Nodes(lang.CaptureImport) {
		source, _ := resolve.StringLiteral(f, imp.ChildByFieldName("source"))
		fromActions := strings.Contains(source, "action")
		for _, spec := range f.Descendants(imp, "import_specifier") {
			local := spec.ChildByFieldName("alias")
			if local == nil {
				local = spec.ChildByFieldName("name")
			}
			name := f.Text(local)
			if name == "" {
				continue
			}
			if fromActions || looksLikeHandler(name) {
				out = append(out, model.HandlerRef{Name: name, Source: source})
			}
		}
	}
	return out
}

func looksLikeHandler(name string) bool {
	return strings.HasSuffix(name, "Action") ||
		strings.HasPrefix(name, "handle") ||
		strings.HasSuffix(name, "Handler")
}

// exportedFunction returns the function node behind an export: a function
// declaration, or a variable initialized with a function or arrow function.
func exportedFunction(e project.Export) *sitter.Node {
	switch e.Decl.Type() {
	case "function_declaration", "generator_function_declaration":
		return e.Decl
	case "variable_declarator":
		v := project.Unwrap(e.Decl.ChildByFieldName("value"))
		if v != nil && isFunction(v) {
			return v
		}
	}
	return nil
}

func isFunction(n *sitter.Node) bool {
	switch n.Type() {
	case "arrow_function", "function_expression", "function", "generator_function":
		return true
	}
	return false
}

func bodyHasServerDirective(f *project.SourceFile, fn *sitter.Node) bool {
	body := fn.ChildByFieldName("body")
	if body == nil || body.Type() != "statement_block" {
		return false
	}
	return slices.Contains(Directives(f, project.NamedChildren(body)), directiveServer)
}

// ModuleExports lists the exported functions, classes and variables of a
// shared module in declaration order.
func ModuleExports(f *project.SourceFile) []string {
	out := []string{}
	for _, e := range f.Exports() {
		if e.Decl == nil {
			continue
		}
		switch e.Decl.Type() {
		case "function_declaration", "generator_function_declaration", "class_declaration", "abstract_class_declaration":
			out = append(out, e.Local)
		case "variable_declarator":
			out = append(out, e.Name)
		default:
			switch project.Unwrap(e.Decl).Type() {
			case "function_expression", "function", "arrow_function":
				out = append(out, orDefault(e.Local, "anonymousFunction"))
			case "class":
				out = append(out, orDefault(e.Local, "AnonymousClass"))
			}
		}
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
