package hygiene

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/surfaceaudit/internal/config"
	"github.com/phobologic/surfaceaudit/internal/discover"
	"github.com/phobologic/surfaceaudit/internal/lang"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/project"
	"github.com/phobologic/surfaceaudit/internal/resolve"
	"github.com/phobologic/surfaceaudit/internal/surface"
)

var (
	handlerAttribute = regexp.MustCompile(`^on[A-Z]`)
	routerObject     = regexp.MustCompile(`(?i)router`)
)

// RouteIndex is the set of navigable paths of the whole application.
type RouteIndex map[string]struct{}

// Has reports whether target, once normalized, is a known route.
func (ri RouteIndex) Has(target string) bool {
	_, ok := ri[surface.TargetPath(target)]
	return ok
}

// BuildRouteIndex derives the route of every file under root matching
// patterns. Route groups and slots are dropped and no scope prefix applies.
func BuildRouteIndex(root, appDir string, patterns []string) (RouteIndex, error) {
	found, err := discover.Files(root, patterns)
	if err != nil {
		return nil, fmt.Errorf("indexing routes: %w", err)
	}
	ri := make(RouteIndex, len(found.Files))
	for _, f := range found.Files {
		r := surface.FromFile(f.Path, appDir, "")
		if r.Path == surface.SharedRoute {
			continue
		}
		ri[surface.TargetPath(r.Path)] = struct{}{}
	}
	return ri, nil
}

// Checker runs the hygiene checks over single files.
type Checker struct {
	appDir      string
	stubDir     string
	interactive map[string]struct{}
	ignored     map[string]struct{}
	navigation  map[string]struct{}
	debug       map[string]struct{}
	markers     *regexp.Regexp
	resolver    *resolve.Resolver
}

// NewChecker configures the checks from cfg. Suggested handler stubs are
// placed under stubDir.
func NewChecker(cfg *config.Config, stubDir string, r *resolve.Resolver) *Checker {
	ignored := config.Set(cfg.Vocab.IgnoredIdentifiers)
	for _, g := range cfg.Vocab.AmbientGlobals {
		ignored[g] = struct{}{}
	}
	c := &Checker{
		appDir:      strings.TrimSuffix(cfg.AppDir, "/"),
		stubDir:     strings.TrimSuffix(stubDir, "/"),
		interactive: config.Set(cfg.Vocab.InteractiveAttributes),
		ignored:     ignored,
		navigation:  config.Set(cfg.Vocab.NavigationMethods),
		debug:       config.Set(cfg.Vocab.DebugMethods),
		resolver:    r,
	}
	if len(cfg.Vocab.Markers) > 0 {
		quoted := make([]string, len(cfg.Vocab.Markers))
		for i, m := range cfg.Vocab.Markers {
			quoted[i] = regexp.QuoteMeta(m)
		}
		c.markers = regexp.MustCompile(strings.Join(quoted, "|"))
	}
	return c
}

// Check runs all four checks on f and returns the issues ordered by line.
func (c *Checker) Check(f *project.SourceFile, index RouteIndex) []model.Issue {
	var issues []model.Issue
	issues = append(issues, c.MissingHandlers(f)...)
	issues = append(issues, c.DeadLinks(f, index)...)
	issues = append(issues, c.Markers(f)...)
	issues = append(issues, c.DebugStatements(f)...)
	SortByLine(issues)
	return issues
}

// SortByLine orders issues by line, keeping the check order within a line.
func SortByLine(issues []model.Issue) {
	slices.SortStableFunc(issues, func(a, b model.Issue) int {
		return cmp.Compare(line(a), line(b))
	})
}

func line(is model.Issue) int {
	if is.Position == nil {
		return 0
	}
	return is.Position.Line
}

// MissingHandlers reports identifiers referenced from interactive JSX
// attributes that nothing in the file declares.
func (c *Checker) MissingHandlers(f *project.SourceFile) []model.Issue {
	var issues []model.Issue
	bindings := f.Bindings()
	for _, attr := range f.Nodes(lang.CaptureJSXAttribute) {
		name, value := attribute(f, attr)
		if _, ok := c.interactive[name]; !ok && !handlerAttribute.MatchString(name) {
			continue
		}
		expr := expression(value)
		if expr == nil {
			continue
		}
		seen := make(map[uint32]struct{})
		for _, id := range project.Descendants(expr, "identifier", "shorthand_property_identifier") {
			if _, ok := seen[id.StartByte()]; ok {
				continue
			}
			seen[id.StartByte()] = struct{}{}
			handler := f.Text(id)
			if _, ok := c.ignored[handler]; ok {
				continue
			}
			if _, ok := bindings[handler]; ok {
				continue
			}
			pos := f.Position(id)
			element := elementName(f, attr)
			issues = append(issues, model.Issue{
				IssueType:  model.MissingHandler,
				Severity:   model.High,
				Evidence:   fmt.Sprintf("%s %s references %s but no definition or import was found", element, name, handler),
				Suggestion: c.stubSuggestion(handler),
				TargetFile: f.Path,
				Symbol:     handler,
				Position:   &pos,
			})
		}
	}
	return issues
}

func (c *Checker) stubSuggestion(handler string) string {
	return fmt.Sprintf("Create a server action stub at %s/%s.ts with:\n'use server';\nexport async function %s(formData: FormData) {\n  throw new Error('%s is not implemented');\n}",
		c.stubDir, handler, handler, handler)
}

// DeadLinks reports router navigations and href values whose literal
// absolute target is not in index. Navigation misses are critical, link
// misses high.
func (c *Checker) DeadLinks(f *project.SourceFile, index RouteIndex) []model.Issue {
	var issues []model.Issue
	for _, call := range f.Nodes(lang.CaptureCall) {
		obj, method, ok := f.Member(project.Callee(call))
		if !ok || !routerObject.MatchString(f.Text(obj)) {
			continue
		}
		if _, ok := c.navigation[method]; !ok {
			continue
		}
		args := project.Arguments(call)
		if len(args) == 0 {
			continue
		}
		target, ok := c.resolver.Literal(f, args[0])
		if !ok || !isPageTarget(target) || index.Has(target) {
			continue
		}
		pos := f.Position(call)
		issues = append(issues, model.Issue{
			IssueType:  model.DeadLink,
			Severity:   model.Critical,
			Evidence:   fmt.Sprintf("%s.%s targets %s but no page route exists", f.Text(obj), method, target),
			Suggestion: fmt.Sprintf("Add %s or adjust the navigation path.", c.pageFile(target)),
			TargetFile: f.Path,
			Position:   &pos,
		})
	}

	for _, attr := range f.Nodes(lang.CaptureJSXAttribute) {
		name, value := attribute(f, attr)
		if name != "href" || value == nil {
			continue
		}
		var target string
		var ok bool
		if value.Type() == "jsx_expression" {
			target, ok = c.resolver.Literal(f, expression(value))
		} else {
			target, ok = resolve.StringLiteral(f, value)
		}
		if !ok || !isPageTarget(target) || index.Has(target) {
			continue
		}
		pos := f.Position(attr)
		issues = append(issues, model.Issue{
			IssueType:  model.DeadLink,
			Severity:   model.High,
			Evidence:   fmt.Sprintf("<%s href=%q> points to a missing route", elementName(f, attr), target),
			Suggestion: fmt.Sprintf("Provision %s or gate the link.", c.pageFile(target)),
			TargetFile: f.Path,
			Position:   &pos,
		})
	}
	return issues
}

func isPageTarget(target string) bool {
	return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "/api")
}

func (c *Checker) pageFile(target string) string {
	t := surface.TargetPath(target)
	if t == "/" {
		return c.appDir + "/page.tsx"
	}
	return c.appDir + t + "/page.tsx"
}

// Markers reports every marker token in the file text at its offset.
func (c *Checker) Markers(f *project.SourceFile) []model.Issue {
	if c.markers == nil {
		return nil
	}
	var issues []model.Issue
	for _, loc := range c.markers.FindAllIndex(f.Source, -1) {
		pos := f.PositionAt(loc[0])
		issues = append(issues, model.Issue{
			IssueType:  model.Todo,
			Severity:   model.Medium,
			Evidence:   fmt.Sprintf("Found %s marker in file", f.Source[loc[0]:loc[1]]),
			Suggestion: "Replace the placeholder with the implemented flow logic, guarded by a feature flag or server action.",
			TargetFile: f.Path,
			Position:   &pos,
		})
	}
	return issues
}

// DebugStatements reports console output calls.
func (c *Checker) DebugStatements(f *project.SourceFile) []model.Issue {
	var issues []model.Issue
	for _, call := range f.Nodes(lang.CaptureCall) {
		obj, method, ok := f.Member(project.Callee(call))
		if !ok || f.Text(obj) != "console" {
			continue
		}
		if _, ok := c.debug[method]; !ok {
			continue
		}
		pos := f.Position(call)
		issues = append(issues, model.Issue{
			IssueType:  model.DebugStatement,
			Severity:   model.Low,
			Evidence:   fmt.Sprintf("Detected console.%s call", method),
			Suggestion: "Replace console output with structured telemetry behind a debug flag.",
			TargetFile: f.Path,
			Position:   &pos,
		})
	}
	return issues
}

// attribute returns the name of a JSX attribute and its value node, if any.
func attribute(f *project.SourceFile, attr *sitter.Node) (string, *sitter.Node) {
	children := project.NamedChildren(attr)
	if len(children) == 0 {
		return "", nil
	}
	name := f.Text(children[0])
	if len(children) < 2 {
		return name, nil
	}
	return name, children[1]
}

// expression unwraps the `{...}` container of an attribute value.
func expression(value *sitter.Node) *sitter.Node {
	if value == nil || value.Type() != "jsx_expression" {
		return nil
	}
	children := project.NamedChildren(value)
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

func elementName(f *project.SourceFile, attr *sitter.Node) string {
	el := project.Ancestor(attr, "jsx_opening_element", "jsx_self_closing_element")
	if el == nil {
		return "Unknown"
	}
	if name := el.ChildByFieldName("name"); name != nil {
		return f.Text(name)
	}
	return "Unknown"
}
