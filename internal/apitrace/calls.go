package apitrace

import (
	"log/slog"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/surfaceaudit/internal/config"
	"github.com/phobologic/surfaceaudit/internal/lang"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/project"
	"github.com/phobologic/surfaceaudit/internal/resolve"
	"github.com/phobologic/surfaceaudit/internal/surface"
)

var schemeHost = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://[^/]*`)

// CallCollector finds outbound HTTP calls in client code.
type CallCollector struct {
	appDir     string
	prefix     string
	requireAPI bool
	fetch      map[string]struct{}
	clients    map[string]struct{}
	verbs      map[string]struct{}
	resolver   *resolve.Resolver
	logger     *slog.Logger

	// Skipped counts calls whose URL has no literal value.
	Skipped int
}

// NewCallCollector configures a collector for one scope.
func NewCallCollector(cfg *config.Config, sc config.Scope, r *resolve.Resolver, logger *slog.Logger) *CallCollector {
	verbs := make(map[string]struct{}, len(cfg.Vocab.HTTPVerbs))
	for _, v := range cfg.Vocab.HTTPVerbs {
		verbs[strings.ToLower(v)] = struct{}{}
	}
	return &CallCollector{
		appDir:     cfg.AppDir,
		prefix:     sc.RoutePrefix,
		requireAPI: sc.RequireAPIPrefix,
		fetch:      config.Set(cfg.Vocab.FetchAliases),
		clients:    config.Set(sc.ClientAliases),
		verbs:      verbs,
		resolver:   r,
		logger:     logger,
	}
}

// Collect returns the call sites of f in document order.
func (c *CallCollector) Collect(f *project.SourceFile) []model.CallSiteFact {
	var out []model.CallSiteFact
	route := surface.FromFile(f.Path, c.appDir, c.prefix).Path
	for _, call := range f.Nodes(lang.CaptureCall) {
		fact, ok := c.callSite(f, call)
		if !ok {
			continue
		}
		fact.Route = route
		out = append(out, fact)
	}
	return out
}

func (c *CallCollector) callSite(f *project.SourceFile, call *sitter.Node) (model.CallSiteFact, bool) {
	callee := project.Callee(call)
	args := project.Arguments(call)
	if callee == nil || len(args) == 0 {
		return model.CallSiteFact{}, false
	}

	var fact model.CallSiteFact
	var label string
	switch callee.Type() {
	case "identifier":
		name := f.Text(callee)
		if _, ok := c.fetch[name]; !ok {
			return fact, false
		}
		label = name
		fact.Method = "GET"
		if len(args) > 1 {
			if m, ok := f.ObjectProperty(args[1], "method"); ok {
				if v, ok := c.resolver.Literal(f, m); ok && v != "" {
					fact.Method = strings.ToUpper(v)
				}
			}
			_, fact.HasBody = f.ObjectProperty(args[1], "body")
		}
	case "member_expression":
		obj, prop, ok := f.Member(callee)
		if !ok || obj == nil || obj.Type() != "identifier" {
			return fact, false
		}
		if _, ok := c.clients[f.Text(obj)]; !ok {
			return fact, false
		}
		if _, ok := c.verbs[strings.ToLower(prop)]; !ok {
			return fact, false
		}
		label = f.Text(obj) + "." + prop
		fact.Method = strings.ToUpper(prop)
		fact.HasBody = len(args) > 1
	default:
		return fact, false
	}

	pos := f.Position(call)
	lit, ok := c.resolver.Literal(f, args[0])
	if !ok {
		c.Skipped++
		c.logger.Debug("skipping dynamic url", "file", f.Path, "line", pos.Line, "expr", lang.CollapseWhitespace(f.Text(args[0])))
		return fact, false
	}
	url := CleanURL(lit)
	if url == "" {
		return fact, false
	}
	if c.requireAPI && !hasAPIPrefix(url) {
		return fact, false
	}

	fact.File = f.Path
	fact.Line = pos.Line
	fact.Column = pos.Column
	fact.URL = url
	fact.Evidence = label + "(" + url + ")"
	return fact, true
}

// CleanURL drops the scheme and host, the query and the fragment of a
// literal URL.
func CleanURL(raw string) string {
	u := schemeHost.ReplaceAllString(raw, "")
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return u
}

func hasAPIPrefix(p string) bool {
	return p == "/api" || strings.HasPrefix(p, "/api/")
}
