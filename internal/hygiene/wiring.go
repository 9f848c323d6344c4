package hygiene

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/phobologic/surfaceaudit/internal/audit"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/report"
	"github.com/phobologic/surfaceaudit/internal/resolve"
	"github.com/phobologic/surfaceaudit/internal/surface"
)

// WiringSource names the flow wiring analyzer in findings.
const WiringSource = "wiring"

// RouteFlow is the handler wiring of one routed file.
type RouteFlow struct {
	Route  string        `json:"route"`
	File   string        `json:"file"`
	Issues []model.Issue `json:"issues"`
}

// WiringReport is the flow wiring audit of one scope.
type WiringReport struct {
	report.Meta
	Scope    string        `json:"scope"`
	Summary  model.Summary `json:"summary"`
	Routes   []RouteFlow   `json:"routes"`
	Warnings []string      `json:"warnings,omitempty"`
}

// WiringAnalyzer checks that interactive attributes in a scope's routed
// files reference declared handlers.
type WiringAnalyzer struct{}

func (WiringAnalyzer) Name() string                 { return "wiring" }
func (WiringAnalyzer) DefaultScope() string         { return "admin" }
func (WiringAnalyzer) Artifact(scope string) string { return audit.Artifact(scope, "flow-wiring") }

func (WiringAnalyzer) Run(ctx context.Context, env *audit.Env) (audit.Result, error) {
	cfg, sc := env.Config, env.Scope
	p := env.NewProject()
	defer p.Close()
	warnings, err := p.Load(ctx, sc.RouteFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading %s route files: %w", env.ScopeName, err)
	}

	c := NewChecker(cfg, sc.ActionStubDir, resolve.New())
	r := &WiringReport{
		Meta:   env.Meta(),
		Scope:  env.ScopeName,
		Routes: []RouteFlow{},
	}
	var all []model.Issue
	for _, f := range p.Files(sc.RouteFiles...) {
		issues := c.MissingHandlers(f)
		SortByLine(issues)
		if issues == nil {
			issues = []model.Issue{}
		}
		r.Routes = append(r.Routes, RouteFlow{
			Route:  surface.FromFile(f.Path, cfg.AppDir, sc.RoutePrefix).Path,
			File:   f.Path,
			Issues: issues,
		})
		all = append(all, issues...)
	}
	slices.SortStableFunc(r.Routes, func(a, b RouteFlow) int {
		return cmp.Or(strings.Compare(a.Route, b.Route), strings.Compare(a.File, b.File))
	})
	if len(r.Routes) == 0 {
		warnings = append(warnings, fmt.Sprintf("no routes discovered for scope %q", env.ScopeName))
	}
	r.Warnings = warnings
	r.Summary = model.Summarize(all)
	for _, w := range warnings {
		env.Log().Warn("flow wiring", "scope", env.ScopeName, "warning", w)
	}
	return r, nil
}

func (r *WiringReport) Title() string {
	return audit.Title(r.Scope) + " Flow Wiring Audit"
}

// Findings flattens every route's issues and the warnings.
func (r *WiringReport) Findings() []model.Finding {
	var out []model.Finding
	for _, rf := range r.Routes {
		for _, is := range rf.Issues {
			out = append(out, audit.IssueFinding(WiringSource, is, rf.File, rf.Route))
		}
	}
	return append(out, audit.WarningFindings(WiringSource, r.Warnings)...)
}

// RenderMarkdown lists only routes with issues.
func (r *WiringReport) RenderMarkdown(md *report.Markdown) {
	md.Warnings(r.Warnings)
	clean := true
	for _, rf := range r.Routes {
		if len(rf.Issues) == 0 {
			continue
		}
		clean = false
		md.Heading(2, rf.Route)
		md.Line("File: %s", rf.File)
		md.Blank()
		for _, is := range rf.Issues {
			md.Bullet(0, "Line %d: %s", line(is), is.Evidence)
			md.Bullet(1, "Handler: `%s`", is.Symbol)
			md.Bullet(1, "Suggestion: %s", is.Suggestion)
		}
		md.Blank()
	}
	if clean {
		md.Italic("Every interactive attribute resolves to a declared handler.")
	}
}
