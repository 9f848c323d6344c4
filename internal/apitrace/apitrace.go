// Package apitrace pairs the HTTP calls a scope's client code makes with the
// routes the back-end controllers declare, and reports where they disagree.
package apitrace

import (
	"context"
	"fmt"
	"strings"

	"github.com/phobologic/surfaceaudit/internal/audit"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/report"
	"github.com/phobologic/surfaceaudit/internal/resolve"
)

// Source names this analyzer in findings.
const Source = "apitrace"

// Entry is one call site with its matched route and issues.
type Entry struct {
	Call              model.CallSiteFact         `json:"call"`
	MatchedController *model.ControllerRouteFact `json:"matchedController,omitempty"`
	Issues            []model.Issue              `json:"issues"`
}

// Summary counts what the trace saw.
type Summary struct {
	Calls               int           `json:"calls"`
	Controllers         int           `json:"controllers"`
	SkippedDynamicCalls int           `json:"skippedDynamicCalls"`
	Issues              model.Summary `json:"issues"`
}

// Report is the API trace of one scope.
type Report struct {
	report.Meta
	Scope    string   `json:"scope"`
	Summary  Summary  `json:"summary"`
	Calls    []Entry  `json:"calls"`
	Warnings []string `json:"warnings,omitempty"`
}

// Analyzer traces client calls to controller routes.
type Analyzer struct{}

func (Analyzer) Name() string                 { return "apitrace" }
func (Analyzer) DefaultScope() string         { return "admin" }
func (Analyzer) Artifact(scope string) string { return audit.Artifact(scope, "api-trace") }

// Run collects calls and controller routes, matches and classifies them.
func (Analyzer) Run(ctx context.Context, env *audit.Env) (audit.Result, error) {
	cfg, sc := env.Config, env.Scope
	p := env.NewProject()
	defer p.Close()

	var patterns []string
	patterns = append(patterns, sc.ClientFiles...)
	patterns = append(patterns, cfg.API.Controllers...)
	warnings, err := p.Load(ctx, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading %s api trace sources: %w", env.ScopeName, err)
	}

	res := resolve.New()
	cc := NewCallCollector(cfg, sc, res, env.Log())
	var calls []model.CallSiteFact
	for _, f := range p.Files(sc.ClientFiles...) {
		calls = append(calls, cc.Collect(f)...)
	}

	ctrl := NewControllerCollector(cfg.Vocab, res)
	var routes []model.ControllerRouteFact
	for _, f := range p.Files(cfg.API.Controllers...) {
		routes = append(routes, ctrl.Collect(f)...)
	}
	if len(routes) == 0 {
		warnings = append(warnings, "no controller routes discovered")
	}

	r := &Report{
		Meta:     env.Meta(),
		Scope:    env.ScopeName,
		Calls:    []Entry{},
		Warnings: warnings,
	}
	m := NewMatcher(routes, cfg.Matching.ParamAwareRoutes)
	cl := NewClassifier(cfg.Vocab, sc)
	var all []model.Issue
	for _, call := range calls {
		route, ok := m.Match(call)
		e := Entry{Call: call, Issues: cl.Classify(call, route, ok)}
		if ok {
			matched := route
			e.MatchedController = &matched
		}
		all = append(all, e.Issues...)
		r.Calls = append(r.Calls, e)
	}
	r.Summary = Summary{
		Calls:               len(calls),
		Controllers:         len(routes),
		SkippedDynamicCalls: cc.Skipped,
		Issues:              model.Summarize(all),
	}
	for _, w := range warnings {
		env.Log().Warn("api trace", "scope", env.ScopeName, "warning", w)
	}
	return r, nil
}

func (r *Report) Title() string {
	return audit.Title(r.Scope) + " API Trace Audit"
}

// Findings flattens every call's issues and the warnings.
func (r *Report) Findings() []model.Finding {
	var out []model.Finding
	for _, e := range r.Calls {
		for _, is := range e.Issues {
			out = append(out, audit.IssueFinding(Source, is, e.Call.File, e.Call.Route))
		}
	}
	return append(out, audit.WarningFindings(Source, r.Warnings)...)
}

func (r *Report) RenderMarkdown(md *report.Markdown) {
	md.Warnings(r.Warnings)
	md.Heading(2, "Summary")
	md.Bullet(0, "Calls traced: %d", r.Summary.Calls)
	md.Bullet(0, "Controller routes: %d", r.Summary.Controllers)
	md.Bullet(0, "Dynamic calls skipped: %d", r.Summary.SkippedDynamicCalls)
	md.Bullet(0, "Issues: %d", r.Summary.Issues.Total)
	md.Blank()

	for _, e := range r.Calls {
		c := e.Call
		md.Heading(2, c.Method+" "+c.URL)
		md.Bullet(0, "Source: %s (route %s, line %d)", c.File, c.Route, c.Line)
		md.Bullet(0, "Has Body: %s", yesNo(c.HasBody))
		if mc := e.MatchedController; mc != nil {
			md.Bullet(0, "Controller: %s.%s (%s %s)", mc.ClassName, mc.MethodName, mc.HTTPMethod, mc.Path)
			md.Bullet(0, "File: %s", mc.File)
			md.Bullet(0, "Guarded: %s", yesNo(mc.Guarded))
			if len(mc.StatusCodes) > 0 {
				md.Bullet(0, "Declared Status Codes: %s", joinInts(mc.StatusCodes))
			}
			if len(mc.BodyTypes) > 0 {
				md.Bullet(0, "Body Types: %s", strings.Join(mc.BodyTypes, ", "))
			}
		} else {
			md.Bullet(0, "Controller: not found")
		}
		if len(e.Issues) > 0 {
			md.Bullet(0, "Issues:")
			for _, is := range e.Issues {
				md.Bullet(1, "%s (%s): %s", is.IssueType, is.Severity, is.Evidence)
				md.Bullet(2, "Suggestion: %s", is.Suggestion)
			}
		}
		md.Blank()
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
