// Package hygiene scans the critical user journey for handlers that resolve
// to nothing, links to routes that do not exist, leftover placeholder
// markers and debug output.
package hygiene

import (
	"context"
	"fmt"

	"github.com/phobologic/surfaceaudit/internal/audit"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/report"
	"github.com/phobologic/surfaceaudit/internal/resolve"
	"github.com/phobologic/surfaceaudit/internal/surface"
)

// Source names the critical flow analyzer in findings.
const Source = "hygiene"

// FlowIssue is an issue and the route of the file it was found in.
type FlowIssue struct {
	Route string `json:"route"`
	model.Issue
}

// StageReport is the outcome for one journey stage.
type StageReport struct {
	Stage  string      `json:"stage"`
	Label  string      `json:"label"`
	Files  []string    `json:"files"`
	Issues []FlowIssue `json:"issues"`
}

// Report is the critical flow audit of one scope.
type Report struct {
	report.Meta
	Scope    string        `json:"scope"`
	Summary  model.Summary `json:"summary"`
	Stages   []StageReport `json:"stages"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Analyzer checks the configured journey stages.
type Analyzer struct{}

func (Analyzer) Name() string                 { return "hygiene" }
func (Analyzer) DefaultScope() string         { return "customer" }
func (Analyzer) Artifact(scope string) string { return audit.Artifact(scope, "critical-flow") }

// Run checks every file of every stage against the global route index.
func (Analyzer) Run(ctx context.Context, env *audit.Env) (audit.Result, error) {
	cfg := env.Config
	index, err := BuildRouteIndex(env.Root, cfg.AppDir, cfg.RouteIndex)
	if err != nil {
		return nil, err
	}

	p := env.NewProject()
	defer p.Close()
	var patterns []string
	for _, st := range cfg.Stages {
		patterns = append(patterns, st.Patterns...)
	}
	unmatched, err := p.Load(ctx, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading %s flow sources: %w", env.ScopeName, err)
	}
	for _, w := range unmatched {
		env.Log().Debug("critical flow", "scope", env.ScopeName, "warning", w)
	}

	c := NewChecker(cfg, env.Scope.ActionStubDir, resolve.New())
	r := &Report{
		Meta:   env.Meta(),
		Scope:  env.ScopeName,
		Stages: []StageReport{},
	}
	var all []model.Issue
	for _, st := range cfg.Stages {
		sr := StageReport{Stage: st.Stage, Label: st.Label, Files: []string{}, Issues: []FlowIssue{}}
		for _, f := range p.Files(st.Patterns...) {
			sr.Files = append(sr.Files, f.Path)
			route := surface.FromFile(f.Path, cfg.AppDir, env.Scope.RoutePrefix).Path
			for _, is := range c.Check(f, index) {
				sr.Issues = append(sr.Issues, FlowIssue{Route: route, Issue: is})
				all = append(all, is)
			}
		}
		if len(sr.Files) == 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("no files matched patterns for stage %s", st.Label))
		}
		r.Stages = append(r.Stages, sr)
	}
	r.Summary = model.Summarize(all)
	for _, w := range r.Warnings {
		env.Log().Warn("critical flow", "scope", env.ScopeName, "warning", w)
	}
	return r, nil
}

func (r *Report) Title() string {
	return audit.Title(r.Scope) + " Critical Flow Audit"
}

// Findings flattens every stage's issues and the warnings.
func (r *Report) Findings() []model.Finding {
	var out []model.Finding
	for _, st := range r.Stages {
		for _, is := range st.Issues {
			out = append(out, audit.IssueFinding(Source, is.Issue, "", is.Route))
		}
	}
	return append(out, audit.WarningFindings(Source, r.Warnings)...)
}

func (r *Report) RenderMarkdown(md *report.Markdown) {
	md.Warnings(r.Warnings)
	for _, st := range r.Stages {
		md.Heading(2, st.Label)
		if len(st.Files) == 0 {
			md.Italic("No files inspected for this stage.")
			continue
		}
		md.Line("Files inspected (%d):", len(st.Files))
		for _, f := range st.Files {
			md.Bullet(0, "%s", f)
		}
		md.Blank()
		if len(st.Issues) == 0 {
			md.Italic("No issues detected.")
			continue
		}
		for _, is := range st.Issues {
			md.Bullet(0, "**%s** (%s, line %d): %s", is.IssueType, is.TargetFile, line(is.Issue), is.Evidence)
			md.Bullet(1, "Suggestion: %s", is.Suggestion)
		}
		md.Blank()
	}
}
