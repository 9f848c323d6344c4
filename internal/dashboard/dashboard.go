// Package dashboard folds the artifacts of the other analyzers into one
// prioritized view with a CI recommendation.
package dashboard

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/phobologic/surfaceaudit/internal/apitrace"
	"github.com/phobologic/surfaceaudit/internal/audit"
	"github.com/phobologic/surfaceaudit/internal/contracts"
	"github.com/phobologic/surfaceaudit/internal/hygiene"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/queues"
	"github.com/phobologic/surfaceaudit/internal/report"
	"github.com/phobologic/surfaceaudit/internal/surface"
)

// TopFindings is how many findings the summary highlights.
const TopFindings = 10

// CI recommendations.
const (
	Pass = "pass"
	Warn = "warn"
	Fail = "fail"
)

// Input is one artifact the dashboard reads.
type Input struct {
	Analyzer audit.Analyzer
	decode   func([]byte) (audit.Result, error)
}

func input[T any, P interface {
	*T
	audit.Result
}](a audit.Analyzer) Input {
	return Input{Analyzer: a, decode: func(data []byte) (audit.Result, error) {
		var r T
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return P(&r), nil
	}}
}

// Inputs lists the artifacts in the order their findings are collected.
var Inputs = []Input{
	input[surface.Report](surface.Analyzer{}),
	input[hygiene.Report](hygiene.Analyzer{}),
	input[apitrace.Report](apitrace.Analyzer{}),
	input[contracts.Report](contracts.Analyzer{}),
	input[queues.Report](queues.Analyzer{}),
	input[hygiene.WiringReport](hygiene.WiringAnalyzer{}),
}

// Artifact describes one artifact that was read.
type Artifact struct {
	Analyzer    string `json:"analyzer"`
	Path        string `json:"path"`
	GeneratedAt string `json:"generatedAt"`
	Findings    int    `json:"findings"`
}

// Summary counts findings by severity, issue type and source.
type Summary struct {
	Total            int                     `json:"total"`
	BySeverity       map[model.Severity]int  `json:"bySeverity"`
	ByType           map[model.IssueType]int `json:"byType"`
	BySource         map[string]int          `json:"bySource"`
	HasCritical      bool                    `json:"hasCriticalFindings"`
	HasHigh          bool                    `json:"hasHighFindings"`
	CIRecommendation string                  `json:"ciRecommendation"`
}

// Report is the audit dashboard of one scope.
type Report struct {
	report.Meta
	Scope            string          `json:"scope"`
	Summary          Summary         `json:"summary"`
	TopFindings      []model.Finding `json:"topFindings"`
	Artifacts        []Artifact      `json:"artifacts"`
	MissingArtifacts []string        `json:"missingArtifacts"`
	All              []model.Finding `json:"findings"`
}

// Analyzer builds the dashboard from artifacts already in the output dir.
type Analyzer struct{}

func (Analyzer) Name() string                 { return "dashboard" }
func (Analyzer) DefaultScope() string         { return "customer" }
func (Analyzer) Artifact(scope string) string { return audit.Artifact(scope, "audit-dashboard") }

// Run reads every input artifact of the scope that exists. Missing
// artifacts are listed; unreadable or malformed ones are an error.
func (Analyzer) Run(ctx context.Context, env *audit.Env) (audit.Result, error) {
	dir := env.OutputDir()
	r := &Report{
		Meta:             env.Meta(),
		Scope:            env.ScopeName,
		Artifacts:        []Artifact{},
		MissingArtifacts: []string{},
	}
	var findings []model.Finding
	for _, in := range Inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, in.Analyzer.Artifact(env.ScopeName)+".json")
		rel := relative(env.Root, path)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			r.MissingArtifacts = append(r.MissingArtifacts, rel)
			env.Log().Warn("dashboard input missing", "scope", env.ScopeName, "artifact", rel)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rel, err)
		}
		res, err := in.decode(data)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", rel, err)
		}
		found := res.Findings()
		r.Artifacts = append(r.Artifacts, Artifact{
			Analyzer:    in.Analyzer.Name(),
			Path:        rel,
			GeneratedAt: res.Generated(),
			Findings:    len(found),
		})
		findings = append(findings, found...)
	}

	Sort(findings)
	AssignIDs(findings)
	if findings == nil {
		findings = []model.Finding{}
	}
	r.All = findings
	r.Summary = Summarize(findings)
	r.TopFindings = findings[:min(TopFindings, len(findings))]
	return r, nil
}

// Sort orders findings by severity, then source, file and line.
func Sort(findings []model.Finding) {
	slices.SortStableFunc(findings, func(a, b model.Finding) int {
		return cmp.Or(
			cmp.Compare(a.Severity.Rank(), b.Severity.Rank()),
			strings.Compare(a.Source, b.Source),
			strings.Compare(a.File, b.File),
			cmp.Compare(a.Line, b.Line),
		)
	})
}

// AssignIDs gives every finding a stable identifier built from its source,
// location and type. Repeats get a numeric suffix.
func AssignIDs(findings []model.Finding) {
	seen := make(map[string]int, len(findings))
	for i := range findings {
		f := &findings[i]
		id := fmt.Sprintf("%s:%s:%d:%s", f.Source, f.File, f.Line, f.IssueType)
		if f.File == "" {
			id = fmt.Sprintf("%s:%s", f.IssueType, f.Summary)
		}
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s#%d", id, n)
		}
		f.ID = id
	}
}

// Summarize counts findings and derives the CI recommendation: fail on any
// critical or high finding, warn on any finding at all, pass otherwise.
func Summarize(findings []model.Finding) Summary {
	s := Summary{
		BySeverity: make(map[model.Severity]int, len(model.Severities)),
		ByType:     make(map[model.IssueType]int),
		BySource:   make(map[string]int),
	}
	for _, sev := range model.Severities {
		s.BySeverity[sev] = 0
	}
	for _, f := range findings {
		s.Total++
		s.BySeverity[f.Severity]++
		s.ByType[f.IssueType]++
		s.BySource[f.Source]++
	}
	s.HasCritical = s.BySeverity[model.Critical] > 0
	s.HasHigh = s.BySeverity[model.High] > 0
	switch {
	case s.HasCritical || s.HasHigh:
		s.CIRecommendation = Fail
	case s.Total > 0:
		s.CIRecommendation = Warn
	default:
		s.CIRecommendation = Pass
	}
	return s
}

// FailOn returns an error when any finding is at or above threshold.
func (r *Report) FailOn(threshold model.Severity) error {
	var n int
	for _, f := range r.All {
		if f.Severity.AtLeast(threshold) {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("%d findings at or above %s severity", n, threshold)
	}
	return nil
}

func relative(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (r *Report) Title() string {
	return audit.Title(r.Scope) + " Audit Dashboard"
}

// Findings returns the aggregated findings so a dashboard can feed the run
// summary like any other report.
func (r *Report) Findings() []model.Finding {
	return r.All
}

func (r *Report) RenderMarkdown(md *report.Markdown) {
	md.Bullet(0, "CI Recommendation: **%s**", r.Summary.CIRecommendation)
	md.Bullet(0, "Total Findings: %d", r.Summary.Total)
	md.Blank()

	md.Heading(2, "Findings by Severity")
	for _, sev := range model.Severities {
		md.Bullet(0, "%s: %d", sev, r.Summary.BySeverity[sev])
	}
	md.Blank()

	if len(r.Summary.ByType) > 0 {
		md.Heading(2, "Findings by Type")
		types := make([]string, 0, len(r.Summary.ByType))
		for t := range r.Summary.ByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			md.Bullet(0, "%s: %d", t, r.Summary.ByType[model.IssueType(t)])
		}
		md.Blank()
	}

	md.Heading(2, "Top Findings")
	if len(r.TopFindings) == 0 {
		md.Italic("No findings.")
	}
	for i, f := range r.TopFindings {
		md.Line("%d. [%s] %s: %s%s", i+1, f.Severity, f.Source, f.Summary, location(f))
		if f.Suggestion != "" {
			md.Bullet(1, "Suggestion: %s", f.Suggestion)
		}
	}
	if len(r.TopFindings) > 0 {
		md.Blank()
	}

	md.Heading(2, "Artifacts")
	if len(r.Artifacts) == 0 {
		md.Italic("No artifacts found.")
	}
	for _, a := range r.Artifacts {
		md.Bullet(0, "%s: %s (generated %s, %d findings)", a.Analyzer, a.Path, a.GeneratedAt, a.Findings)
	}
	if len(r.Artifacts) > 0 {
		md.Blank()
	}

	if len(r.MissingArtifacts) > 0 {
		md.Heading(2, "Missing Artifacts")
		for _, m := range r.MissingArtifacts {
			md.Bullet(0, "%s", m)
		}
		md.Blank()
	}
}

func location(f model.Finding) string {
	switch {
	case f.File == "":
		return ""
	case f.Line > 0:
		return fmt.Sprintf(" (%s:%d)", f.File, f.Line)
	default:
		return fmt.Sprintf(" (%s)", f.File)
	}
}
