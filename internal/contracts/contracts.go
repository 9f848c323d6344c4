// Package contracts compares the structural types client code imports from
// the shared package with the back-end DTO classes and validation schemas
// meant to mirror them.
package contracts

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/surfaceaudit/internal/audit"
	"github.com/phobologic/surfaceaudit/internal/lang"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/project"
	"github.com/phobologic/surfaceaudit/internal/report"
	"github.com/phobologic/surfaceaudit/internal/resolve"
	"github.com/phobologic/surfaceaudit/internal/surface"
)

// Source names this analyzer in findings.
const Source = "contracts"

// Usage is one client file importing a shared definition.
type Usage struct {
	File  string `json:"file"`
	Route string `json:"route"`
}

// SharedDefinition is a shared contract and the client files using it.
type SharedDefinition struct {
	model.ContractDefinition
	Usage []Usage `json:"usage"`
}

// Comparison pairs one shared definition with its best back-end matches.
type Comparison struct {
	Shared        SharedDefinition          `json:"shared"`
	BackendClass  *model.ContractDefinition `json:"backendClass,omitempty"`
	BackendSchema *model.ContractDefinition `json:"backendSchema,omitempty"`
	Issues        []model.Issue             `json:"issues"`
}

// Report is the contract drift audit of one scope.
type Report struct {
	report.Meta
	Scope       string        `json:"scope"`
	Summary     model.Summary `json:"summary"`
	Comparisons []Comparison  `json:"comparisons"`
	Warnings    []string      `json:"warnings,omitempty"`
}

// Analyzer detects drift between shared contracts and back-end shapes.
type Analyzer struct{}

func (Analyzer) Name() string                 { return "contracts" }
func (Analyzer) DefaultScope() string         { return "admin" }
func (Analyzer) Artifact(scope string) string { return audit.Artifact(scope, "dto-drift") }

// Run collects shared definitions used by the scope's client code and
// compares each with the best back-end class and schema.
func (Analyzer) Run(ctx context.Context, env *audit.Env) (audit.Result, error) {
	cfg, sc := env.Config, env.Scope
	classPattern, err := regexp.Compile(cfg.Vocab.BackendClassPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling backend class pattern: %w", err)
	}

	sharedGlobs := uniq(append(append([]string{}, cfg.Shared.Sources...), env.TSConfig.SourceGlobs(cfg.Shared.Module)...))
	var patterns []string
	patterns = append(patterns, sc.ClientFiles...)
	patterns = append(patterns, sharedGlobs...)
	patterns = append(patterns, cfg.API.Sources...)

	p := env.NewProject()
	defer p.Close()
	warnings, err := p.Load(ctx, uniq(patterns)...)
	if err != nil {
		return nil, fmt.Errorf("loading %s contract sources: %w", env.ScopeName, err)
	}

	byName := make(map[string][]model.ContractDefinition)
	for _, f := range p.Files(sharedGlobs...) {
		for _, d := range Declarations(f) {
			byName[d.Name] = append(byName[d.Name], d)
		}
	}

	shared := collectShared(p.Files(sc.ClientFiles...), byName, cfg.Shared.Module, cfg.AppDir, sc.RoutePrefix)
	if len(shared) == 0 {
		warnings = append(warnings, fmt.Sprintf("no shared definitions imported from %s", cfg.Shared.Module))
	}

	var classes, schemas []model.ContractDefinition
	for _, f := range p.Files(cfg.API.Sources...) {
		c, s := BackendDefinitions(f, classPattern)
		classes = append(classes, c...)
		schemas = append(schemas, s...)
	}

	n := NewNormalizer(cfg.Vocab.ContractSuffixes)
	r := &Report{
		Meta:        env.Meta(),
		Scope:       env.ScopeName,
		Comparisons: []Comparison{},
		Warnings:    warnings,
	}
	var all []model.Issue
	for _, def := range shared {
		if len(def.Properties) == 0 {
			continue
		}
		c := Comparison{Shared: def, Issues: []model.Issue{}}
		if m, ok := n.BestMatch(def.ContractDefinition, classes); ok {
			c.BackendClass = &m
		}
		if m, ok := n.BestMatch(def.ContractDefinition, schemas); ok {
			c.BackendSchema = &m
		}
		c.Issues = append(c.Issues, Compare(def.ContractDefinition, c.BackendClass, model.MissingDTO)...)
		c.Issues = append(c.Issues, Compare(def.ContractDefinition, c.BackendSchema, model.MissingValidator)...)
		all = append(all, c.Issues...)
		r.Comparisons = append(r.Comparisons, c)
	}
	r.Summary = model.Summarize(all)
	for _, w := range warnings {
		env.Log().Warn("contract drift", "scope", env.ScopeName, "warning", w)
	}
	return r, nil
}

// collectShared resolves the named imports of module in the client files to
// shared definitions, recording each importing file once.
func collectShared(files []*project.SourceFile, byName map[string][]model.ContractDefinition, module, appDir, prefix string) []SharedDefinition {
	var out []SharedDefinition
	index := make(map[string]int)
	for _, f := range files {
		route := surface.FromFile(f.Path, appDir, prefix).Path
		for _, imp := range f.Nodes(lang.CaptureImport) {
			source, _ := resolve.StringLiteral(f, imp.ChildByFieldName("source"))
			if source != module && !strings.HasPrefix(source, module+"/") {
				continue
			}
			for _, spec := range f.Descendants(imp, "import_specifier") {
				name := f.Text(spec.ChildByFieldName("name"))
				for _, def := range byName[name] {
					key := def.Name + "::" + def.File
					i, ok := index[key]
					if !ok {
						index[key] = len(out)
						out = append(out, SharedDefinition{ContractDefinition: def, Usage: []Usage{{File: f.Path, Route: route}}})
						continue
					}
					if !hasUsage(out[i].Usage, f.Path) {
						out[i].Usage = append(out[i].Usage, Usage{File: f.Path, Route: route})
					}
				}
			}
		}
	}
	return out
}

func hasUsage(usage []Usage, file string) bool {
	for _, u := range usage {
		if u.File == file {
			return true
		}
	}
	return false
}

// Compare reports a missing counterpart as missingType, or the property
// differences between shared and its counterpart.
func Compare(shared model.ContractDefinition, candidate *model.ContractDefinition, missingType model.IssueType) []model.Issue {
	if candidate == nil {
		is := model.Issue{
			IssueType: missingType,
			Symbol:    shared.Name,
		}
		if missingType == model.MissingDTO {
			is.Severity = model.High
			is.Evidence = fmt.Sprintf("No matching back-end DTO class found for %s", shared.Name)
			is.Suggestion = fmt.Sprintf("Create a DTO class for %s in the API sources matching the shared properties.", shared.Name)
		} else {
			is.Severity = model.Medium
			is.Evidence = fmt.Sprintf("No matching API validator schema found for %s", shared.Name)
			is.Suggestion = fmt.Sprintf("Add a schema aligned with %s to the API sources.", shared.Name)
		}
		return []model.Issue{is}
	}

	var issues []model.Issue
	sharedProps := make(map[string]struct{}, len(shared.Properties))
	for _, p := range shared.Properties {
		sharedProps[p] = struct{}{}
	}
	candidateProps := make(map[string]struct{}, len(candidate.Properties))
	for _, p := range candidate.Properties {
		candidateProps[p] = struct{}{}
	}
	for _, p := range shared.Properties {
		if _, ok := candidateProps[p]; ok {
			continue
		}
		issues = append(issues, model.Issue{
			IssueType:  model.MissingProperty,
			Severity:   model.Medium,
			Evidence:   fmt.Sprintf("%s present in %s but missing in %s", p, shared.Name, candidate.Name),
			Suggestion: fmt.Sprintf("Add property %s to %s in %s or update the shared type.", p, candidate.Name, candidate.File),
			TargetFile: candidate.File,
			Property:   p,
			Symbol:     candidate.Name,
		})
	}
	for _, p := range candidate.Properties {
		if _, ok := sharedProps[p]; ok {
			continue
		}
		issues = append(issues, model.Issue{
			IssueType:  model.ExtraProperty,
			Severity:   model.Low,
			Evidence:   fmt.Sprintf("%s present in %s but absent from %s", p, candidate.Name, shared.Name),
			Suggestion: fmt.Sprintf("Confirm %s should exist; if so export it through the shared type, otherwise remove it from %s.", p, candidate.Name),
			TargetFile: candidate.File,
			Property:   p,
			Symbol:     candidate.Name,
		})
	}
	return issues
}

func uniq(patterns []string) []string {
	seen := make(map[string]struct{}, len(patterns))
	out := patterns[:0:0]
	for _, p := range patterns {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func (r *Report) Title() string {
	return audit.Title(r.Scope) + " DTO / Schema Drift Audit"
}

// Findings flattens every comparison's issues and the warnings.
func (r *Report) Findings() []model.Finding {
	var out []model.Finding
	for _, c := range r.Comparisons {
		var route string
		if len(c.Shared.Usage) > 0 {
			route = c.Shared.Usage[0].Route
		}
		for _, is := range c.Issues {
			file := is.TargetFile
			if file == "" {
				file = c.Shared.File
			}
			out = append(out, audit.IssueFinding(Source, is, file, route))
		}
	}
	return append(out, audit.WarningFindings(Source, r.Warnings)...)
}

// RenderMarkdown lists only the comparisons that have issues.
func (r *Report) RenderMarkdown(md *report.Markdown) {
	md.Warnings(r.Warnings)
	clean := true
	for _, c := range r.Comparisons {
		if len(c.Issues) == 0 {
			continue
		}
		clean = false
		md.Heading(2, c.Shared.Name)
		md.Bullet(0, "Shared Type: %s (%s)", c.Shared.Name, c.Shared.File)
		if c.BackendClass != nil {
			md.Bullet(0, "DTO: %s (%s)", c.BackendClass.Name, c.BackendClass.File)
		} else {
			md.Bullet(0, "DTO: not found")
		}
		if c.BackendSchema != nil {
			md.Bullet(0, "API Schema: %s (%s)", c.BackendSchema.Name, c.BackendSchema.File)
		} else {
			md.Bullet(0, "API Schema: not found")
		}
		md.Bullet(0, "Usage:")
		for _, u := range c.Shared.Usage {
			md.Bullet(1, "%s (%s)", u.Route, u.File)
		}
		md.Bullet(0, "Issues:")
		for _, is := range c.Issues {
			md.Bullet(1, "%s: %s", is.IssueType, is.Evidence)
			md.Bullet(2, "Suggestion: %s", is.Suggestion)
		}
		md.Blank()
	}
	if clean {
		md.Italic("No drift detected.")
	}
}
