// Package surface maps the routed files of one scope of the web application
// to route records, and summarizes the shared modules those routes import.
package surface

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/surfaceaudit/internal/audit"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/project"
	"github.com/phobologic/surfaceaudit/internal/report"
)

// Source names this analyzer in findings.
const Source = "surface"

// SharedModule summarizes one shared component or library file.
type SharedModule struct {
	File               string   `json:"file"`
	Exports            []string `json:"exports"`
	IsClientModule     bool     `json:"isClientModule"`
	HasServerDirective bool     `json:"hasServerDirective"`
}

// Report is the surface map of one scope.
type Report struct {
	report.Meta
	Scope            string              `json:"scope"`
	Routes           []model.RouteRecord `json:"routes"`
	SharedComponents []SharedModule      `json:"sharedComponents"`
	SharedLibs       []SharedModule      `json:"sharedLibs"`
	Warnings         []string            `json:"warnings,omitempty"`
}

// Analyzer builds surface maps.
type Analyzer struct{}

func (Analyzer) Name() string                 { return "surface" }
func (Analyzer) DefaultScope() string         { return "admin" }
func (Analyzer) Artifact(scope string) string { return audit.Artifact(scope, "surface-map") }

// Run loads the scope's routed files and shared modules and maps them.
func (Analyzer) Run(ctx context.Context, env *audit.Env) (audit.Result, error) {
	sc := env.Scope
	p := env.NewProject()
	defer p.Close()

	var patterns []string
	patterns = append(patterns, sc.RouteFiles...)
	patterns = append(patterns, sc.SharedComponents...)
	patterns = append(patterns, sc.SharedLibs...)
	warnings, err := p.Load(ctx, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading %s surface: %w", env.ScopeName, err)
	}

	x := NewExtractor(env.Config.Vocab)
	r := &Report{
		Meta:             env.Meta(),
		Scope:            env.ScopeName,
		Routes:           []model.RouteRecord{},
		SharedComponents: sharedModules(p.Files(sc.SharedComponents...)),
		SharedLibs:       sharedModules(p.Files(sc.SharedLibs...)),
	}
	for _, f := range p.Files(sc.RouteFiles...) {
		route := FromFile(f.Path, env.Config.AppDir, sc.RoutePrefix)
		r.Routes = append(r.Routes, x.Record(f, route))
	}
	SortRecords(r.Routes)

	if len(r.Routes) == 0 {
		warnings = append(warnings, fmt.Sprintf("no routes discovered for scope %q", env.ScopeName))
	}
	warnings = append(warnings, AmbiguousRoutes(r.Routes)...)
	for _, w := range warnings {
		env.Log().Warn("surface map", "scope", env.ScopeName, "warning", w)
	}
	r.Warnings = warnings
	return r, nil
}

// SortRecords orders records by route, then file.
func SortRecords(records []model.RouteRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Route != records[j].Route {
			return records[i].Route < records[j].Route
		}
		return records[i].File < records[j].File
	})
}

// AmbiguousRoutes reports every route served by more than one page. Records
// must be sorted.
func AmbiguousRoutes(records []model.RouteRecord) []string {
	var out []string
	for i := 0; i < len(records); {
		j := i
		var files []string
		for ; j < len(records) && records[j].Route == records[i].Route; j++ {
			if records[j].FileRole == model.RolePage {
				files = append(files, records[j].File)
			}
		}
		if len(files) > 1 {
			out = append(out, fmt.Sprintf("ambiguous route %s served by %s", records[i].Route, strings.Join(files, ", ")))
		}
		i = j
	}
	return out
}

func sharedModules(files []*project.SourceFile) []SharedModule {
	out := make([]SharedModule, 0, len(files))
	for _, f := range files {
		out = append(out, SharedModule{
			File:               f.Path,
			Exports:            ModuleExports(f),
			IsClientModule:     HasDirective(f, directiveClient),
			HasServerDirective: HasDirective(f, directiveServer),
		})
	}
	return out
}

func (r *Report) Title() string {
	return audit.Title(r.Scope) + " Surface Map"
}

// Findings returns the report's warnings; a surface map has no issues.
func (r *Report) Findings() []model.Finding {
	return audit.WarningFindings(Source, r.Warnings)
}

func (r *Report) RenderMarkdown(md *report.Markdown) {
	md.Warnings(r.Warnings)
	md.Heading(2, "Routes")
	if len(r.Routes) == 0 {
		md.Italic("No routes discovered.")
	}
	for _, rec := range r.Routes {
		md.Heading(3, rec.Route)
		md.Bullet(0, "File: %s", rec.File)
		md.Bullet(0, "Type: %s", rec.FileRole)
		if rec.ComponentName != "" {
			md.Bullet(0, "Component: %s", rec.ComponentName)
		}
		md.Bullet(0, "Client Component: %s", yesNo(rec.IsClientExecuted))
		listBullet(md, "Params", rec.Params)
		listBullet(md, "Exported Metadata", rec.ExportedMetadataKeys)
		listBullet(md, "Parallel Slots", rec.ParallelSlots)
		listBullet(md, "HTTP Handlers", rec.HTTPHandlerNames)
		var actions []string
		for _, a := range rec.ExportedActions {
			actions = append(actions, a.Name)
		}
		listBullet(md, "Server Actions", actions)
		var handlers []string
		for _, h := range rec.ImportedHandlers {
			handlers = append(handlers, fmt.Sprintf("%s (%s)", h.Name, h.Source))
		}
		listBullet(md, "Imported Handlers", handlers)
		listBullet(md, "Hooks", rec.HooksUsed)
		md.Blank()
	}

	renderModules(md, "Shared Components", r.SharedComponents)
	renderModules(md, "Shared Libraries", r.SharedLibs)
}

func renderModules(md *report.Markdown, title string, modules []SharedModule) {
	if len(modules) == 0 {
		return
	}
	md.Heading(2, title)
	for _, m := range modules {
		var tags []string
		if m.IsClientModule {
			tags = append(tags, "client")
		}
		if m.HasServerDirective {
			tags = append(tags, "server")
		}
		line := m.File
		if len(tags) > 0 {
			line += " [" + strings.Join(tags, ", ") + "]"
		}
		if len(m.Exports) > 0 {
			line += ": " + strings.Join(m.Exports, ", ")
		}
		md.Bullet(0, "%s", line)
	}
	md.Blank()
}

func listBullet(md *report.Markdown, label string, items []string) {
	if len(items) > 0 {
		md.Bullet(0, "%s: %s", label, strings.Join(items, ", "))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
