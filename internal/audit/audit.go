// Package audit defines what every analyzer receives and returns.
package audit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/phobologic/surfaceaudit/internal/config"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/project"
	"github.com/phobologic/surfaceaudit/internal/report"
	"github.com/phobologic/surfaceaudit/internal/tsconfig"
)

// Env is the environment of one analyzer run.
type Env struct {
	Root      string
	Config    *config.Config
	ScopeName string
	Scope     config.Scope
	TSConfig  *tsconfig.Config
	Logger    *slog.Logger
	Now       func() time.Time
}

// Result is a finished report.
type Result interface {
	report.Document
	// Findings flattens the report's issues and warnings.
	Findings() []model.Finding
}

// Analyzer is one audit.
type Analyzer interface {
	// Name is the command name.
	Name() string
	// DefaultScope is used when no scope is given.
	DefaultScope() string
	// Artifact is the base file name of the report for scope.
	Artifact(scope string) string
	Run(ctx context.Context, env *Env) (Result, error)
}

// NewProject returns an empty project configured from env.
func (e *Env) NewProject() *project.Project {
	return project.New(e.Root,
		project.WithLogger(e.logger()),
		project.WithMaxFileSize(e.Config.MaxFileSize),
	)
}

// Meta stamps a report with the run clock.
func (e *Env) Meta() report.Meta {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return report.NewMeta(now())
}

// OutputDir returns the absolute artifact directory.
func (e *Env) OutputDir() string {
	if filepath.IsAbs(e.Config.OutputDir) {
		return e.Config.OutputDir
	}
	return filepath.Join(e.Root, e.Config.OutputDir)
}

// Log returns the run logger, never nil.
func (e *Env) Log() *slog.Logger {
	return e.logger()
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

// Artifact is the conventional report name for an analyzer and scope.
func Artifact(scope, suffix string) string {
	return scope + "-" + suffix
}

// Title capitalizes a scope name for report headings.
func Title(scope string) string {
	if scope == "" {
		return ""
	}
	return strings.ToUpper(scope[:1]) + scope[1:]
}

// WarningFindings turns collection warnings into medium findings.
func WarningFindings(source string, warnings []string) []model.Finding {
	out := make([]model.Finding, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, model.Finding{
			Source:     source,
			Severity:   model.Medium,
			IssueType:  model.WarningType(source),
			Summary:    w,
			Suggestion: "Check the " + source + " patterns in " + config.FileName + " against the repository layout.",
		})
	}
	return out
}

// IssueFinding flattens one issue found in file at route.
func IssueFinding(source string, is model.Issue, file, route string) model.Finding {
	f := model.Finding{
		Source:     source,
		Severity:   is.Severity,
		IssueType:  is.IssueType,
		Summary:    is.Evidence,
		Suggestion: is.Suggestion,
		File:       file,
		Route:      route,
	}
	if is.TargetFile != "" && f.File == "" {
		f.File = is.TargetFile
	}
	if is.Position != nil {
		f.Line = is.Position.Line
	}
	return f
}
