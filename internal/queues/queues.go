// Package queues checks that every message queue the API registers is
// consumed by a worker, and the reverse, for a keyword-filtered subset of
// queues.
package queues

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
)

// Source names this analyzer in findings.
const Source = "queues"

// Entry is every retained usage sharing one queue key.
type Entry struct {
	QueueKey   string                   `json:"queueKey"`
	QueueNames []string                 `json:"queueNames"`
	Aliases    []string                 `json:"aliases"`
	Records    []model.QueueUsageRecord `json:"records"`
	Issues     []model.Issue            `json:"issues"`
}

// Report is the queue audit of one scope.
type Report struct {
	report.Meta
	Scope    string        `json:"scope"`
	Summary  model.Summary `json:"summary"`
	Queues   []Entry       `json:"queues"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Analyzer audits producer/consumer symmetry of queues.
type Analyzer struct{}

func (Analyzer) Name() string                 { return "queues" }
func (Analyzer) DefaultScope() string         { return "supplier" }
func (Analyzer) Artifact(scope string) string { return audit.Artifact(scope, "queue-audit") }

// Run collects usages from the API and worker sources, groups them by key
// and classifies each group.
func (Analyzer) Run(ctx context.Context, env *audit.Env) (audit.Result, error) {
	cfg := env.Config
	p := env.NewProject()
	defer p.Close()

	var patterns []string
	patterns = append(patterns, cfg.API.Sources...)
	patterns = append(patterns, cfg.Worker.Sources...)
	warnings, err := p.Load(ctx, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading queue sources: %w", err)
	}

	c := NewCollector(cfg.Vocab, resolve.New())
	var records []model.QueueUsageRecord
	for _, f := range p.Files(cfg.API.Sources...) {
		records = append(records, c.Collect(f, model.SideAPI)...)
	}
	for _, f := range p.Files(cfg.Worker.Sources...) {
		records = append(records, c.Collect(f, model.SideWorker)...)
	}
	SortRecords(records)
	if len(records) == 0 {
		warnings = append(warnings, "no queue registrations passed the keyword filter")
	}

	r := &Report{
		Meta:     env.Meta(),
		Scope:    env.ScopeName,
		Queues:   Group(records),
		Warnings: warnings,
	}
	var all []model.Issue
	for _, e := range r.Queues {
		all = append(all, e.Issues...)
	}
	r.Summary = model.Summarize(all)
	for _, w := range warnings {
		env.Log().Warn("queue audit", "scope", env.ScopeName, "warning", w)
	}
	return r, nil
}

func sideRank(s model.QueueSide) int {
	if s == model.SideAPI {
		return 0
	}
	return 1
}

// SortRecords orders records API side first, then by file and position.
func SortRecords(records []model.QueueUsageRecord) {
	slices.SortStableFunc(records, func(a, b model.QueueUsageRecord) int {
		return cmp.Or(
			cmp.Compare(sideRank(a.Side), sideRank(b.Side)),
			strings.Compare(a.File, b.File),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Column, b.Column),
		)
	})
}

// Group joins records on their raw key and classifies each group. Groups
// are sorted by key; records keep their order.
func Group(records []model.QueueUsageRecord) []Entry {
	byKey := make(map[string][]model.QueueUsageRecord)
	var keys []string
	for _, rec := range records {
		if _, ok := byKey[rec.QueueKey]; !ok {
			keys = append(keys, rec.QueueKey)
		}
		byKey[rec.QueueKey] = append(byKey[rec.QueueKey], rec)
	}
	slices.Sort(keys)

	entries := []Entry{}
	for _, key := range keys {
		recs := byKey[key]
		e := Entry{
			QueueKey:   key,
			QueueNames: []string{},
			Aliases:    []string{},
			Records:    recs,
		}
		for _, rec := range recs {
			if rec.QueueName != "" && !slices.Contains(e.QueueNames, rec.QueueName) {
				e.QueueNames = append(e.QueueNames, rec.QueueName)
			}
			if rec.AliasName != "" && !slices.Contains(e.Aliases, rec.AliasName) {
				e.Aliases = append(e.Aliases, rec.AliasName)
			}
		}
		e.Issues = Classify(e)
		entries = append(entries, e)
	}
	return entries
}

// Classify reports a missing producer, a missing consumer, and a key that
// never resolved to a literal name.
func Classify(e Entry) []model.Issue {
	issues := []model.Issue{}
	hasRole := func(role model.QueueRole) bool {
		return slices.ContainsFunc(e.Records, func(r model.QueueUsageRecord) bool { return r.Role == role })
	}
	issue := func(t model.IssueType, sev model.Severity, evidence, suggestion string) model.Issue {
		is := model.Issue{
			IssueType:  t,
			Severity:   sev,
			Evidence:   evidence,
			Suggestion: suggestion,
			Symbol:     e.QueueKey,
		}
		if len(e.Records) > 0 {
			first := e.Records[0]
			is.TargetFile = first.File
			is.Position = &model.Position{Line: first.Line, Column: first.Column}
		}
		return is
	}

	if !hasRole(model.Producer) {
		issues = append(issues, issue(model.MissingProducer, model.High,
			fmt.Sprintf("Queue %q has no producer registration", e.QueueKey),
			"Register the queue in an API module or create a Queue for it in the API sources."))
	}
	if !hasRole(model.Consumer) {
		issues = append(issues, issue(model.MissingConsumer, model.High,
			fmt.Sprintf("Queue %q has no worker consuming it", e.QueueKey),
			"Create a Worker for the queue in the worker sources."))
	}
	if len(e.QueueNames) == 0 {
		issues = append(issues, issue(model.UnresolvedQueueName, model.Medium,
			fmt.Sprintf("Queue %q resolves only through an alias", e.QueueKey),
			"Define the queue name as a constant in the shared package and import it on both sides."))
	}
	return issues
}

func (r *Report) Title() string {
	return audit.Title(r.Scope) + " Queue Audit"
}

// Findings flattens every queue's issues and the warnings.
func (r *Report) Findings() []model.Finding {
	var out []model.Finding
	for _, e := range r.Queues {
		for _, is := range e.Issues {
			out = append(out, audit.IssueFinding(Source, is, "", ""))
		}
	}
	return append(out, audit.WarningFindings(Source, r.Warnings)...)
}

func (r *Report) RenderMarkdown(md *report.Markdown) {
	md.Warnings(r.Warnings)
	if len(r.Queues) == 0 {
		md.Italic("No queues discovered.")
		return
	}
	for _, e := range r.Queues {
		md.Heading(2, "Queue: "+e.QueueKey)
		if len(e.QueueNames) > 0 {
			md.Bullet(0, "Resolved Names: %s", strings.Join(e.QueueNames, ", "))
		}
		if len(e.Aliases) > 0 {
			md.Bullet(0, "Aliases: %s", strings.Join(e.Aliases, ", "))
		}
		md.Bullet(0, "Records:")
		for _, rec := range e.Records {
			md.Bullet(1, "[%s] %s:%d (%s): %s", rec.Role, rec.File, rec.Line, rec.Side, rec.Evidence)
			md.Bullet(2, "Reasons: %s", strings.Join(rec.Reasons, "; "))
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
