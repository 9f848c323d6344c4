// Package toon prints the summary of an analyzer run in TOON
// (Token-Oriented Object Notation).
package toon

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/phobologic/surfaceaudit/internal/model"
)

// MaxIssues caps the issues table.
const MaxIssues = 50

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Run is what one analyzer invocation produced.
type Run struct {
	Analyzer string
	Scope    string
	Artifact string
	JSON     string
	Markdown string
	Findings []model.Finding
}

// Encode renders run as TOON: the artifact written, finding counts by
// severity and the most severe findings.
func Encode(run *Run) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("analyzer: %s", encodeValue(run.Analyzer)))
	parts = append(parts, fmt.Sprintf("scope: %s", encodeValue(run.Scope)))
	parts = append(parts, formatTabular("artifacts", []string{"name", "json", "markdown"},
		[][]string{{run.Artifact, run.JSON, run.Markdown}}))

	counts := make(map[model.Severity]int, len(model.Severities))
	for _, f := range run.Findings {
		counts[f.Severity]++
	}
	var countRows [][]string
	for _, sev := range model.Severities {
		countRows = append(countRows, []string{string(sev), strconv.Itoa(counts[sev])})
	}
	parts = append(parts, formatTabular("counts", []string{"severity", "count"}, countRows))

	findings := slices.Clone(run.Findings)
	slices.SortStableFunc(findings, func(a, b model.Finding) int {
		return cmp.Compare(a.Severity.Rank(), b.Severity.Rank())
	})
	shown := findings[:min(MaxIssues, len(findings))]
	var issueRows [][]string
	for i := range shown {
		f := &shown[i]
		issueRows = append(issueRows, []string{
			string(f.IssueType),
			string(f.Severity),
			location(f),
			f.Summary,
		})
	}
	parts = append(parts, formatTabular("issues", []string{"type", "severity", "location", "evidence"}, issueRows))
	if omitted := len(findings) - len(shown); omitted > 0 {
		parts = append(parts, fmt.Sprintf("issuesOmitted: %d", omitted))
	}

	return strings.Join(parts, "\n")
}

func location(f *model.Finding) string {
	switch {
	case f.File != "" && f.Line > 0:
		return fmt.Sprintf("%s:%d", f.File, f.Line)
	case f.File != "":
		return f.File
	default:
		return f.Route
	}
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}
	if value != strings.TrimSpace(value) || strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}
	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}
	if looksNumeric.MatchString(value) {
		return value
	}
	if needsQuoting.MatchString(value) || strings.HasPrefix(value, "-") {
		return quote(value)
	}
	return value
}

func quote(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return `"` + r.Replace(value) + `"`
}
