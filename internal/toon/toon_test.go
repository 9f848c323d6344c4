package toon

import (
	"strings"
	"testing"

	"github.com/phobologic/surfaceaudit/internal/model"
)

func TestEncodeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", `""`},
		{"simple", "hygiene", "hygiene"},
		{"leading space", " hello", `" hello"`},
		{"trailing space", "hello ", `"hello "`},
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"true keyword", "true", `"true"`},
		{"Null keyword", "Null", `"Null"`},
		{"integer", "42", "42"},
		{"negative integer", "-1", "-1"},
		{"comma", "a,b", `"a,b"`},
		{"location", "apps/web/app/page.tsx:7", `"apps/web/app/page.tsx:7"`},
		{"quote", `<Link href="/x">`, `"<Link href=\"/x\">"`},
		{"backslash", `a\b`, `"a\\b"`},
		{"bracket", "/quotes/[id]", `"/quotes/[id]"`},
		{"dash prefix", "-foo", `"-foo"`},
		{"route", "/admin/quotes", "/admin/quotes"},
		{"sentence", "Detected console.log call", "Detected console.log call"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := encodeValue(tt.in)
			if got != tt.want {
				t.Errorf("encodeValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	run := &Run{
		Analyzer: "hygiene",
		Scope:    "customer",
		Artifact: "customer-critical-flow",
		JSON:     ".surfaceaudit/reports/customer-critical-flow.json",
		Markdown: ".surfaceaudit/reports/customer-critical-flow.md",
		Findings: []model.Finding{
			{
				Source:    "hygiene",
				Severity:  model.Low,
				IssueType: model.DebugStatement,
				Summary:   "Detected console.log call",
				File:      "apps/web/app/quotes/page.tsx",
				Line:      7,
			},
			{
				Source:    "hygiene",
				Severity:  model.Critical,
				IssueType: model.DeadLink,
				Summary:   "router.push targets /x but no page route exists",
				File:      "apps/web/app/checkout/page.tsx",
				Line:      15,
			},
			{
				Source:    "hygiene",
				Severity:  model.Medium,
				IssueType: model.WarningType("hygiene"),
				Summary:   "no files matched patterns for stage CAD Upload",
			},
		},
	}

	want := []string{
		"analyzer: hygiene",
		"scope: customer",
		"artifacts[1]{name,json,markdown}:",
		"  customer-critical-flow,.surfaceaudit/reports/customer-critical-flow.json,.surfaceaudit/reports/customer-critical-flow.md",
		"counts[4]{severity,count}:",
		"  critical,1",
		"  high,0",
		"  medium,1",
		"  low,1",
		"issues[3]{type,severity,location,evidence}:",
		`  dead_link,critical,"apps/web/app/checkout/page.tsx:15",router.push targets /x but no page route exists`,
		`  hygiene_warning,medium,"",no files matched patterns for stage CAD Upload`,
		`  debug_statement,low,"apps/web/app/quotes/page.tsx:7",Detected console.log call`,
	}
	lines := strings.Split(Encode(run), "\n")
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), strings.Join(lines, "\n"))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestEncodeCapsIssues(t *testing.T) {
	t.Parallel()

	run := &Run{Analyzer: "wiring", Scope: "admin", Artifact: "admin-flow-wiring"}
	for i := 0; i < MaxIssues+3; i++ {
		run.Findings = append(run.Findings, model.Finding{
			Severity:  model.High,
			IssueType: model.MissingHandler,
			Summary:   "button onClick references save but no definition or import was found",
			Route:     "/admin",
		})
	}

	got := Encode(run)
	if !strings.Contains(got, "counts[4]{severity,count}:\n  critical,0\n  high,53\n") {
		t.Errorf("expected all findings counted, got:\n%s", got)
	}
	if !strings.Contains(got, "issues[50]{type,severity,location,evidence}:") {
		t.Errorf("expected issues table capped at %d, got:\n%s", MaxIssues, got)
	}
	if !strings.Contains(got, "\n  missing_handler,high,/admin,button onClick") {
		t.Errorf("expected route as location, got:\n%s", got)
	}
	if !strings.HasSuffix(got, "\nissuesOmitted: 3") {
		t.Errorf("expected trailing omitted count, got:\n%s", got)
	}
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	got := Encode(&Run{Analyzer: "surface", Scope: "admin"})
	if !strings.Contains(got, "issues[0]{type,severity,location,evidence}:") {
		t.Errorf("expected empty issues section, got:\n%s", got)
	}
	if strings.Contains(got, "issuesOmitted") {
		t.Errorf("unexpected omitted count, got:\n%s", got)
	}
}
