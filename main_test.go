package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/surfaceaudit/internal/config"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func createSampleRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "tsconfig.json", `{
  // paths resolve from the root
  "compilerOptions": { "baseUrl": "." },
}
`)
	writeTestFile(t, dir, "apps/web/app/(admin)/quotes/page.tsx", `'use client';
export default function Quotes() {
  return <button onClick={saveQuote}>Save</button>;
}
`)
	writeTestFile(t, dir, "apps/web/app/checkout/page.tsx", `export default function Checkout() {
  return <a href="/nowhere">Continue</a>;
}
`)
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), err
}

func TestRunSurface(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	out, err := runCLI(t, "--root", dir, "surface")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "analyzer: surface\nscope: admin\nartifacts[1]{name,json,markdown}:\n" +
		"  admin-surface-map,.surfaceaudit/reports/admin-surface-map.json,.surfaceaudit/reports/admin-surface-map.md\n"
	if !strings.HasPrefix(out, want) {
		t.Errorf("unexpected summary:\n%s", out)
	}
	for _, name := range []string{"admin-surface-map.json", "admin-surface-map.md"} {
		if _, err := os.Stat(filepath.Join(dir, ".surfaceaudit", "reports", name)); err != nil {
			t.Errorf("artifact %s not written: %v", name, err)
		}
	}
}

func TestRunWiringReportsMissingHandler(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	out, err := runCLI(t, "--root", dir, "wiring", "--scope", "admin")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "  high,1\n") {
		t.Errorf("expected one high finding, got:\n%s", out)
	}
	if !strings.Contains(out, `missing_handler,high,"apps/web/app/(admin)/quotes/page.tsx:3",button onClick references saveQuote`) {
		t.Errorf("missing handler row not found:\n%s", out)
	}
}

func TestRunUnknownScope(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	_, err := runCLI(t, "--root", dir, "surface", "--scope", "nope")
	if err == nil || !strings.Contains(err.Error(), `unknown scope "nope"`) {
		t.Fatalf("expected unknown scope error, got %v", err)
	}
}

func TestRunWithoutTSConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := runCLI(t, "--root", dir, "queues")
	if err == nil || !strings.Contains(err.Error(), "reading module-resolution config") {
		t.Fatalf("expected tsconfig error, got %v", err)
	}
}

func TestRunMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := runCLI(t, "--root", filepath.Join(t.TempDir(), "missing"), "surface")
	if err == nil || !strings.Contains(err.Error(), "root path") {
		t.Fatalf("expected root error, got %v", err)
	}
}

func TestRunAll(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	out, err := runCLI(t, "--root", dir, "all")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	runs := config.Default().All
	if got := strings.Count(out, "analyzer: "); got != len(runs) {
		t.Errorf("got %d run summaries, want %d", got, len(runs))
	}
	last := out[strings.LastIndex(out, "analyzer: "):]
	if !strings.HasPrefix(last, "analyzer: dashboard\nscope: customer\n") {
		t.Errorf("dashboard should run last, got:\n%s", last)
	}

	reports := filepath.Join(dir, ".surfaceaudit", "reports")
	for _, name := range []string{
		"admin-surface-map.json",
		"customer-api-trace.json",
		"admin-dto-drift.json",
		"supplier-queue-audit.json",
		"customer-critical-flow.json",
		"supplier-flow-wiring.json",
		"customer-audit-dashboard.md",
	} {
		if _, err := os.Stat(filepath.Join(reports, name)); err != nil {
			t.Errorf("artifact %s not written: %v", name, err)
		}
	}
}

func TestDashboardFailOn(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	if _, err := runCLI(t, "--root", dir, "hygiene"); err != nil {
		t.Fatalf("hygiene: %v", err)
	}
	if _, err := runCLI(t, "--root", dir, "dashboard"); err != nil {
		t.Fatalf("dashboard without --fail-on should succeed: %v", err)
	}
	_, err := runCLI(t, "--root", dir, "dashboard", "--fail-on", "high")
	if err == nil || !strings.Contains(err.Error(), "at or above high severity") {
		t.Fatalf("expected gate failure, got %v", err)
	}
	if _, err := runCLI(t, "--root", dir, "dashboard", "--fail-on", "severe"); err == nil {
		t.Fatal("expected invalid severity error")
	}
}

func TestRunOutputOverride(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	if _, err := runCLI(t, "--root", dir, "--output", "audit", "surface"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "audit", "admin-surface-map.json")); err != nil {
		t.Errorf("artifact not written to override dir: %v", err)
	}
}

func TestRunConfigFile(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	writeTestFile(t, dir, config.FileName, "outputDir: reports/audit\n")

	out, err := runCLI(t, "--root", dir, "surface")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "reports/audit/admin-surface-map.json") {
		t.Errorf("config outputDir not honored:\n%s", out)
	}
}

func TestRunMalformedConfig(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	writeTestFile(t, dir, config.FileName, "outputDir: [unclosed\n")

	if _, err := runCLI(t, "--root", dir, "surface"); err == nil {
		t.Fatal("expected config parse error")
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, "--version")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "surfaceaudit dev\n" {
		t.Errorf("got %q", out)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	_, err := runCLI(t, "--root", dir, "--log-level", "loud", "surface")
	if err == nil || !strings.Contains(err.Error(), "invalid --log-level") {
		t.Fatalf("expected log level error, got %v", err)
	}
}

func TestPlanRunsDashboardLast(t *testing.T) {
	t.Parallel()

	got, err := plan([]config.Run{
		{Analyzer: "dashboard", Scope: "customer"},
		{Analyzer: "surface", Scope: "admin"},
		{Analyzer: "wiring"},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	var names []string
	for _, p := range got {
		names = append(names, p.analyzer.Name()+"/"+p.scope)
	}
	if strings.Join(names, " ") != "surface/admin wiring/admin dashboard/customer" {
		t.Errorf("got %v", names)
	}

	if _, err := plan([]config.Run{{Analyzer: "lint"}}); err == nil {
		t.Error("expected unknown analyzer error")
	}
}
