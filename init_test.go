package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/phobologic/surfaceaudit/internal/config"
)

const wantSection = sentinelStart + "\n.surfaceaudit/reports/\n" + sentinelEnd

// TestApplySectionCreate verifies that applySection on empty content yields
// just the section with a trailing newline.
func TestApplySectionCreate(t *testing.T) {
	t.Parallel()
	got := applySection("", wantSection)
	if got != wantSection+"\n" {
		t.Errorf("got %q", got)
	}
}

// TestApplySectionAppend verifies that existing content without a sentinel
// block is preserved and the section is appended after a blank line.
func TestApplySectionAppend(t *testing.T) {
	t.Parallel()
	existing := "node_modules/\n.env"
	got := applySection(existing, wantSection)

	if got != "node_modules/\n.env\n\n"+wantSection+"\n" {
		t.Errorf("got %q", got)
	}
}

// TestApplySectionUpdate verifies that an existing sentinel block is replaced
// precisely, leaving surrounding content intact.
func TestApplySectionUpdate(t *testing.T) {
	t.Parallel()
	before := "dist/\n\n"
	after := "\n\ncoverage/\n"
	old := before + sentinelStart + "\nold-reports/\n" + sentinelEnd + after

	got := applySection(old, wantSection)
	if got != before+wantSection+after {
		t.Errorf("got %q", got)
	}
}

func TestGenerateSection(t *testing.T) {
	t.Parallel()
	for _, dir := range []string{".surfaceaudit/reports", ".surfaceaudit/reports/"} {
		if got := generateSection(dir); got != wantSection {
			t.Errorf("generateSection(%q) = %q", dir, got)
		}
	}
}

// TestInitWritesDefaults verifies that init writes a config that loads back
// to the defaults, and ignores the output directory.
func TestInitWritesDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--root", dir, "init"}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v\nstderr: %s", err, stderr.String())
	}

	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		t.Fatalf("loading written config: %v", err)
	}
	if !reflect.DeepEqual(cfg, config.Default()) {
		t.Error("written config does not load back to the defaults")
	}

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatalf(".gitignore not created: %v", err)
	}
	if string(data) != wantSection+"\n" {
		t.Errorf("unexpected .gitignore:\n%s", data)
	}
}

// TestInitKeepsExistingConfig verifies that an existing config file is never
// overwritten.
func TestInitKeepsExistingConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	existing := "outputDir: audit\n"
	writeTestFile(t, dir, config.FileName, existing)

	var stdout, stderr bytes.Buffer
	if err := runInit(dir, "", false, &stdout, &stderr); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != existing {
		t.Error("existing config was modified")
	}
	if !strings.Contains(stderr.String(), "already exists") {
		t.Errorf("expected notice on stderr, got %q", stderr.String())
	}
}

// TestInitDryRun verifies that --dry-run prints both files and touches
// neither.
func TestInitDryRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, ".gitignore", "node_modules/\n")

	var stdout, stderr bytes.Buffer
	if err := runInit(dir, "", true, &stdout, &stderr); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
		t.Error("--dry-run should not create the config")
	}
	data, _ := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if string(data) != "node_modules/\n" {
		t.Error("--dry-run must not modify .gitignore")
	}
	out := stdout.String()
	if !strings.Contains(out, "outputDir: .surfaceaudit/reports\n") {
		t.Errorf("dry-run output missing config:\n%s", out)
	}
	if !strings.HasSuffix(out, "node_modules/\n\n"+wantSection+"\n") {
		t.Errorf("dry-run output missing updated .gitignore:\n%s", out)
	}
}

// TestInitIdempotent verifies that running init twice produces identical
// files.
func TestInitIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ignore := filepath.Join(dir, ".gitignore")

	var buf bytes.Buffer
	if err := runInit(dir, "", false, &buf, &buf); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := os.ReadFile(ignore)

	if err := runInit(dir, "", false, &buf, &buf); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := os.ReadFile(ignore)

	if string(first) != string(second) {
		t.Errorf("init is not idempotent:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}
