package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/surfaceaudit/internal/config"
)

const (
	sentinelStart = "# surfaceaudit:start"
	sentinelEnd   = "# surfaceaudit:end"
)

func initCmd(o *options) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default " + config.FileName + " and ignore the output directory",
		Long: `Write the default configuration to ` + config.FileName + ` at the repository root,
unless one already exists, and add the report output directory to .gitignore.
The .gitignore entry is wrapped in sentinel comments so it can be updated in
place on subsequent runs without touching surrounding content.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(o.root, o.configPath, dryRun, o.stdout, o.stderr)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying any file")
	return cmd
}

// runInit implements `surfaceaudit init`.
func runInit(root, cfgPath string, dryRun bool, stdout, stderr io.Writer) error {
	if cfgPath == "" {
		cfgPath = filepath.Join(root, config.FileName)
	}
	cfg := config.Default()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}

	ignorePath := filepath.Join(root, ".gitignore")
	existing, err := os.ReadFile(ignorePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", ignorePath, err)
	}
	updated := applySection(string(existing), generateSection(cfg.OutputDir))

	if dryRun {
		_, _ = fmt.Fprintf(stdout, "--- %s\n%s--- %s\n%s", cfgPath, data, ignorePath, updated)
		return nil
	}

	switch _, err := os.Stat(cfgPath); {
	case errors.Is(err, os.ErrNotExist):
		if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", cfgPath, err)
		}
		_, _ = fmt.Fprintf(stderr, "wrote default configuration to %s\n", cfgPath)
	case err != nil:
		return fmt.Errorf("checking %s: %w", cfgPath, err)
	default:
		_, _ = fmt.Fprintf(stderr, "%s already exists, leaving it unchanged\n", cfgPath)
	}

	if err := os.WriteFile(ignorePath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ignorePath, err)
	}
	_, _ = fmt.Fprintf(stderr, "wrote surfaceaudit section to %s\n", ignorePath)
	return nil
}

// generateSection returns the sentinel-wrapped .gitignore block for outputDir.
func generateSection(outputDir string) string {
	dir := strings.TrimSuffix(filepath.ToSlash(outputDir), "/") + "/"
	return sentinelStart + "\n" + dir + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	if content == "" {
		return section + "\n"
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
