// Package audittest builds throwaway repositories for analyzer tests.
package audittest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phobologic/surfaceaudit/internal/audit"
	"github.com/phobologic/surfaceaudit/internal/config"
	"github.com/phobologic/surfaceaudit/internal/tsconfig"
)

// Clock is the fixed time every test environment reports.
var Clock = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

const defaultTSConfig = `{
  // test fixture
  "compilerOptions": {
    "baseUrl": ".",
    "paths": {
      "@cnc-quote/shared": ["packages/shared/src/index.ts"],
      "@cnc-quote/shared/*": ["packages/shared/src/*"],
    },
  },
}
`

// WriteFiles writes each relative path with its content under root.
func WriteFiles(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// Repo creates a repository in a temp dir holding files and, unless files
// provides one, a tsconfig.json.
func Repo(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if _, ok := files[tsconfig.FileName]; !ok {
		WriteFiles(t, root, map[string]string{tsconfig.FileName: defaultTSConfig})
	}
	WriteFiles(t, root, files)
	return root
}

// Env returns an environment for root with the default configuration.
func Env(t testing.TB, root, scope string) *audit.Env {
	t.Helper()
	return EnvWith(t, root, scope, config.Default())
}

// EnvWith returns an environment for root with cfg.
func EnvWith(t testing.TB, root, scope string, cfg *config.Config) *audit.Env {
	t.Helper()
	sc, err := cfg.Scope(scope)
	require.NoError(t, err)
	ts, err := tsconfig.Load(root)
	require.NoError(t, err)
	return &audit.Env{
		Root:      root,
		Config:    cfg,
		ScopeName: scope,
		Scope:     sc,
		TSConfig:  ts,
		Now:       func() time.Time { return Clock },
	}
}
