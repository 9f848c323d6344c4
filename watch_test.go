package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIgnored(t *testing.T) {
	t.Parallel()
	root := filepath.FromSlash("/repo")
	out := filepath.Join(root, "audit")

	tests := []struct {
		rel  string
		want bool
	}{
		{"apps/web/app/page.tsx", false},
		{"audit/admin-surface-map.json", true},
		{"audit", true},
		{"auditor/page.tsx", false},
		{"node_modules/react/index.js", true},
		{"apps/web/.next/server.js", true},
		{".git/HEAD", true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			t.Parallel()
			if got := ignored(root, out, filepath.Join(root, filepath.FromSlash(tt.rel))); got != tt.want {
				t.Errorf("ignored(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}
}

func TestWatchReruns(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	out := filepath.Join(root, "audit")
	writeTestFile(t, root, "apps/web/app/page.tsx", "export default function A() {}\n")
	writeTestFile(t, root, "audit/keep.json", "{}\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runs := make(chan struct{}, 16)
	done := make(chan error, 1)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		done <- watch(ctx, root, out, log, func(context.Context) error {
			runs <- struct{}{}
			return nil
		})
	}()

	// The watcher starts asynchronously, so keep touching the file until a
	// run is observed. The interval exceeds the debounce.
	page := filepath.Join(root, "apps", "web", "app", "page.tsx")
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(10 * time.Second)
wait:
	for {
		select {
		case <-runs:
			break wait
		case <-tick.C:
			if err := os.WriteFile(page, []byte("export default function B() {}\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("no re-run after a source change")
		}
	}
	tick.Stop()

	// Let any trailing debounce from the last write fire, then drain.
	time.Sleep(2 * debounce)
	for len(runs) > 0 {
		<-runs
	}

	if err := os.WriteFile(filepath.Join(out, "keep.json"), []byte("{\"x\":1}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(3 * debounce)
	if len(runs) != 0 {
		t.Error("a write to the output directory triggered a re-run")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("watch returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}
