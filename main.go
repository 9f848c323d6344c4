// surfaceaudit statically audits a web/API/worker monorepo for drift between
// its routed pages, client calls, controllers, shared contracts and queues.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/phobologic/surfaceaudit/internal/apitrace"
	"github.com/phobologic/surfaceaudit/internal/audit"
	"github.com/phobologic/surfaceaudit/internal/config"
	"github.com/phobologic/surfaceaudit/internal/contracts"
	"github.com/phobologic/surfaceaudit/internal/dashboard"
	"github.com/phobologic/surfaceaudit/internal/hygiene"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/queues"
	"github.com/phobologic/surfaceaudit/internal/report"
	"github.com/phobologic/surfaceaudit/internal/surface"
	"github.com/phobologic/surfaceaudit/internal/toon"
	"github.com/phobologic/surfaceaudit/internal/tsconfig"
)

var version = "dev"

// analyzers in command order.
var analyzers = []audit.Analyzer{
	surface.Analyzer{},
	apitrace.Analyzer{},
	contracts.Analyzer{},
	queues.Analyzer{},
	hygiene.Analyzer{},
	hygiene.WiringAnalyzer{},
	dashboard.Analyzer{},
}

var descriptions = map[string]string{
	"surface":   "Map the routed pages, layouts and handlers of a scope",
	"apitrace":  "Match client HTTP calls against back-end controller routes",
	"contracts": "Compare shared contract types with back-end DTOs and validators",
	"queues":    "Check that every queue has both a producer and a consumer",
	"hygiene":   "Scan the critical flow for dead links, missing handlers and leftovers",
	"wiring":    "Check that interactive elements of routed files reference declared handlers",
	"dashboard": "Aggregate existing artifacts into one prioritized view",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := runContext(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	return runContext(context.Background(), args, stdout, stderr)
}

func runContext(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	_ = godotenv.Load()
	cmd := newRootCmd(&options{stdout: stdout, stderr: stderr})
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// options are the persistent flags and the writers of one invocation.
type options struct {
	root       string
	configPath string
	output     string
	logLevel   string
	watch      bool

	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "surfaceaudit",
		Short: "Static cross-surface auditor for web, API and worker code",
		Long: `surfaceaudit parses the front-end and back-end source trees of a monorepo and
reports where they have drifted apart: client calls without a matching route,
shared types a back-end validator does not know, queues with a producer but
no consumer, buttons wired to handlers that do not exist.

Each command writes a JSON record and a markdown rendering to the output
directory and prints a TOON summary of the run to stdout.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
				return fmt.Errorf("invalid --log-level %q", o.logLevel)
			}
			o.logger = slog.New(slog.NewTextHandler(o.stderr, &slog.HandlerOptions{Level: level}))
			return nil
		},
	}
	root.SetOut(o.stdout)
	root.SetErr(o.stderr)
	root.SetVersionTemplate("surfaceaudit {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&o.root, "root", envOr("SURFACEAUDIT_ROOT", "."), "repository root (env SURFACEAUDIT_ROOT)")
	pf.StringVar(&o.configPath, "config", os.Getenv("SURFACEAUDIT_CONFIG"), "config file (default <root>/"+config.FileName+", env SURFACEAUDIT_CONFIG)")
	pf.StringVar(&o.output, "output", os.Getenv("SURFACEAUDIT_OUTPUT"), "override the output directory (env SURFACEAUDIT_OUTPUT)")
	pf.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.BoolVar(&o.watch, "watch", false, "re-run the command whenever a source file changes")

	for _, a := range analyzers {
		root.AddCommand(analyzerCmd(o, a))
	}
	root.AddCommand(allCmd(o), initCmd(o))
	return root
}

func analyzerCmd(o *options, a audit.Analyzer) *cobra.Command {
	var scope, failOn string
	cmd := &cobra.Command{
		Use:   a.Name(),
		Short: descriptions[a.Name()],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var threshold model.Severity
			if failOn != "" {
				sev, ok := model.ParseSeverity(failOn)
				if !ok {
					return fmt.Errorf("invalid --fail-on %q", failOn)
				}
				threshold = sev
			}
			return o.loop(cmd.Context(), func(ctx context.Context) error {
				s, err := o.load()
				if err != nil {
					return err
				}
				res, err := o.runAnalyzer(ctx, s, a, scope)
				if err != nil {
					return err
				}
				if d, ok := res.(*dashboard.Report); ok && threshold != "" {
					return d.FailOn(threshold)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", a.DefaultScope(), "audience scope to audit")
	if a.Name() == "dashboard" {
		cmd.Flags().StringVar(&failOn, "fail-on", "", "exit non-zero when a finding is at or above this severity")
	}
	return cmd
}

func allCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run every configured analyzer, dashboard last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.loop(cmd.Context(), func(ctx context.Context) error {
				s, err := o.load()
				if err != nil {
					return err
				}
				runs, err := plan(s.cfg.All)
				if err != nil {
					return err
				}
				for _, r := range runs {
					if _, err := o.runAnalyzer(ctx, s, r.analyzer, r.scope); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

type planned struct {
	analyzer audit.Analyzer
	scope    string
}

// plan resolves the configured runs, moving dashboards after everything
// they read.
func plan(runs []config.Run) ([]planned, error) {
	out := make([]planned, 0, len(runs))
	for _, r := range runs {
		a, ok := lookup(r.Analyzer)
		if !ok {
			return nil, fmt.Errorf("unknown analyzer %q in all", r.Analyzer)
		}
		scope := r.Scope
		if scope == "" {
			scope = a.DefaultScope()
		}
		out = append(out, planned{analyzer: a, scope: scope})
	}
	slices.SortStableFunc(out, func(a, b planned) int {
		return boolRank(isDashboard(a.analyzer)) - boolRank(isDashboard(b.analyzer))
	})
	return out, nil
}

func isDashboard(a audit.Analyzer) bool {
	_, ok := a.(dashboard.Analyzer)
	return ok
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func lookup(name string) (audit.Analyzer, bool) {
	for _, a := range analyzers {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// session is the loaded state every analyzer of one pass shares.
type session struct {
	root string
	cfg  *config.Config
	ts   *tsconfig.Config
}

func (o *options) load() (*session, error) {
	root, err := filepath.Abs(o.root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}

	cfgPath := o.configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(root, config.FileName)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if o.output != "" {
		cfg.OutputDir = o.output
	}

	ts, err := tsconfig.Load(root)
	if err != nil {
		return nil, err
	}
	return &session{root: root, cfg: cfg, ts: ts}, nil
}

// runAnalyzer runs a for scope, writes its artifact pair and prints the
// run summary.
func (o *options) runAnalyzer(ctx context.Context, s *session, a audit.Analyzer, scope string) (audit.Result, error) {
	sc, err := s.cfg.Scope(scope)
	if err != nil {
		return nil, err
	}
	env := &audit.Env{
		Root:      s.root,
		Config:    s.cfg,
		ScopeName: scope,
		Scope:     sc,
		TSConfig:  s.ts,
		Logger:    o.logger,
	}
	res, err := a.Run(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", a.Name(), scope, err)
	}

	name := a.Artifact(scope)
	paths, err := report.Write(env.OutputDir(), name, res)
	if err != nil {
		return nil, err
	}
	o.logger.Info("artifact written", "analyzer", a.Name(), "scope", scope, "json", paths.JSON, "markdown", paths.Markdown)

	_, _ = fmt.Fprintln(o.stdout, toon.Encode(&toon.Run{
		Analyzer: a.Name(),
		Scope:    scope,
		Artifact: name,
		JSON:     relative(s.root, paths.JSON),
		Markdown: relative(s.root, paths.Markdown),
		Findings: res.Findings(),
	}))
	return res, nil
}

func relative(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// loop runs fn once, and with --watch keeps re-running it on source changes
// until ctx is cancelled. Failed re-runs are logged, not returned.
func (o *options) loop(ctx context.Context, fn func(context.Context) error) error {
	if !o.watch {
		return fn(ctx)
	}
	if err := fn(ctx); err != nil {
		o.logger.Error("run failed", "error", err)
	}
	s, err := o.load()
	if err != nil {
		return err
	}
	out := s.cfg.OutputDir
	if !filepath.IsAbs(out) {
		out = filepath.Join(s.root, out)
	}
	err = watch(ctx, s.root, out, o.logger, fn)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
