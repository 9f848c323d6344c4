// Package config loads surfaceaudit.yaml and supplies the defaults every
// analyzer runs with when no file is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up at the repository root.
const FileName = "surfaceaudit.yaml"

// DefaultMaxFileSize matches the parse limit of the file loader.
const DefaultMaxFileSize = 1_000_000

// Config represents the surfaceaudit configuration.
type Config struct {
	OutputDir   string           `yaml:"outputDir"`
	AppDir      string           `yaml:"appDir"`
	RouteIndex  []string         `yaml:"routeIndex"`
	API         SourceSet        `yaml:"api"`
	Worker      SourceSet        `yaml:"worker"`
	Shared      SharedConfig     `yaml:"shared"`
	Scopes      map[string]Scope `yaml:"scopes"`
	Vocab       Vocabulary       `yaml:"vocab"`
	Stages      []Stage          `yaml:"stages"`
	Matching    Matching         `yaml:"matching"`
	MaxFileSize int              `yaml:"maxFileSize"`
	All         []Run            `yaml:"all"`
}

// SourceSet is a group of glob patterns for one part of the repository.
type SourceSet struct {
	Controllers []string `yaml:"controllers,omitempty"`
	Sources     []string `yaml:"sources"`
}

// SharedConfig locates the shared contracts package.
type SharedConfig struct {
	Module  string   `yaml:"module"`
	Sources []string `yaml:"sources"`
}

// Scope is one audience of the web application (admin, customer, supplier).
type Scope struct {
	RoutePrefix      string   `yaml:"routePrefix"`
	RouteFiles       []string `yaml:"routeFiles"`
	ClientFiles      []string `yaml:"clientFiles"`
	SharedComponents []string `yaml:"sharedComponents"`
	SharedLibs       []string `yaml:"sharedLibs"`
	ClientAliases    []string `yaml:"clientAliases"`
	RequireAPIPrefix bool     `yaml:"requireApiPrefix"`
	CheckGuards      bool     `yaml:"checkGuards"`
	CheckBodies      bool     `yaml:"checkBodies"`
	ActionStubDir    string   `yaml:"actionStubDir"`
}

// Vocabulary holds the name lists the heuristics match against.
type Vocabulary struct {
	FetchAliases          []string       `yaml:"fetchAliases"`
	HTTPVerbs             []string       `yaml:"httpVerbs"`
	DefaultStatus         map[string]int `yaml:"defaultStatus"`
	StatusConstants       map[string]int `yaml:"statusConstants"`
	GuardDecorators       []string       `yaml:"guardDecorators"`
	ConsumerDecorators    []string       `yaml:"consumerDecorators"`
	SupplierKeywords      []string       `yaml:"supplierKeywords"`
	InteractiveAttributes []string       `yaml:"interactiveAttributes"`
	IgnoredIdentifiers    []string       `yaml:"ignoredIdentifiers"`
	AmbientGlobals        []string       `yaml:"ambientGlobals"`
	NavigationMethods     []string       `yaml:"navigationMethods"`
	DebugMethods          []string       `yaml:"debugMethods"`
	Markers               []string       `yaml:"markers"`
	Hooks                 []string       `yaml:"hooks"`
	MetadataExports       []string       `yaml:"metadataExports"`
	ContractSuffixes      []string       `yaml:"contractSuffixes"`
	BackendClassPattern   string         `yaml:"backendClassPattern"`
}

// Stage is one step of the critical customer flow.
type Stage struct {
	Stage    string   `yaml:"stage"`
	Label    string   `yaml:"label"`
	Patterns []string `yaml:"patterns"`
}

// Matching tunes how call sites are paired with controller routes.
type Matching struct {
	ParamAwareRoutes bool `yaml:"paramAwareRoutes"`
}

// Run names one analyzer invocation of the `all` command.
type Run struct {
	Analyzer string `yaml:"analyzer"`
	Scope    string `yaml:"scope"`
}

var routeFileNames = []string{"page", "layout", "loading", "error", "template"}

func scopeRouteFiles(group string) []string {
	var patterns []string
	for _, name := range routeFileNames {
		patterns = append(patterns, fmt.Sprintf("apps/web/app/(%s)/**/%s.tsx", group, name))
	}
	return append(patterns, fmt.Sprintf("apps/web/app/(%s)/**/route.ts", group))
}

func defaultScope(group, prefix string) Scope {
	return Scope{
		RoutePrefix: prefix,
		RouteFiles:  scopeRouteFiles(group),
		ClientFiles: []string{
			fmt.Sprintf("apps/web/app/(%s)/**/*.{ts,tsx}", group),
			"apps/web/components/**/*.{ts,tsx}",
			"apps/web/lib/**/*.{ts,tsx}",
		},
		SharedComponents: []string{"apps/web/components/**/*.{ts,tsx}"},
		SharedLibs:       []string{"apps/web/lib/**/*.{ts,tsx}"},
		ClientAliases:    []string{"axios", "apiClient"},
		ActionStubDir:    "apps/web/actions/" + group,
	}
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	customer := defaultScope("customer", "")
	customer.ClientFiles = []string{
		"apps/web/app/**/*.{ts,tsx}",
		"apps/web/components/**/*.{ts,tsx}",
		"apps/web/lib/**/*.{ts,tsx}",
	}
	customer.ClientAliases = []string{"axios", "apiClient", "customerClient"}
	customer.RequireAPIPrefix = true
	customer.CheckGuards = true
	customer.CheckBodies = true

	return &Config{
		OutputDir: ".surfaceaudit/reports",
		AppDir:    "apps/web/app",
		RouteIndex: []string{
			"apps/web/app/**/page.{ts,tsx,js,jsx}",
			"apps/web/app/**/route.{ts,js}",
		},
		API: SourceSet{
			Controllers: []string{"apps/api/src/**/*.controller.ts"},
			Sources:     []string{"apps/api/src/**/*.{ts,tsx}"},
		},
		Worker: SourceSet{
			Sources: []string{"apps/worker/src/**/*.{ts,tsx}"},
		},
		Shared: SharedConfig{
			Module:  "@cnc-quote/shared",
			Sources: []string{"packages/shared/src/**/*.{ts,tsx}"},
		},
		Scopes: map[string]Scope{
			"admin":    defaultScope("admin", "/admin"),
			"customer": customer,
			"supplier": defaultScope("supplier", "/supplier"),
		},
		Vocab: Vocabulary{
			FetchAliases: []string{"fetch"},
			HTTPVerbs:    []string{"get", "post", "put", "patch", "delete", "head", "options"},
			DefaultStatus: map[string]int{
				"GET": 200, "HEAD": 200, "POST": 201, "PUT": 200,
				"PATCH": 200, "DELETE": 204, "OPTIONS": 204,
			},
			StatusConstants: map[string]int{
				"OK": 200, "CREATED": 201, "ACCEPTED": 202, "NO_CONTENT": 204,
				"MOVED_PERMANENTLY": 301, "FOUND": 302, "BAD_REQUEST": 400,
			},
			GuardDecorators:    []string{"UseGuards", "Policies", "RequirePermissions", "Roles"},
			ConsumerDecorators: []string{"Processor"},
			SupplierKeywords: []string{
				"supplier", "suppliers", "rfq", "dfm", "routing", "order-routing",
				"orders-routing", "quote-routing", "marketplace", "compliance", "fulfillment",
			},
			InteractiveAttributes: []string{
				"action", "formAction", "onClick", "onSubmit", "onChange", "onAccept",
				"onDecline", "onApprove", "onReject", "onUpload", "onSave", "onSend",
				"onCancel", "onUpdate",
			},
			IgnoredIdentifiers: []string{
				"undefined", "null", "true", "false", "console", "window", "document",
				"event", "e", "prev", "value", "state", "props",
			},
			AmbientGlobals: []string{
				"alert", "confirm", "prompt", "setTimeout", "clearTimeout", "setInterval",
				"clearInterval", "requestAnimationFrame", "fetch", "navigator", "location",
				"localStorage", "sessionStorage", "URL", "URLSearchParams", "FormData",
				"JSON", "Math", "Number", "String", "Boolean", "Array", "Object", "Date",
				"Promise", "Error", "encodeURIComponent", "decodeURIComponent", "parseInt",
				"parseFloat", "isNaN", "globalThis", "structuredClone", "queueMicrotask",
				"React", "NaN", "Infinity",
			},
			NavigationMethods: []string{"push", "replace", "prefetch"},
			DebugMethods:      []string{"log", "error", "warn", "debug"},
			Markers:           []string{"TODO", "FIXME", "PLACEHOLDER", "placeholder"},
			Hooks:             []string{"useTransition", "useFormState", "useOptimistic", "router", "fetch"},
			MetadataExports: []string{
				"metadata", "dynamic", "revalidate", "runtime", "fetchCache", "dynamicParams",
				"preferredRegion", "maxDuration", "viewport", "generateMetadata",
				"generateStaticParams", "generateViewport",
			},
			ContractSuffixes:    []string{"Dto", "Request", "Response", "Schema", "Interface", "Type", "Model", "Result", "Data"},
			BackendClassPattern: `(?i)Dto|Response|Request`,
		},
		Stages: []Stage{
			{Stage: "rfq_intake", Label: "RFQ Intake", Patterns: []string{"apps/web/app/get-quote/**/*.{ts,tsx}"}},
			{Stage: "cad_upload", Label: "CAD Upload", Patterns: []string{"apps/web/app/instant-quote/**/*.{ts,tsx}"}},
			{Stage: "dfm_review", Label: "DFM Review", Patterns: []string{"apps/web/app/dfm-analysis/**/*.{ts,tsx}"}},
			{Stage: "pricing_review", Label: "Pricing & Quote Review", Patterns: []string{
				"apps/web/app/quotes/**/*.{ts,tsx}", "apps/web/app/portal/quotes/**/*.{ts,tsx}",
			}},
			{Stage: "checkout", Label: "Secure Checkout", Patterns: []string{
				"apps/web/app/secure-checkout/**/*.{ts,tsx}", "apps/web/app/checkout/**/*.{ts,tsx}",
			}},
		},
		MaxFileSize: DefaultMaxFileSize,
		All: []Run{
			{Analyzer: "surface", Scope: "admin"},
			{Analyzer: "surface", Scope: "customer"},
			{Analyzer: "surface", Scope: "supplier"},
			{Analyzer: "apitrace", Scope: "admin"},
			{Analyzer: "apitrace", Scope: "customer"},
			{Analyzer: "contracts", Scope: "admin"},
			{Analyzer: "queues", Scope: "supplier"},
			{Analyzer: "hygiene", Scope: "customer"},
			{Analyzer: "wiring", Scope: "admin"},
			{Analyzer: "wiring", Scope: "supplier"},
			{Analyzer: "dashboard", Scope: "customer"},
		},
	}
}

// Load reads configuration from file, falling back to defaults.
// A missing file is not an error. Fields set in the file replace the
// corresponding defaults.
func Load(configPath string) (*Config, error) {
	defaults := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}

	defaults.Merge(&fileCfg)
	return defaults, nil
}

// LoadFromDir loads configuration from the specified directory.
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Merge combines another config into this one, with other taking precedence.
// Scopes merge by name so a file can override one scope without restating
// the others.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.OutputDir != "" {
		c.OutputDir = other.OutputDir
	}
	if other.AppDir != "" {
		c.AppDir = other.AppDir
	}
	if len(other.RouteIndex) > 0 {
		c.RouteIndex = other.RouteIndex
	}
	if len(other.API.Controllers) > 0 {
		c.API.Controllers = other.API.Controllers
	}
	if len(other.API.Sources) > 0 {
		c.API.Sources = other.API.Sources
	}
	if len(other.Worker.Sources) > 0 {
		c.Worker.Sources = other.Worker.Sources
	}
	if other.Shared.Module != "" {
		c.Shared.Module = other.Shared.Module
	}
	if len(other.Shared.Sources) > 0 {
		c.Shared.Sources = other.Shared.Sources
	}
	for name, scope := range other.Scopes {
		if c.Scopes == nil {
			c.Scopes = map[string]Scope{}
		}
		c.Scopes[name] = scope
	}
	c.Vocab.merge(&other.Vocab)
	if len(other.Stages) > 0 {
		c.Stages = other.Stages
	}
	if other.Matching.ParamAwareRoutes {
		c.Matching.ParamAwareRoutes = true
	}
	if other.MaxFileSize > 0 {
		c.MaxFileSize = other.MaxFileSize
	}
	if len(other.All) > 0 {
		c.All = other.All
	}
}

func (v *Vocabulary) merge(other *Vocabulary) {
	lists := []struct {
		dst *[]string
		src []string
	}{
		{&v.FetchAliases, other.FetchAliases},
		{&v.HTTPVerbs, other.HTTPVerbs},
		{&v.GuardDecorators, other.GuardDecorators},
		{&v.ConsumerDecorators, other.ConsumerDecorators},
		{&v.SupplierKeywords, other.SupplierKeywords},
		{&v.InteractiveAttributes, other.InteractiveAttributes},
		{&v.IgnoredIdentifiers, other.IgnoredIdentifiers},
		{&v.AmbientGlobals, other.AmbientGlobals},
		{&v.NavigationMethods, other.NavigationMethods},
		{&v.DebugMethods, other.DebugMethods},
		{&v.Markers, other.Markers},
		{&v.Hooks, other.Hooks},
		{&v.MetadataExports, other.MetadataExports},
		{&v.ContractSuffixes, other.ContractSuffixes},
	}
	for _, l := range lists {
		if len(l.src) > 0 {
			*l.dst = l.src
		}
	}
	if len(other.DefaultStatus) > 0 {
		v.DefaultStatus = other.DefaultStatus
	}
	if len(other.StatusConstants) > 0 {
		v.StatusConstants = other.StatusConstants
	}
	if other.BackendClassPattern != "" {
		v.BackendClassPattern = other.BackendClassPattern
	}
}

// Scope returns the named scope or an error naming the configured ones.
func (c *Config) Scope(name string) (Scope, error) {
	s, ok := c.Scopes[name]
	if !ok {
		return Scope{}, fmt.Errorf("unknown scope %q (configured: %v)", name, c.ScopeNames())
	}
	return s, nil
}

// ScopeNames returns the configured scope names in sorted order.
func (c *Config) ScopeNames() []string {
	names := make([]string, 0, len(c.Scopes))
	for name := range c.Scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set builds a membership set from a name list.
func Set(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
