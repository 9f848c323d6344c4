// Package model defines the data types shared by every analyzer and report.
package model

import "strings"

// Severity ranks how urgently an issue needs attention.
type Severity string

const (
	Critical Severity = "critical"
	High     Severity = "high"
	Medium   Severity = "medium"
	Low      Severity = "low"
)

// Severities lists every severity from most to least urgent.
var Severities = []Severity{Critical, High, Medium, Low}

// Rank returns 0 for critical through 3 for low, and 4 for anything unknown.
func (s Severity) Rank() int {
	for i, sev := range Severities {
		if sev == s {
			return i
		}
	}
	return len(Severities)
}

// AtLeast reports whether s is as urgent as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() <= other.Rank()
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(name string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(name)))
	return s, s.Rank() < len(Severities)
}

// IssueType names a class of finding.
type IssueType string

const (
	MissingRoute        IssueType = "missing_route"
	VerbMismatch        IssueType = "verb_mismatch"
	StatusMismatch      IssueType = "status_mismatch"
	PermissionGap       IssueType = "permission_gap"
	MethodBodyMismatch  IssueType = "method_body_mismatch"
	DTOInconsistent     IssueType = "dto_inconsistent"
	MissingDTO          IssueType = "missing_dto"
	MissingValidator    IssueType = "missing_validator"
	MissingProperty     IssueType = "missing_property"
	ExtraProperty       IssueType = "extra_property"
	MissingProducer     IssueType = "missing_producer"
	MissingConsumer     IssueType = "missing_consumer"
	UnresolvedQueueName IssueType = "unresolved_queue_name"
	MissingHandler      IssueType = "missing_handler"
	DeadLink            IssueType = "dead_link"
	Todo                IssueType = "todo"
	DebugStatement      IssueType = "debug_statement"
)

// WarningType is the issue type given to a collection warning of an analyzer.
func WarningType(source string) IssueType {
	return IssueType(source + "_warning")
}

// Position is a 1-based line and column in a source file.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Issue is one finding with the evidence that produced it and a fix hint.
type Issue struct {
	IssueType  IssueType `json:"issueType"`
	Severity   Severity  `json:"severity"`
	Evidence   string    `json:"evidence"`
	Suggestion string    `json:"suggestion"`
	TargetFile string    `json:"targetFile,omitempty"`
	Property   string    `json:"property,omitempty"`
	Symbol     string    `json:"symbol,omitempty"`
	Position   *Position `json:"position,omitempty"`
}

// ResolvedToken is the best static reading of an expression.
type ResolvedToken struct {
	Key          string  `json:"key"`
	LiteralValue *string `json:"literalValue,omitempty"`
	AliasName    string  `json:"aliasName,omitempty"`
}

// Literal returns the literal value when the token has one.
func (t ResolvedToken) Literal() (string, bool) {
	if t.LiteralValue == nil {
		return "", false
	}
	return *t.LiteralValue, true
}

// FileRole classifies a routed file by its conventional base name.
type FileRole string

const (
	RolePage     FileRole = "page"
	RoleLayout   FileRole = "layout"
	RoleLoading  FileRole = "loading"
	RoleError    FileRole = "error"
	RoleTemplate FileRole = "template"
	RoleNotFound FileRole = "not-found"
	RoleDefault  FileRole = "default"
	RoleRoute    FileRole = "route"
)

// ActionRef is an exported function of a routed file that is async or
// opens with a server directive.
type ActionRef struct {
	Name            string `json:"name"`
	Async           bool   `json:"async"`
	ServerDirective bool   `json:"serverDirective"`
}

// HandlerRef is an imported binding that looks like an action or handler.
type HandlerRef struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// RouteRecord describes one file of the routed web application.
type RouteRecord struct {
	Route                string       `json:"route"`
	File                 string       `json:"file"`
	FileRole             FileRole     `json:"fileRole"`
	ComponentName        string       `json:"componentName,omitempty"`
	ExportedMetadataKeys []string     `json:"exportedMetadataKeys"`
	ParallelSlots        []string     `json:"parallelSlots"`
	Params               []string     `json:"params"`
	IsClientExecuted     bool         `json:"isClientExecuted"`
	ExportedActions      []ActionRef  `json:"exportedActions"`
	ImportedHandlers     []HandlerRef `json:"importedHandlers"`
	HooksUsed            []string     `json:"hooksUsed"`
	HTTPHandlerNames     []string     `json:"httpHandlerNames"`
}

// CallSiteFact is one outbound HTTP call found in client code.
type CallSiteFact struct {
	Route    string `json:"route"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Method   string `json:"method"`
	URL      string `json:"url"`
	Evidence string `json:"evidence"`
	HasBody  bool   `json:"hasBody"`
}

// ControllerRouteFact is one HTTP endpoint declared by a back-end controller.
type ControllerRouteFact struct {
	File        string   `json:"file"`
	ClassName   string   `json:"className"`
	MethodName  string   `json:"methodName"`
	HTTPMethod  string   `json:"httpMethod"`
	Path        string   `json:"path"`
	StatusCodes []int    `json:"statusCodes"`
	Guarded     bool     `json:"guarded"`
	BodyTypes   []string `json:"bodyTypes,omitempty"`
}

// ContractKind says how a contract shape was declared.
type ContractKind string

const (
	KindInterface     ContractKind = "structural-interface"
	KindType          ContractKind = "structural-type"
	KindSchemaBuilder ContractKind = "schema-builder"
	KindBackendClass  ContractKind = "backend-class"
	KindBackendSchema ContractKind = "backend-schema"
)

// ContractDefinition is a named data shape and its top-level property names.
type ContractDefinition struct {
	Name       string       `json:"name"`
	File       string       `json:"file"`
	Kind       ContractKind `json:"kind"`
	Properties []string     `json:"properties"`
}

// QueueRole is the part a registration plays for a queue.
type QueueRole string

const (
	Producer  QueueRole = "producer"
	Consumer  QueueRole = "consumer"
	Scheduler QueueRole = "scheduler"
)

// QueueSide is the process boundary a registration lives in.
type QueueSide string

const (
	SideAPI    QueueSide = "api"
	SideWorker QueueSide = "worker"
)

// QueueUsageRecord is one queue registration that passed the scope filter.
type QueueUsageRecord struct {
	QueueKey  string    `json:"queueKey"`
	QueueName string    `json:"queueName,omitempty"`
	AliasName string    `json:"aliasName,omitempty"`
	Role      QueueRole `json:"role"`
	Side      QueueSide `json:"side"`
	File      string    `json:"file"`
	Line      int       `json:"line"`
	Column    int       `json:"column"`
	Evidence  string    `json:"evidence"`
	Reasons   []string  `json:"reasons"`
}

// Finding is the analyzer-neutral form of an issue used for aggregation.
type Finding struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Severity   Severity  `json:"severity"`
	IssueType  IssueType `json:"issueType"`
	Summary    string    `json:"summary"`
	Suggestion string    `json:"suggestion"`
	File       string    `json:"file,omitempty"`
	Line       int       `json:"line,omitempty"`
	Route      string    `json:"route,omitempty"`
}

// Summary counts issues by severity.
type Summary struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"bySeverity"`
}

// Summarize counts the given issues.
func Summarize(issues []Issue) Summary {
	s := Summary{BySeverity: make(map[Severity]int, len(Severities))}
	for _, sev := range Severities {
		s.BySeverity[sev] = 0
	}
	for _, is := range issues {
		s.Total++
		s.BySeverity[is.Severity]++
	}
	return s
}
