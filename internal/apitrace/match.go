package apitrace

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/phobologic/surfaceaudit/internal/config"
	"github.com/phobologic/surfaceaudit/internal/model"
)

var looseBodyType = regexp.MustCompile(`\b(any|unknown)\b`)

// Matcher pairs call sites with controller routes.
type Matcher struct {
	routes     []model.ControllerRouteFact
	paramAware bool
}

// NewMatcher indexes routes. With paramAware, declared `:name` and `[name]`
// segments match any one segment of a call URL.
func NewMatcher(routes []model.ControllerRouteFact, paramAware bool) *Matcher {
	return &Matcher{routes: routes, paramAware: paramAware}
}

// Match returns the controller route serving call. Among routes whose path
// matches, one with the same verb wins; otherwise the first path match is
// returned so the caller can report the verb.
func (m *Matcher) Match(call model.CallSiteFact) (model.ControllerRouteFact, bool) {
	url := NormalizePath(call.URL)
	var first *model.ControllerRouteFact
	for i := range m.routes {
		r := &m.routes[i]
		if !m.pathMatches(url, NormalizePath(r.Path)) {
			continue
		}
		if r.HTTPMethod == call.Method {
			return *r, true
		}
		if first == nil {
			first = r
		}
	}
	if first == nil {
		return model.ControllerRouteFact{}, false
	}
	return *first, true
}

func (m *Matcher) pathMatches(url, declared string) bool {
	if url == declared {
		return true
	}
	if !m.paramAware {
		return false
	}
	us := strings.Split(url, "/")
	ds := strings.Split(declared, "/")
	if len(us) != len(ds) {
		return false
	}
	for i := range ds {
		if isParam(ds[i]) && us[i] != "" {
			continue
		}
		if us[i] != ds[i] {
			return false
		}
	}
	return true
}

func isParam(seg string) bool {
	return strings.HasPrefix(seg, ":") || (len(seg) > 2 && seg[0] == '[' && seg[len(seg)-1] == ']')
}

// NormalizePath strips a leading /api segment and a trailing slash.
func NormalizePath(p string) string {
	switch {
	case p == "/api":
		p = "/"
	case strings.HasPrefix(p, "/api/"):
		p = p[len("/api"):]
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}

// Checks are the optional classifications of a scope.
type Checks struct {
	Guards bool
	Bodies bool
}

// Classifier turns a call and its match into issues.
type Classifier struct {
	defaultStatus map[string]int
	checks        Checks
}

// NewClassifier configures classification for a scope.
func NewClassifier(v config.Vocabulary, sc config.Scope) *Classifier {
	return &Classifier{
		defaultStatus: v.DefaultStatus,
		checks:        Checks{Guards: sc.CheckGuards, Bodies: sc.CheckBodies},
	}
}

// Classify reports missing_route, or verb_mismatch, or status_mismatch, then
// the optional guard and body checks for a matched route.
func (c *Classifier) Classify(call model.CallSiteFact, route model.ControllerRouteFact, matched bool) []model.Issue {
	issues := []model.Issue{}
	pos := &model.Position{Line: call.Line, Column: call.Column}
	if !matched {
		return append(issues, model.Issue{
			IssueType:  model.MissingRoute,
			Severity:   model.High,
			Evidence:   fmt.Sprintf("No controller route matches %s %s", call.Method, call.URL),
			Suggestion: fmt.Sprintf("Add @%s('%s') handler to a controller or adjust the client request path.", decoratorName(call.Method), NormalizePath(call.URL)),
			TargetFile: call.File,
			Position:   pos,
		})
	}

	handler := route.ClassName + "." + route.MethodName
	issue := func(t model.IssueType, sev model.Severity, evidence, suggestion string) model.Issue {
		return model.Issue{
			IssueType:  t,
			Severity:   sev,
			Evidence:   evidence,
			Suggestion: suggestion,
			TargetFile: route.File,
			Symbol:     handler,
			Position:   pos,
		}
	}

	if route.HTTPMethod != call.Method {
		issues = append(issues, issue(model.VerbMismatch, model.Medium,
			fmt.Sprintf("Client calls %s %s but controller %s uses %s", call.Method, call.URL, handler, route.HTTPMethod),
			fmt.Sprintf("Align the client verb or update the controller decorator @%s('%s').", decoratorName(route.HTTPMethod), route.Path)))
	} else if len(route.StatusCodes) > 0 {
		expected, ok := c.defaultStatus[call.Method]
		if !ok {
			expected = 200
		}
		if !slices.Contains(route.StatusCodes, expected) {
			issues = append(issues, issue(model.StatusMismatch, model.Medium,
				fmt.Sprintf("Controller declares HttpCode %s but %s conventionally returns %d", joinInts(route.StatusCodes), call.Method, expected),
				fmt.Sprintf("Adjust @HttpCode on %s or update client handling.", handler)))
		}
	}

	if c.checks.Guards && !route.Guarded {
		issues = append(issues, issue(model.PermissionGap, model.High,
			fmt.Sprintf("Controller %s lacks guard or policy decorators for %s", handler, call.URL),
			"Add @UseGuards / @Policies decorators or document why the route is intentionally public."))
	}
	if c.checks.Bodies {
		if call.Method == "GET" && call.HasBody {
			issues = append(issues, issue(model.MethodBodyMismatch, model.Medium,
				"GET request supplies a body payload which many runtimes ignore",
				"Move the payload into query params or switch to POST."))
		}
		for _, t := range route.BodyTypes {
			if looseBodyType.MatchString(t) {
				issues = append(issues, issue(model.DTOInconsistent, model.Medium,
					fmt.Sprintf("Controller parameter of %s typed as %s", handler, t),
					"Introduce an explicit DTO in the shared package or tighten the method signature."))
			}
		}
	}
	return issues
}

func decoratorName(method string) string {
	if method == "" {
		return method
	}
	return method[:1] + strings.ToLower(method[1:])
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
