package apitrace

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/surfaceaudit/internal/config"
	"github.com/phobologic/surfaceaudit/internal/lang"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/project"
	"github.com/phobologic/surfaceaudit/internal/resolve"
	"github.com/phobologic/surfaceaudit/internal/surface"
)

const anonymousController = "AnonymousController"

// ControllerCollector reads route declarations from decorated controllers.
type ControllerCollector struct {
	verbs     map[string]string // decorator name -> HTTP method
	guards    map[string]struct{}
	constants map[string]int
	resolver  *resolve.Resolver
}

// NewControllerCollector builds a collector over the vocabulary.
func NewControllerCollector(v config.Vocabulary, r *resolve.Resolver) *ControllerCollector {
	verbs := make(map[string]string, len(v.HTTPVerbs))
	for _, verb := range v.HTTPVerbs {
		lower := strings.ToLower(verb)
		if lower == "" {
			continue
		}
		verbs[strings.ToUpper(lower[:1])+lower[1:]] = strings.ToUpper(lower)
	}
	return &ControllerCollector{
		verbs:     verbs,
		guards:    config.Set(v.GuardDecorators),
		constants: v.StatusConstants,
		resolver:  r,
	}
}

// Collect returns the routes declared by the controllers of f.
func (c *ControllerCollector) Collect(f *project.SourceFile) []model.ControllerRouteFact {
	var out []model.ControllerRouteFact
	for _, cls := range f.Classes() {
		classDecs := f.ClassDecorators(cls)
		ctrl, ok := project.FindDecorator(classDecs, "Controller")
		if !ok {
			continue
		}
		base := c.basePath(f, ctrl)
		classGuarded := project.HasDecorator(classDecs, c.guards)
		className := f.Text(cls.ChildByFieldName("name"))
		if className == "" {
			className = anonymousController
		}

		for _, m := range f.ClassMembers(cls) {
			if m.Node.Type() != "method_definition" {
				continue
			}
			for _, d := range m.Decorators {
				method, ok := c.verbs[d.Name]
				if !ok {
					continue
				}
				var suffix string
				if len(d.Args) > 0 {
					suffix, _ = c.resolver.Literal(f, d.Args[0])
				}
				out = append(out, model.ControllerRouteFact{
					File:        f.Path,
					ClassName:   className,
					MethodName:  f.PropertyKey(m.Node.ChildByFieldName("name")),
					HTTPMethod:  method,
					Path:        surface.JoinPath(base, suffix),
					StatusCodes: c.statusCodes(f, m.Decorators),
					Guarded:     classGuarded || project.HasDecorator(m.Decorators, c.guards),
					BodyTypes:   bodyTypes(f, m.Node),
				})
			}
		}
	}
	return out
}

// basePath reads `@Controller('x')` or `@Controller({ path: 'x' })`.
func (c *ControllerCollector) basePath(f *project.SourceFile, d project.Decorator) string {
	if len(d.Args) == 0 {
		return ""
	}
	arg := project.Unwrap(d.Args[0])
	if arg.Type() == "object" {
		v, ok := f.ObjectProperty(arg, "path")
		if !ok {
			return ""
		}
		arg = v
	}
	p, _ := c.resolver.Literal(f, arg)
	return p
}

func (c *ControllerCollector) statusCodes(f *project.SourceFile, decs []project.Decorator) []int {
	codes := []int{}
	for _, d := range decs {
		if d.Name != "HttpCode" || len(d.Args) == 0 {
			continue
		}
		if code, ok := c.statusCode(f, d.Args[0]); ok {
			codes = append(codes, code)
		}
	}
	return codes
}

// statusCode reads a numeric literal or an `HttpStatus.NAME` constant.
func (c *ControllerCollector) statusCode(f *project.SourceFile, n *sitter.Node) (int, bool) {
	if v, ok := resolve.NumberLiteral(f, n); ok {
		return v, true
	}
	if _, prop, ok := f.Member(project.Unwrap(n)); ok {
		v, ok := c.constants[prop]
		return v, ok
	}
	return 0, false
}

// bodyTypes returns the annotated types of a method's @Body() parameters.
// An unannotated body is typed any.
func bodyTypes(f *project.SourceFile, method *sitter.Node) []string {
	var out []string
	for _, param := range project.NamedChildren(method.ChildByFieldName("parameters")) {
		if _, ok := project.FindDecorator(f.ParamDecorators(param), "Body"); !ok {
			continue
		}
		t := "any"
		if ann := param.ChildByFieldName("type"); ann != nil {
			t = lang.CollapseWhitespace(strings.TrimPrefix(strings.TrimSpace(f.Text(ann)), ":"))
		}
		out = append(out, t)
	}
	return out
}
