package surface

import (
	"path"
	"regexp"
	"strings"
)

// SharedRoute labels call sites and issues in files outside the routed tree.
const SharedRoute = "shared-component"

var repeatedSlash = regexp.MustCompile(`/{2,}`)

// Route is the navigable path a routed file serves.
type Route struct {
	Path          string
	Params        []string
	ParallelSlots []string
}

// Normalize derives a route from the directory segments of a routed file
// (relative to the app directory) and its file name. Group segments `(x)`
// are dropped, slot segments `@x` are recorded as parallel slots and
// dropped, and dynamic segments `[x]` stay in the path and name a param.
// Normalizing the segments of a returned path yields the same path.
func Normalize(segments []string, fileName string) Route {
	r := Route{Params: []string{}, ParallelSlots: []string{}}
	var kept []string
	for _, seg := range segments {
		switch {
		case seg == "" || seg == ".":
			continue
		case isGroup(seg):
			continue
		case strings.HasPrefix(seg, "@"):
			r.ParallelSlots = append(r.ParallelSlots, seg[1:])
			continue
		}
		if p, ok := paramName(seg); ok {
			r.Params = append(r.Params, p)
		}
		kept = append(kept, seg)
	}
	if fileName != "" {
		base := strings.TrimSuffix(fileName, path.Ext(fileName))
		if p, ok := paramName(base); ok {
			r.Params = append(r.Params, p)
		}
	}
	r.Path = "/" + strings.Join(kept, "/")
	return r
}

// NormalizePath re-normalizes an already derived route path.
func NormalizePath(route string) Route {
	return Normalize(strings.Split(route, "/"), "")
}

// FromFile derives the route of a repo-relative file under appDir, prefixed
// with prefix. Files outside appDir get SharedRoute.
func FromFile(rel, appDir, prefix string) Route {
	appDir = strings.TrimSuffix(appDir, "/")
	if !strings.HasPrefix(rel, appDir+"/") {
		return Route{Path: SharedRoute, Params: []string{}, ParallelSlots: []string{}}
	}
	parts := strings.Split(strings.TrimPrefix(rel, appDir+"/"), "/")
	r := Normalize(parts[:len(parts)-1], parts[len(parts)-1])
	if prefix != "" {
		r.Path = JoinPath(prefix, r.Path)
	}
	return r
}

// JoinPath joins route parts, collapsing repeated slashes, ensuring a
// leading slash and dropping a trailing one.
func JoinPath(parts ...string) string {
	p := repeatedSlash.ReplaceAllString("/"+strings.Join(parts, "/"), "/")
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// TargetPath normalizes a navigation target for lookup in the route index:
// query and fragment are dropped and a trailing slash removed.
func TargetPath(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if len(target) > 1 {
		target = strings.TrimSuffix(target, "/")
	}
	if target == "" {
		return "/"
	}
	return target
}

func isGroup(seg string) bool {
	return len(seg) >= 2 && strings.HasPrefix(seg, "(") && strings.HasSuffix(seg, ")")
}

// paramName extracts the name of a dynamic segment: [id], [...slug] or
// [[...slug]].
func paramName(seg string) (string, bool) {
	if len(seg) < 3 || seg[0] != '[' || seg[len(seg)-1] != ']' {
		return "", false
	}
	name := strings.Trim(seg, "[]")
	name = strings.TrimPrefix(name, "...")
	if name == "" {
		return "", false
	}
	return name, true
}
