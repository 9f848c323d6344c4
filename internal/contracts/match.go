package contracts

import (
	"path"
	"strings"

	"github.com/phobologic/surfaceaudit/internal/model"
)

// Normalizer reduces contract names to a comparable stem.
type Normalizer struct {
	suffixes []string
}

// NewNormalizer strips the given suffixes, in order, when normalizing.
func NewNormalizer(suffixes []string) *Normalizer {
	lower := make([]string, len(suffixes))
	for i, s := range suffixes {
		lower[i] = strings.ToLower(s)
	}
	return &Normalizer{suffixes: lower}
}

// Normalize removes each configured suffix at most once, in order and
// regardless of case, then drops '-' and '_' and lowercases the rest.
// "CreateQuoteRequestDto" becomes "createquote".
func (n *Normalizer) Normalize(name string) string {
	for _, s := range n.suffixes {
		if s != "" && strings.HasSuffix(strings.ToLower(name), s) {
			name = name[:len(name)-len(s)]
		}
	}
	name = strings.NewReplacer("-", "", "_", "").Replace(name)
	return strings.ToLower(name)
}

// BestMatch picks the candidate for shared: an equal normalized name first,
// then a candidate whose file base name normalizes to it, then the first
// candidate whose normalized name contains it.
func (n *Normalizer) BestMatch(shared model.ContractDefinition, candidates []model.ContractDefinition) (model.ContractDefinition, bool) {
	want := n.Normalize(shared.Name)
	for _, c := range candidates {
		if n.Normalize(c.Name) == want {
			return c, true
		}
	}
	for _, c := range candidates {
		if n.Normalize(fileStem(c.File)) == want {
			return c, true
		}
	}
	if want == "" {
		return model.ContractDefinition{}, false
	}
	for _, c := range candidates {
		if strings.Contains(n.Normalize(c.Name), want) {
			return c, true
		}
	}
	return model.ContractDefinition{}, false
}

// fileStem is the base name up to its first dot: "create-quote.dto.ts"
// gives "create-quote".
func fileStem(file string) string {
	base := path.Base(file)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}
