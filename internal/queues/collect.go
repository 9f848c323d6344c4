package queues

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/surfaceaudit/internal/config"
	"github.com/phobologic/surfaceaudit/internal/lang"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/project"
	"github.com/phobologic/surfaceaudit/internal/resolve"
)

const (
	textCacheSize = 512
	evidenceLimit = 160

	// bodyKeyword retains every usage in a file whose text mentions it.
	bodyKeyword = "supplier"
)

// construction is the role a `new X(name)` plays on one side.
type construction struct {
	role model.QueueRole
	hint string
}

var constructions = map[model.QueueSide]map[string]construction{
	model.SideAPI: {
		"Queue":          {model.Producer, "API new Queue"},
		"QueueScheduler": {model.Scheduler, "API new QueueScheduler"},
	},
	model.SideWorker: {
		"Worker":         {model.Consumer, "BullMQ Worker registration"},
		"Queue":          {model.Producer, "worker queue instantiation"},
		"QueueScheduler": {model.Scheduler, "worker queue scheduler"},
	},
}

var registrationMethods = map[string]struct{}{
	"registerQueue":      {},
	"registerQueueAsync": {},
}

// Collector finds queue registrations and keeps the ones that pass the
// keyword filter.
type Collector struct {
	keywords  []string
	consumers map[string]struct{}
	resolver  *resolve.Resolver
	texts     *lru.Cache[string, string]
}

// NewCollector configures a collector from the vocabulary.
func NewCollector(v config.Vocabulary, r *resolve.Resolver) *Collector {
	texts, err := lru.New[string, string](textCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	keywords := make([]string, len(v.SupplierKeywords))
	for i, k := range v.SupplierKeywords {
		keywords[i] = strings.ToLower(k)
	}
	return &Collector{
		keywords:  keywords,
		consumers: config.Set(v.ConsumerDecorators),
		resolver:  r,
		texts:     texts,
	}
}

// Collect returns the retained usages of f for the given side.
func (c *Collector) Collect(f *project.SourceFile, side model.QueueSide) []model.QueueUsageRecord {
	var out []model.QueueUsageRecord
	add := func(site, value *sitter.Node, role model.QueueRole, hint string) {
		if rec, ok := c.record(f, site, value, role, side, hint); ok {
			out = append(out, rec)
		}
	}

	for _, call := range f.Nodes(lang.CaptureCall) {
		args := project.Arguments(call)
		callee := project.Callee(call)
		if callee == nil {
			continue
		}
		name := f.CalleeName(call)

		if p := call.Parent(); p != nil && p.Type() == "decorator" {
			if _, ok := c.consumers[name]; ok && len(args) > 0 {
				value := args[0]
				if v, ok := f.ObjectProperty(args[0], "name"); ok {
					value = v
				}
				add(call, value, model.Consumer, name+" decorator")
				continue
			}
		}
		if side != model.SideAPI {
			continue
		}

		switch callee.Type() {
		case "identifier":
			switch {
			case name == "InjectQueue" && len(args) > 0:
				add(call, args[0], model.Producer, "queue injected in API module")
			case name == "Queue" && len(args) > 0:
				add(call, args[0], model.Producer, "direct Queue instantiation")
			}
		case "member_expression":
			if _, ok := registrationMethods[name]; !ok {
				continue
			}
			for _, arg := range args {
				if v, ok := f.ObjectProperty(arg, "name"); ok {
					add(call, v, model.Producer, "queue registration name")
				}
			}
		}
	}

	for _, n := range f.Nodes(lang.CaptureNew) {
		ctor := project.Callee(n)
		if ctor == nil || ctor.Type() != "identifier" {
			continue
		}
		k, ok := constructions[side][f.Text(ctor)]
		if !ok {
			continue
		}
		if args := project.Arguments(n); len(args) > 0 {
			add(n, args[0], k.role, k.hint)
		}
	}
	return out
}

func (c *Collector) record(f *project.SourceFile, site, value *sitter.Node, role model.QueueRole, side model.QueueSide, hint string) (model.QueueUsageRecord, bool) {
	tok := c.resolver.Resolve(f, value)
	reasons := c.Reasons(f, tok)
	if len(reasons) == 0 {
		return model.QueueUsageRecord{}, false
	}
	reasons = appendUnique(reasons, hint)

	pos := f.Position(project.Unwrap(value))
	rec := model.QueueUsageRecord{
		QueueKey:  tok.Key,
		AliasName: tok.AliasName,
		Role:      role,
		Side:      side,
		File:      f.Path,
		Line:      pos.Line,
		Column:    pos.Column,
		Evidence:  evidence(f.Text(site)),
		Reasons:   reasons,
	}
	if v, ok := tok.Literal(); ok {
		rec.QueueName = v
	}
	return rec, true
}

// Reasons lists why a usage belongs to the audited subset: a keyword in
// the token, a keyword in the file path, or the body keyword in the file
// text. An empty result drops the usage.
func (c *Collector) Reasons(f *project.SourceFile, tok model.ResolvedToken) []string {
	var reasons []string
	for _, token := range []string{tok.Key, tok.AliasName} {
		lower := strings.ToLower(token)
		if lower == "" {
			continue
		}
		for _, k := range c.keywords {
			if strings.Contains(lower, k) {
				reasons = appendUnique(reasons, fmt.Sprintf("queue token contains %q", k))
			}
		}
	}
	lowerPath := strings.ToLower(f.Path)
	for _, k := range c.keywords {
		if strings.Contains(lowerPath, k) {
			reasons = appendUnique(reasons, fmt.Sprintf("file path includes %q", k))
		}
	}
	if strings.Contains(c.lowerText(f), bodyKeyword) {
		reasons = appendUnique(reasons, fmt.Sprintf("file body references %q", bodyKeyword))
	}
	return reasons
}

func (c *Collector) lowerText(f *project.SourceFile) string {
	if t, ok := c.texts.Get(f.Path); ok {
		return t
	}
	t := strings.ToLower(string(f.Source))
	c.texts.Add(f.Path, t)
	return t
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// evidence collapses whitespace and truncates the text of a call site.
func evidence(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > evidenceLimit {
		return string(r[:evidenceLimit])
	}
	return text
}
