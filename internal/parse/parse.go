// Package parse builds syntax trees and indexes their nodes by query capture.
package parse

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrSyntax is returned when the tree contains error or missing nodes.
var ErrSyntax = errors.New("syntax error")

// Result is a parsed file and its captured nodes.
type Result struct {
	Tree *sitter.Tree
	// Captures maps a capture name to its nodes in document order.
	Captures map[string][]*sitter.Node
}

// Index parses source and runs query over the whole tree.
// The parser must be created for the correct language. A tree with syntax
// errors is closed and ErrSyntax returned, so callers never see a partial tree.
func Index(ctx context.Context, parser *sitter.Parser, query *sitter.Query, source []byte) (*Result, error) {
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	root := tree.RootNode()
	if root == nil || root.HasError() {
		tree.Close()
		return nil, ErrSyntax
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, root)

	captures := make(map[string][]*sitter.Node)
	seen := make(map[*sitter.Node]struct{})
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)
		for _, c := range match.Captures {
			if _, dup := seen[c.Node]; dup {
				continue
			}
			seen[c.Node] = struct{}{}
			name := query.CaptureNameForId(c.Index)
			captures[name] = append(captures[name], c.Node)
		}
	}

	for _, nodes := range captures {
		sort.SliceStable(nodes, func(i, j int) bool {
			return nodes[i].StartByte() < nodes[j].StartByte()
		})
	}

	return &Result{Tree: tree, Captures: captures}, nil
}
