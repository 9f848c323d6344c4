package lang

import (
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func init() {
	register(&Language{
		Name:       "typescript",
		Extensions: []string{".ts", ".mts", ".cts"},
		grammar:    typescript.GetLanguage(),
	})
	register(&Language{
		Name:       "tsx",
		Extensions: []string{".tsx"},
		JSX:        true,
		grammar:    tsx.GetLanguage(),
	})
}
