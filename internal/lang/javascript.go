package lang

import "github.com/smacker/go-tree-sitter/javascript"

// The JavaScript grammar parses JSX as well, so .jsx needs no grammar of its own.
func init() {
	register(&Language{
		Name:       "javascript",
		Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		JSX:        true,
		grammar:    javascript.GetLanguage(),
	})
}
