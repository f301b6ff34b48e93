package language

import (
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// RenderSelectionSet prints a selection set back as query text, wrapped in
// an anonymous query operation. Used to turn residual selections from a diff
// into follow-up request bodies.
func RenderSelectionSet(selectionSet SelectionSet) string {
	doc := &ast.QueryDocument{
		Operations: ast.OperationList{{
			Operation:    ast.Query,
			SelectionSet: selectionSet,
		}},
	}
	var b strings.Builder
	formatter.NewFormatter(&b).FormatQueryDocument(doc)
	return strings.TrimSpace(b.String())
}
