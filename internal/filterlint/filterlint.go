// Package filterlint reports filter text literals that the store would
// reject at run time.
package filterlint

import (
	"go/ast"
	"go/constant"
	"strings"

	"github.com/qolzam/docstore/internal/store/filter"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

const doc = `filterlint: check constant filter text passed to Find and Where

Calls of methods named Find or Where whose only argument is a constant
string are parsed with the store's filter parser. Malformed filters are
reported at the literal. Calls with template arguments are skipped since
their text is only complete after substitution.
`

var Analyzer = &analysis.Analyzer{
	Name:     "filterlint",
	Doc:      doc,
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

var methods = map[string]bool{"Find": true, "Where": true}

func run(pass *analysis.Pass) (interface{}, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.CallExpr)(nil),
	}

	inspect.Preorder(nodeFilter, func(n ast.Node) {
		call := n.(*ast.CallExpr)
		fun, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || !methods[fun.Sel.Name] {
			return
		}
		if len(call.Args) != 1 || call.Ellipsis.IsValid() {
			return
		}

		tv, ok := pass.TypesInfo.Types[call.Args[0]]
		if !ok || tv.Value == nil || tv.Value.Kind() != constant.String {
			return
		}
		text := constant.StringVal(tv.Value)
		if strings.TrimSpace(text) == "" {
			return
		}
		if _, err := filter.Parse(text); err != nil {
			pass.Reportf(call.Args[0].Pos(), "malformed filter passed to %s: %v", fun.Sel.Name, err)
		}
	})

	return nil, nil
}
