package policyopa

import (
	"sort"

	"github.com/open-policy-agent/opa/ast"
)

// allowedBuiltins keeps policies pure: no http.send, time or randomness.
var allowedBuiltins = map[string]struct{}{
	"and":        {},
	"concat":     {},
	"contains":   {},
	"count":      {},
	"endswith":   {},
	"eq":         {},
	"equal":      {},
	"gt":         {},
	"gte":        {},
	"lower":      {},
	"lt":         {},
	"lte":        {},
	"max":        {},
	"min":        {},
	"neq":        {},
	"object.get": {},
	"or":         {},
	"sort":       {},
	"split":      {},
	"sprintf":    {},
	"startswith": {},
	"sum":        {},
	"trim":       {},
	"upper":      {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}

// forbiddenCalls lists, sorted, the builtins the modules call outside the allow-list.
func forbiddenCalls(modules map[string]*ast.Module) []string {
	seen := map[string]bool{}
	for _, module := range modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, builtin := ast.BuiltinMap[name]; builtin {
				if _, ok := allowedBuiltins[name]; !ok {
					seen[name] = true
				}
			}
			return false
		})
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
