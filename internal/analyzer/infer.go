package analyzer

import "github.com/loaf-lang/loaf/internal/parser"

// localInfer seeds a symbol's type from the locally-visible shape of
// its right-hand side (spec §4.4's "local type inference" rules used
// in pass 1, before promise propagation runs in pass 3).
func (a *Analyzer) localInfer(node parser.Node, st *SymbolTable) *Type {
	switch n := node.(type) {
	case *parser.NullLit:
		return Null()
	case *parser.BooleanLit:
		return Bool()
	case *parser.StringLit:
		return Str()
	case *parser.NumberLit:
		return Number()
	case *parser.Identifier:
		if sym, ok := st.GetSymbol(n.Name); ok {
			return sym.Type
		}
		return Any()
	case *parser.ArrayLit:
		if len(n.Elements) == 0 {
			return ArrayOf(Any())
		}
		return ArrayOf(a.localInfer(n.Elements[0], st))
	case *parser.ObjectLit:
		fields := map[string]*Type{}
		for _, key := range n.Order {
			fields[key] = a.localInfer(n.Fields[key], st)
		}
		return ObjectOf(fields)
	case *parser.Binary:
		if n.Op == parser.Equal {
			return Bool()
		}
		lt := a.localInfer(n.Left, st)
		rt := a.localInfer(n.Right, st)
		result := promote(lt.InnerType(), rt.InnerType())
		if lt.IsPromise() || rt.IsPromise() {
			return PromiseOf(result)
		}
		return result
	case *parser.Unary:
		if n.Op == parser.Not {
			return Bool()
		}
		return Number()
	case *parser.MemberAccess:
		objType := a.localInfer(n.Object, st)
		if objType.IsPromise() {
			inner := objType.InnerType()
			if inner != nil && inner.Kind == TObject {
				if ft, ok := inner.Fields[n.Property]; ok {
					return PromiseOf(ft)
				}
			}
			return PromiseOf(Any())
		}
		if objType != nil && objType.Kind == TObject {
			if ft, ok := objType.Fields[n.Property]; ok {
				return ft
			}
		}
		return Any()
	case *parser.Promise:
		return PromiseOf(a.localInfer(n.Expr, st))
	case *parser.HttpCall:
		return PromiseOf(Any())
	case *parser.FunctionCall:
		return PromiseOf(Any())
	default:
		return Any()
	}
}

// promote follows the value domain's arithmetic promotion rules:
// number+number -> number, string+string -> string (valid only for
// Add, but the lattice is lenient at compile time), anything else
// resolves to any (the runtime will raise a type error if it's really
// incompatible).
func promote(a, b *Type) *Type {
	if a == nil || b == nil {
		return Any()
	}
	if a.Kind == TNumber && b.Kind == TNumber {
		return Number()
	}
	if a.Kind == TString && b.Kind == TString {
		return Str()
	}
	return Any()
}

// collectDependencies gathers every identifier name an expression reads,
// recursing through compound expressions; literals contribute nothing.
func collectDependencies(node parser.Node) map[string]bool {
	deps := map[string]bool{}
	var walk func(parser.Node)
	walk = func(n parser.Node) {
		switch v := n.(type) {
		case *parser.Identifier:
			deps[v.Name] = true
		case *parser.Binary:
			walk(v.Left)
			walk(v.Right)
		case *parser.Unary:
			walk(v.Operand)
		case *parser.MemberAccess:
			walk(v.Object)
		case *parser.FunctionCall:
			for _, arg := range v.Args {
				walk(arg)
			}
		case *parser.Promise:
			walk(v.Expr)
		case *parser.HttpCall:
			walk(v.URL)
			if v.Body != nil {
				walk(v.Body)
			}
			if v.Headers != nil {
				walk(v.Headers)
			}
		case *parser.ObjectLit:
			for _, key := range v.Order {
				walk(v.Fields[key])
			}
		case *parser.ArrayLit:
			for _, e := range v.Elements {
				walk(e)
			}
		}
	}
	walk(node)
	return deps
}
