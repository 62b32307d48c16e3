package analyzer

import "github.com/loaf-lang/loaf/internal/parser"

// AnalyzedProgram is the analyzer's output: the fully resolved symbol
// table plus the topological resolution order the code generator walks.
type AnalyzedProgram struct {
	Symbols *SymbolTable
	Order   []string
}

// Analyzer runs the four-pass pipeline over a parsed program.
type Analyzer struct{}

func New() *Analyzer { return &Analyzer{} }

func Analyze(prog *parser.Program) (*AnalyzedProgram, error) {
	return New().Analyze(prog)
}

func (a *Analyzer) Analyze(prog *parser.Program) (*AnalyzedProgram, error) {
	st := NewSymbolTable()

	a.collectSymbols(prog, st)
	a.wireDependents(st)

	order, err := a.topologicalOrder(st)
	if err != nil {
		return nil, err
	}

	a.propagate(st, order)

	if err := a.validate(st); err != nil {
		return nil, err
	}

	return &AnalyzedProgram{Symbols: st, Order: order}, nil
}

// collectSymbols is pass 1: walks every assignment, endpoint handler,
// and test expression, emitting a symbol for every assignment and every
// object field (recursively, per spec §9's explicit open-question note).
func (a *Analyzer) collectSymbols(prog *parser.Program, st *SymbolTable) {
	for _, stmt := range prog.Statements {
		switch s := stmt.(type) {
		case *parser.Assignment:
			a.collectBinding(s.Name, s.Value, s.Line(), st)
		case *parser.Endpoint:
			st.Endpoints = append(st.Endpoints, EndpointDescriptor{
				Name: s.Name, Method: s.Method, Path: s.Path, Handler: s.Handler, Line: s.Line(),
			})
			a.collectNestedObjects(s.Handler, st)
		case *parser.Test:
			inputs := map[string]parser.Node{}
			for k, v := range s.Inputs {
				inputs[k] = v
			}
			st.Tests = append(st.Tests, TestDescriptor{
				Name: s.Name, Expect: s.Expect, Inputs: inputs, Expected: s.Expected, Regex: s.Regex, Line: s.Line(),
			})
			a.collectNestedObjects(s.Expect, st)
			for _, v := range s.Inputs {
				a.collectNestedObjects(v, st)
			}
			a.collectNestedObjects(s.Expected, st)
		}
	}
}

func (a *Analyzer) collectBinding(name string, val parser.Node, line int, st *SymbolTable) {
	typ := a.localInfer(val, st)
	sym := newSymbol(name, typ, line, val)
	sym.Dependencies = collectDependencies(val)
	st.AddSymbol(sym)
	a.collectNestedObjects(val, st)
}

// collectNestedObjects descends through an expression looking for
// object literals; each field of every one found becomes its own
// top-level symbol, exactly like collectBinding.
func (a *Analyzer) collectNestedObjects(node parser.Node, st *SymbolTable) {
	switch n := node.(type) {
	case *parser.ObjectLit:
		for _, key := range n.Order {
			a.collectBinding(key, n.Fields[key], n.Line(), st)
		}
	case *parser.ArrayLit:
		for _, e := range n.Elements {
			a.collectNestedObjects(e, st)
		}
	case *parser.Binary:
		a.collectNestedObjects(n.Left, st)
		a.collectNestedObjects(n.Right, st)
	case *parser.Unary:
		a.collectNestedObjects(n.Operand, st)
	case *parser.MemberAccess:
		a.collectNestedObjects(n.Object, st)
	case *parser.FunctionCall:
		for _, arg := range n.Args {
			a.collectNestedObjects(arg, st)
		}
	case *parser.Promise:
		a.collectNestedObjects(n.Expr, st)
	case *parser.HttpCall:
		a.collectNestedObjects(n.URL, st)
		if n.Body != nil {
			a.collectNestedObjects(n.Body, st)
		}
		if n.Headers != nil {
			a.collectNestedObjects(n.Headers, st)
		}
	}
}

// wireDependents backfills the inverse edge now that every symbol
// exists, regardless of definition order (forward references are legal
// until pass 4 checks they actually resolve).
func (a *Analyzer) wireDependents(st *SymbolTable) {
	for _, name := range st.Order {
		sym := st.Symbols[name]
		for dep := range sym.Dependencies {
			if depSym, ok := st.Symbols[dep]; ok {
				depSym.Dependents[name] = true
			}
		}
	}
}

// topologicalOrder is pass 2: Kahn's algorithm over the dependency
// graph, counting only edges to symbols that actually exist (an edge to
// a missing symbol is pass 4's problem, not a topological one).
func (a *Analyzer) topologicalOrder(st *SymbolTable) ([]string, error) {
	inDegree := map[string]int{}
	for name, sym := range st.Symbols {
		count := 0
		for dep := range sym.Dependencies {
			if _, ok := st.Symbols[dep]; ok {
				count++
			}
		}
		inDegree[name] = count
	}

	var queue []string
	for _, name := range st.Order {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		for _, depName := range st.Order {
			depSym := st.Symbols[depName]
			if !depSym.Dependencies[name] {
				continue
			}
			inDegree[depName]--
			if inDegree[depName] == 0 {
				queue = append(queue, depName)
			}
		}
	}

	if len(order) != len(st.Symbols) {
		inOrder := map[string]bool{}
		for _, n := range order {
			inOrder[n] = true
		}
		var remaining []string
		for _, n := range st.Order {
			if !inOrder[n] {
				remaining = append(remaining, n)
			}
		}
		return nil, errCircular(remaining)
	}

	return order, nil
}

// propagate is pass 3: a symbol becomes a promise the moment any of its
// dependencies already is one. Monotone, so running it twice is a
// no-op (idempotent per spec §8).
func (a *Analyzer) propagate(st *SymbolTable, order []string) {
	for _, name := range order {
		sym := st.Symbols[name]
		if sym.Type.IsPromise() {
			sym.Resolved = true
			continue
		}
		for dep := range sym.Dependencies {
			depSym, ok := st.Symbols[dep]
			if !ok {
				continue
			}
			if depSym.Type.IsPromise() {
				sym.Type = PromiseOf(sym.Type)
				break
			}
		}
		sym.Resolved = true
	}
}

// validate is pass 4: every dependency must resolve to a real symbol,
// and no two endpoints may share a (method, path) pair.
func (a *Analyzer) validate(st *SymbolTable) error {
	for _, name := range st.Order {
		sym := st.Symbols[name]
		for dep := range sym.Dependencies {
			if _, ok := st.Symbols[dep]; !ok {
				return errUndefined(dep, sym.DefinitionLine)
			}
		}
	}

	type key struct {
		method parser.HttpMethod
		path   string
	}
	seen := map[key]string{}
	for _, ep := range st.Endpoints {
		k := key{ep.Method, ep.Path}
		if existing, ok := seen[k]; ok && existing != ep.Name {
			return errDuplicateEndpoint(ep.Name, ep.Method.String(), ep.Path, ep.Line)
		}
		seen[k] = ep.Name
	}

	return nil
}
