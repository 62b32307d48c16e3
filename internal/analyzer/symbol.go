package analyzer

import "github.com/loaf-lang/loaf/internal/parser"

// Symbol is the unit of analysis: a name, its inferred type, the line
// it was defined on, its dependency/dependent edges, and the AST
// fragment the code generator will later lower.
type Symbol struct {
	Name           string
	Type           *Type
	DefinitionLine int
	Dependencies   map[string]bool
	Dependents     map[string]bool
	Resolved       bool
	Node           parser.Node
}

func newSymbol(name string, t *Type, line int, node parser.Node) *Symbol {
	return &Symbol{
		Name:           name,
		Type:           t,
		DefinitionLine: line,
		Dependencies:   map[string]bool{},
		Dependents:     map[string]bool{},
		Node:           node,
	}
}

// EndpointDescriptor is (name, HTTP method, path, handler AST, line).
type EndpointDescriptor struct {
	Name    string
	Method  parser.HttpMethod
	Path    string
	Handler parser.Node
	Line    int
}

// TestDescriptor is (name, expression-to-evaluate, input bindings,
// expected value, regex flag, line).
type TestDescriptor struct {
	Name     string
	Expect   parser.Node
	Inputs   map[string]parser.Node
	Expected parser.Node
	Regex    bool
	Line     int
}

// SymbolTable holds every symbol plus the endpoint/test descriptors
// collected alongside it.
type SymbolTable struct {
	Symbols   map[string]*Symbol
	Order     []string // insertion order, for deterministic iteration when needed
	Endpoints []EndpointDescriptor
	Tests     []TestDescriptor
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{Symbols: map[string]*Symbol{}}
}

// AddSymbol inserts or overwrites a symbol by name. Per spec §9's
// explicit open-question resolution, a later definition (e.g. a
// duplicate object field name) silently overwrites an earlier one.
func (st *SymbolTable) AddSymbol(sym *Symbol) {
	if _, exists := st.Symbols[sym.Name]; !exists {
		st.Order = append(st.Order, sym.Name)
	}
	st.Symbols[sym.Name] = sym
}

func (st *SymbolTable) GetSymbol(name string) (*Symbol, bool) {
	s, ok := st.Symbols[name]
	return s, ok
}

// AddDependency records that `from` depends on `to`, maintaining both
// the dependency and the inverse dependent edge.
func (st *SymbolTable) AddDependency(from, to string) {
	if fromSym, ok := st.Symbols[from]; ok {
		fromSym.Dependencies[to] = true
	}
	if toSym, ok := st.Symbols[to]; ok {
		toSym.Dependents[from] = true
	}
}
