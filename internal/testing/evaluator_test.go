package testing

import (
	"testing"

	"github.com/loaf-lang/loaf/internal/analyzer"
	"github.com/loaf-lang/loaf/internal/parser"
)

func num(f float64) *parser.NumberLit  { return &parser.NumberLit{Value: f} }
func str(s string) *parser.StringLit   { return &parser.StringLit{Value: s} }
func ident(name string) *parser.Identifier { return &parser.Identifier{Name: name} }

func newTable(symbols map[string]parser.Node) *analyzer.SymbolTable {
	st := analyzer.NewSymbolTable()
	for name, node := range symbols {
		st.Symbols[name] = &analyzer.Symbol{Name: name, Node: node, Resolved: true}
		st.Order = append(st.Order, name)
	}
	return st
}

func TestEvaluatorResolvesIdentifierThroughSymbolTable(t *testing.T) {
	st := newTable(map[string]parser.Node{"price": num(9.99)})
	ev := NewEvaluator(st, nil)

	got, err := ev.Eval(ident("price"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != LitNumber || got.Number != 9.99 {
		t.Fatalf("expected 9.99, got %v", got)
	}
}

func TestEvaluatorInputBindingShadowsSymbolTable(t *testing.T) {
	st := newTable(map[string]parser.Node{"x": num(1)})
	ev := NewEvaluator(st, map[string]parser.Node{"x": num(42)})

	got, err := ev.Eval(ident("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Number != 42 {
		t.Fatalf("expected input binding to shadow symbol table, got %v", got)
	}
}

func TestEvaluatorMemberAccessIndexesObjectFields(t *testing.T) {
	st := newTable(map[string]parser.Node{
		"user": &parser.ObjectLit{
			Order:  []string{"name", "age"},
			Fields: map[string]parser.Node{"name": str("ada"), "age": num(30)},
		},
	})
	ev := NewEvaluator(st, nil)

	got, err := ev.Eval(&parser.MemberAccess{Object: ident("user"), Property: "name"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != LitString || got.Str != "ada" {
		t.Fatalf("expected %q, got %v", "ada", got)
	}
}

func TestEvaluatorRejectsFunctionCallAsUnsupported(t *testing.T) {
	st := newTable(nil)
	ev := NewEvaluator(st, nil)

	_, err := ev.Eval(&parser.FunctionCall{Name: "fetch", Args: nil})
	if err == nil {
		t.Fatal("expected an evaluation error for a function call expression")
	}
	if _, ok := err.(*EvalError); !ok {
		t.Fatalf("expected *EvalError, got %T", err)
	}
}

func TestEvaluatorArithmeticOverLiterals(t *testing.T) {
	st := newTable(nil)
	ev := NewEvaluator(st, nil)

	expr := &parser.Binary{Op: parser.Add, Left: num(2), Right: num(3)}
	got, err := ev.Eval(expr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Number != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
}
