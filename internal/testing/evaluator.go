package testing

import (
	"fmt"

	"github.com/loaf-lang/loaf/internal/analyzer"
	"github.com/loaf-lang/loaf/internal/parser"
)

// EvalError marks an expression shape the purely-literal evaluator
// doesn't support (§4.9: "other constructs are not supported and yield
// an evaluation error") — function calls, promises, and HTTP calls all
// require the interpreter, not literal AST recursion.
type EvalError struct {
	Line  int
	Shape string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("line %d: cannot evaluate %s as a literal", e.Line, e.Shape)
}

// Evaluator walks test expressions against a program's resolved symbol
// table, looking up identifiers by recursing into the symbol's own
// stored AST fragment. Per-test input bindings shadow the symbol table.
type Evaluator struct {
	st     *analyzer.SymbolTable
	inputs map[string]parser.Node
}

func NewEvaluator(st *analyzer.SymbolTable, inputs map[string]parser.Node) *Evaluator {
	return &Evaluator{st: st, inputs: inputs}
}

func (e *Evaluator) Eval(node parser.Node) (Literal, error) {
	switch n := node.(type) {
	case *parser.NullLit:
		return Null(), nil

	case *parser.BooleanLit:
		return Boolean(n.Value), nil

	case *parser.StringLit:
		return String(n.Value), nil

	case *parser.NumberLit:
		if n.IsInt {
			return Number(float64(n.Int)), nil
		}
		return Number(n.Value), nil

	case *parser.Identifier:
		if bound, ok := e.inputs[n.Name]; ok {
			return e.Eval(bound)
		}
		sym, ok := e.st.GetSymbol(n.Name)
		if !ok {
			return Literal{}, &EvalError{Line: n.Line(), Shape: "undefined identifier " + n.Name}
		}
		return e.Eval(sym.Node)

	case *parser.ObjectLit:
		fields := make(map[string]Literal, len(n.Order))
		for _, key := range n.Order {
			v, err := e.Eval(n.Fields[key])
			if err != nil {
				return Literal{}, err
			}
			fields[key] = v
		}
		return Object(fields), nil

	case *parser.ArrayLit:
		elems := make([]Literal, len(n.Elements))
		for i, el := range n.Elements {
			v, err := e.Eval(el)
			if err != nil {
				return Literal{}, err
			}
			elems[i] = v
		}
		return Array(elems), nil

	case *parser.MemberAccess:
		obj, err := e.Eval(n.Object)
		if err != nil {
			return Literal{}, err
		}
		if obj.Kind != LitObject {
			return Literal{}, &EvalError{Line: n.Line(), Shape: "member access on a non-object"}
		}
		v, ok := obj.Obj[n.Property]
		if !ok {
			return Null(), nil
		}
		return v, nil

	case *parser.Binary:
		return e.evalBinary(n)

	case *parser.Unary:
		v, err := e.Eval(n.Operand)
		if err != nil {
			return Literal{}, err
		}
		switch n.Op {
		case parser.Negate:
			if v.Kind != LitNumber {
				return Literal{}, &EvalError{Line: n.Line(), Shape: "negate on a non-number"}
			}
			return Number(-v.Number), nil
		case parser.Not:
			return Boolean(!truthy(v)), nil
		}
		return Literal{}, &EvalError{Line: n.Line(), Shape: "unary operator"}

	default:
		return Literal{}, &EvalError{Line: node.Line(), Shape: shapeName(node)}
	}
}

func (e *Evaluator) evalBinary(n *parser.Binary) (Literal, error) {
	left, err := e.Eval(n.Left)
	if err != nil {
		return Literal{}, err
	}
	right, err := e.Eval(n.Right)
	if err != nil {
		return Literal{}, err
	}

	if n.Op == parser.Equal {
		return Boolean(Equal(left, right)), nil
	}

	if left.Kind == LitString && right.Kind == LitString && n.Op == parser.Add {
		return String(left.Str + right.Str), nil
	}
	if left.Kind != LitNumber || right.Kind != LitNumber {
		return Literal{}, &EvalError{Line: n.Line(), Shape: "arithmetic on a non-number"}
	}
	switch n.Op {
	case parser.Add:
		return Number(left.Number + right.Number), nil
	case parser.Subtract:
		return Number(left.Number - right.Number), nil
	case parser.Multiply:
		return Number(left.Number * right.Number), nil
	case parser.Divide:
		if right.Number == 0 {
			return Literal{}, &EvalError{Line: n.Line(), Shape: "division by zero"}
		}
		return Number(left.Number / right.Number), nil
	default:
		return Literal{}, &EvalError{Line: n.Line(), Shape: "binary operator"}
	}
}

func truthy(l Literal) bool {
	switch l.Kind {
	case LitNull:
		return false
	case LitNumber:
		return l.Number != 0
	case LitBoolean:
		return l.Bool
	case LitString:
		return l.Str != ""
	case LitArray:
		return len(l.Arr) != 0
	case LitObject:
		return len(l.Obj) != 0
	default:
		return false
	}
}

func shapeName(n parser.Node) string {
	switch n.(type) {
	case *parser.Promise:
		return "promise(...)"
	case *parser.HttpCall:
		return "http call"
	case *parser.FunctionCall:
		return "function call"
	default:
		return fmt.Sprintf("%T", n)
	}
}
