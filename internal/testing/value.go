// Package testing implements the test engine (§4.9): a purely-literal
// evaluator over an analyzed program's symbol table, and deep structural
// or regex comparison between a test's expect and expected expressions.
package testing

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// LitKind tags a Literal the same way value.Kind tags a runtime Value,
// except objects are structural maps here rather than heap references —
// the test engine never touches the VM's memory manager, it only
// re-interprets AST literal expressions.
type LitKind int

const (
	LitNull LitKind = iota
	LitNumber
	LitBoolean
	LitString
	LitArray
	LitObject
)

// Literal is the value domain the evaluator produces and Equal
// consumes.
type Literal struct {
	Kind   LitKind
	Number float64
	Bool   bool
	Str    string
	Arr    []Literal
	Obj    map[string]Literal
}

func Null() Literal                      { return Literal{Kind: LitNull} }
func Number(f float64) Literal           { return Literal{Kind: LitNumber, Number: f} }
func Boolean(b bool) Literal             { return Literal{Kind: LitBoolean, Bool: b} }
func String(s string) Literal            { return Literal{Kind: LitString, Str: s} }
func Array(elems []Literal) Literal      { return Literal{Kind: LitArray, Arr: elems} }
func Object(fields map[string]Literal) Literal {
	return Literal{Kind: LitObject, Obj: fields}
}

// epsilon is the machine-epsilon tolerance §4.9 specifies for number
// comparison.
const epsilon = 2.220446049250313e-16

// String renders a Literal for diagnostics and for regex/string
// coercion — stable key order on objects so failure messages and regex
// matches are deterministic across runs.
func (l Literal) String() string {
	switch l.Kind {
	case LitNull:
		return "null"
	case LitNumber:
		return strconv.FormatFloat(l.Number, 'g', -1, 64)
	case LitBoolean:
		return strconv.FormatBool(l.Bool)
	case LitString:
		return l.Str
	case LitArray:
		parts := make([]string, len(l.Arr))
		for i, e := range l.Arr {
			parts[i] = e.String()
		}
		return "[" + joinComma(parts) + "]"
	case LitObject:
		keys := make([]string, 0, len(l.Obj))
		for k := range l.Obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, l.Obj[k].String())
		}
		return "{" + joinComma(parts) + "}"
	default:
		return "<unknown>"
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// Equal implements §4.9's deep structural equality: arrays compare
// element-wise, objects compare key-set-equal and pairwise-equal,
// numbers compare within machine-epsilon tolerance.
func Equal(a, b Literal) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case LitNull:
		return true
	case LitNumber:
		return math.Abs(a.Number-b.Number) <= epsilon
	case LitBoolean:
		return a.Bool == b.Bool
	case LitString:
		return a.Str == b.Str
	case LitArray:
		if len(a.Arr) != len(b.Arr) {
			return false
		}
		for i := range a.Arr {
			if !Equal(a.Arr[i], b.Arr[i]) {
				return false
			}
		}
		return true
	case LitObject:
		if len(a.Obj) != len(b.Obj) {
			return false
		}
		for k, av := range a.Obj {
			bv, ok := b.Obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
