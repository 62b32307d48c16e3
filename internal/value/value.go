// Package value defines the runtime value domain shared by the analyzer,
// code generator, and interpreter: a small tagged union together with the
// arithmetic, bitwise, logical, and comparison operations the bytecode
// opcodes dispatch to.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which field of a Value is live.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindString
	KindArray
	KindObject
	KindHeapID
	KindProgramCounter
	KindException
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindHeapID:
		return "heap_id"
	case KindProgramCounter:
		return "program_counter"
	case KindException:
		return "exception"
	default:
		return "unknown"
	}
}

// StackFrame records one propagation point of a thrown exception.
type StackFrame struct {
	PC     int
	Module string
}

// Exception is the payload carried by a KindException value.
type Exception struct {
	Type    string
	Message string
	Frames  []StackFrame
}

func (e *Exception) AppendFrame(pc int, module string) {
	e.Frames = append(e.Frames, StackFrame{PC: pc, Module: module})
}

func (e *Exception) String() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Value is the tagged union every VM stack slot, local slot, and constant
// pool entry holds.
type Value struct {
	kind  Kind
	i     int64
	f     float64
	b     bool
	s     string
	arr   []Value
	ref   Reference
	exc   *Exception
}

func Null() Value                      { return Value{kind: KindNull} }
func Integer(i int64) Value            { return Value{kind: KindInteger, i: i} }
func Float(f float64) Value            { return Value{kind: KindFloat, f: f} }
func Boolean(b bool) Value             { return Value{kind: KindBoolean, b: b} }
func String(s string) Value            { return Value{kind: KindString, s: s} }
func Array(elems []Value) Value        { return Value{kind: KindArray, arr: elems} }
func Object(ref Reference) Value       { return Value{kind: KindObject, ref: ref} }
func HeapID(id uint32) Value           { return Value{kind: KindHeapID, i: int64(id)} }
func ProgramCounter(pc int) Value      { return Value{kind: KindProgramCounter, i: int64(pc)} }
func ExceptionValue(exc *Exception) Value {
	return Value{kind: KindException, exc: exc}
}

func NewException(typ, message string) Value {
	return ExceptionValue(&Exception{Type: typ, Message: message})
}

func (v Value) Kind() Kind                { return v.kind }
func (v Value) IsNull() bool              { return v.kind == KindNull }
func (v Value) AsInteger() (int64, bool)  { return v.i, v.kind == KindInteger }
func (v Value) AsFloat() (float64, bool)  { return v.f, v.kind == KindFloat }
func (v Value) AsBoolean() (bool, bool)   { return v.b, v.kind == KindBoolean }
func (v Value) AsString() (string, bool)  { return v.s, v.kind == KindString }
func (v Value) AsArray() ([]Value, bool)  { return v.arr, v.kind == KindArray }
func (v Value) AsReference() (Reference, bool) {
	return v.ref, v.kind == KindObject
}
func (v Value) AsHeapID() (uint32, bool) {
	return uint32(v.i), v.kind == KindHeapID
}
func (v Value) AsProgramCounter() (int, bool) {
	return int(v.i), v.kind == KindProgramCounter
}
func (v Value) AsException() (*Exception, bool) {
	return v.exc, v.kind == KindException
}

// IsTruthy implements the coercion rules: null, 0, NaN, false, empty
// string, empty array, and the null object reference are all falsy;
// every other object reference, heap id, program counter and exception
// is truthy.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindInteger:
		return v.i != 0
	case KindFloat:
		return v.f != 0 && !math.IsNaN(v.f)
	case KindBoolean:
		return v.b
	case KindString:
		return v.s != ""
	case KindArray:
		return len(v.arr) != 0
	case KindObject:
		return !v.ref.IsNull()
	default:
		return true
	}
}

// String renders the value the way the interpreter's debug trace and
// Print opcode do: quoted strings, bracketed heap/pc markers, recursive
// arrays.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindString:
		return strconv.Quote(v.s)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindObject:
		return v.ref.String()
	case KindHeapID:
		return fmt.Sprintf("<heap:%d>", v.i)
	case KindProgramCounter:
		return fmt.Sprintf("<pc:%d>", v.i)
	case KindException:
		return "Exception: " + v.exc.String()
	default:
		return "<unknown>"
	}
}

// TypeError builds the uniform "type error" message the VM error
// taxonomy expects.
func TypeError(op string, a, b Value) error {
	if b.kind == KindNull && a.kind != KindNull {
		return fmt.Errorf("type error: %s not supported on %s", op, a.kind)
	}
	return fmt.Errorf("type error: %s not supported between %s and %s", op, a.kind, b.kind)
}

// Add implements numeric promotion (integer+integer, float+float, mixed
// promotes to float) plus string concatenation.
func Add(a, b Value) (Value, error) {
	switch {
	case a.kind == KindInteger && b.kind == KindInteger:
		return Integer(a.i + b.i), nil
	case a.kind == KindFloat && b.kind == KindFloat:
		return Float(a.f + b.f), nil
	case a.kind == KindInteger && b.kind == KindFloat:
		return Float(float64(a.i) + b.f), nil
	case a.kind == KindFloat && b.kind == KindInteger:
		return Float(a.f + float64(b.i)), nil
	case a.kind == KindString && b.kind == KindString:
		return String(a.s + b.s), nil
	default:
		return Value{}, TypeError("add", a, b)
	}
}

func Sub(a, b Value) (Value, error) {
	switch {
	case a.kind == KindInteger && b.kind == KindInteger:
		return Integer(a.i - b.i), nil
	case a.kind == KindFloat && b.kind == KindFloat:
		return Float(a.f - b.f), nil
	case a.kind == KindInteger && b.kind == KindFloat:
		return Float(float64(a.i) - b.f), nil
	case a.kind == KindFloat && b.kind == KindInteger:
		return Float(a.f - float64(b.i)), nil
	default:
		return Value{}, TypeError("subtract", a, b)
	}
}

func Mul(a, b Value) (Value, error) {
	switch {
	case a.kind == KindInteger && b.kind == KindInteger:
		return Integer(a.i * b.i), nil
	case a.kind == KindFloat && b.kind == KindFloat:
		return Float(a.f * b.f), nil
	case a.kind == KindInteger && b.kind == KindFloat:
		return Float(float64(a.i) * b.f), nil
	case a.kind == KindFloat && b.kind == KindInteger:
		return Float(a.f * float64(b.i)), nil
	default:
		return Value{}, TypeError("multiply", a, b)
	}
}

var ErrDivisionByZero = fmt.Errorf("division by zero")

// Div returns (remainder, quotient) matching the interpreter's opcode
// contract: the remainder is pushed first so the quotient ends on top of
// the stack.
func Div(a, b Value) (remainder, quotient Value, err error) {
	switch {
	case a.kind == KindInteger && b.kind == KindInteger:
		if b.i == 0 {
			return Value{}, Value{}, ErrDivisionByZero
		}
		return Integer(a.i % b.i), Integer(a.i / b.i), nil
	case a.kind == KindFloat && b.kind == KindFloat:
		if b.f == 0 {
			return Value{}, Value{}, ErrDivisionByZero
		}
		return Float(math.Mod(a.f, b.f)), Float(a.f / b.f), nil
	case a.kind == KindInteger && b.kind == KindFloat:
		if b.f == 0 {
			return Value{}, Value{}, ErrDivisionByZero
		}
		af := float64(a.i)
		return Float(math.Mod(af, b.f)), Float(af / b.f), nil
	case a.kind == KindFloat && b.kind == KindInteger:
		if b.i == 0 {
			return Value{}, Value{}, ErrDivisionByZero
		}
		bf := float64(b.i)
		return Float(math.Mod(a.f, bf)), Float(a.f / bf), nil
	default:
		return Value{}, Value{}, TypeError("divide", a, b)
	}
}

func Neg(a Value) (Value, error) {
	switch a.kind {
	case KindInteger:
		return Integer(-a.i), nil
	case KindFloat:
		return Float(-a.f), nil
	default:
		return Value{}, TypeError("negate", a, Value{})
	}
}

func requireIntegers(op string, a, b Value) (int64, int64, error) {
	ai, aok := a.AsInteger()
	bi, bok := b.AsInteger()
	if !aok || !bok {
		return 0, 0, TypeError(op, a, b)
	}
	return ai, bi, nil
}

func BitAnd(a, b Value) (Value, error) {
	ai, bi, err := requireIntegers("bitwise and", a, b)
	if err != nil {
		return Value{}, err
	}
	return Integer(ai & bi), nil
}

func BitOr(a, b Value) (Value, error) {
	ai, bi, err := requireIntegers("bitwise or", a, b)
	if err != nil {
		return Value{}, err
	}
	return Integer(ai | bi), nil
}

func BitXor(a, b Value) (Value, error) {
	ai, bi, err := requireIntegers("bitwise xor", a, b)
	if err != nil {
		return Value{}, err
	}
	return Integer(ai ^ bi), nil
}

func BitNot(a Value) (Value, error) {
	ai, ok := a.AsInteger()
	if !ok {
		return Value{}, TypeError("bitwise not", a, Value{})
	}
	return Integer(^ai), nil
}

var ErrNegativeShift = fmt.Errorf("invalid operation: negative shift amount")

func ShiftLeft(a, b Value) (Value, error) {
	ai, bi, err := requireIntegers("shift left", a, b)
	if err != nil {
		return Value{}, err
	}
	if bi < 0 {
		return Value{}, ErrNegativeShift
	}
	return Integer(ai << uint64(bi)), nil
}

func ShiftRight(a, b Value) (Value, error) {
	ai, bi, err := requireIntegers("shift right", a, b)
	if err != nil {
		return Value{}, err
	}
	if bi < 0 {
		return Value{}, ErrNegativeShift
	}
	return Integer(ai >> uint64(bi)), nil
}

// RotateLeft and RotateRight rotate over the full 64-bit width of
// Integer. (The Rust original rotates assuming a 32-bit width despite its
// Integer also being i64; that looks like a latent bug rather than an
// intentional truncation, so this port uses 64 throughout.)
func RotateLeft(a, b Value) (Value, error) {
	ai, bi, err := requireIntegers("rotate left", a, b)
	if err != nil {
		return Value{}, err
	}
	if bi < 0 {
		return Value{}, ErrNegativeShift
	}
	u := uint64(ai)
	n := uint(bi) % 64
	return Integer(int64(u<<n | u>>(64-n))), nil
}

func RotateRight(a, b Value) (Value, error) {
	ai, bi, err := requireIntegers("rotate right", a, b)
	if err != nil {
		return Value{}, err
	}
	if bi < 0 {
		return Value{}, ErrNegativeShift
	}
	u := uint64(ai)
	n := uint(bi) % 64
	return Integer(int64(u>>n | u<<(64-n))), nil
}

func And(a, b Value) Value { return Boolean(a.IsTruthy() && b.IsTruthy()) }
func Or(a, b Value) Value  { return Boolean(a.IsTruthy() || b.IsTruthy()) }
func Not(a Value) Value    { return Boolean(!a.IsTruthy()) }

// Eq and Neq require exact type agreement; there is no numeric promotion
// the way arithmetic has it.
func Eq(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindInteger:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindBoolean:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindObject:
		return a.ref == b.ref
	case KindHeapID, KindProgramCounter:
		return a.i == b.i
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Eq(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func Neq(a, b Value) bool { return !Eq(a, b) }

func numeric(v Value) (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

func Lt(a, b Value) (bool, error) {
	if a.kind == KindString && b.kind == KindString {
		return a.s < b.s, nil
	}
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if !aok || !bok {
		return false, TypeError("compare", a, b)
	}
	return af < bf, nil
}

func Lte(a, b Value) (bool, error) {
	lt, err := Lt(a, b)
	if err != nil {
		return false, err
	}
	return lt || Eq(a, b) || equalNumeric(a, b), nil
}

func Gt(a, b Value) (bool, error) {
	lt, err := Lte(a, b)
	if err != nil {
		return false, err
	}
	return !lt, nil
}

func Gte(a, b Value) (bool, error) {
	lt, err := Lt(a, b)
	if err != nil {
		return false, err
	}
	return !lt, nil
}

// equalNumeric allows Lte's "or equal" branch to treat int/float mixes
// (e.g. 2 and 2.0) as equal the way arithmetic promotion would, even
// though Eq itself is exact-type.
func equalNumeric(a, b Value) bool {
	af, aok := numeric(a)
	bf, bok := numeric(b)
	return aok && bok && af == bf
}
