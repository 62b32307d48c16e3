package vm

import (
	"github.com/loaf-lang/loaf/internal/bytecode"
	"github.com/loaf-lang/loaf/internal/value"
)

// binaryOp pops two operands, applies the value-package operation
// matching op, and pushes the result. Div is the one exception: it
// pushes two results, remainder then quotient, per §4.6.
func (i *Interpreter) binaryOp(ctx *ExecutionContext, op bytecode.OpCode) error {
	b, err := ctx.Pop()
	if err != nil {
		return err
	}
	a, err := ctx.Pop()
	if err != nil {
		return err
	}

	switch op {
	case bytecode.Add:
		return i.pushResult(ctx, value.Add(a, b))
	case bytecode.Sub:
		return i.pushResult(ctx, value.Sub(a, b))
	case bytecode.Mul:
		return i.pushResult(ctx, value.Mul(a, b))
	case bytecode.Div:
		rem, quot, err := value.Div(a, b)
		if err != nil {
			return i.arithErr(ctx, err)
		}
		ctx.Push(rem)
		ctx.Push(quot)
		return nil
	case bytecode.BitAnd:
		return i.pushResult(ctx, value.BitAnd(a, b))
	case bytecode.BitOr:
		return i.pushResult(ctx, value.BitOr(a, b))
	case bytecode.BitXor:
		return i.pushResult(ctx, value.BitXor(a, b))
	case bytecode.ShiftLeft:
		return i.pushResult(ctx, value.ShiftLeft(a, b))
	case bytecode.ShiftRight:
		return i.pushResult(ctx, value.ShiftRight(a, b))
	case bytecode.RotateLeft:
		return i.pushResult(ctx, value.RotateLeft(a, b))
	case bytecode.RotateRight:
		return i.pushResult(ctx, value.RotateRight(a, b))
	case bytecode.And:
		ctx.Push(value.And(a, b))
		return nil
	case bytecode.Or:
		ctx.Push(value.Or(a, b))
		return nil
	case bytecode.Eq:
		ctx.Push(value.Boolean(value.Eq(a, b)))
		return nil
	case bytecode.Neq:
		ctx.Push(value.Boolean(value.Neq(a, b)))
		return nil
	case bytecode.Lt:
		return i.pushBool(ctx, value.Lt(a, b))
	case bytecode.Lte:
		return i.pushBool(ctx, value.Lte(a, b))
	case bytecode.Gt:
		return i.pushBool(ctx, value.Gt(a, b))
	case bytecode.Gte:
		return i.pushBool(ctx, value.Gte(a, b))
	default:
		return newErr(InvalidOperand, ctx.PC, "not a binary opcode")
	}
}

func (i *Interpreter) unaryOp(ctx *ExecutionContext, op bytecode.OpCode) error {
	a, err := ctx.Pop()
	if err != nil {
		return err
	}
	switch op {
	case bytecode.Neg:
		return i.pushResult(ctx, value.Neg(a))
	case bytecode.BitNot:
		return i.pushResult(ctx, value.BitNot(a))
	case bytecode.Not:
		ctx.Push(value.Not(a))
		return nil
	default:
		return newErr(InvalidOperand, ctx.PC, "not a unary opcode")
	}
}

func (i *Interpreter) pushResult(ctx *ExecutionContext, v value.Value, err error) error {
	if err != nil {
		return i.arithErr(ctx, err)
	}
	ctx.Push(v)
	return nil
}

func (i *Interpreter) pushBool(ctx *ExecutionContext, b bool, err error) error {
	if err != nil {
		return i.arithErr(ctx, err)
	}
	ctx.Push(value.Boolean(b))
	return nil
}

// arithErr classifies a value-package operation error into the §7 error
// taxonomy: division by zero gets its own kind, everything else from
// that layer is either a type mismatch or an invalid operation.
func (i *Interpreter) arithErr(ctx *ExecutionContext, err error) error {
	if err == value.ErrDivisionByZero {
		return wrapErr(DivisionByZero, ctx.PC, "", err)
	}
	if err == value.ErrNegativeShift {
		return wrapErr(InvalidOperation, ctx.PC, "", err)
	}
	return wrapErr(TypeError, ctx.PC, "", err)
}
