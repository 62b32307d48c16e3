package vm

import (
	"fmt"

	"github.com/loaf-lang/loaf/internal/bytecode"
	"github.com/loaf-lang/loaf/internal/value"
)

// step executes one instruction. It returns (halted, haltResult,
// jumped, err); jumped tells RunFrom not to auto-advance the PC because
// the instruction already set it.
func (i *Interpreter) step(ctx *ExecutionContext, instr bytecode.Instruction) (bool, value.Value, bool, error) {
	op := instr.Opcode

	switch op {
	case bytecode.Nop:
		return false, value.Value{}, false, nil

	case bytecode.Halt:
		top, err := ctx.Pop()
		if err != nil {
			return true, value.Null(), false, nil
		}
		return true, top, false, nil

	case bytecode.Print:
		top, err := ctx.Peek()
		if err != nil {
			return false, value.Value{}, false, err
		}
		fmt.Println(top.String())
		return false, value.Value{}, false, nil

	case bytecode.Push, bytecode.LoadConstant:
		v, err := i.constantValue(instr.Operand(0))
		if err != nil {
			return false, value.Value{}, false, err
		}
		ctx.Push(v)
		return false, value.Value{}, false, nil

	case bytecode.Pop:
		if _, err := ctx.Pop(); err != nil {
			return false, value.Value{}, false, err
		}
		return false, value.Value{}, false, nil

	case bytecode.Dup:
		top, err := ctx.Peek()
		if err != nil {
			return false, value.Value{}, false, err
		}
		ctx.Push(top)
		return false, value.Value{}, false, nil

	case bytecode.Swap:
		b, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		a, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		ctx.Push(b)
		ctx.Push(a)
		return false, value.Value{}, false, nil

	case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div,
		bytecode.BitAnd, bytecode.BitOr, bytecode.BitXor,
		bytecode.ShiftLeft, bytecode.ShiftRight, bytecode.RotateLeft, bytecode.RotateRight,
		bytecode.And, bytecode.Or,
		bytecode.Eq, bytecode.Neq, bytecode.Lt, bytecode.Lte, bytecode.Gt, bytecode.Gte:
		return false, value.Value{}, false, i.binaryOp(ctx, op)

	case bytecode.Neg, bytecode.BitNot, bytecode.Not:
		return false, value.Value{}, false, i.unaryOp(ctx, op)

	case bytecode.Jump:
		ctx.PC = int(instr.Operand(0))
		return false, value.Value{}, true, nil

	case bytecode.JumpIf, bytecode.JumpIfNot:
		v, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		truthy := v.IsTruthy()
		if (op == bytecode.JumpIf && truthy) || (op == bytecode.JumpIfNot && !truthy) {
			ctx.PC = int(instr.Operand(0))
			return false, value.Value{}, true, nil
		}
		return false, value.Value{}, false, nil

	case bytecode.Call:
		ctx.Push(value.ProgramCounter(ctx.PC + 1))
		ctx.PC = int(instr.Operand(0))
		return false, value.Value{}, true, nil

	case bytecode.Return:
		addr, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		pc, ok := addr.AsProgramCounter()
		if !ok {
			return false, value.Value{}, false, newErr(TypeError, ctx.PC, "return without a return address")
		}
		ctx.PC = pc
		return false, value.Value{}, true, nil

	case bytecode.TryBlock:
		i.execTryBlock(ctx, instr.Operand(0), instr.Operand(1), instr.Operand(2))
		return false, value.Value{}, false, nil

	case bytecode.CatchBlock, bytecode.FinallyBlock:
		return false, value.Value{}, false, nil

	case bytecode.EndTry:
		ctx.PopHandler()
		return false, value.Value{}, false, nil

	case bytecode.Throw:
		// Suppress the auto-advance: propagate() reads ctx.PC on the
		// next loop turn to find a covering handler, and that lookup
		// must see the throwing instruction's own pc, matching how a
		// dispatch-loop-raised error (which never advances either) is
		// located.
		if err := i.execThrow(ctx); err != nil {
			return false, value.Value{}, false, err
		}
		return false, value.Value{}, true, nil

	case bytecode.Rethrow:
		if err := i.execRethrow(ctx); err != nil {
			return false, value.Value{}, false, err
		}
		return false, value.Value{}, true, nil

	case bytecode.StoreLocal:
		v, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		ctx.StoreLocal(int(instr.Operand(0)), v)
		return false, value.Value{}, false, nil

	case bytecode.LoadLocal:
		v, err := ctx.LoadLocal(int(instr.Operand(0)))
		if err != nil {
			return false, value.Value{}, false, err
		}
		ctx.Push(v)
		return false, value.Value{}, false, nil

	case bytecode.StoreVariable:
		v, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		name, err := i.constantString(instr.Operand(0))
		if err != nil {
			return false, value.Value{}, false, err
		}
		i.globals[name] = v
		return false, value.Value{}, false, nil

	case bytecode.LoadVariable:
		name, err := i.constantString(instr.Operand(0))
		if err != nil {
			return false, value.Value{}, false, err
		}
		v, ok := i.globals[name]
		if !ok {
			return false, value.Value{}, false, newErr(InvalidOperand, ctx.PC, "undefined variable "+name)
		}
		ctx.Push(v)
		return false, value.Value{}, false, nil

	case bytecode.CreateHeap:
		id := i.mem.CreateHeap()
		ctx.Push(value.HeapID(id))
		return false, value.Value{}, false, nil

	case bytecode.SwitchHeap:
		v, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		id, ok := v.AsHeapID()
		if !ok {
			return false, value.Value{}, false, newErr(TypeError, ctx.PC, "switch_heap expects a heap id")
		}
		if err := i.mem.SwitchHeap(id); err != nil {
			return false, value.Value{}, false, wrapErr(MemoryError, ctx.PC, "switch_heap", err)
		}
		return false, value.Value{}, false, nil

	case bytecode.CollectHeap:
		id := uint32(instr.Operand(0))
		if _, err := i.mem.Collect(id, i.roots(ctx)); err != nil {
			return false, value.Value{}, false, wrapErr(MemoryError, ctx.PC, "collect_heap", err)
		}
		return false, value.Value{}, false, nil

	case bytecode.CreateObject:
		ref, err := i.mem.Allocate(nil, ObjectTypeID, i.roots(ctx))
		if err != nil {
			return false, value.Value{}, false, wrapErr(MemoryError, ctx.PC, "create_object", err)
		}
		ctx.Push(value.Object(ref))
		return false, value.Value{}, false, nil

	case bytecode.SetProperty:
		v, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		top, err := ctx.Peek()
		if err != nil {
			return false, value.Value{}, false, err
		}
		ref, ok := top.AsReference()
		if !ok {
			return false, value.Value{}, false, newErr(TypeError, ctx.PC, "set_property on a non-object")
		}
		obj, err := i.mem.GetTyped(ref, ObjectTypeID)
		if err != nil {
			return false, value.Value{}, false, wrapErr(MemoryError, ctx.PC, "set_property", err)
		}
		key, err := i.constantString(instr.Operand(0))
		if err != nil {
			return false, value.Value{}, false, err
		}
		objectSet(obj, key, v)
		return false, value.Value{}, false, nil

	case bytecode.GetProperty:
		v, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		ref, ok := v.AsReference()
		if !ok {
			return false, value.Value{}, false, newErr(TypeError, ctx.PC, "get_property on a non-object")
		}
		obj, err := i.mem.GetTyped(ref, ObjectTypeID)
		if err != nil {
			return false, value.Value{}, false, wrapErr(MemoryError, ctx.PC, "get_property", err)
		}
		key, err := i.constantString(instr.Operand(0))
		if err != nil {
			return false, value.Value{}, false, err
		}
		if fv, ok := objectGet(obj, key); ok {
			ctx.Push(fv)
		} else {
			ctx.Push(value.Null())
		}
		return false, value.Value{}, false, nil

	case bytecode.CreateArray:
		ctx.Push(value.Array(nil))
		return false, value.Value{}, false, nil

	case bytecode.AppendArray:
		v, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		arr, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		elems, ok := arr.AsArray()
		if !ok {
			return false, value.Value{}, false, newErr(TypeError, ctx.PC, "append_array on a non-array")
		}
		grown := make([]value.Value, len(elems)+1)
		copy(grown, elems)
		grown[len(elems)] = v
		ctx.Push(value.Array(grown))
		return false, value.Value{}, false, nil

	case bytecode.NewArray:
		n := int(instr.Operand(0))
		elems := make([]value.Value, n)
		for k := n - 1; k >= 0; k-- {
			v, err := ctx.Pop()
			if err != nil {
				return false, value.Value{}, false, err
			}
			elems[k] = v
		}
		ctx.Push(value.Array(elems))
		return false, value.Value{}, false, nil

	case bytecode.GetElement:
		return false, value.Value{}, false, i.execGetElement(ctx)

	case bytecode.SetElement:
		return false, value.Value{}, false, i.execSetElement(ctx)

	case bytecode.ArrayLength:
		v, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		elems, ok := v.AsArray()
		if !ok {
			return false, value.Value{}, false, newErr(TypeError, ctx.PC, "array_length on a non-array")
		}
		ctx.Push(value.Integer(int64(len(elems))))
		return false, value.Value{}, false, nil

	case bytecode.CreatePromise:
		v, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		handle, err := i.constantString(instr.Operand(0))
		if err != nil {
			return false, value.Value{}, false, err
		}
		i.promises[handle] = &promiseSlot{resolved: true, value: v}
		ctx.Push(value.String(handle))
		return false, value.Value{}, false, nil

	case bytecode.ResolvePromise:
		v, err := ctx.Pop()
		if err != nil {
			return false, value.Value{}, false, err
		}
		handle, err := i.constantString(instr.Operand(0))
		if err != nil {
			return false, value.Value{}, false, err
		}
		i.promises[handle] = &promiseSlot{resolved: true, value: v}
		return false, value.Value{}, false, nil

	case bytecode.AwaitPromise:
		name, err := i.constantString(instr.Operand(0))
		if err != nil {
			return false, value.Value{}, false, err
		}
		ctx.Push(i.awaitVariable(name))
		return false, value.Value{}, false, nil

	case bytecode.HttpCall:
		return false, value.Value{}, false, i.execHttpCall(ctx, instr)

	case bytecode.RegisterEndpoint:
		// Registration itself is a no-op at dispatch time: the
		// compiler already recorded the (method, path, pc range) in
		// Module.Endpoints, which the host reads directly.
		return false, value.Value{}, false, nil

	default:
		return false, value.Value{}, false, newErr(InvalidOperand, ctx.PC, fmt.Sprintf("unknown opcode %s", op))
	}
}

// awaitVariable resolves a promise-typed global: the global holds the
// handle string CreatePromise returned, which indexes the interpreter's
// promise table. An unresolved promise, a missing global, or a string
// global that is not a known handle yields null, per §5's
// synchronous-await rule; a non-string global is returned as it is.
func (i *Interpreter) awaitVariable(name string) value.Value {
	v, ok := i.globals[name]
	if !ok {
		return value.Null()
	}
	handle, ok := v.AsString()
	if !ok {
		return v
	}
	slot, ok := i.promises[handle]
	if !ok || !slot.resolved {
		return value.Null()
	}
	return slot.value
}
