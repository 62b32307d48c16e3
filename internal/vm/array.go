package vm

import "github.com/loaf-lang/loaf/internal/value"

// execGetElement pops (array, index) and pushes the element, raising
// IndexOutOfBounds for a negative or too-large index rather than
// silently returning null — arrays are bounds-checked, objects are not.
func (i *Interpreter) execGetElement(ctx *ExecutionContext) error {
	idxVal, err := ctx.Pop()
	if err != nil {
		return err
	}
	arrVal, err := ctx.Pop()
	if err != nil {
		return err
	}
	idx, ok := idxVal.AsInteger()
	if !ok {
		return newErr(TypeError, ctx.PC, "get_element index must be an integer")
	}

	if s, ok := arrVal.AsString(); ok {
		if idx < 0 || idx >= int64(len(s)) {
			return newErr(IndexOutOfBounds, ctx.PC, "")
		}
		ctx.Push(value.String(string(s[idx])))
		return nil
	}

	elems, ok := arrVal.AsArray()
	if !ok {
		return newErr(TypeError, ctx.PC, "get_element on a non-array")
	}
	if idx < 0 || idx >= int64(len(elems)) {
		return newErr(IndexOutOfBounds, ctx.PC, "")
	}
	ctx.Push(elems[idx])
	return nil
}

// execSetElement pops (array, index, value), pushing back the array with
// that index replaced. Arrays are immutable value-copies on the Go side,
// so the result is a fresh slice rather than an in-place mutation.
func (i *Interpreter) execSetElement(ctx *ExecutionContext) error {
	v, err := ctx.Pop()
	if err != nil {
		return err
	}
	idxVal, err := ctx.Pop()
	if err != nil {
		return err
	}
	arrVal, err := ctx.Pop()
	if err != nil {
		return err
	}
	elems, ok := arrVal.AsArray()
	if !ok {
		return newErr(TypeError, ctx.PC, "set_element on a non-array")
	}
	idx, ok := idxVal.AsInteger()
	if !ok {
		return newErr(TypeError, ctx.PC, "set_element index must be an integer")
	}
	if idx < 0 || idx >= int64(len(elems)) {
		return newErr(IndexOutOfBounds, ctx.PC, "")
	}
	updated := make([]value.Value, len(elems))
	copy(updated, elems)
	updated[idx] = v
	ctx.Push(value.Array(updated))
	return nil
}
