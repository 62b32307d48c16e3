package vm

import (
	"fmt"

	"github.com/loaf-lang/loaf/internal/value"
)

// propagate implements §4.7's propagation rule: search the handler
// stack newest-to-oldest for a frame whose EndPC covers the current PC.
// When found, the stack is truncated to the frame's captured depth, a
// catch frame's exception is pushed, and the PC jumps to handler_pc.
// When nothing covers it, the run terminates as an unhandled exception.
func (i *Interpreter) propagate(ctx *ExecutionContext) error {
	frame, idx, ok := ctx.FindHandler(ctx.PC)
	if !ok {
		exc := ctx.Pending()
		return newErr(UnhandledException, ctx.PC, unhandledMessage(exc))
	}

	ctx.DropHandlersFrom(idx)
	ctx.Truncate(frame.CapturedStackDepth)

	if frame.Kind == HandlerCatch {
		exc := ctx.Pending()
		ctx.Push(value.ExceptionValue(exc))
		ctx.ClearPending()
	}

	ctx.PC = frame.HandlerPC
	return nil
}

// raise constructs a runtime exception from a thrown value per §4.7's
// conversion rules and stores it pending.
func (i *Interpreter) raise(ctx *ExecutionContext, thrown value.Value) {
	var exc *value.Exception
	switch thrown.Kind() {
	case value.KindString:
		s, _ := thrown.AsString()
		exc = &value.Exception{Type: "Error", Message: s}
	case value.KindArray:
		arr, _ := thrown.AsArray()
		typ := "Error"
		msg := thrown.String()
		if len(arr) >= 2 {
			if t, ok := arr[0].AsString(); ok {
				typ = t
			}
			msg = arr[1].String()
		}
		exc = &value.Exception{Type: typ, Message: msg}
	case value.KindException:
		exc, _ = thrown.AsException()
	default:
		exc = &value.Exception{Type: "Error", Message: thrown.String()}
	}
	exc.AppendFrame(ctx.PC, i.module.Name)
	ctx.SetPending(exc)
}

// raiseVMError converts a dispatch-loop failure into a pending exception
// instead of a terminal Go error, per §4.6's "errors consumed by the
// dispatch loop" list: a try/catch protecting the faulting instruction
// gets a chance to handle it, same as an explicit Throw would.
// UnhandledException itself is never passed here — propagate already
// produces that as the final, truly terminal outcome.
func (i *Interpreter) raiseVMError(ctx *ExecutionContext, vmErr *VMError) {
	msg := vmErr.Reason
	if msg == "" {
		msg = kindName(vmErr.Kind)
	}
	exc := &value.Exception{Type: typeName(vmErr.Kind), Message: msg}
	exc.AppendFrame(ctx.PC, i.module.Name)
	ctx.SetPending(exc)
}

func (i *Interpreter) execThrow(ctx *ExecutionContext) error {
	v, err := ctx.Pop()
	if err != nil {
		return err
	}
	i.raise(ctx, v)
	return nil
}

func (i *Interpreter) execRethrow(ctx *ExecutionContext) error {
	exc := ctx.Pending()
	if exc == nil {
		return newErr(RuntimeError, ctx.PC, "rethrow with no pending exception")
	}
	exc.AppendFrame(ctx.PC, i.module.Name)
	return nil
}

// execTryBlock pushes up to two handler frames in §4.7's documented
// order: the finally frame first, then the catch frame. When both
// exist, the catch frame's end_pc is the finally's handler_pc so control
// always passes through the finally on the way out of a caught error.
func (i *Interpreter) execTryBlock(ctx *ExecutionContext, catchPC, finallyPC, endPC uint32) {
	hasFinally := finallyPC != noTarget
	hasCatch := catchPC != noTarget

	if hasFinally {
		ctx.PushHandler(HandlerFrame{
			Kind:               HandlerFinally,
			HandlerPC:          int(finallyPC),
			EndPC:              int(endPC),
			CapturedStackDepth: ctx.Depth(),
		})
	}
	if hasCatch {
		catchEnd := int(endPC)
		if hasFinally {
			catchEnd = int(finallyPC)
		}
		ctx.PushHandler(HandlerFrame{
			Kind:               HandlerCatch,
			HandlerPC:          int(catchPC),
			EndPC:              catchEnd,
			CapturedStackDepth: ctx.Depth(),
		})
	}
}

// noTarget marks an absent catch/finally PC operand (TryBlock always
// carries three operands; the compiler fills an absent branch with this
// sentinel rather than overloading zero, a legitimate instruction index).
const noTarget uint32 = 0xFFFFFFFF

func unhandledMessage(exc *value.Exception) string {
	return fmt.Sprintf("%s: %s", exc.Type, exc.Message)
}
