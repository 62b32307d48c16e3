package vm

import (
	"strings"
	"testing"

	"github.com/loaf-lang/loaf/internal/analyzer"
	"github.com/loaf-lang/loaf/internal/bytecode"
	"github.com/loaf-lang/loaf/internal/compiler"
	"github.com/loaf-lang/loaf/internal/memory"
	"github.com/loaf-lang/loaf/internal/parser"
	"github.com/loaf-lang/loaf/internal/value"
)

func compileSource(t *testing.T, src string) *bytecode.Module {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ap, err := analyzer.Analyze(prog)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	mod, err := compiler.Compile("test", ap)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return mod
}

// TestRunSkipsOverRegisteredEndpointHandlers confirms the compiler's
// guard jump keeps top-level execution (pc 0) from ever falling through
// into a handler body: a program with one assignment and one endpoint
// should run to completion with x bound to 1 and halt on the empty stack
// StoreVariable leaves behind (a null result), never reaching the
// handler's own Halt on 2.
func TestRunSkipsOverRegisteredEndpointHandlers(t *testing.T) {
	mod := compileSource(t, "x = 1\nendpoint getUser GET \"/users\" => 2")

	it := newInterp(mod)
	result, err := it.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsNull() {
		t.Fatalf("expected top-level run to halt on an empty stack (null), got %v", result)
	}
	got, ok := it.globals["x"].AsInteger()
	if !ok || got != 1 {
		t.Fatalf("expected global x bound to 1, got %v", it.globals["x"])
	}
}

// TestRunHandlerExecutesRegisteredEndpointInIsolation exercises the
// only correct invocation path for an endpoint handler: a fresh
// execution context started at the handler's own start pc, completely
// independent of whatever the top-level program computed.
func TestRunHandlerExecutesRegisteredEndpointInIsolation(t *testing.T) {
	mod := compileSource(t, "x = 1\nendpoint getUser GET \"/users\" => 2")

	if len(mod.Endpoints) != 1 {
		t.Fatalf("expected one endpoint record, got %d", len(mod.Endpoints))
	}

	it := newInterp(mod)
	result, err := it.RunHandler(mod.Endpoints[0].HandlerStartPC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := result.AsInteger()
	if !ok || got != 2 {
		t.Fatalf("expected handler result 2, got %v", result)
	}
}

func newInterp(mod *bytecode.Module) *Interpreter {
	return NewInterpreter(mod, memory.NewMemoryManager(), DefaultConfig())
}

type recordingTracer struct {
	calls int
}

func (t *recordingTracer) Emit(pc int, opcode string, stackDepth int, heapID uint32) {
	t.calls++
}

// TestAttachedTracerObservesEveryInstructionWhenStackTraceEnabled pins
// down that, with the stack_trace knob on, an attached Tracer fires once
// per executed instruction.
func TestAttachedTracerObservesEveryInstructionWhenStackTraceEnabled(t *testing.T) {
	mod := bytecode.NewModule("traced")
	one := mod.AddConstant(bytecode.IntegerConstant(1))
	mod.Emit(bytecode.NewInstruction(bytecode.Push).WithOperand(one))
	mod.Emit(bytecode.NewInstruction(bytecode.Halt))

	cfg := DefaultConfig()
	cfg.StackTrace = true
	it := NewInterpreter(mod, memory.NewMemoryManager(), cfg)
	tracer := &recordingTracer{}
	it.AttachTracer(tracer)

	if _, err := it.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracer.calls != 2 {
		t.Fatalf("expected 2 traced instructions, got %d", tracer.calls)
	}
}

// TestArithmeticDivisionLeavesRemainderBeneathQuotient exercises the raw
// bytecode contract directly: Push 10, Push 3, Div, Halt should leave
// the quotient on top with the remainder one slot beneath it, and Halt
// only ever reports the top.
func TestArithmeticDivisionLeavesRemainderBeneathQuotient(t *testing.T) {
	mod := bytecode.NewModule("div")
	ten := mod.AddConstant(bytecode.IntegerConstant(10))
	three := mod.AddConstant(bytecode.IntegerConstant(3))
	mod.Emit(bytecode.NewInstruction(bytecode.Push).WithOperand(ten))
	mod.Emit(bytecode.NewInstruction(bytecode.Push).WithOperand(three))
	mod.Emit(bytecode.NewInstruction(bytecode.Div))
	mod.Emit(bytecode.NewInstruction(bytecode.Halt))

	it := newInterp(mod)
	ctx := NewExecutionContext()
	result, err := it.RunFrom(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := result.AsInteger()
	if !ok || got != 3 {
		t.Fatalf("expected quotient 3 on top of stack, got %v", result)
	}
	rem, err := ctx.Pop()
	if err != nil {
		t.Fatalf("expected the remainder beneath the quotient, got %v", err)
	}
	if r, ok := rem.AsInteger(); !ok || r != 1 {
		t.Fatalf("expected remainder 1 beneath the quotient, got %v", rem)
	}
}

// TestDivisionByZeroWithNoHandlerIsUnhandled checks that an uncaught
// division-by-zero (no surrounding try/catch) is consumed by the
// dispatch loop as a pending exception per §4.6, finds no covering
// handler, and therefore terminates as UnhandledException rather than
// surfacing the raw DivisionByZero kind directly.
func TestDivisionByZeroWithNoHandlerIsUnhandled(t *testing.T) {
	mod := bytecode.NewModule("divzero")
	one := mod.AddConstant(bytecode.IntegerConstant(1))
	zero := mod.AddConstant(bytecode.IntegerConstant(0))
	mod.Emit(bytecode.NewInstruction(bytecode.Push).WithOperand(one))
	mod.Emit(bytecode.NewInstruction(bytecode.Push).WithOperand(zero))
	mod.Emit(bytecode.NewInstruction(bytecode.Div))
	mod.Emit(bytecode.NewInstruction(bytecode.Halt))

	it := newInterp(mod)
	_, err := it.Run()
	vmErr, ok := err.(*VMError)
	if !ok {
		t.Fatalf("expected *VMError, got %T (%v)", err, err)
	}
	if vmErr.Kind != UnhandledException {
		t.Fatalf("expected UnhandledException, got %v", kindName(vmErr.Kind))
	}
	if !strings.Contains(vmErr.Reason, "DivisionByZero") {
		t.Fatalf("expected reason to name the exception type, got %q", vmErr.Reason)
	}
}

// TestExceptionCaughtAndFinalized mirrors the "try whose body divides by
// zero; catch observes the exception; finally always runs" scenario.
// Layout (instruction indices):
//
//	0: TryBlock(catch=4, finally=7, end=9)
//	1: Push 1
//	2: Push 0
//	3: Div            -- raises DivisionByZero, propagates to pc 4
//	4: CatchBlock
//	5: Pop            -- discard the pushed exception value
//	6: Jump 7
//	7: FinallyBlock
//	8: EndTry
//	9: Push <marker>
//	10: Halt
func TestExceptionCaughtAndFinalized(t *testing.T) {
	mod := bytecode.NewModule("trycatch")
	one := mod.AddConstant(bytecode.IntegerConstant(1))
	zero := mod.AddConstant(bytecode.IntegerConstant(0))
	marker := mod.AddConstant(bytecode.IntegerConstant(42))

	mod.Emit(bytecode.NewInstruction(bytecode.TryBlock).WithOperands(4, 7, 9))
	mod.Emit(bytecode.NewInstruction(bytecode.Push).WithOperand(one))
	mod.Emit(bytecode.NewInstruction(bytecode.Push).WithOperand(zero))
	mod.Emit(bytecode.NewInstruction(bytecode.Div))
	mod.Emit(bytecode.NewInstruction(bytecode.CatchBlock))
	mod.Emit(bytecode.NewInstruction(bytecode.Pop))
	mod.Emit(bytecode.NewInstruction(bytecode.Jump).WithOperand(7))
	mod.Emit(bytecode.NewInstruction(bytecode.FinallyBlock))
	mod.Emit(bytecode.NewInstruction(bytecode.EndTry))
	mod.Emit(bytecode.NewInstruction(bytecode.Push).WithOperand(marker))
	mod.Emit(bytecode.NewInstruction(bytecode.Halt))

	it := newInterp(mod)
	result, err := it.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := result.AsInteger()
	if !ok || got != 42 {
		t.Fatalf("expected execution to reach the marker push, got %v", result)
	}
}

// TestUnhandledExceptionIsTerminal verifies a Throw with no covering
// handler surfaces as the UnhandledException kind instead of silently
// falling off the end of the program.
func TestUnhandledExceptionIsTerminal(t *testing.T) {
	mod := bytecode.NewModule("unhandled")
	msg := mod.AddConstant(bytecode.StringConstant("boom"))
	mod.Emit(bytecode.NewInstruction(bytecode.Push).WithOperand(msg))
	mod.Emit(bytecode.NewInstruction(bytecode.Throw))
	mod.Emit(bytecode.NewInstruction(bytecode.Halt))

	it := newInterp(mod)
	_, err := it.Run()
	vmErr, ok := err.(*VMError)
	if !ok {
		t.Fatalf("expected *VMError, got %T (%v)", err, err)
	}
	if vmErr.Kind != UnhandledException {
		t.Fatalf("expected UnhandledException, got %v", kindName(vmErr.Kind))
	}
}

// TestLoadLocalFailsWhenSlotNeverExtended follows §4.6's explicit
// opcode-level contract over §3's looser "sparse, defaults to null"
// framing: reading a local slot that StoreLocal never touched raises
// InvalidLocalIndex, which with no surrounding handler terminates the
// run as an unhandled exception.
func TestLoadLocalFailsWhenSlotNeverExtended(t *testing.T) {
	mod := bytecode.NewModule("localfail")
	mod.Emit(bytecode.NewInstruction(bytecode.LoadLocal).WithOperand(0))
	mod.Emit(bytecode.NewInstruction(bytecode.Halt))

	it := newInterp(mod)
	_, err := it.Run()
	vmErr, ok := err.(*VMError)
	if !ok {
		t.Fatalf("expected *VMError, got %T (%v)", err, err)
	}
	if vmErr.Kind != UnhandledException {
		t.Fatalf("expected UnhandledException, got %v", kindName(vmErr.Kind))
	}
	if !strings.Contains(vmErr.Reason, "InvalidLocalIndex") {
		t.Fatalf("expected reason to name the exception type, got %q", vmErr.Reason)
	}
}

// TestLoadLocalCaughtByTryBlock confirms the same failure is catchable
// when a handler does cover it, completing the loop from the other
// direction: a dispatch-loop error is just another path into pending.
func TestLoadLocalCaughtByTryBlock(t *testing.T) {
	mod := bytecode.NewModule("localcaught")
	marker := mod.AddConstant(bytecode.IntegerConstant(7))

	mod.Emit(bytecode.NewInstruction(bytecode.TryBlock).WithOperands(2, noTarget, 4))
	mod.Emit(bytecode.NewInstruction(bytecode.LoadLocal).WithOperand(0))
	mod.Emit(bytecode.NewInstruction(bytecode.CatchBlock))
	mod.Emit(bytecode.NewInstruction(bytecode.Pop))
	mod.Emit(bytecode.NewInstruction(bytecode.EndTry))
	mod.Emit(bytecode.NewInstruction(bytecode.Push).WithOperand(marker))
	mod.Emit(bytecode.NewInstruction(bytecode.Halt))

	it := newInterp(mod)
	result, err := it.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := result.AsInteger()
	if !ok || got != 7 {
		t.Fatalf("expected execution to reach the marker push, got %v", result)
	}
}

// TestObjectRoundTripsThroughCreateAndGetProperty exercises heap
// allocation via CreateObject/SetProperty/GetProperty end to end.
func TestObjectRoundTripsThroughCreateAndGetProperty(t *testing.T) {
	mod := bytecode.NewModule("object")
	keyName := mod.AddConstant(bytecode.StringConstant("name"))
	val := mod.AddConstant(bytecode.StringConstant("loaf"))

	mod.Emit(bytecode.NewInstruction(bytecode.CreateObject))
	mod.Emit(bytecode.NewInstruction(bytecode.Push).WithOperand(val))
	mod.Emit(bytecode.NewInstruction(bytecode.SetProperty).WithOperand(keyName))
	mod.Emit(bytecode.NewInstruction(bytecode.GetProperty).WithOperand(keyName))
	mod.Emit(bytecode.NewInstruction(bytecode.Halt))

	it := newInterp(mod)
	result, err := it.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := result.AsString()
	if !ok || got != "loaf" {
		t.Fatalf("expected field value %q, got %v", "loaf", result)
	}
}

// TestGetPropertyRejectsReferenceWithWrongTypeID confirms GetProperty
// dereferences through MemoryManager.GetTyped rather than the untyped
// Get: a reference into an object allocated under some other type id
// must fail with a wrapped type-mismatch error, not silently read the
// payload as if it were field pairs. The instruction is executed with
// step directly: RunFrom would turn the MemoryError into a pending
// exception and end the run as UnhandledException.
func TestGetPropertyRejectsReferenceWithWrongTypeID(t *testing.T) {
	mod := bytecode.NewModule("typemismatch")
	keyName := mod.AddConstant(bytecode.StringConstant("name"))
	mod.Emit(bytecode.NewInstruction(bytecode.GetProperty).WithOperand(keyName))
	mod.Emit(bytecode.NewInstruction(bytecode.Halt))

	mem := memory.NewMemoryManager()
	ref, err := mem.Allocate(nil, ObjectTypeID+1, nil)
	if err != nil {
		t.Fatalf("unexpected allocate error: %v", err)
	}

	it := NewInterpreter(mod, mem, DefaultConfig())
	ctx := NewExecutionContext()
	ctx.Push(value.Object(ref))
	_, _, _, err = it.step(ctx, mod.Instructions[0])
	vmErr, ok := err.(*VMError)
	if !ok {
		t.Fatalf("expected *VMError, got %T (%v)", err, err)
	}
	if vmErr.Kind != MemoryError {
		t.Fatalf("expected MemoryError, got %v", kindName(vmErr.Kind))
	}
	if !strings.Contains(vmErr.Error(), "type mismatch") {
		t.Fatalf("expected type-mismatch cause in error, got %q", vmErr.Error())
	}
}

// TestCollectHeapFreesUnreachableObjects drives the GC path directly:
// allocate two objects, drop references to one of them from the stack,
// and confirm CollectHeap only frees the unreachable one.
func TestCollectHeapFreesUnreachableObjects(t *testing.T) {
	mod := bytecode.NewModule("gc")
	mod.Emit(bytecode.NewInstruction(bytecode.CreateObject))
	mod.Emit(bytecode.NewInstruction(bytecode.CreateObject))
	mod.Emit(bytecode.NewInstruction(bytecode.Pop)) // drop the second object
	mod.Emit(bytecode.NewInstruction(bytecode.CollectHeap).WithOperand(1))
	mod.Emit(bytecode.NewInstruction(bytecode.Halt))

	mem := memory.NewMemoryManager()
	it := NewInterpreter(mod, mem, DefaultConfig())
	result, err := it.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	survivor, ok := result.AsReference()
	if !ok {
		t.Fatalf("expected the surviving object reference on top of stack, got %v", result)
	}
	if _, err := mem.Get(survivor); err != nil {
		t.Fatalf("expected the reachable object to survive collection, got %v", err)
	}
	if _, err := mem.Get(value.NewReference(1, 2)); err == nil {
		t.Fatalf("expected the unreachable second object to be freed")
	}
}
