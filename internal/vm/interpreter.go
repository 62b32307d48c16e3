// Package vm implements the stack-based bytecode interpreter: opcode
// dispatch, the exception-handling state machine, and the heap-control
// opcodes bridging into the memory package.
package vm

import (
	"fmt"

	"github.com/loaf-lang/loaf/internal/bytecode"
	"github.com/loaf-lang/loaf/internal/memory"
	"github.com/loaf-lang/loaf/internal/value"
)

// Interpreter runs one bytecode.Module against a shared memory manager.
// Globals (StoreVariable/LoadVariable) and resolved promise handles
// outlive any single ExecutionContext, since endpoint handlers are
// dispatched in fresh contexts that still need to see the module's
// top-level bindings.
type Interpreter struct {
	module   *bytecode.Module
	mem      *memory.MemoryManager
	globals  map[string]value.Value
	promises map[string]*promiseSlot
	cfg      Config
	tracer   Tracer
}

// Tracer observes dispatch when StackTrace is enabled, one call per
// executed instruction. Attaching or detaching a Tracer never affects
// dispatch itself — it is a pure sink, fed just before each instruction
// executes.
type Tracer interface {
	Emit(pc int, opcode string, stackDepth int, heapID uint32)
}

type promiseSlot struct {
	resolved bool
	value    value.Value
}

func NewInterpreter(mod *bytecode.Module, mem *memory.MemoryManager, cfg Config) *Interpreter {
	i := &Interpreter{
		module:   mod,
		mem:      mem,
		globals:  make(map[string]value.Value),
		promises: make(map[string]*promiseSlot),
		cfg:      cfg,
	}
	mem.SetVisitor(objectVisit)
	mem.Configure(cfg.GCThreshold, cfg.GCEnabled)
	return i
}

// AttachTracer wires an optional trace sink (e.g. a debugstream.Sink
// adapter) into the dispatch loop.
func (i *Interpreter) AttachTracer(t Tracer) {
	i.tracer = t
}

// Run executes the module's instructions from pc 0 to completion (Halt
// or a terminal error), using a fresh execution context.
func (i *Interpreter) Run() (value.Value, error) {
	return i.RunFrom(NewExecutionContext(), 0)
}

// RunHandler executes one endpoint's instruction range in a fresh
// execution context, sharing this interpreter's globals.
func (i *Interpreter) RunHandler(startPC int) (value.Value, error) {
	return i.RunFrom(NewExecutionContext(), startPC)
}

func (i *Interpreter) roots(ctx *ExecutionContext) []value.Reference {
	roots := ctx.Roots()
	for _, v := range i.globals {
		if ref, ok := v.AsReference(); ok {
			roots = append(roots, ref)
		}
	}
	return roots
}

// RunFrom drives the dispatch loop. Before every instruction, a pending
// exception is routed to the nearest covering handler frame (§4.7);
// only once nothing is pending does the loop execute the instruction at
// the current PC.
func (i *Interpreter) RunFrom(ctx *ExecutionContext, startPC int) (value.Value, error) {
	ctx.PC = startPC
	for {
		if ctx.Pending() != nil {
			if err := i.propagate(ctx); err != nil {
				return value.Value{}, err
			}
			continue
		}

		if ctx.PC < 0 || ctx.PC >= len(i.module.Instructions) {
			return value.Value{}, newErr(InvalidPC, ctx.PC, fmt.Sprintf("pc %d out of range", ctx.PC))
		}
		instr := i.module.Instructions[ctx.PC]

		if i.cfg.StackTrace {
			fmt.Printf("pc=%d op=%s depth=%d\n", ctx.PC, instr.Opcode, ctx.Depth())
			if i.tracer != nil {
				i.tracer.Emit(ctx.PC, instr.Opcode.String(), ctx.Depth(), i.mem.CurrentHeapID())
			}
		}

		halted, result, jumped, err := i.step(ctx, instr)
		if err != nil {
			vmErr, ok := err.(*VMError)
			if !ok || vmErr.Kind == UnhandledException {
				return value.Value{}, err
			}
			i.raiseVMError(ctx, vmErr)
			continue
		}
		if halted {
			return result, nil
		}
		if !jumped {
			ctx.PC++
		}
	}
}

func (i *Interpreter) constant(idx uint32) (bytecode.Constant, error) {
	if int(idx) >= len(i.module.Constants) {
		return bytecode.Constant{}, newErr(InvalidConstantIndex, -1, fmt.Sprintf("index %d", idx))
	}
	return i.module.Constants[idx], nil
}

func (i *Interpreter) constantValue(idx uint32) (value.Value, error) {
	c, err := i.constant(idx)
	if err != nil {
		return value.Value{}, err
	}
	switch c.Kind {
	case bytecode.ConstNull:
		return value.Null(), nil
	case bytecode.ConstInteger:
		return value.Integer(c.Integer), nil
	case bytecode.ConstFloat:
		return value.Float(c.Float), nil
	case bytecode.ConstString:
		return value.String(c.String), nil
	case bytecode.ConstBoolean:
		return value.Boolean(c.Boolean), nil
	default:
		return value.Value{}, newErr(InvalidConstantIndex, -1, "unknown constant kind")
	}
}

func (i *Interpreter) constantString(idx uint32) (string, error) {
	c, err := i.constant(idx)
	if err != nil {
		return "", err
	}
	if c.Kind != bytecode.ConstString {
		return "", newErr(InvalidOperand, -1, "expected string constant")
	}
	return c.String, nil
}
