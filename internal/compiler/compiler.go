// Package compiler lowers an analyzed program into a flat bytecode
// module (spec §4.5): symbols in resolution order, then endpoint
// handlers, with a small table of endpoint registrations recorded
// alongside the emitted instructions.
package compiler

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/loaf-lang/loaf/internal/analyzer"
	"github.com/loaf-lang/loaf/internal/bytecode"
	"github.com/loaf-lang/loaf/internal/parser"
)

// Compiler walks a resolved symbol table and emits instructions into a
// single bytecode.Module, mirroring the teacher runtime's one-Chunk-
// per-compile shape rather than splitting handlers into sub-chunks.
type Compiler struct {
	module *bytecode.Module
	st     *analyzer.SymbolTable
	consts map[string]uint32 // string constant interning, keyed by value
}

func NewCompiler(name string) *Compiler {
	return &Compiler{
		module: bytecode.NewModule(name),
		consts: map[string]uint32{},
	}
}

// Compile emits code for every symbol in resolution order followed by
// every endpoint's handler, and returns the finished module.
func Compile(name string, ap *analyzer.AnalyzedProgram) (*bytecode.Module, error) {
	c := NewCompiler(name)
	return c.Compile(ap)
}

func (c *Compiler) Compile(ap *analyzer.AnalyzedProgram) (*bytecode.Module, error) {
	c.st = ap.Symbols

	for _, name := range ap.Order {
		sym := c.st.Symbols[name]
		if err := c.compileExpr(sym.Node); err != nil {
			return nil, err
		}
		c.emit(bytecode.StoreVariable, c.internString(name))
	}

	// Top-level execution (Interpreter.Run, pc 0) must never fall through
	// into a registered handler's body — handlers only ever run via
	// Interpreter.RunHandler, dispatched off mod.Endpoints by a host
	// matching an incoming request. Jump clears the handler region; its
	// target is patched once the final Halt's position is known.
	var guard int
	if len(c.st.Endpoints) > 0 {
		guard = c.module.Emit(bytecode.NewInstruction(bytecode.Jump))
	}

	for _, ep := range c.st.Endpoints {
		start := len(c.module.Instructions)
		if err := c.compileExpr(ep.Handler); err != nil {
			return nil, err
		}
		// Halt, not Return: a handler runs in its own fresh execution
		// context (RunHandler), with no caller-pushed return address on
		// the stack to pop. Halt pops the handler's computed value and
		// ends that context, exactly as it does for top-level execution.
		c.emitBare(bytecode.Halt)
		end := len(c.module.Instructions)

		handlerID := c.internString(ep.Name + ":" + uuid.New().String())
		c.emit(bytecode.RegisterEndpoint, methodCode(ep.Method), c.internString(ep.Path), handlerID)

		c.module.Endpoints = append(c.module.Endpoints, bytecode.EndpointRecord{
			Method:         ep.Method.String(),
			Path:           ep.Path,
			HandlerStartPC: start,
			HandlerEndPC:   end,
		})
	}

	haltPC := len(c.module.Instructions)
	c.emitBare(bytecode.Halt)

	if len(c.st.Endpoints) > 0 {
		c.module.Instructions[guard] = bytecode.NewInstruction(bytecode.Jump).WithOperand(uint32(haltPC))
	}

	return c.module, nil
}

func (c *Compiler) emitBare(op bytecode.OpCode) {
	c.module.Emit(bytecode.NewInstruction(op))
}

func (c *Compiler) emit(op bytecode.OpCode, operands ...uint32) {
	c.module.Emit(bytecode.NewInstruction(op).WithOperands(operands...))
}

// internString deduplicates string constants by value, the way the
// teacher's compiler interns global names into its constant pool.
func (c *Compiler) internString(s string) uint32 {
	if idx, ok := c.consts[s]; ok {
		return idx
	}
	idx := c.module.AddConstant(bytecode.StringConstant(s))
	c.consts[s] = idx
	return idx
}

func methodCode(m parser.HttpMethod) uint32 {
	switch m {
	case parser.MethodGet:
		return 0
	case parser.MethodPost:
		return 1
	case parser.MethodPut:
		return 2
	case parser.MethodDelete:
		return 3
	case parser.MethodPatch:
		return 4
	default:
		return 0
	}
}

func shapeName(n parser.Node) string {
	return fmt.Sprintf("%T", n)
}
