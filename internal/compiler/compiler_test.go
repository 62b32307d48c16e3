package compiler

import (
	"testing"

	"github.com/loaf-lang/loaf/internal/analyzer"
	"github.com/loaf-lang/loaf/internal/bytecode"
	"github.com/loaf-lang/loaf/internal/parser"
)

func mustCompile(t *testing.T, src string) *bytecode.Module {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	ap, err := analyzer.Analyze(prog)
	if err != nil {
		t.Fatal(err)
	}
	mod, err := Compile("test", ap)
	if err != nil {
		t.Fatal(err)
	}
	return mod
}

func TestCompileLiteralAssignment(t *testing.T) {
	mod := mustCompile(t, "x = 42")
	var storedX bool
	for i, instr := range mod.Instructions {
		if instr.Opcode == bytecode.StoreVariable {
			if mod.Constants[instr.Operand(0)].String == "x" {
				storedX = true
				if mod.Instructions[i-1].Opcode != bytecode.LoadConstant {
					t.Fatalf("expected LoadConstant immediately before StoreVariable x")
				}
			}
		}
	}
	if !storedX {
		t.Fatal("expected a StoreVariable for x")
	}
}

func TestCompileDivideDropsRemainder(t *testing.T) {
	mod := mustCompile(t, "x = 10 / 3")
	foundDiv := false
	for i, instr := range mod.Instructions {
		if instr.Opcode == bytecode.Div {
			foundDiv = true
			if mod.Instructions[i+1].Opcode != bytecode.Swap || mod.Instructions[i+2].Opcode != bytecode.Pop {
				t.Fatal("expected Swap+Pop immediately after Div to discard the remainder")
			}
		}
	}
	if !foundDiv {
		t.Fatal("expected a Div instruction")
	}
}

func TestCompileObjectEmitsSetPropertyPerField(t *testing.T) {
	mod := mustCompile(t, "point = { x: 1, y: 2 }")
	count := 0
	for _, instr := range mod.Instructions {
		if instr.Opcode == bytecode.SetProperty {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected 2 SetProperty instructions, got %d", count)
	}
}

func TestCompileEndpointEmitsRegisterEndpoint(t *testing.T) {
	mod := mustCompile(t, `endpoint getUser GET "/users" => 1`)
	found := false
	for _, instr := range mod.Instructions {
		if instr.Opcode == bytecode.RegisterEndpoint {
			found = true
			if mod.Constants[instr.Operand(1)].String != "/users" {
				t.Fatal("expected path constant /users on RegisterEndpoint")
			}
		}
	}
	if !found {
		t.Fatal("expected a RegisterEndpoint instruction")
	}
	if len(mod.Endpoints) != 1 {
		t.Fatalf("expected one endpoint record, got %d", len(mod.Endpoints))
	}
}

func TestCompilePromiseIdentifierUsesAwaitPromise(t *testing.T) {
	mod := mustCompile(t, "user_data = promise(fetchUser())\nwelcome = user_data")
	found := false
	for _, instr := range mod.Instructions {
		if instr.Opcode == bytecode.AwaitPromise {
			found = true
		}
	}
	if !found {
		t.Fatal("expected AwaitPromise when reading a promise-typed identifier")
	}
}
