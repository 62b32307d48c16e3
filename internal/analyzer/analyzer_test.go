package analyzer

import (
	"testing"

	"github.com/loaf-lang/loaf/internal/parser"
)

func mustParse(t *testing.T, src string) *parser.Program {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	return prog
}

func TestDependencyOrderingOfLiteralRecord(t *testing.T) {
	prog := mustParse(t, `record = { a: 1, b: 2, c: 3 }`)
	ap, err := Analyze(prog)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a", "b", "c", "record"} {
		sym, ok := ap.Symbols.GetSymbol(name)
		if !ok {
			t.Fatalf("expected symbol %q", name)
		}
		if !sym.Resolved {
			t.Fatalf("expected %q resolved", name)
		}
	}
	for _, name := range []string{"a", "b", "c"} {
		if len(ap.Symbols.Symbols[name].Dependencies) != 0 {
			t.Fatalf("expected %q to have no dependencies", name)
		}
	}
	if len(ap.Symbols.Endpoints) != 0 || len(ap.Symbols.Tests) != 0 {
		t.Fatal("expected zero endpoints and zero tests")
	}
}

func TestPromisePropagation(t *testing.T) {
	prog := mustParse(t, "user_data = promise(fetchUser())\nwelcome = user_data")
	ap, err := Analyze(prog)
	if err != nil {
		t.Fatal(err)
	}
	userData := ap.Symbols.Symbols["user_data"]
	if !userData.Type.IsPromise() {
		t.Fatalf("expected user_data to be a promise, got %s", userData.Type)
	}
	welcome := ap.Symbols.Symbols["welcome"]
	if !welcome.Type.IsPromise() {
		t.Fatalf("expected welcome to be promoted to a promise, got %s", welcome.Type)
	}
}

func TestCircularDependencyDetection(t *testing.T) {
	prog := mustParse(t, "a = b\nb = c\nc = a")
	_, err := Analyze(prog)
	if err == nil {
		t.Fatal("expected circular dependency error")
	}
	aerr, ok := err.(*AnalyzerError)
	if !ok || aerr.Kind != CircularDependency {
		t.Fatalf("expected CircularDependency error, got %v", err)
	}
	if len(aerr.Names) != 3 {
		t.Fatalf("expected all 3 symbols in cycle payload, got %v", aerr.Names)
	}
}

func TestUndefinedSymbol(t *testing.T) {
	prog := mustParse(t, "x = y")
	_, err := Analyze(prog)
	if err == nil {
		t.Fatal("expected undefined symbol error")
	}
	aerr := err.(*AnalyzerError)
	if aerr.Kind != UndefinedSymbol || aerr.Name != "y" {
		t.Fatalf("unexpected error: %+v", aerr)
	}
}

func TestDuplicateEndpoint(t *testing.T) {
	prog := mustParse(t, `endpoint getUser GET "/users" => 1
endpoint listUsers GET "/users" => 2`)
	_, err := Analyze(prog)
	if err == nil {
		t.Fatal("expected duplicate endpoint error")
	}
	if aerr, ok := err.(*AnalyzerError); !ok || aerr.Kind != DuplicateEndpoint {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPropagationIdempotent(t *testing.T) {
	prog := mustParse(t, "user_data = promise(fetchUser())\nwelcome = user_data")
	ap, err := Analyze(prog)
	if err != nil {
		t.Fatal(err)
	}
	before := ap.Symbols.Symbols["welcome"].Type.String()
	a := New()
	a.propagate(ap.Symbols, ap.Order)
	after := ap.Symbols.Symbols["welcome"].Type.String()
	if before != after {
		t.Fatalf("propagation not idempotent: %q vs %q", before, after)
	}
}
