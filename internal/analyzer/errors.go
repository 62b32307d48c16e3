package analyzer

import "fmt"

type ErrorKind int

const (
	CircularDependency ErrorKind = iota
	UndefinedSymbol
	TypeError
	DuplicateEndpoint
)

// AnalyzerError is the error taxonomy §7 assigns to the analyzer:
// circular-dependency (names), undefined-symbol (name + line),
// type-error (expected, found, line), duplicate-endpoint
// (name, method, path, line).
type AnalyzerError struct {
	Kind     ErrorKind
	Names    []string
	Name     string
	Line     int
	Expected string
	Found    string
	Method   string
	Path     string
}

func (e *AnalyzerError) Error() string {
	switch e.Kind {
	case CircularDependency:
		return fmt.Sprintf("circular dependency among symbols %v", e.Names)
	case UndefinedSymbol:
		return fmt.Sprintf("line %d: undefined symbol %q", e.Line, e.Name)
	case TypeError:
		return fmt.Sprintf("line %d: type error: expected %s, found %s", e.Line, e.Expected, e.Found)
	case DuplicateEndpoint:
		return fmt.Sprintf("line %d: duplicate endpoint %s %s (symbol %q)", e.Line, e.Method, e.Path, e.Name)
	default:
		return "analyzer error"
	}
}

func errCircular(names []string) error {
	return &AnalyzerError{Kind: CircularDependency, Names: names}
}

func errUndefined(name string, line int) error {
	return &AnalyzerError{Kind: UndefinedSymbol, Name: name, Line: line}
}

func errDuplicateEndpoint(name, method, path string, line int) error {
	return &AnalyzerError{Kind: DuplicateEndpoint, Name: name, Method: method, Path: path, Line: line}
}
