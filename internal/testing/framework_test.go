package testing

import (
	"testing"

	"github.com/loaf-lang/loaf/internal/analyzer"
	"github.com/loaf-lang/loaf/internal/parser"
)

func suiteWithTests(symbols map[string]parser.Node, tests []analyzer.TestDescriptor) *Suite {
	st := newTable(symbols)
	st.Tests = tests
	return &Suite{Name: "suite", File: "suite.loaf", Table: st}
}

func TestEvalDescriptorPassesOnStructuralEquality(t *testing.T) {
	suite := suiteWithTests(map[string]parser.Node{"total": num(12)}, []analyzer.TestDescriptor{
		{Name: "total matches", Expect: ident("total"), Expected: num(12)},
	})
	res := evalDescriptor(suite, suite.Table.Tests[0])
	if !res.Passed {
		t.Fatalf("expected test to pass, got %+v", res)
	}
}

func TestEvalDescriptorToleratesEpsilonDrift(t *testing.T) {
	a, b := 0.1, 0.2 // added at run time, so the sum drifts to 0.30000000000000004
	suite := suiteWithTests(nil, []analyzer.TestDescriptor{
		{Name: "float close enough", Expect: num(a + b), Expected: num(0.3)},
	})
	res := evalDescriptor(suite, suite.Table.Tests[0])
	if !res.Passed {
		t.Fatalf("expected epsilon-tolerant equality to pass, got %+v", res)
	}
}

func TestEvalDescriptorRegexMatch(t *testing.T) {
	suite := suiteWithTests(nil, []analyzer.TestDescriptor{
		{Name: "greeting matches pattern", Expect: str("hello world"), Expected: str("^hello"), Regex: true},
	})
	res := evalDescriptor(suite, suite.Table.Tests[0])
	if !res.Passed {
		t.Fatalf("expected regex match to pass, got %+v", res)
	}
}

func TestEvalDescriptorRegexMismatchFails(t *testing.T) {
	suite := suiteWithTests(nil, []analyzer.TestDescriptor{
		{Name: "greeting fails pattern", Expect: str("goodbye"), Expected: str("^hello"), Regex: true},
	})
	res := evalDescriptor(suite, suite.Table.Tests[0])
	if !res.Failed {
		t.Fatalf("expected regex mismatch to fail, got %+v", res)
	}
}

func TestEvalDescriptorInputBindingOverridesSymbol(t *testing.T) {
	suite := suiteWithTests(map[string]parser.Node{"x": num(1)}, []analyzer.TestDescriptor{
		{Name: "x honors input binding", Expect: ident("x"), Expected: num(99), Inputs: map[string]parser.Node{"x": num(99)}},
	})
	res := evalDescriptor(suite, suite.Table.Tests[0])
	if !res.Passed {
		t.Fatalf("expected input-bound x to equal 99, got %+v", res)
	}
}

func TestEvalDescriptorUnsupportedConstructFails(t *testing.T) {
	suite := suiteWithTests(nil, []analyzer.TestDescriptor{
		{Name: "promise is not literal", Expect: &parser.Promise{Expr: num(1)}, Expected: num(1)},
	})
	res := evalDescriptor(suite, suite.Table.Tests[0])
	if !res.Failed {
		t.Fatalf("expected evaluation of a promise expression to fail, got %+v", res)
	}
	if _, ok := res.Error.(*EvalError); !ok {
		t.Fatalf("expected *EvalError, got %T", res.Error)
	}
}

func TestEvalDescriptorCarriesLineAndMatchKindIntoResult(t *testing.T) {
	suite := suiteWithTests(nil, []analyzer.TestDescriptor{
		{Name: "greeting matches pattern", Expect: str("hello world"), Expected: str("^hello"), Regex: true, Line: 7},
	})
	res := evalDescriptor(suite, suite.Table.Tests[0])
	if res.Line != 7 {
		t.Fatalf("expected result to carry descriptor line 7, got %d", res.Line)
	}
	if !res.Regex {
		t.Fatalf("expected result to carry descriptor's regex flag")
	}
}

func TestRunnerAggregatesStatsAcrossSuites(t *testing.T) {
	suite := suiteWithTests(map[string]parser.Node{"total": num(12)}, []analyzer.TestDescriptor{
		{Name: "pass", Expect: ident("total"), Expected: num(12)},
		{Name: "fail", Expect: ident("total"), Expected: num(13)},
	})

	runner := NewTestRunner(&TestConfig{OutputFormat: "json"})
	runner.AddSuite(suite)
	stats := runner.Run()

	if stats.TotalTests != 2 || stats.PassedTests != 1 || stats.FailedTests != 1 {
		t.Fatalf("expected 2 total/1 passed/1 failed, got %+v", stats)
	}
}
