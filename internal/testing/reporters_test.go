package testing

import "testing"

func TestJUnitReporterTagsRegexFailuresDistinctly(t *testing.T) {
	suite := &Suite{Name: "suite"}
	suite.Results = []TestResult{
		{Name: "pattern check", Failed: true, Regex: true, Message: "no match"},
		{Name: "value check", Failed: true, Regex: false, Message: "not equal"},
	}

	r := NewJUnitReporter()
	r.EndSuite(suite)

	if len(r.testSuites) != 1 {
		t.Fatalf("expected one junit testsuite, got %d", len(r.testSuites))
	}
	cases := r.testSuites[0].TestCases
	if len(cases) != 2 {
		t.Fatalf("expected two testcases, got %d", len(cases))
	}
	if cases[0].Failure.Type != "RegexMismatch" {
		t.Fatalf("expected regex descriptor to fail as RegexMismatch, got %q", cases[0].Failure.Type)
	}
	if cases[1].Failure.Type != "AssertionError" {
		t.Fatalf("expected equality descriptor to fail as AssertionError, got %q", cases[1].Failure.Type)
	}
}

func TestJSONReporterRecordsMatchKindAndLine(t *testing.T) {
	r := NewJSONReporter()
	r.TestPassed(TestResult{Name: "a", File: "f.loaf", Line: 3, Regex: true})
	r.TestFailed(TestResult{Name: "b", File: "f.loaf", Line: 9, Regex: false})

	if len(r.results) != 2 {
		t.Fatalf("expected two recorded results, got %d", len(r.results))
	}
	if r.results[0].Match != "regex" || r.results[0].Line != 3 {
		t.Fatalf("expected regex match kind and line 3, got %+v", r.results[0])
	}
	if r.results[1].Match != "equality" || r.results[1].Line != 9 {
		t.Fatalf("expected equality match kind and line 9, got %+v", r.results[1])
	}
}
