// Package testing implements the test engine (§4.9) on top of the
// teacher's reporter architecture: test descriptors collected by the
// analyzer are evaluated purely over their program's resolved symbol
// table, with no VM or heap involved.
package testing

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kr/pretty"
	"golang.org/x/sync/errgroup"

	"github.com/loaf-lang/loaf/internal/analyzer"
)

// TestResult represents the outcome of evaluating one test descriptor.
type TestResult struct {
	Name     string
	File     string
	Line     int
	Regex    bool
	Passed   bool
	Failed   bool
	Skipped  bool
	Duration time.Duration
	Error    error
	Message  string
}

// Suite bundles one analyzed program's test descriptors with the
// symbol table they're evaluated against.
type Suite struct {
	Name      string
	File      string
	Table     *analyzer.SymbolTable
	Results   []TestResult
	StartTime time.Time
	EndTime   time.Time
}

// TestConfig holds configuration for test execution.
type TestConfig struct {
	Verbose      bool
	Parallel     bool
	Filter       string
	FailFast     bool
	OutputFormat string // "text", "json", "junit"
}

// TestStats tracks overall test statistics.
type TestStats struct {
	TotalTests   int
	PassedTests  int
	FailedTests  int
	SkippedTests int
	TotalTime    time.Duration
	Suites       int
}

// TestReporter is the interface every output format implements.
type TestReporter interface {
	StartSuite(suite *Suite)
	EndSuite(suite *Suite)
	TestPassed(result TestResult)
	TestFailed(result TestResult)
	TestSkipped(result TestResult)
	Summary(stats *TestStats)
}

// TestRunner drives descriptor evaluation across suites.
type TestRunner struct {
	suites   []*Suite
	config   *TestConfig
	reporter TestReporter
	stats    *TestStats
}

// NewTestRunner creates a new test runner.
func NewTestRunner(config *TestConfig) *TestRunner {
	if config == nil {
		config = &TestConfig{OutputFormat: "text"}
	}

	var reporter TestReporter
	switch config.OutputFormat {
	case "json":
		reporter = NewJSONReporter()
	case "junit":
		reporter = NewJUnitReporter()
	default:
		reporter = NewTextReporter(config.Verbose)
	}

	return &TestRunner{
		suites:   make([]*Suite, 0),
		config:   config,
		reporter: reporter,
		stats:    &TestStats{},
	}
}

// AddSuite adds an analyzed program's test suite to the runner.
func (r *TestRunner) AddSuite(suite *Suite) {
	r.suites = append(r.suites, suite)
}

// Run executes every suite's test descriptors and reports results.
func (r *TestRunner) Run() *TestStats {
	startTime := time.Now()

	for _, suite := range r.suites {
		if !r.shouldRunSuite(suite) {
			continue
		}
		r.runSuite(suite)
		if r.config.FailFast && r.hasFailures(suite) {
			break
		}
	}

	r.stats.TotalTime = time.Since(startTime)
	r.reporter.Summary(r.stats)
	return r.stats
}

// runSuite evaluates every test descriptor in a suite. Descriptors are
// independent reads over the symbol table (§4.9), so when parallel
// execution is requested they run concurrently via errgroup rather than
// one at a time.
func (r *TestRunner) runSuite(suite *Suite) {
	suite.StartTime = time.Now()
	r.reporter.StartSuite(suite)

	descriptors := suite.Table.Tests
	results := make([]TestResult, len(descriptors))

	if r.config.Parallel {
		g, _ := errgroup.WithContext(context.Background())
		for i, td := range descriptors {
			i, td := i, td
			if !r.shouldRunTest(td.Name) {
				results[i] = TestResult{Name: td.Name, File: suite.File, Line: td.Line, Regex: td.Regex, Skipped: true}
				continue
			}
			g.Go(func() error {
				results[i] = evalDescriptor(suite, td)
				return nil
			})
		}
		g.Wait()
	} else {
		for i, td := range descriptors {
			if !r.shouldRunTest(td.Name) {
				results[i] = TestResult{Name: td.Name, File: suite.File, Line: td.Line, Regex: td.Regex, Skipped: true}
				continue
			}
			results[i] = evalDescriptor(suite, td)
			if r.config.FailFast && results[i].Failed {
				results = results[:i+1]
				break
			}
		}
	}

	for _, res := range results {
		suite.Results = append(suite.Results, res)
		switch {
		case res.Skipped:
			r.reporter.TestSkipped(res)
		case res.Failed:
			r.reporter.TestFailed(res)
		default:
			r.reporter.TestPassed(res)
		}
	}

	suite.EndTime = time.Now()
	r.reporter.EndSuite(suite)
	r.updateStats(suite)
}

// evalDescriptor evaluates one test's expect/expected expressions and
// compares them per §4.9: regex match when Regex is set, otherwise deep
// structural equality.
func evalDescriptor(suite *Suite, td analyzer.TestDescriptor) TestResult {
	start := time.Now()
	eval := NewEvaluator(suite.Table, td.Inputs)

	fail := func(err error) TestResult {
		return TestResult{Name: td.Name, File: suite.File, Line: td.Line, Regex: td.Regex,
			Failed: true, Duration: time.Since(start), Error: err}
	}

	got, err := eval.Eval(td.Expect)
	if err != nil {
		return fail(err)
	}
	want, err := eval.Eval(td.Expected)
	if err != nil {
		return fail(err)
	}

	var passed bool
	if td.Regex {
		re, err := regexp.Compile(want.String())
		if err != nil {
			return fail(fmt.Errorf("invalid regex %q: %w", want.String(), err))
		}
		passed = re.MatchString(got.String())
	} else {
		passed = Equal(got, want)
	}

	result := TestResult{Name: td.Name, File: suite.File, Line: td.Line, Regex: td.Regex, Duration: time.Since(start)}
	if passed {
		result.Passed = true
		return result
	}

	result.Failed = true
	diff := strings.Join(pretty.Diff(want, got), "\n")
	if td.Regex {
		result.Message = fmt.Sprintf("expected %q to match /%s/", got.String(), want.String())
	} else {
		result.Message = fmt.Sprintf("expected %s, got %s\n%s", want.String(), got.String(), diff)
	}
	return result
}

func (r *TestRunner) shouldRunSuite(suite *Suite) bool {
	if r.config.Filter == "" {
		return true
	}
	return strings.Contains(suite.Name, r.config.Filter) || strings.Contains(suite.File, r.config.Filter)
}

func (r *TestRunner) shouldRunTest(name string) bool {
	if r.config.Filter == "" {
		return true
	}
	return strings.Contains(name, r.config.Filter)
}

func (r *TestRunner) hasFailures(suite *Suite) bool {
	for _, result := range suite.Results {
		if result.Failed {
			return true
		}
	}
	return false
}

func (r *TestRunner) updateStats(suite *Suite) {
	r.stats.Suites++
	for _, result := range suite.Results {
		r.stats.TotalTests++
		switch {
		case result.Passed:
			r.stats.PassedTests++
		case result.Failed:
			r.stats.FailedTests++
		case result.Skipped:
			r.stats.SkippedTests++
		}
	}
}

// DiscoverTests finds source files to analyze for test descriptors.
func DiscoverTests(dir string, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*_test.loaf"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	subMatches, err := filepath.Glob(filepath.Join(dir, "**", pattern))
	if err == nil {
		matches = append(matches, subMatches...)
	}
	return matches, nil
}
