// cmd/loaf/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/loaf-lang/loaf/internal/analyzer"
	"github.com/loaf-lang/loaf/internal/bytecode"
	"github.com/loaf-lang/loaf/internal/compiler"
	"github.com/loaf-lang/loaf/internal/debugstream"
	derrors "github.com/loaf-lang/loaf/internal/errors"
	"github.com/loaf-lang/loaf/internal/memory"
	"github.com/loaf-lang/loaf/internal/modulestore"
	"github.com/loaf-lang/loaf/internal/parser"
	"github.com/loaf-lang/loaf/internal/testing"
	"github.com/loaf-lang/loaf/internal/vm"
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "exec":
		err = execCommand(os.Args[2:])
	case "test":
		err = testCommand(os.Args[2:])
	case "-h", "--help", "help":
		showUsage()
		return
	default:
		showUsage()
		os.Exit(1)
	}

	if err != nil {
		if sentraErr, ok := err.(*derrors.SentraError); ok {
			derrors.Render(os.Stderr, sentraErr)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Fprintln(os.Stderr, `usage:
  loaf run <file>            compile and run a source file
  loaf exec <module.loaf>    run a precompiled module
  loaf exec <dsn> <name>     run a module loaded from a modulestore backend
  loaf test <file>           evaluate a source file's test descriptors`)
}

// runtimeFlags registers the §6 runtime knobs plus the trace sink
// address on fs and holds the flag pointers; config builds the final
// vm.Config from them once fs.Parse has run.
type runtimeFlags struct {
	debugMode   *bool
	stackTrace  *bool
	gcThreshold *int
	gcDisabled  *bool
	traceAddr   *string
}

func registerRuntimeFlags(fs *flag.FlagSet) runtimeFlags {
	return runtimeFlags{
		debugMode:   fs.Bool("debug", false, "print module statistics on load"),
		stackTrace:  fs.Bool("trace", false, "print every stack operation"),
		gcThreshold: fs.Int("gc-threshold", 10000, "object-count ceiling before GC runs"),
		gcDisabled:  fs.Bool("no-gc", false, "disable garbage collection"),
		traceAddr:   fs.String("trace-addr", "", "attach a debugstream sink at host:port when -trace is set"),
	}
}

func (r runtimeFlags) config() vm.Config {
	cfg := vm.DefaultConfig()
	cfg.DebugMode = *r.debugMode
	cfg.StackTrace = *r.stackTrace
	cfg.GCThreshold = *r.gcThreshold
	cfg.GCEnabled = !*r.gcDisabled
	return cfg
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	flags := registerRuntimeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg := flags.config()
	if fs.NArg() != 1 {
		return fmt.Errorf("run: expected exactly one source file")
	}
	file := fs.Arg(0)

	source, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	prog, err := parser.Parse(string(source))
	if err != nil {
		return derrors.NewSyntaxError(err.Error(), file, 0, 0)
	}

	analyzed, err := analyzer.Analyze(prog)
	if err != nil {
		return derrors.NewRuntimeError(err.Error(), file, 0, 0)
	}

	mod, err := compiler.Compile(file, analyzed)
	if err != nil {
		return derrors.NewRuntimeError(err.Error(), file, 0, 0)
	}

	if cfg.DebugMode {
		printModuleStats(mod)
	}

	return execModule(mod, cfg, *flags.traceAddr)
}

func execCommand(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	flags := registerRuntimeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg := flags.config()

	var mod *bytecode.Module
	var err error
	switch fs.NArg() {
	case 1:
		f, openErr := os.Open(fs.Arg(0))
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		mod, err = bytecode.Decode(f)
	case 2:
		var store *modulestore.Store
		store, err = modulestore.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer store.Close()
		mod, err = store.Load(fs.Arg(1))
	default:
		return fmt.Errorf("exec: expected <module.loaf> or <dsn> <name>")
	}
	if err != nil {
		return err
	}

	if cfg.DebugMode {
		printModuleStats(mod)
	}

	return execModule(mod, cfg, *flags.traceAddr)
}

func execModule(mod *bytecode.Module, cfg vm.Config, traceAddr string) error {
	mem := memory.NewMemoryManager()
	interp := vm.NewInterpreter(mod, mem, cfg)

	if cfg.StackTrace && traceAddr != "" {
		sink := debugstream.NewSink(traceAddr)
		sink.Start()
		defer sink.Close()
		interp.AttachTracer(debugstream.Tracer{Sink: sink})
	}

	_, err := interp.Run()
	return err
}

func printModuleStats(mod *bytecode.Module) {
	fmt.Printf("module %q: %s instructions, %s constants, %s bytes\n",
		mod.Name,
		humanize.Comma(int64(len(mod.Instructions))),
		humanize.Comma(int64(len(mod.Constants))),
		humanize.Bytes(uint64(len(mod.CodePage))))
}

func testCommand(args []string) error {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	format := fs.String("format", "text", "output format: text, json, junit")
	filter := fs.String("filter", "", "only run tests whose name contains this substring")
	parallel := fs.Bool("parallel", false, "evaluate independent test descriptors concurrently")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("test: expected exactly one source file")
	}
	file := fs.Arg(0)

	source, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	prog, err := parser.Parse(string(source))
	if err != nil {
		return derrors.NewSyntaxError(err.Error(), file, 0, 0)
	}

	analyzed, err := analyzer.Analyze(prog)
	if err != nil {
		return derrors.NewRuntimeError(err.Error(), file, 0, 0)
	}

	runner := testing.NewTestRunner(&testing.TestConfig{
		OutputFormat: *format,
		Filter:       *filter,
		Parallel:     *parallel,
	})
	runner.AddSuite(&testing.Suite{Name: file, File: file, Table: analyzed.Symbols})

	stats := runner.Run()
	if stats.FailedTests > 0 {
		return fmt.Errorf("%d of %d tests failed", stats.FailedTests, stats.TotalTests)
	}
	return nil
}
