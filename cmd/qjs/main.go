package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	quickjs "github.com/wippyai/quickjs-runtime"
)

func main() {
	var (
		expr        = flag.String("e", "", "Expression to evaluate")
		asModule    = flag.Bool("module", false, "Evaluate input as an ES module")
		memLimit    = flag.Uint64("mem", 0, "Heap memory limit in bytes (0 = uncapped)")
		stackLimit  = flag.Uint64("stack", 0, "Native stack limit in bytes (0 = uncapped)")
		timeLimit   = flag.Duration("timeout", 0, "Wall time limit per evaluation (0 = uncapped)")
		asJSON      = flag.Bool("json", false, "Print object results as JSON")
		interactive = flag.Bool("i", false, "Interactive REPL with TUI")
	)
	flag.Parse()

	if *interactive {
		if err := runInteractive(replLimits{
			memory:  *memLimit,
			stack:   *stackLimit,
			timeout: *timeLimit,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	source := *expr
	if source == "" {
		if flag.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "Usage: qjs -e <expression> [-mem bytes] [-timeout duration]")
			fmt.Fprintln(os.Stderr, "       qjs <file.js> [-module]")
			fmt.Fprintln(os.Stderr, "       qjs -i  (interactive REPL)")
			os.Exit(1)
		}
		data, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		source = string(data)
	}

	if err := run(source, *asModule, *asJSON, *memLimit, *stackLimit, *timeLimit); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(source string, asModule, asJSON bool, memLimit, stackLimit uint64, timeout time.Duration) error {
	ctx, err := quickjs.New(quickjs.WithStdout(os.Stdout))
	if err != nil {
		return err
	}
	defer ctx.Close()

	if memLimit > 0 {
		if err := ctx.SetMemoryLimit(memLimit); err != nil {
			return err
		}
	}
	if stackLimit > 0 {
		if err := ctx.SetMaxStackSize(stackLimit); err != nil {
			return err
		}
	}
	if timeout > 0 {
		if err := ctx.SetTimeLimit(timeout); err != nil {
			return err
		}
	}

	eval := ctx.Eval
	if asModule {
		eval = ctx.EvalModule
	}
	v, err := eval(source)
	if err != nil {
		return err
	}

	// Drain the job queue so promise reactions run before we report.
	for {
		ran, err := ctx.ExecutePendingJob()
		if err != nil {
			return err
		}
		if !ran {
			break
		}
	}

	fmt.Println(render(v, asJSON))
	return nil
}

func render(v quickjs.Value, asJSON bool) string {
	obj := v.Object()
	if obj == nil {
		return v.String()
	}
	defer obj.Free()

	if asJSON {
		if text, err := obj.JSON(); err == nil {
			return text
		}
	}
	return "[object]"
}
