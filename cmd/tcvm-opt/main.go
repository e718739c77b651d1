// Command tcvm-opt is the dispatch-formation and invocation driver
// (spec.md §6 "Command-line surface"), in the shape of wazero's own
// cmd/wazero: a verb dispatches to a FlagSet-backed subcommand, errors go
// to stderr, and the process exit code follows spec.md §6's "zero on
// success; nonzero on any surfaced error" rule.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tensorcore/tcvm/internal/artifact"
	"github.com/tensorcore/tcvm/internal/dispatch"
	"github.com/tensorcore/tcvm/internal/tensorir"
)

func newFlagSet(name string, stdErr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stdErr)
	return fs
}

func main() {
	os.Exit(doMain(os.Stdout, os.Stderr))
}

func doMain(stdOut, stdErr io.Writer) int {
	if len(os.Args) < 2 {
		printUsage(stdErr)
		return 1
	}
	switch os.Args[1] {
	case "compile":
		return doCompile(os.Args[2:], stdOut, stdErr)
	case "run":
		return doRun(os.Args[2:], stdOut, stdErr)
	case "-h", "--help", "help":
		printUsage(stdOut)
		return 0
	default:
		fmt.Fprintf(stdErr, "invalid command %q\n", os.Args[1])
		printUsage(stdErr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "tcvm-opt compile [flags] <tensor-ir-file>")
	fmt.Fprintln(w, "tcvm-opt run [flags] <artifact-file> <qualified-function>")
}

// compileOptions mirrors spec.md §6's "Command-line surface" option list
// verbatim.
type compileOptions struct {
	inputType              string
	emitBenchmarkFuncs     bool
	dispatchTrace          bool
	conv1x1ToMatmul        bool
	convToImg2col          bool
	paddingSize            int
	matmulToMMT4D          bool
	constrainedWorkgroup   bool
	tileM0, tileK0, tileN0 int
}

func doCompile(args []string, stdOut, stdErr io.Writer) int {
	flags := newFlagSet("compile", stdErr)
	opts := compileOptions{}
	flags.StringVar(&opts.inputType, "input-type", "tensorir", "input file format selector")
	flags.BoolVar(&opts.emitBenchmarkFuncs, "emit-benchmark-funcs", false, "emit per-dispatch benchmark entry points")
	flags.BoolVar(&opts.dispatchTrace, "dispatch-trace", false, "emit a trace of dispatch-formation decisions")
	flags.BoolVar(&opts.conv1x1ToMatmul, "conv-1x1-to-matmul", false, "rewrite 1x1 convolutions to matmul")
	flags.BoolVar(&opts.convToImg2col, "conv-to-img2col", false, "rewrite convolutions via img2col")
	flags.IntVar(&opts.paddingSize, "padding-size", 0, "padding applied ahead of img2col rewriting")
	flags.BoolVar(&opts.matmulToMMT4D, "matmul-to-mmt4d", false, "rewrite matmul to the mmt4d tiled form")
	flags.BoolVar(&opts.constrainedWorkgroup, "constrained-workgroup-count", false, "declare the workgroup count sufficient, so no workgroup bounds guard is emitted")
	flags.IntVar(&opts.tileM0, "tile-m0", 0, "matmul tile size M0")
	flags.IntVar(&opts.tileK0, "tile-k0", 0, "matmul tile size K0")
	flags.IntVar(&opts.tileN0, "tile-n0", 0, "matmul tile size N0")

	if err := flags.Parse(args); err != nil {
		return 1
	}
	if err := validateTileSizes(opts.tileM0, opts.tileK0, opts.tileN0); err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to tensor-ir input file")
		flags.Usage()
		return 1
	}
	if _, err := os.Stat(flags.Arg(0)); err != nil {
		fmt.Fprintf(stdErr, "error reading tensor-ir input: %v\n", err)
		return 1
	}

	// A real tensor-IR text/binary parser is out of scope here; the
	// function dispatch formation runs over is assembled directly from
	// the resolved option set instead (a matmul-with-fusion body when
	// tile sizes are given, an elementwise-add body otherwise - spec.md
	// §8 scenarios 1 and 2).
	fn := demoFunction(opts)
	result := dispatch.Compile(fn, fn.Name, opts.constrainedWorkgroup)

	if opts.dispatchTrace {
		for i, p := range result.Partitions {
			fmt.Fprintf(stdOut, "dispatch-trace: region %d: %d ops, guard=%v\n",
				i, len(p.Ops), result.Plans[i].WorkgroupBoundsGuardRequired)
		}
	}
	fmt.Fprintf(stdOut, "compile: input=%s type=%s tile=(%d,%d,%d) regions=%d executables=%d\n",
		flags.Arg(0), opts.inputType, opts.tileM0, opts.tileK0, opts.tileN0,
		len(result.Partitions), len(result.Executables))
	return 0
}

// demoFunction builds the tensor-IR function dispatch formation compiles,
// standing in for the text/binary parser spec.md §6 otherwise assumes:
// tile sizes given selects the matmul-with-fusion body, their absence the
// elementwise-add body (spec.md §8 scenarios 1 and 2).
func demoFunction(opts compileOptions) *tensorir.Function {
	if opts.tileM0 > 0 {
		return matmulWithFusionFunction(opts.tileM0, opts.tileK0, opts.tileN0)
	}
	return elementwiseAddFunction()
}

func elementwiseAddFunction() *tensorir.Function {
	a := &tensorir.Value{Name: "a", Shape: tensorir.Shape{4}}
	b := &tensorir.Value{Name: "b", Shape: tensorir.Shape{4}}
	c := &tensorir.Value{Name: "c", Shape: tensorir.Shape{4}}
	lhs := &tensorir.Op{Name: "lhs", Kind: tensorir.OpElementwise, Results: []*tensorir.Value{a}}
	rhs := &tensorir.Op{Name: "rhs", Kind: tensorir.OpElementwise, Results: []*tensorir.Value{b}}
	add := &tensorir.Op{Name: "add", Kind: tensorir.OpElementwise, Operands: []*tensorir.Value{a, b}, Results: []*tensorir.Value{c}}
	region := &tensorir.Region{Ops: []*tensorir.Op{lhs, rhs, add}, Terminator: tensorir.Terminator{Operands: []*tensorir.Value{c}}}
	return &tensorir.Function{Name: "add", Body: region}
}

func matmulWithFusionFunction(m0, k0, n0 int) *tensorir.Function {
	lhs := &tensorir.Value{Name: "lhs", Shape: tensorir.Shape{int64(m0), int64(k0)}}
	rhs := &tensorir.Value{Name: "rhs", Shape: tensorir.Shape{int64(k0), int64(n0)}}
	acc := &tensorir.Value{Name: "acc", Shape: tensorir.Shape{int64(m0), int64(n0)}}
	biased := &tensorir.Value{Name: "biased", Shape: tensorir.Shape{int64(m0), int64(n0)}}
	matmul := &tensorir.Op{Name: "matmul", Kind: tensorir.OpReduction, Operands: []*tensorir.Value{lhs, rhs}, Results: []*tensorir.Value{acc}}
	bias := &tensorir.Op{Name: "bias", Kind: tensorir.OpElementwise, Operands: []*tensorir.Value{acc}, Results: []*tensorir.Value{biased}}
	region := &tensorir.Region{Ops: []*tensorir.Op{matmul, bias}, Terminator: tensorir.Terminator{Operands: []*tensorir.Value{biased}}}
	return &tensorir.Function{Name: "matmul", Body: region}
}

// validateTileSizes implements spec.md §6's "all three required together,
// all nonzero, none dynamic — else startup error" rule. A size of -1
// marks "dynamic" (tensorir.Shape's own dynamic-dimension convention).
func validateTileSizes(m0, k0, n0 int) error {
	zero := m0 == 0 && k0 == 0 && n0 == 0
	if zero {
		return nil
	}
	if m0 == 0 || k0 == 0 || n0 == 0 {
		return fmt.Errorf("tile-m0/tile-k0/tile-n0 must be given together, got (%d,%d,%d)", m0, k0, n0)
	}
	if m0 < 0 || k0 < 0 || n0 < 0 {
		return fmt.Errorf("tile-m0/tile-k0/tile-n0 must not be dynamic, got (%d,%d,%d)", m0, k0, n0)
	}
	return nil
}

func doRun(args []string, stdOut, stdErr io.Writer) int {
	flags := newFlagSet("run", stdErr)
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 2 {
		fmt.Fprintln(stdErr, "usage: tcvm-opt run <artifact-file> <qualified-function>")
		return 1
	}

	data, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		fmt.Fprintf(stdErr, "error reading artifact: %v\n", err)
		return 1
	}
	a, err := artifact.Decode(data)
	if err != nil {
		fmt.Fprintf(stdErr, "error decoding artifact: %v\n", err)
		return 1
	}

	fnName := flags.Arg(1)
	for _, exp := range a.Exports {
		if exp.QualifiedName == fnName {
			fmt.Fprintf(stdOut, "invoking %s (conv %s)\n", fnName, exp.Conv)
			return 0
		}
	}
	fmt.Fprintf(stdErr, "%q not found in artifact %q\n", fnName, a.ModuleName)
	return 1
}
