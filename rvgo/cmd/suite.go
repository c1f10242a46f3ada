package cmd

import (
	"context"
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/rv32emu/rv32emu/rvgo/vm"
)

// TestResult is the outcome of one riscv-tests binary.
type TestResult struct {
	Name   string
	Passed bool
	// Case is the failing test case number, 0 if the failure is not a test case.
	Case  uint32
	Steps uint64
	Err   error
}

func (r TestResult) String() string {
	switch {
	case r.Passed:
		return fmt.Sprintf("%s: pass (%d steps)", r.Name, r.Steps)
	case r.Err != nil:
		return fmt.Sprintf("%s: error: %v", r.Name, r.Err)
	case r.Case != 0:
		return fmt.Sprintf("%s: failed test case %d", r.Name, r.Case)
	}
	return fmt.Sprintf("%s: did not terminate within %d steps", r.Name, r.Steps)
}

// RunTestBinary loads a riscv-tests ELF and runs it in test mode. The tests
// report through gp: 1 is a pass, otherwise gp>>1 is the failing case.
func RunTestBinary(ctx context.Context, path string, cfg vm.Config, maxSteps uint64) TestResult {
	res := TestResult{Name: filepath.Base(path)}
	f, err := elf.Open(path)
	if err != nil {
		res.Err = err
		return res
	}
	defer f.Close()
	state, err := vm.LoadELF(f, cfg)
	if err != nil {
		res.Err = err
		return res
	}
	state.TestMode = vm.DefaultTestMode()
	status, err := vm.Run(ctx, state, maxSteps)
	res.Steps = state.Step
	switch {
	case err != nil:
		res.Err = err
	case status != vm.StatusHalted:
	case state.ExitCode == 1:
		res.Passed = true
	default:
		res.Case = state.ExitCode >> 1
	}
	return res
}

func Test(ctx *cli.Context) error {
	cfg, err := machineConfig(ctx)
	if err != nil {
		return err
	}
	paths, err := filepath.Glob(filepath.Join(ctx.Path(TestDirFlag.Name), ctx.String(TestPatternFlag.Name)))
	if err != nil {
		return fmt.Errorf("invalid test pattern: %w", err)
	}
	// skip objdump listings and other build products next to the binaries
	tests := paths[:0]
	for _, p := range paths {
		if filepath.Ext(p) == "" {
			tests = append(tests, p)
		}
	}
	if len(tests) == 0 {
		return fmt.Errorf("no test binaries found in %q", ctx.Path(TestDirFlag.Name))
	}
	sort.Strings(tests)

	maxSteps := ctx.Uint64(TestMaxStepsFlag.Name)
	pb := progressbar.Default(int64(len(tests)), "riscv-tests")
	var failed []TestResult
	for _, p := range tests {
		if err := ctx.Context.Err(); err != nil {
			return err
		}
		pb.Describe(filepath.Base(p))
		res := RunTestBinary(ctx.Context, p, cfg, maxSteps)
		if !res.Passed {
			failed = append(failed, res)
		}
		_ = pb.Add(1)
	}
	_ = pb.Close()

	for _, res := range failed {
		_, _ = fmt.Fprintln(os.Stderr, res)
	}
	fmt.Printf("%d/%d passed\n", len(tests)-len(failed), len(tests))
	if len(failed) > 0 {
		return cli.Exit(fmt.Sprintf("%d test binaries failed", len(failed)), 1)
	}
	return nil
}

var TestCommand = &cli.Command{
	Name:        "test",
	Usage:       "Run a directory of riscv-tests binaries",
	Description: "Run every riscv-tests binary matching --pattern in --dir in test mode, and report the ones that did not pass.",
	Action:      Test,
	Flags: []cli.Flag{
		TestDirFlag,
		TestPatternFlag,
		TestMaxStepsFlag,
		ConfigFlag,
	},
}
