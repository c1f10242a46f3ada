package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/rv32emu/rv32emu/rvgo/vm"
)

var OutFilePerm = os.FileMode(0o755)

func Run(ctx *cli.Context) error {
	if ctx.Bool(RunPProfCPU.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	lvl, err := ParseLevel(ctx.String(LogLevelFlag.Name))
	if err != nil {
		return err
	}
	l := Logger(os.Stderr, lvl)

	state, err := jsonutil.LoadJSON[vm.State](ctx.Path(RunInputFlag.Name))
	if err != nil {
		return err
	}
	if ctx.Bool(RunTestModeFlag.Name) {
		state.TestMode = vm.DefaultTestMode()
	}
	if ctx.IsSet(RunTestResultRegFlag.Name) {
		reg := ctx.Uint(RunTestResultRegFlag.Name)
		if reg >= 32 {
			return fmt.Errorf("invalid test result register x%d", reg)
		}
		state.TestMode.ResultReg = uint8(reg)
	}

	var console io.Writer
	var cons *Console
	if ctx.Bool(RunConsoleFlag.Name) {
		cons, err = OpenConsole()
		if err != nil {
			return err
		}
		defer func() {
			if err := cons.Close(); err != nil {
				l.Error("failed to restore terminal", "err", err)
			}
		}()
		console = cons
	} else {
		outLog := &LoggingWriter{Name: "guest console", Log: l}
		defer outLog.Flush()
		console = outLog
	}

	stopAt := ctx.Generic(RunStopAtFlag.Name).(*StepMatcherFlag).Matcher()
	snapshotAt := ctx.Generic(RunSnapshotAtFlag.Name).(*StepMatcherFlag).Matcher()
	infoAt := ctx.Generic(RunInfoAtFlag.Name).(*StepMatcherFlag).Matcher()
	snapshotFmt := ctx.String(RunSnapshotFmtFlag.Name)

	var meta *Metadata
	if metaPath := ctx.Path(RunMetaFlag.Name); metaPath == "" {
		l.Info("no metadata file specified, defaulting to empty metadata")
		meta = &Metadata{Symbols: nil} // provide empty metadata by default
	} else {
		if m, err := jsonutil.LoadJSON[Metadata](metaPath); err != nil {
			return fmt.Errorf("failed to load metadata: %w", err)
		} else {
			meta = m
		}
	}

	runCtx := ctx.Context
	if timeout := ctx.Duration(RunTimeoutFlag.Name); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}
	maxSteps := ctx.Uint64(RunMaxStepsFlag.Name)

	us := vm.NewInstrumentedState(state, console, l)
	us.Trace = ctx.Bool(RunTraceFlag.Name)

	start := time.Now()
	startStep := state.Step

	var status vm.Status
	var stepErr error
loop:
	for !state.Exited {
		if state.Step%100 == 0 { // don't do the ctx err check (includes lock) too often
			if err := runCtx.Err(); err != nil {
				if errors.Is(err, context.DeadlineExceeded) && ctx.Context.Err() == nil {
					l.Info("timeout reached", "step", state.Step)
					break
				}
				return err
			}
		}

		step := state.Step
		if maxSteps != 0 && step-startStep >= maxSteps {
			l.Info("step limit reached", "step", step)
			break
		}

		if infoAt(state) {
			delta := time.Since(start)
			l.Info("processing",
				"step", step,
				"pc", HexU32(state.PC),
				"insn", HexU32(state.Instr()),
				"priv", state.Priv,
				"ips", float64(step-startStep)/(float64(delta)/float64(time.Second)),
				"pages", state.Memory.PageCount(),
				"mem", state.Memory.Usage(),
				"name", meta.LookupSymbol(state.PC),
			)
		}

		if stopAt(state) {
			break
		}

		if snapshotAt(state) {
			if err := jsonutil.WriteJSON(fmt.Sprintf(snapshotFmt, step), state, OutFilePerm); err != nil {
				return fmt.Errorf("failed to write state snapshot: %w", err)
			}
		}

		if cons != nil {
			us.EnqueueInput(cons.Poll())
			if cons.Quit() {
				l.Info("console quit", "step", step)
				break
			}
		}

		status, stepErr = us.Step()
		switch status {
		case vm.StatusHalted:
			break loop
		case vm.StatusFault:
			stepErr = fmt.Errorf("failed at step %d (PC: %08x, %s): %w", step, state.PC, meta.LookupSymbol(state.PC), stepErr)
			break loop
		}
	}

	if err := jsonutil.WriteJSON(ctx.Path(RunOutputFlag.Name), state, OutFilePerm); err != nil {
		return fmt.Errorf("failed to write state output: %w", err)
	}
	if stepErr != nil {
		return stepErr
	}
	return exitStatus(l, state)
}

// exitStatus turns a test-mode result into the process exit code.
func exitStatus(l log.Logger, state *vm.State) error {
	if !state.Exited {
		return nil
	}
	l.Info("exited", "step", state.Step, "code", state.ExitCode)
	if state.TestMode.Enabled && state.ExitCode != 0 {
		code := int(state.ExitCode & 0xff)
		if code == 0 { // the host only sees the low byte
			code = 1
		}
		return cli.Exit(fmt.Sprintf("exit code %d", state.ExitCode), code)
	}
	return nil
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run the machine from a JSON state",
	Description: "Run the machine from a JSON state until it halts, faults, or a stop condition matches. See flags to match when to output a snapshot, or to stop early.",
	Action:      Run,
	Flags: []cli.Flag{
		RunInputFlag,
		RunOutputFlag,
		RunSnapshotAtFlag,
		RunSnapshotFmtFlag,
		RunStopAtFlag,
		RunMetaFlag,
		RunInfoAtFlag,
		RunMaxStepsFlag,
		RunTimeoutFlag,
		RunTestModeFlag,
		RunTestResultRegFlag,
		RunConsoleFlag,
		RunTraceFlag,
		RunPProfCPU,
		LogLevelFlag,
	},
}
