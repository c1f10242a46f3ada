package cmd

import (
	"github.com/urfave/cli/v2"
)

var (
	ConfigFlag = &cli.PathFlag{
		Name:      "config",
		Usage:     "YAML machine description. Fields left out keep their defaults.",
		TakesFile: true,
	}
	BootargsFlag = &cli.StringFlag{
		Name:  "bootargs",
		Usage: "Kernel command line placed in /chosen of the generated device tree. Overrides the config.",
	}

	LoadELFPathFlag = &cli.PathFlag{
		Name:      "path",
		Usage:     "Path to 32-bit RISC-V ELF file",
		TakesFile: true,
		Required:  true,
	}
	LoadELFOutFlag = &cli.PathFlag{
		Name:     "out",
		Usage:    "Output path to write JSON state to. State is dumped to stdout if set to -. Not written if empty.",
		Value:    "state.json",
		Required: false,
	}
	LoadELFMetaFlag = &cli.PathFlag{
		Name:     "meta",
		Usage:    "Write metadata file, for symbol lookup during program execution. None if empty.",
		Value:    "meta.json",
		Required: false,
	}
	LoadELFTestModeFlag = &cli.BoolFlag{
		Name:  "test-mode",
		Usage: "Store the state with test-mode termination enabled",
	}

	LoadKernelPathFlag = &cli.PathFlag{
		Name:      "kernel",
		Usage:     "Path to a raw kernel image (e.g. arch/riscv/boot/Image)",
		TakesFile: true,
		Required:  true,
	}
	LoadKernelDTBFlag = &cli.PathFlag{
		Name:      "dtb",
		Usage:     "Path to a device tree blob. Generated from the machine config if empty.",
		TakesFile: true,
	}
	LoadKernelOutFlag = &cli.PathFlag{
		Name:  "out",
		Usage: "Output path to write JSON state to. State is dumped to stdout if set to -.",
		Value: "state.json",
	}

	RunInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of input JSON state.",
		TakesFile: true,
		Value:     "state.json",
	}
	RunOutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "path of output JSON state. Not written if empty, use - to write to Stdout.",
		TakesFile: true,
		Value:     "out.json",
	}
	RunSnapshotAtFlag = &cli.GenericFlag{
		Name:  "snapshot-at",
		Usage: "step pattern to output snapshots at: 'never' (default), 'always', '=123' at exactly step 123, '%123' for every 123 steps",
		Value: new(StepMatcherFlag),
	}
	RunSnapshotFmtFlag = &cli.StringFlag{
		Name:  "snapshot-fmt",
		Usage: "format for snapshot output file names.",
		Value: "state-%d.json",
	}
	RunStopAtFlag = &cli.GenericFlag{
		Name:  "stop-at",
		Usage: "step pattern to stop at: 'never' (default), 'always', '=123' at exactly step 123, '%123' for every 123 steps",
		Value: new(StepMatcherFlag),
	}
	RunMetaFlag = &cli.PathFlag{
		Name:     "meta",
		Usage:    "path to metadata file for symbol lookup for enhanced debugging info during execution. None if empty.",
		Required: false,
	}
	RunInfoAtFlag = &cli.GenericFlag{
		Name:  "info-at",
		Usage: "step pattern to print info at: 'never' (default), 'always', '=123' at exactly step 123, '%123' for every 123 steps",
		Value: MustStepMatcherFlag("%100000"),
	}
	RunMaxStepsFlag = &cli.Uint64Flag{
		Name:  "max-steps",
		Usage: "stop after this many steps. 0 means no limit.",
	}
	RunTimeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "stop after this much wall-clock time. 0 means no limit.",
	}
	RunTestModeFlag = &cli.BoolFlag{
		Name:  "test-mode",
		Usage: "halt on ECALL with a7 == 93 and exit with the result register as process exit code. " +
			"With the default result register (gp) a passing riscv-tests binary exits 1; use --test-result-reg 10 (a0) to exit 0 on pass.",
	}
	RunTestResultRegFlag = &cli.UintFlag{
		Name:  "test-result-reg",
		Usage: "register holding the test result in test mode",
		Value: 3,
	}
	RunConsoleFlag = &cli.BoolFlag{
		Name:  "console",
		Usage: "attach the host terminal to the UART (raw mode, Ctrl-A x to quit). Otherwise guest output is logged.",
	}
	RunTraceFlag = &cli.BoolFlag{
		Name:  "trace",
		Usage: "log every executed instruction at trace level",
	}
	RunPProfCPU = &cli.BoolFlag{
		Name:  "pprof.cpu",
		Usage: "enable pprof cpu profiling",
	}

	LogLevelFlag = &cli.StringFlag{
		Name:  "log.level",
		Usage: "log level: trace, debug, info, warn, error, crit",
		Value: "info",
	}

	WitnessInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of input JSON state.",
		TakesFile: true,
		Required:  true,
	}
	WitnessOutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "path to write output witness JSON. Not written if empty, use - to write to Stdout.",
		TakesFile: true,
	}

	TestDirFlag = &cli.PathFlag{
		Name:     "dir",
		Usage:    "directory of riscv-tests ELF binaries (rv32ui-p-*, rv32um-p-*, ...)",
		Required: true,
	}
	TestPatternFlag = &cli.StringFlag{
		Name:  "pattern",
		Usage: "glob of test binaries inside --dir",
		Value: "rv32u[ima]-p-*",
	}
	TestMaxStepsFlag = &cli.Uint64Flag{
		Name:  "max-steps",
		Usage: "step limit per test case",
		Value: 1_000_000,
	}

	DTBOutFlag = &cli.PathFlag{
		Name:  "out",
		Usage: "path to write the device tree blob to",
		Value: "machine.dtb",
	}
)
