package cmd

import (
	"debug/elf"
	"fmt"

	"github.com/ethereum-optimism/optimism/op-service/jsonutil"
	"github.com/urfave/cli/v2"

	"github.com/rv32emu/rv32emu/rvgo/vm"
)

func LoadELF(ctx *cli.Context) error {
	cfg, err := machineConfig(ctx)
	if err != nil {
		return err
	}
	elfPath := ctx.Path(LoadELFPathFlag.Name)
	elfProgram, err := elf.Open(elfPath)
	if err != nil {
		return fmt.Errorf("failed to open ELF file %q: %w", elfPath, err)
	}
	defer elfProgram.Close()
	state, err := vm.LoadELF(elfProgram, cfg)
	if err != nil {
		return fmt.Errorf("failed to load ELF data into VM state: %w", err)
	}
	if ctx.Bool(LoadELFTestModeFlag.Name) {
		state.TestMode = vm.DefaultTestMode()
	}
	if metaPath := ctx.Path(LoadELFMetaFlag.Name); metaPath != "" {
		meta, err := MakeMetadata(elfProgram)
		if err != nil {
			return fmt.Errorf("failed to compute program metadata: %w", err)
		}
		if err := jsonutil.WriteJSON[*Metadata](metaPath, meta, OutFilePerm); err != nil {
			return fmt.Errorf("failed to output metadata: %w", err)
		}
	}
	return jsonutil.WriteJSON[*vm.State](ctx.Path(LoadELFOutFlag.Name), state, OutFilePerm)
}

var LoadELFCommand = &cli.Command{
	Name:        "load-elf",
	Usage:       "Load ELF file into JSON machine state",
	Description: "Load a 32-bit RISC-V ELF file into JSON machine state, and write its symbols as metadata",
	Action:      LoadELF,
	Flags: []cli.Flag{
		LoadELFPathFlag,
		LoadELFOutFlag,
		LoadELFMetaFlag,
		LoadELFTestModeFlag,
		ConfigFlag,
	},
}
