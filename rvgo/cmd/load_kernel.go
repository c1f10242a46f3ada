package cmd

import (
	"fmt"
	"os"

	"github.com/ethereum-optimism/optimism/op-service/jsonutil"
	"github.com/urfave/cli/v2"

	"github.com/rv32emu/rv32emu/rvgo/fdt"
	"github.com/rv32emu/rv32emu/rvgo/vm"
)

func LoadKernel(ctx *cli.Context) error {
	cfg, err := machineConfig(ctx)
	if err != nil {
		return err
	}
	kernelPath := ctx.Path(LoadKernelPathFlag.Name)
	kernel, err := os.ReadFile(kernelPath)
	if err != nil {
		return fmt.Errorf("failed to read kernel image %q: %w", kernelPath, err)
	}
	var dtb []byte
	if dtbPath := ctx.Path(LoadKernelDTBFlag.Name); dtbPath != "" {
		dtb, err = os.ReadFile(dtbPath)
		if err != nil {
			return fmt.Errorf("failed to read device tree %q: %w", dtbPath, err)
		}
	} else {
		dtb = fdt.Machine(cfg)
	}
	state, err := vm.LoadKernel(kernel, dtb, cfg)
	if err != nil {
		return fmt.Errorf("failed to load kernel into VM state: %w", err)
	}
	return jsonutil.WriteJSON[*vm.State](ctx.Path(LoadKernelOutFlag.Name), state, OutFilePerm)
}

var LoadKernelCommand = &cli.Command{
	Name:        "load-kernel",
	Usage:       "Load a raw kernel image and device tree into JSON machine state",
	Description: "Load a raw kernel image at the start of RAM and a device tree near its end. The device tree is generated from the machine config when --dtb is not given.",
	Action:      LoadKernel,
	Flags: []cli.Flag{
		LoadKernelPathFlag,
		LoadKernelDTBFlag,
		LoadKernelOutFlag,
		BootargsFlag,
		ConfigFlag,
	},
}
