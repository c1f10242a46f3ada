package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/rv32emu/rv32emu/rvgo/fdt"
)

func DTB(ctx *cli.Context) error {
	cfg, err := machineConfig(ctx)
	if err != nil {
		return err
	}
	out := ctx.Path(DTBOutFlag.Name)
	if err := os.WriteFile(out, fdt.Machine(cfg), 0o644); err != nil {
		return fmt.Errorf("failed to write device tree: %w", err)
	}
	return nil
}

var DTBCommand = &cli.Command{
	Name:        "dtb",
	Usage:       "Write the device tree blob of the emulated machine",
	Description: "Write the device tree blob describing RAM, the CLINT and the UART of the emulated machine, e.g. to build it into a kernel.",
	Action:      DTB,
	Flags: []cli.Flag{
		DTBOutFlag,
		BootargsFlag,
		ConfigFlag,
	},
}
