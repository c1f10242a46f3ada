package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/rv32emu/rv32emu/rvgo/cmd"
)

func main() {
	app := cli.NewApp()
	app.Name = "rv32emu"
	app.Usage = "RV32IMA machine emulator"
	app.Description = "Emulates a single-hart RV32IMA_Zicsr machine with M and U modes, a CLINT and a 16550 UART. Runs riscv-tests binaries and MMU-less Linux kernels."
	app.Commands = []*cli.Command{
		cmd.LoadELFCommand,
		cmd.LoadKernelCommand,
		cmd.RunCommand,
		cmd.WitnessCommand,
		cmd.TestCommand,
		cmd.DTBCommand,
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			<-c
			cancel()
			fmt.Println("\r\nExiting...")
		}
	}()

	err := app.RunContext(ctx, os.Args)
	if err != nil {
		if errors.Is(err, ctx.Err()) {
			_, _ = fmt.Fprintf(os.Stderr, "command interrupted\n")
			os.Exit(130)
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}
