package fdt

import (
	"fmt"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
	"github.com/rv32emu/rv32emu/rvgo/vm"
)

const (
	intcPhandle   = 1
	uartClockFreq = 3_686_400
	isaString     = "rv32ima_zicsr_zifencei"
)

// Machine describes the emulated board for an MMU-less kernel: one rv32ima hart,
// RAM, the CLINT and a polled ns16550a console.
func Machine(cfg vm.Config) []byte {
	b := NewBuilder()
	b.BeginNode("")
	b.AddPropertyU32("#address-cells", 1)
	b.AddPropertyU32("#size-cells", 1)
	b.AddPropertyString("compatible", "rv32emu,virt")
	b.AddPropertyString("model", "rv32emu")

	uartPath := fmt.Sprintf("/soc/serial@%x", cfg.UARTBase)
	b.BeginNode("chosen")
	if cfg.Bootargs != "" {
		b.AddPropertyString("bootargs", cfg.Bootargs)
	}
	b.AddPropertyString("stdout-path", uartPath)
	b.EndNode()

	b.BeginNode(fmt.Sprintf("memory@%x", cfg.RAMBase))
	b.AddPropertyString("device_type", "memory")
	b.AddPropertyU32("reg", cfg.RAMBase, cfg.RAMSize)
	b.EndNode()

	b.BeginNode("cpus")
	b.AddPropertyU32("#address-cells", 1)
	b.AddPropertyU32("#size-cells", 0)
	b.AddPropertyU32("timebase-frequency", cfg.TimebaseFrequency)
	b.BeginNode("cpu@0")
	b.AddPropertyString("device_type", "cpu")
	b.AddPropertyU32("reg", 0)
	b.AddPropertyString("status", "okay")
	b.AddPropertyString("compatible", "riscv")
	b.AddPropertyString("riscv,isa", isaString)
	b.AddPropertyString("mmu-type", "riscv,none")
	b.BeginNode("interrupt-controller")
	b.AddPropertyU32("#interrupt-cells", 1)
	b.AddPropertyEmpty("interrupt-controller")
	b.AddPropertyString("compatible", "riscv,cpu-intc")
	b.AddPropertyU32("phandle", intcPhandle)
	b.EndNode()
	b.EndNode()
	b.EndNode()

	b.BeginNode("soc")
	b.AddPropertyU32("#address-cells", 1)
	b.AddPropertyU32("#size-cells", 1)
	b.AddPropertyString("compatible", "simple-bus")
	b.AddPropertyEmpty("ranges")

	b.BeginNode(fmt.Sprintf("clint@%x", cfg.CLINTBase))
	b.AddPropertyStringList("compatible", "sifive,clint0", "riscv,clint0")
	b.AddPropertyU32("reg", cfg.CLINTBase, riscv.CLINTSize)
	b.AddPropertyU32("interrupts-extended",
		intcPhandle, riscv.IntMachineSoftware,
		intcPhandle, riscv.IntMachineTimer)
	b.EndNode()

	b.BeginNode(fmt.Sprintf("serial@%x", cfg.UARTBase))
	b.AddPropertyString("compatible", "ns16550a")
	b.AddPropertyU32("reg", cfg.UARTBase, riscv.UARTSize)
	b.AddPropertyU32("clock-frequency", uartClockFreq)
	b.EndNode()

	b.EndNode() // soc
	b.EndNode() // root
	return b.Build()
}
