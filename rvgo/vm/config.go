package vm

import (
	"errors"
	"fmt"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

var ErrInvalidConfig = errors.New("invalid machine config")

// Config describes the physical layout of the emulated machine.
// It is fixed for the lifetime of a State and travels with it in snapshots.
type Config struct {
	RAMBase   uint32 `yaml:"ram_base" json:"ramBase"`
	RAMSize   uint32 `yaml:"ram_size" json:"ramSize"`
	CLINTBase uint32 `yaml:"clint_base" json:"clintBase"`
	UARTBase  uint32 `yaml:"uart_base" json:"uartBase"`

	// DTBOffset is where the device tree blob is placed, relative to RAMBase.
	DTBOffset uint32 `yaml:"dtb_offset" json:"dtbOffset"`

	// TimerDivider is the number of steps per CLINT mtime tick.
	TimerDivider      uint32 `yaml:"timer_divider" json:"timerDivider"`
	TimebaseFrequency uint32 `yaml:"timebase_frequency" json:"timebaseFrequency"`

	Bootargs string `yaml:"bootargs" json:"bootargs,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		RAMBase:           riscv.RAMBase,
		RAMSize:           riscv.RAMSize,
		CLINTBase:         riscv.CLINTBase,
		UARTBase:          riscv.UARTBase,
		DTBOffset:         riscv.RAMSize - riscv.DTBReserve,
		TimerDivider:      1,
		TimebaseFrequency: 1_000_000,
		Bootargs:          "earlycon=uart8250,mmio,0x10000000 console=ttyS0",
	}
}

type window struct {
	name       string
	base, size uint32
}

func (w window) end() uint64 {
	return uint64(w.base) + uint64(w.size)
}

func (w window) overlaps(o window) bool {
	return uint64(w.base) < o.end() && uint64(o.base) < w.end()
}

func (c Config) windows() []window {
	return []window{
		{"ram", c.RAMBase, c.RAMSize},
		{"clint", c.CLINTBase, riscv.CLINTSize},
		{"uart", c.UARTBase, riscv.UARTSize},
	}
}

func (c Config) Validate() error {
	if c.RAMSize == 0 || c.RAMSize%4 != 0 {
		return fmt.Errorf("%w: ram size %d must be a non-zero multiple of 4", ErrInvalidConfig, c.RAMSize)
	}
	ws := c.windows()
	for i, w := range ws {
		if w.end() > 1<<32 {
			return fmt.Errorf("%w: %s window 0x%08x+0x%x exceeds the 32-bit address space", ErrInvalidConfig, w.name, w.base, w.size)
		}
		for _, o := range ws[i+1:] {
			if w.overlaps(o) {
				return fmt.Errorf("%w: %s window overlaps %s window", ErrInvalidConfig, w.name, o.name)
			}
		}
	}
	if c.DTBOffset >= c.RAMSize {
		return fmt.Errorf("%w: dtb offset 0x%x outside of RAM (size 0x%x)", ErrInvalidConfig, c.DTBOffset, c.RAMSize)
	}
	if c.TimerDivider == 0 {
		return fmt.Errorf("%w: timer divider must be at least 1", ErrInvalidConfig)
	}
	return nil
}
