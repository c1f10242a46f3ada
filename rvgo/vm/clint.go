package vm

import (
	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

// CLINT is the core-local interruptor of the single hart: a free-running mtime,
// the mtimecmp compare register and the msip software interrupt word.
// mtime only moves through Tick; guest writes to it are ignored.
type CLINT struct {
	Msip     uint32 `json:"msip"`
	Mtimecmp uint64 `json:"mtimecmp"`
	Mtime    uint64 `json:"mtime"`
}

func NewCLINT() *CLINT {
	// no timer interrupt until firmware programs mtimecmp
	return &CLINT{Mtimecmp: ^uint64(0)}
}

func (c *CLINT) Size() uint32 {
	return riscv.CLINTSize
}

func (c *CLINT) Tick() {
	c.Mtime++
}

// Pending returns the mip bits driven by the CLINT. Both are level-triggered.
func (c *CLINT) Pending() uint32 {
	var out uint32
	if c.Mtime >= c.Mtimecmp {
		out |= riscv.MipMTIP
	}
	if c.Msip&1 != 0 {
		out |= riscv.MipMSIP
	}
	return out
}

func (c *CLINT) byteAt(off uint32) byte {
	switch {
	case off < riscv.ClintMsip+4:
		return byte(c.Msip >> (8 * (off - riscv.ClintMsip)))
	case off >= riscv.ClintMtimecmp && off < riscv.ClintMtimecmp+8:
		return byte(c.Mtimecmp >> (8 * (off - riscv.ClintMtimecmp)))
	case off >= riscv.ClintMtime && off < riscv.ClintMtime+8:
		return byte(c.Mtime >> (8 * (off - riscv.ClintMtime)))
	}
	return 0
}

func (c *CLINT) setByte(off uint32, v byte) {
	switch {
	case off < riscv.ClintMsip+4:
		shift := 8 * (off - riscv.ClintMsip)
		c.Msip = (c.Msip &^ (0xff << shift)) | uint32(v)<<shift
		c.Msip &= 1
	case off >= riscv.ClintMtimecmp && off < riscv.ClintMtimecmp+8:
		shift := 8 * (off - riscv.ClintMtimecmp)
		c.Mtimecmp = (c.Mtimecmp &^ (0xff << shift)) | uint64(v)<<shift
	}
}

func (c *CLINT) Load(offset uint32, size int) (uint32, error) {
	var out uint32
	for i := 0; i < size; i++ {
		out |= uint32(c.byteAt(offset+uint32(i))) << (8 * i)
	}
	return out, nil
}

func (c *CLINT) Store(offset uint32, size int, value uint32) error {
	for i := 0; i < size; i++ {
		c.setByte(offset+uint32(i), byte(value>>(8*i)))
	}
	return nil
}

var _ Device = (*CLINT)(nil)
