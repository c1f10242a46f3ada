package vm

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

var (
	ErrIllegalCSR   = errors.New("unknown CSR")
	ErrCSRPrivilege = errors.New("insufficient privilege for CSR")
	ErrCSRReadOnly  = errors.New("write to read-only CSR")
)

const allBits = ^uint32(0)

// csrDesc is the access contract of one CSR. Reads return value&read, writes
// only change the bits in write. A non-zero alias redirects storage to another
// address, so counter shadows and their machine counterparts share one value.
type csrDesc struct {
	name     string
	read     uint32
	write    uint32
	alias    uint16
	legalize func(old, new uint32) uint32
}

const mieBits = riscv.MipMSIP | riscv.MipMTIP | riscv.MipMEIP

var csrTable = func() map[uint16]csrDesc {
	t := map[uint16]csrDesc{
		riscv.CSRMstatus: {name: "mstatus",
			read:     riscv.MstatusMIE | riscv.MstatusMPIE | riscv.MstatusMPP,
			write:    riscv.MstatusMIE | riscv.MstatusMPIE | riscv.MstatusMPP,
			legalize: legalizeMstatus},
		riscv.CSRMisa:       {name: "misa", read: allBits},
		riscv.CSRMie:        {name: "mie", read: mieBits, write: mieBits},
		riscv.CSRMtvec:      {name: "mtvec", read: allBits, write: ^uint32(3)},
		riscv.CSRMcounteren: {name: "mcounteren", read: 7, write: 7},
		riscv.CSRMstatush:   {name: "mstatush"},
		riscv.CSRMscratch:   {name: "mscratch", read: allBits, write: allBits},
		riscv.CSRMepc:       {name: "mepc", read: ^uint32(3), write: ^uint32(3)},
		riscv.CSRMcause:     {name: "mcause", read: allBits, write: allBits},
		riscv.CSRMtval:      {name: "mtval", read: allBits, write: allBits},
		riscv.CSRMip:        {name: "mip", read: mieBits},
		riscv.CSRMcycle:     {name: "mcycle", read: allBits, write: allBits},
		riscv.CSRMinstret:   {name: "minstret", read: allBits, write: allBits},
		riscv.CSRMcycleh:    {name: "mcycleh", read: allBits, write: allBits},
		riscv.CSRMinstreth:  {name: "minstreth", read: allBits, write: allBits},
		riscv.CSRCycle:      {name: "cycle", read: allBits, alias: riscv.CSRMcycle},
		riscv.CSRTime:       {name: "time", read: allBits},
		riscv.CSRInstret:    {name: "instret", read: allBits, alias: riscv.CSRMinstret},
		riscv.CSRCycleh:     {name: "cycleh", read: allBits, alias: riscv.CSRMcycleh},
		riscv.CSRTimeh:      {name: "timeh", read: allBits},
		riscv.CSRInstreth:   {name: "instreth", read: allBits, alias: riscv.CSRMinstreth},
		riscv.CSRMvendorid:  {name: "mvendorid", read: allBits},
		riscv.CSRMarchid:    {name: "marchid", read: allBits},
		riscv.CSRMimpid:     {name: "mimpid", read: allBits},
		riscv.CSRMhartid:    {name: "mhartid", read: allBits},
	}
	// PMP registers hold values but enforce nothing: firmware probes them during boot.
	for i := uint16(0); i < 4; i++ {
		t[riscv.CSRPmpcfg0+i] = csrDesc{name: fmt.Sprintf("pmpcfg%d", i), read: allBits, write: allBits}
	}
	for i := uint16(0); i < 16; i++ {
		t[riscv.CSRPmpaddr0+i] = csrDesc{name: fmt.Sprintf("pmpaddr%d", i), read: allBits, write: allBits}
	}
	return t
}()

// MPP is WARL: only User and Machine are supported, other values keep the previous mode.
func legalizeMstatus(old, new uint32) uint32 {
	switch (new & riscv.MstatusMPP) >> riscv.MstatusMPPShift {
	case riscv.PrivUser, riscv.PrivMachine:
		return new
	default:
		return (new &^ riscv.MstatusMPP) | (old & riscv.MstatusMPP)
	}
}

// CSRName returns the mnemonic of a CSR address, or its hex form when unknown.
func CSRName(addr uint16) string {
	if d, ok := csrTable[addr]; ok {
		return d.name
	}
	return fmt.Sprintf("0x%03x", addr)
}

// CSRFile holds the raw values of all CSRs, indexed by 12-bit address.
type CSRFile struct {
	values [4096]uint32
}

func NewCSRFile() *CSRFile {
	c := &CSRFile{}
	c.Reset()
	return c
}

func (c *CSRFile) Reset() {
	c.values = [4096]uint32{}
	c.values[riscv.CSRMisa] = riscv.MisaRV32
}

func (c *CSRFile) lookup(addr uint16, priv uint8) (csrDesc, error) {
	d, ok := csrTable[addr]
	if !ok {
		return csrDesc{}, fmt.Errorf("%w: 0x%03x", ErrIllegalCSR, addr)
	}
	if required := uint8(addr>>8) & 3; priv < required {
		return csrDesc{}, fmt.Errorf("%w: %s requires privilege %d, have %d", ErrCSRPrivilege, d.name, required, priv)
	}
	// user counters are gated per counter by mcounteren
	if priv == riscv.PrivUser && addr&0xF60 == 0xC00 {
		if bit := uint32(1) << (addr & 0x1f); c.values[riscv.CSRMcounteren]&bit == 0 {
			return csrDesc{}, fmt.Errorf("%w: %s disabled by mcounteren", ErrCSRPrivilege, d.name)
		}
	}
	return d, nil
}

func storage(addr uint16, d csrDesc) uint16 {
	if d.alias != 0 {
		return d.alias
	}
	return addr
}

// Read performs a CSR instruction read from the given privilege mode.
func (c *CSRFile) Read(addr uint16, priv uint8) (uint32, error) {
	d, err := c.lookup(addr, priv)
	if err != nil {
		return 0, err
	}
	return c.values[storage(addr, d)] & d.read, nil
}

// Write performs a CSR instruction write from the given privilege mode.
// Bits outside the write mask keep their value.
func (c *CSRFile) Write(addr uint16, value uint32, priv uint8) error {
	d, err := c.lookup(addr, priv)
	if err != nil {
		return err
	}
	if addr>>10 == 3 {
		return fmt.Errorf("%w: %s", ErrCSRReadOnly, d.name)
	}
	at := storage(addr, d)
	old := c.values[at]
	v := (old &^ d.write) | (value & d.write)
	if d.legalize != nil {
		v = d.legalize(old, v)
	}
	c.values[at] = v
	return nil
}

// Get and Set bypass masks and privilege; they are the hardware side of the CSR file.
func (c *CSRFile) Get(addr uint16) uint32 {
	return c.values[addr&0xfff]
}

func (c *CSRFile) Set(addr uint16, v uint32) {
	c.values[addr&0xfff] = v
}

func (c *CSRFile) counter(lo, hi uint16) uint64 {
	return uint64(c.values[hi])<<32 | uint64(c.values[lo])
}

func (c *CSRFile) setCounter(lo, hi uint16, v uint64) {
	c.values[lo] = uint32(v)
	c.values[hi] = uint32(v >> 32)
}

func (c *CSRFile) incCounter(lo, hi uint16) {
	c.setCounter(lo, hi, c.counter(lo, hi)+1)
}

func (c *CSRFile) MarshalJSON() ([]byte, error) {
	out := make(map[uint16]uint32)
	for addr, v := range c.values {
		if v != 0 {
			out[uint16(addr)] = v
		}
	}
	return json.Marshal(out)
}

func (c *CSRFile) UnmarshalJSON(data []byte) error {
	var in map[uint16]uint32
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.values = [4096]uint32{}
	for addr, v := range in {
		if addr > 0xfff {
			return fmt.Errorf("CSR address 0x%x out of range", addr)
		}
		c.values[addr] = v
	}
	return nil
}
