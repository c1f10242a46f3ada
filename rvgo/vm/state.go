package vm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

// Reservation is the LR/SC reservation of the hart.
type Reservation struct {
	Valid bool   `json:"valid"`
	Addr  uint32 `json:"addr"`
}

func (r Reservation) overlaps(addr uint32, size int) bool {
	return r.Valid && uint64(addr) < uint64(r.Addr)+4 && uint64(r.Addr) < uint64(addr)+uint64(size)
}

// TestMode enables the riscv-tests termination convention on ECALL:
// when x[MarkerReg] holds Marker the machine halts with x[ResultReg] as exit code.
type TestMode struct {
	Enabled   bool   `json:"enabled"`
	ResultReg uint8  `json:"resultReg"`
	MarkerReg uint8  `json:"markerReg"`
	Marker    uint32 `json:"marker"`
}

func DefaultTestMode() TestMode {
	return TestMode{
		Enabled:   true,
		ResultReg: riscv.RegGP,
		MarkerReg: riscv.RegA7,
		Marker:    riscv.TestExitMarker,
	}
}

// State is the complete machine: hart, CSRs, RAM and devices.
// Every operation of the emulator takes it by pointer; nothing is global.
type State struct {
	Config Config `json:"config"`

	Memory *Memory  `json:"memory"`
	CLINT  *CLINT   `json:"clint"`
	UART   *UART    `json:"uart"`
	CSR    *CSRFile `json:"csr"`

	PC   uint32 `json:"pc"`
	Priv uint8  `json:"priv"`

	Registers [32]uint32 `json:"registers"`

	Reservation Reservation `json:"reservation"`

	Step uint64 `json:"step"`

	ExitCode uint32 `json:"exit"`
	Exited   bool   `json:"exited"`

	TestMode TestMode `json:"testMode"`

	bus      *Bus
	lastTrap Trap

	// counters written by the current step; they skip this step's increment
	counterWrites uint8
}

const (
	wroteCycle uint8 = 1 << iota
	wroteInstret
)

func NewState(cfg Config) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &State{
		Config: cfg,
		Memory: NewMemory(cfg.RAMBase, cfg.RAMSize),
		CLINT:  NewCLINT(),
		UART:   NewUART(nil),
		CSR:    NewCSRFile(),
		PC:     cfg.RAMBase,
		Priv:   riscv.PrivMachine,
	}
	if _, err := s.Bus(); err != nil {
		return nil, err
	}
	return s, nil
}

// Bus returns the address routing of the machine, building it on first use
// (a State decoded from JSON has no bus yet).
func (s *State) Bus() (*Bus, error) {
	if s.bus != nil {
		return s.bus, nil
	}
	if s.Memory == nil {
		return nil, errors.New("state has no memory")
	}
	if s.CLINT == nil {
		s.CLINT = NewCLINT()
	}
	if s.UART == nil {
		s.UART = NewUART(nil)
	}
	if s.CSR == nil {
		s.CSR = NewCSRFile()
	}
	b := NewBus(s.Memory)
	if err := b.AddDevice("clint", s.Config.CLINTBase, s.CLINT); err != nil {
		return nil, err
	}
	if err := b.AddDevice("uart", s.Config.UARTBase, s.UART); err != nil {
		return nil, err
	}
	s.bus = b
	return b, nil
}

func (s *State) writeRegister(reg uint8, v uint32) {
	if reg == 0 {
		return
	}
	s.Registers[reg] = v
}

// LastTrap is the trap taken by the most recent step, if any.
func (s *State) LastTrap() Trap {
	return s.lastTrap
}

// Instr returns the instruction word at the PC, or 0 if the PC is not in RAM.
func (s *State) Instr() uint32 {
	if !s.Memory.Contains(s.PC, 4) {
		return 0
	}
	return s.Memory.Load(s.PC, 4)
}

// syncInterrupts drives the device interrupt lines into mip.
func (s *State) syncInterrupts() {
	s.CSR.Set(riscv.CSRMip, s.CLINT.Pending()|s.UART.Pending())
}

// tick advances machine time by one step.
func (s *State) tick() {
	s.Step++
	if s.counterWrites&wroteCycle == 0 {
		s.CSR.incCounter(riscv.CSRMcycle, riscv.CSRMcycleh)
	}
	if s.Config.TimerDivider <= 1 || s.Step%uint64(s.Config.TimerDivider) == 0 {
		s.CLINT.Tick()
	}
	s.CSR.setCounter(riscv.CSRTime, riscv.CSRTimeh, s.CLINT.Mtime)
	s.syncInterrupts()
}

func (s *State) retire() {
	if s.counterWrites&wroteInstret == 0 {
		s.CSR.incCounter(riscv.CSRMinstret, riscv.CSRMinstreth)
	}
}

// noteCounterWrite keeps an explicit CSR write to a counter visible to the next instruction.
func (s *State) noteCounterWrite(addr uint16) {
	switch addr {
	case riscv.CSRMcycle, riscv.CSRMcycleh:
		s.counterWrites |= wroteCycle
	case riscv.CSRMinstret, riscv.CSRMinstreth:
		s.counterWrites |= wroteInstret
	}
}

// StateWitness is a compact binary encoding of the machine, with RAM folded into its hash.
type StateWitness []byte

const witnessHeaderLen = 7*4 + 4 + 7 + 32 + 4 + 1 + 1 + 4 + 8 + 1 + 4 + 32*4 + 4 + 8 + 8 + 7 + 4

func (sw StateWitness) StateHash() (common.Hash, error) {
	if len(sw) < witnessHeaderLen {
		return common.Hash{}, fmt.Errorf("invalid witness length %d, expected at least %d", len(sw), witnessHeaderLen)
	}
	return crypto.Keccak256Hash(sw), nil
}

// EncodeWitness serializes everything that determines future execution,
// machine layout and test mode included. Two states with the same witness behave
// identically. Bootargs only feed device tree generation and are left out.
func (s *State) EncodeWitness() StateWitness {
	out := make([]byte, 0, witnessHeaderLen+64)
	c := s.Config
	for _, v := range []uint32{c.RAMBase, c.RAMSize, c.CLINTBase, c.UARTBase, c.DTBOffset, c.TimerDivider, c.TimebaseFrequency} {
		out = binary.BigEndian.AppendUint32(out, v)
	}
	out = binary.BigEndian.AppendUint32(out, s.Memory.Base())
	tm := s.TestMode
	if tm.Enabled {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = append(out, tm.ResultReg, tm.MarkerReg)
	out = binary.BigEndian.AppendUint32(out, tm.Marker)
	memHash := s.Memory.Hash()
	out = append(out, memHash[:]...)
	out = binary.BigEndian.AppendUint32(out, s.PC)
	out = append(out, s.Priv)
	if s.Exited {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = binary.BigEndian.AppendUint32(out, s.ExitCode)
	out = binary.BigEndian.AppendUint64(out, s.Step)
	if s.Reservation.Valid {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = binary.BigEndian.AppendUint32(out, s.Reservation.Addr)
	for _, r := range s.Registers {
		out = binary.BigEndian.AppendUint32(out, r)
	}
	out = binary.BigEndian.AppendUint32(out, s.CLINT.Msip)
	out = binary.BigEndian.AppendUint64(out, s.CLINT.Mtimecmp)
	out = binary.BigEndian.AppendUint64(out, s.CLINT.Mtime)
	u := s.UART
	out = append(out, u.IER, u.FCR, u.LCR, u.MCR, u.SCR, u.DLL, u.DLM)
	out = binary.BigEndian.AppendUint32(out, uint32(len(u.Input)))
	out = append(out, u.Input...)
	for addr, v := range s.CSR.values {
		if v != 0 {
			out = binary.BigEndian.AppendUint16(out, uint16(addr))
			out = binary.BigEndian.AppendUint32(out, v)
		}
	}
	return out
}
