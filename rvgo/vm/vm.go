package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

type Status uint8

const (
	StatusContinue Status = iota
	StatusHalted
	StatusFault
)

func (st Status) String() string {
	switch st {
	case StatusContinue:
		return "continue"
	case StatusHalted:
		return "halted"
	case StatusFault:
		return "fault"
	}
	return fmt.Sprintf("status(%d)", uint8(st))
}

// ErrNoTrapPath is returned when the trap handler itself cannot be fetched,
// so every further step would trap into the same fault.
var ErrNoTrapPath = errors.New("trap handler is not executable")

// fetch reads and decodes the instruction at the PC.
func fetch(s *State) (Instruction, Trap, error) {
	if s.PC&3 != 0 {
		return Instruction{}, exception(riscv.CauseInsnAddrMisaligned, s.PC), nil
	}
	raw, err := s.bus.Fetch(s.PC)
	if err != nil {
		t, err := busTrap(err, riscv.CauseInsnAccessFault, s.PC)
		return Instruction{}, t, err
	}
	ins, ok := Decode(raw)
	if !ok {
		return ins, exception(riscv.CauseIllegalInsn, raw), nil
	}
	return ins, noTrap, nil
}

// testHalt applies the test-mode termination conventions to the instruction
// about to execute. It reports whether the machine halted.
func testHalt(s *State, ins Instruction) bool {
	tm := s.TestMode
	if !tm.Enabled {
		return false
	}
	switch {
	case ins.Op == ECALL && s.Registers[tm.MarkerReg&31] == tm.Marker:
		s.ExitCode = s.Registers[tm.ResultReg&31]
	case ins.Op == JAL && ins.Rd == 0 && ins.Imm == 0 && !interruptsPossible(s):
		s.ExitCode = 0
	default:
		return false
	}
	s.Exited = true
	return true
}

// interruptsPossible reports whether any interrupt could still be taken.
func interruptsPossible(s *State) bool {
	if s.CSR.Get(riscv.CSRMie) == 0 {
		return false
	}
	return s.Priv != riscv.PrivMachine || s.CSR.Get(riscv.CSRMstatus)&riscv.MstatusMIE != 0
}

// Step executes one instruction, or takes one trap, and advances machine time by one tick.
// A non-nil error always comes with StatusFault and leaves the state at the failing instruction.
func Step(s *State) (Status, error) {
	if s.Exited {
		return StatusHalted, nil
	}
	if _, err := s.Bus(); err != nil {
		return StatusFault, err
	}
	s.lastTrap = noTrap
	s.counterWrites = 0

	s.syncInterrupts()
	t := pendingInterrupt(s)
	if !t.Pending() {
		ins, ft, err := fetch(s)
		if err != nil {
			return StatusFault, fmt.Errorf("fetch at 0x%08x: %w", s.PC, err)
		}
		switch {
		case ft.Pending():
			if ft.Cause != riscv.CauseIllegalInsn && s.PC == s.CSR.Get(riscv.CSRMtvec)&^3 {
				return StatusFault, fmt.Errorf("%w: %s at 0x%08x", ErrNoTrapPath, ft, s.PC)
			}
			t = ft
		case testHalt(s, ins):
			s.tick()
			return StatusHalted, nil
		default:
			next, et, err := execute(s, ins)
			if err != nil {
				return StatusFault, fmt.Errorf("%s at 0x%08x: %w", ins, s.PC, err)
			}
			if et.Pending() {
				t = et
			} else {
				s.PC = next
				s.retire()
			}
		}
	}
	if t.Pending() {
		enterTrap(s, t)
	}
	s.tick()
	return StatusContinue, nil
}

// Run steps until the machine halts or faults, maxSteps steps have run (0 means
// no limit) or ctx is done. Reaching the step limit returns StatusContinue.
func Run(ctx context.Context, s *State, maxSteps uint64) (Status, error) {
	for i := uint64(0); maxSteps == 0 || i < maxSteps; i++ {
		if i%100 == 0 { // don't do the ctx err check (includes lock) too often
			if err := ctx.Err(); err != nil {
				return StatusContinue, err
			}
		}
		if st, err := Step(s); st != StatusContinue || err != nil {
			return st, err
		}
	}
	return StatusContinue, nil
}
