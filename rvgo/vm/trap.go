package vm

import (
	"fmt"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

type TrapKind uint8

const (
	TrapNone TrapKind = iota
	TrapException
	TrapInterrupt
)

// Trap is the pending trap descriptor of a single step. It never outlives the step that produced it.
type Trap struct {
	Kind  TrapKind
	Cause uint32
	Value uint32
}

var noTrap = Trap{}

func exception(cause, value uint32) Trap {
	return Trap{Kind: TrapException, Cause: cause, Value: value}
}

func interrupt(cause uint32) Trap {
	return Trap{Kind: TrapInterrupt, Cause: cause}
}

func (t Trap) Pending() bool {
	return t.Kind != TrapNone
}

// MCause is the value written into mcause on trap entry.
func (t Trap) MCause() uint32 {
	if t.Kind == TrapInterrupt {
		return riscv.InterruptBit | t.Cause
	}
	return t.Cause
}

var exceptionNames = map[uint32]string{
	riscv.CauseInsnAddrMisaligned:  "instruction address misaligned",
	riscv.CauseInsnAccessFault:     "instruction access fault",
	riscv.CauseIllegalInsn:         "illegal instruction",
	riscv.CauseBreakpoint:          "breakpoint",
	riscv.CauseLoadAddrMisaligned:  "load address misaligned",
	riscv.CauseLoadAccessFault:     "load access fault",
	riscv.CauseStoreAddrMisaligned: "store/AMO address misaligned",
	riscv.CauseStoreAccessFault:    "store/AMO access fault",
	riscv.CauseEcallFromU:          "environment call from U-mode",
	riscv.CauseEcallFromM:          "environment call from M-mode",
}

var interruptNames = map[uint32]string{
	riscv.IntMachineSoftware: "machine software interrupt",
	riscv.IntMachineTimer:    "machine timer interrupt",
	riscv.IntMachineExternal: "machine external interrupt",
}

func (t Trap) String() string {
	switch t.Kind {
	case TrapException:
		name, ok := exceptionNames[t.Cause]
		if !ok {
			name = fmt.Sprintf("exception %d", t.Cause)
		}
		return fmt.Sprintf("%s (tval 0x%08x)", name, t.Value)
	case TrapInterrupt:
		if name, ok := interruptNames[t.Cause]; ok {
			return name
		}
		return fmt.Sprintf("interrupt %d", t.Cause)
	}
	return "none"
}

// Priority order when several enabled interrupts are pending at once.
var interruptPriority = [...]uint32{
	riscv.IntMachineTimer,
	riscv.IntMachineSoftware,
	riscv.IntMachineExternal,
}

// pendingInterrupt picks the interrupt to take at this instruction boundary, if any.
// Machine interrupts are always globally enabled while running in User mode.
func pendingInterrupt(s *State) Trap {
	if s.Priv == riscv.PrivMachine && s.CSR.Get(riscv.CSRMstatus)&riscv.MstatusMIE == 0 {
		return noTrap
	}
	pending := s.CSR.Get(riscv.CSRMie) & s.CSR.Get(riscv.CSRMip)
	if pending == 0 {
		return noTrap
	}
	for _, irq := range interruptPriority {
		if pending&(1<<irq) != 0 {
			return interrupt(irq)
		}
	}
	return noTrap
}

// enterTrap switches to Machine mode and redirects to the trap vector. Only direct mode exists.
func enterTrap(s *State, t Trap) {
	s.CSR.Set(riscv.CSRMepc, s.PC&^3)
	s.CSR.Set(riscv.CSRMcause, t.MCause())
	if t.Kind == TrapException {
		s.CSR.Set(riscv.CSRMtval, t.Value)
	} else {
		s.CSR.Set(riscv.CSRMtval, 0)
	}

	mstatus := s.CSR.Get(riscv.CSRMstatus)
	mstatus = (mstatus &^ riscv.MstatusMPP) | uint32(s.Priv)<<riscv.MstatusMPPShift
	if mstatus&riscv.MstatusMIE != 0 {
		mstatus |= riscv.MstatusMPIE
	} else {
		mstatus &^= riscv.MstatusMPIE
	}
	mstatus &^= riscv.MstatusMIE
	s.CSR.Set(riscv.CSRMstatus, mstatus)

	s.Priv = riscv.PrivMachine
	s.Reservation = Reservation{}
	s.PC = s.CSR.Get(riscv.CSRMtvec) &^ 3
	s.lastTrap = t
}

// mret leaves the trap handler: privilege and interrupt enable come back from
// mstatus, MPP drops to User. It returns the resume address.
func mret(s *State) uint32 {
	mstatus := s.CSR.Get(riscv.CSRMstatus)
	s.Priv = uint8((mstatus & riscv.MstatusMPP) >> riscv.MstatusMPPShift)
	if mstatus&riscv.MstatusMPIE != 0 {
		mstatus |= riscv.MstatusMIE
	} else {
		mstatus &^= riscv.MstatusMIE
	}
	mstatus |= riscv.MstatusMPIE
	mstatus &^= riscv.MstatusMPP
	s.CSR.Set(riscv.CSRMstatus, mstatus)
	return s.CSR.Get(riscv.CSRMepc)
}
