package vm

import (
	"errors"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

// busTrap turns a bus error into an access fault. Errors other than an unmapped
// address come from a device or the host and are returned as-is.
func busTrap(err error, cause, addr uint32) (Trap, error) {
	if errors.Is(err, ErrUnmapped) {
		return exception(cause, addr), nil
	}
	return noTrap, err
}

// storeMem writes through the bus and drops a reservation covering any stored byte.
func storeMem(s *State, addr uint32, size int, value uint32) error {
	if err := s.bus.Store(addr, size, value); err != nil {
		return err
	}
	if s.Reservation.overlaps(addr, size) {
		s.Reservation = Reservation{}
	}
	return nil
}

// execute applies one decoded instruction. It returns the next PC, or a trap
// (in which case no architectural state has been committed), or a host error.
func execute(s *State, ins Instruction) (uint32, Trap, error) {
	pc := s.PC
	next := pc + 4
	rs1 := s.Registers[ins.Rs1]
	rs2 := s.Registers[ins.Rs2]
	imm := uint32(ins.Imm)

	switch ins.Op.Family() {
	case FamilyUpper:
		if ins.Op == LUI {
			s.writeRegister(ins.Rd, imm)
		} else {
			s.writeRegister(ins.Rd, pc+imm)
		}

	case FamilyJump:
		target := pc + imm
		if ins.Op == JALR {
			target = (rs1 + imm) &^ 1
		}
		if target&3 != 0 {
			return 0, exception(riscv.CauseInsnAddrMisaligned, target), nil
		}
		s.writeRegister(ins.Rd, next)
		next = target

	case FamilyBranch:
		var taken bool
		switch ins.Op {
		case BEQ:
			taken = rs1 == rs2
		case BNE:
			taken = rs1 != rs2
		case BLT:
			taken = int32(rs1) < int32(rs2)
		case BGE:
			taken = int32(rs1) >= int32(rs2)
		case BLTU:
			taken = rs1 < rs2
		case BGEU:
			taken = rs1 >= rs2
		}
		if taken {
			target := pc + imm
			if target&3 != 0 {
				return 0, exception(riscv.CauseInsnAddrMisaligned, target), nil
			}
			next = target
		}

	case FamilyLoad:
		addr := rs1 + imm
		var size int
		switch ins.Op {
		case LB, LBU:
			size = 1
		case LH, LHU:
			size = 2
		default:
			size = 4
		}
		v, err := s.bus.Load(addr, size)
		if err != nil {
			t, err := busTrap(err, riscv.CauseLoadAccessFault, addr)
			return 0, t, err
		}
		switch ins.Op {
		case LB:
			v = uint32(int32(int8(v)))
		case LH:
			v = uint32(int32(int16(v)))
		}
		s.writeRegister(ins.Rd, v)

	case FamilyStore:
		addr := rs1 + imm
		size := 4
		switch ins.Op {
		case SB:
			size = 1
		case SH:
			size = 2
		}
		if err := storeMem(s, addr, size, rs2); err != nil {
			t, err := busTrap(err, riscv.CauseStoreAccessFault, addr)
			return 0, t, err
		}

	case FamilyALUImm:
		s.writeRegister(ins.Rd, alu(ins.Op, rs1, imm))

	case FamilyALU:
		s.writeRegister(ins.Rd, alu(ins.Op, rs1, rs2))

	case FamilyMulDiv:
		s.writeRegister(ins.Rd, mulDiv(ins.Op, rs1, rs2))

	case FamilyAtomic:
		if t, err := executeAtomic(s, ins, rs1, rs2); t.Pending() || err != nil {
			return 0, t, err
		}

	case FamilyFence:
		// single hart, no caches: ordering is implicit

	case FamilyCSR:
		if t := executeCSR(s, ins, rs1); t.Pending() {
			return 0, t, nil
		}

	case FamilySystem:
		switch ins.Op {
		case ECALL:
			if s.Priv == riscv.PrivUser {
				return 0, exception(riscv.CauseEcallFromU, 0), nil
			}
			return 0, exception(riscv.CauseEcallFromM, 0), nil
		case EBREAK:
			return 0, exception(riscv.CauseBreakpoint, pc), nil
		case MRET:
			if s.Priv != riscv.PrivMachine {
				return 0, exception(riscv.CauseIllegalInsn, ins.Raw), nil
			}
			next = mret(s)
		case WFI:
			// hint: the next interrupt check happens at the following step anyway
		}

	default:
		return 0, exception(riscv.CauseIllegalInsn, ins.Raw), nil
	}
	return next, noTrap, nil
}

func alu(op Op, a, b uint32) uint32 {
	switch op {
	case ADD, ADDI:
		return a + b
	case SUB:
		return a - b
	case SLL, SLLI:
		return a << (b & 31)
	case SLT, SLTI:
		if int32(a) < int32(b) {
			return 1
		}
		return 0
	case SLTU, SLTIU:
		if a < b {
			return 1
		}
		return 0
	case XOR, XORI:
		return a ^ b
	case SRL, SRLI:
		return a >> (b & 31)
	case SRA, SRAI:
		return uint32(int32(a) >> (b & 31))
	case OR, ORI:
		return a | b
	case AND, ANDI:
		return a & b
	}
	panic("alu: unexpected op " + op.String())
}

func mulDiv(op Op, a, b uint32) uint32 {
	switch op {
	case MUL:
		return a * b
	case MULH:
		return uint32(uint64(int64(int32(a))*int64(int32(b))) >> 32)
	case MULHSU:
		return uint32(uint64(int64(int32(a))*int64(b)) >> 32)
	case MULHU:
		return uint32((uint64(a) * uint64(b)) >> 32)
	case DIV:
		switch {
		case b == 0:
			return ^uint32(0)
		case int32(a) == -1<<31 && int32(b) == -1:
			return a
		}
		return uint32(int32(a) / int32(b))
	case DIVU:
		if b == 0 {
			return ^uint32(0)
		}
		return a / b
	case REM:
		switch {
		case b == 0:
			return a
		case int32(a) == -1<<31 && int32(b) == -1:
			return 0
		}
		return uint32(int32(a) % int32(b))
	case REMU:
		if b == 0 {
			return a
		}
		return a % b
	}
	panic("mulDiv: unexpected op " + op.String())
}

func executeAtomic(s *State, ins Instruction, addr, src uint32) (Trap, error) {
	switch ins.Op {
	case LR_W:
		if addr&3 != 0 {
			return exception(riscv.CauseLoadAddrMisaligned, addr), nil
		}
		v, err := s.bus.Load(addr, 4)
		if err != nil {
			return busTrap(err, riscv.CauseLoadAccessFault, addr)
		}
		s.writeRegister(ins.Rd, v)
		s.Reservation = Reservation{Valid: true, Addr: addr}
		return noTrap, nil

	case SC_W:
		if addr&3 != 0 {
			return exception(riscv.CauseStoreAddrMisaligned, addr), nil
		}
		ok := s.Reservation.Valid && s.Reservation.Addr == addr
		s.Reservation = Reservation{}
		if !ok {
			s.writeRegister(ins.Rd, 1)
			return noTrap, nil
		}
		if err := storeMem(s, addr, 4, src); err != nil {
			return busTrap(err, riscv.CauseStoreAccessFault, addr)
		}
		s.writeRegister(ins.Rd, 0)
		return noTrap, nil
	}

	if addr&3 != 0 {
		return exception(riscv.CauseStoreAddrMisaligned, addr), nil
	}
	old, err := s.bus.Load(addr, 4)
	if err != nil {
		return busTrap(err, riscv.CauseStoreAccessFault, addr)
	}
	var v uint32
	switch ins.Op {
	case AMOSWAP_W:
		v = src
	case AMOADD_W:
		v = old + src
	case AMOXOR_W:
		v = old ^ src
	case AMOAND_W:
		v = old & src
	case AMOOR_W:
		v = old | src
	case AMOMIN_W:
		v = old
		if int32(src) < int32(old) {
			v = src
		}
	case AMOMAX_W:
		v = old
		if int32(src) > int32(old) {
			v = src
		}
	case AMOMINU_W:
		v = min(old, src)
	case AMOMAXU_W:
		v = max(old, src)
	}
	if err := storeMem(s, addr, 4, v); err != nil {
		return busTrap(err, riscv.CauseStoreAccessFault, addr)
	}
	s.writeRegister(ins.Rd, old)
	return noTrap, nil
}

// executeCSR implements the Zicsr read-modify-write. CSRRW(I) with rd=x0 does not
// read, CSRRS/CSRRC with a zero source do not write; skipped accesses cannot fault.
func executeCSR(s *State, ins Instruction, rs1 uint32) Trap {
	src := rs1
	switch ins.Op {
	case CSRRWI, CSRRSI, CSRRCI:
		src = uint32(ins.Rs1)
	}
	isSwap := ins.Op == CSRRW || ins.Op == CSRRWI
	doRead := !isSwap || ins.Rd != 0
	doWrite := isSwap || ins.Rs1 != 0

	var old uint32
	if doRead {
		v, err := s.CSR.Read(ins.CSR, s.Priv)
		if err != nil {
			return exception(riscv.CauseIllegalInsn, ins.Raw)
		}
		old = v
	}
	if doWrite {
		v := src
		switch ins.Op {
		case CSRRS, CSRRSI:
			v = old | src
		case CSRRC, CSRRCI:
			v = old &^ src
		}
		if err := s.CSR.Write(ins.CSR, v, s.Priv); err != nil {
			return exception(riscv.CauseIllegalInsn, ins.Raw)
		}
		s.noteCounterWrite(ins.CSR)
	}
	s.writeRegister(ins.Rd, old)
	return noTrap
}
