package vm

import (
	"fmt"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

// Op identifies one supported instruction. The zero value is not a valid instruction.
type Op uint8

const (
	OpInvalid Op = iota

	LUI
	AUIPC
	JAL
	JALR

	BEQ
	BNE
	BLT
	BGE
	BLTU
	BGEU

	LB
	LH
	LW
	LBU
	LHU
	SB
	SH
	SW

	ADDI
	SLTI
	SLTIU
	XORI
	ORI
	ANDI
	SLLI
	SRLI
	SRAI

	ADD
	SUB
	SLL
	SLT
	SLTU
	XOR
	SRL
	SRA
	OR
	AND

	MUL
	MULH
	MULHSU
	MULHU
	DIV
	DIVU
	REM
	REMU

	LR_W
	SC_W
	AMOSWAP_W
	AMOADD_W
	AMOXOR_W
	AMOAND_W
	AMOOR_W
	AMOMIN_W
	AMOMAX_W
	AMOMINU_W
	AMOMAXU_W

	FENCE
	FENCE_I

	CSRRW
	CSRRS
	CSRRC
	CSRRWI
	CSRRSI
	CSRRCI

	ECALL
	EBREAK
	MRET
	WFI

	numOps
)

// Family groups instructions that share operand shape and execution path.
type Family uint8

const (
	FamilyInvalid Family = iota
	FamilyUpper          // lui, auipc
	FamilyJump           // jal, jalr
	FamilyBranch
	FamilyLoad
	FamilyStore
	FamilyALUImm
	FamilyALU
	FamilyMulDiv
	FamilyAtomic
	FamilyFence
	FamilyCSR
	FamilySystem // ecall, ebreak, mret, wfi
)

type opInfo struct {
	name   string
	family Family
}

// indexed by Op, in declaration order
var opTable = [numOps]opInfo{
	{"invalid", FamilyInvalid},
	{"lui", FamilyUpper},
	{"auipc", FamilyUpper},

	{"jal", FamilyJump},
	{"jalr", FamilyJump},

	{"beq", FamilyBranch},
	{"bne", FamilyBranch},
	{"blt", FamilyBranch},
	{"bge", FamilyBranch},
	{"bltu", FamilyBranch},
	{"bgeu", FamilyBranch},

	{"lb", FamilyLoad},
	{"lh", FamilyLoad},
	{"lw", FamilyLoad},
	{"lbu", FamilyLoad},
	{"lhu", FamilyLoad},

	{"sb", FamilyStore},
	{"sh", FamilyStore},
	{"sw", FamilyStore},

	{"addi", FamilyALUImm},
	{"slti", FamilyALUImm},
	{"sltiu", FamilyALUImm},
	{"xori", FamilyALUImm},
	{"ori", FamilyALUImm},
	{"andi", FamilyALUImm},
	{"slli", FamilyALUImm},
	{"srli", FamilyALUImm},
	{"srai", FamilyALUImm},

	{"add", FamilyALU},
	{"sub", FamilyALU},
	{"sll", FamilyALU},
	{"slt", FamilyALU},
	{"sltu", FamilyALU},
	{"xor", FamilyALU},
	{"srl", FamilyALU},
	{"sra", FamilyALU},
	{"or", FamilyALU},
	{"and", FamilyALU},

	{"mul", FamilyMulDiv},
	{"mulh", FamilyMulDiv},
	{"mulhsu", FamilyMulDiv},
	{"mulhu", FamilyMulDiv},
	{"div", FamilyMulDiv},
	{"divu", FamilyMulDiv},
	{"rem", FamilyMulDiv},
	{"remu", FamilyMulDiv},

	{"lr.w", FamilyAtomic},
	{"sc.w", FamilyAtomic},
	{"amoswap.w", FamilyAtomic},
	{"amoadd.w", FamilyAtomic},
	{"amoxor.w", FamilyAtomic},
	{"amoand.w", FamilyAtomic},
	{"amoor.w", FamilyAtomic},
	{"amomin.w", FamilyAtomic},
	{"amomax.w", FamilyAtomic},
	{"amominu.w", FamilyAtomic},
	{"amomaxu.w", FamilyAtomic},

	{"fence", FamilyFence},
	{"fence.i", FamilyFence},

	{"csrrw", FamilyCSR},
	{"csrrs", FamilyCSR},
	{"csrrc", FamilyCSR},
	{"csrrwi", FamilyCSR},
	{"csrrsi", FamilyCSR},
	{"csrrci", FamilyCSR},

	{"ecall", FamilySystem},
	{"ebreak", FamilySystem},
	{"mret", FamilySystem},
	{"wfi", FamilySystem},
}

func (op Op) String() string {
	if op >= numOps {
		return fmt.Sprintf("op(%d)", uint8(op))
	}
	return opTable[op].name
}

func (op Op) Family() Family {
	if op >= numOps {
		return FamilyInvalid
	}
	return opTable[op].family
}

// Instruction is a decoded instruction word. Which operands are meaningful
// depends on the family: CSR instructions carry the CSR address in CSR and,
// for immediate forms, the 5-bit uimm in Rs1.
type Instruction struct {
	Op  Op
	Rd  uint8
	Rs1 uint8
	Rs2 uint8
	Imm int32
	CSR uint16
	Raw uint32
}

func (ins Instruction) String() string {
	name := ins.Op.String()
	switch ins.Op.Family() {
	case FamilyUpper:
		return fmt.Sprintf("%s x%d, 0x%x", name, ins.Rd, uint32(ins.Imm)>>12)
	case FamilyJump:
		if ins.Op == JAL {
			return fmt.Sprintf("%s x%d, %d", name, ins.Rd, ins.Imm)
		}
		return fmt.Sprintf("%s x%d, %d(x%d)", name, ins.Rd, ins.Imm, ins.Rs1)
	case FamilyBranch:
		return fmt.Sprintf("%s x%d, x%d, %d", name, ins.Rs1, ins.Rs2, ins.Imm)
	case FamilyLoad:
		return fmt.Sprintf("%s x%d, %d(x%d)", name, ins.Rd, ins.Imm, ins.Rs1)
	case FamilyStore:
		return fmt.Sprintf("%s x%d, %d(x%d)", name, ins.Rs2, ins.Imm, ins.Rs1)
	case FamilyALUImm:
		return fmt.Sprintf("%s x%d, x%d, %d", name, ins.Rd, ins.Rs1, ins.Imm)
	case FamilyALU, FamilyMulDiv:
		return fmt.Sprintf("%s x%d, x%d, x%d", name, ins.Rd, ins.Rs1, ins.Rs2)
	case FamilyAtomic:
		if ins.Op == LR_W {
			return fmt.Sprintf("%s x%d, (x%d)", name, ins.Rd, ins.Rs1)
		}
		return fmt.Sprintf("%s x%d, x%d, (x%d)", name, ins.Rd, ins.Rs2, ins.Rs1)
	case FamilyCSR:
		switch ins.Op {
		case CSRRWI, CSRRSI, CSRRCI:
			return fmt.Sprintf("%s x%d, %s, %d", name, ins.Rd, CSRName(ins.CSR), ins.Rs1)
		}
		return fmt.Sprintf("%s x%d, %s, x%d", name, ins.Rd, CSRName(ins.CSR), ins.Rs1)
	}
	return name
}

var (
	branchOps = [8]Op{BEQ, BNE, OpInvalid, OpInvalid, BLT, BGE, BLTU, BGEU}
	loadOps   = [8]Op{LB, LH, LW, OpInvalid, LBU, LHU, OpInvalid, OpInvalid}
	storeOps  = [8]Op{SB, SH, SW, OpInvalid, OpInvalid, OpInvalid, OpInvalid, OpInvalid}
	immOps    = [8]Op{ADDI, SLLI, SLTI, SLTIU, XORI, SRLI, ORI, ANDI}
	regOps    = [8]Op{ADD, SLL, SLT, SLTU, XOR, SRL, OR, AND}
	mulDivOps = [8]Op{MUL, MULH, MULHSU, MULHU, DIV, DIVU, REM, REMU}
	csrOps    = [8]Op{OpInvalid, CSRRW, CSRRS, CSRRC, OpInvalid, CSRRWI, CSRRSI, CSRRCI}
)

// indexed by funct5 of the A extension
var amoOps = map[uint32]Op{
	0x00: AMOADD_W,
	0x01: AMOSWAP_W,
	0x02: LR_W,
	0x03: SC_W,
	0x04: AMOXOR_W,
	0x08: AMOOR_W,
	0x0C: AMOAND_W,
	0x10: AMOMIN_W,
	0x14: AMOMAX_W,
	0x18: AMOMINU_W,
	0x1C: AMOMAXU_W,
}

// fully fixed SYSTEM encodings
var systemOps = map[uint32]Op{
	0x00000073: ECALL,
	0x00100073: EBREAK,
	0x30200073: MRET,
	0x10500073: WFI,
}

// Decode classifies a raw instruction word. It is pure and total: any word
// that is not exactly one supported encoding reports false.
func Decode(raw uint32) (Instruction, bool) {
	ins := Instruction{
		Rd:  parseRd(raw),
		Rs1: parseRs1(raw),
		Rs2: parseRs2(raw),
		Raw: raw,
	}
	funct3 := parseFunct3(raw)
	funct7 := parseFunct7(raw)

	switch parseOpcode(raw) {
	case riscv.OpLUI:
		ins.Op = LUI
		ins.Imm = parseImmTypeU(raw)
	case riscv.OpAUIPC:
		ins.Op = AUIPC
		ins.Imm = parseImmTypeU(raw)
	case riscv.OpJAL:
		ins.Op = JAL
		ins.Imm = parseImmTypeJ(raw)
	case riscv.OpJALR:
		if funct3 == 0 {
			ins.Op = JALR
			ins.Imm = parseImmTypeI(raw)
		}
	case riscv.OpBranch:
		ins.Op = branchOps[funct3]
		ins.Imm = parseImmTypeB(raw)
	case riscv.OpLoad:
		ins.Op = loadOps[funct3]
		ins.Imm = parseImmTypeI(raw)
	case riscv.OpStore:
		ins.Op = storeOps[funct3]
		ins.Imm = parseImmTypeS(raw)
	case riscv.OpImm:
		ins.Op = immOps[funct3]
		ins.Imm = parseImmTypeI(raw)
		switch ins.Op {
		case SLLI:
			if funct7 != 0 {
				ins.Op = OpInvalid
			}
			ins.Imm = int32(ins.Rs2)
		case SRLI:
			switch funct7 {
			case 0x00:
			case 0x20:
				ins.Op = SRAI
			default:
				ins.Op = OpInvalid
			}
			ins.Imm = int32(ins.Rs2)
		}
	case riscv.OpReg:
		switch funct7 {
		case 0x00:
			ins.Op = regOps[funct3]
		case 0x01:
			ins.Op = mulDivOps[funct3]
		case 0x20:
			switch funct3 {
			case 0:
				ins.Op = SUB
			case 5:
				ins.Op = SRA
			}
		}
	case riscv.OpAMO:
		if funct3 == 2 {
			ins.Op = amoOps[raw>>27]
			if ins.Op == LR_W && ins.Rs2 != 0 {
				ins.Op = OpInvalid
			}
		}
	case riscv.OpMiscMem:
		switch funct3 {
		case 0:
			ins.Op = FENCE
		case 1:
			ins.Op = FENCE_I
		}
	case riscv.OpSystem:
		if funct3 == 0 {
			ins.Op = systemOps[raw]
		} else {
			ins.Op = csrOps[funct3]
			ins.CSR = uint16(raw >> 20)
		}
	}
	if ins.Op == OpInvalid {
		return Instruction{Raw: raw}, false
	}
	return ins, true
}
