package vm

// Field and immediate extraction for the base RV32 instruction formats.

func signExtend(v uint32, bit uint32) int32 {
	shift := 31 - bit
	return int32(v<<shift) >> shift
}

func parseImmTypeI(instr uint32) int32 {
	return signExtend(instr>>20, 11)
}

func parseImmTypeS(instr uint32) int32 {
	return signExtend((instr>>25)<<5|(instr>>7)&0x1F, 11)
}

func parseImmTypeB(instr uint32) int32 {
	return signExtend(
		((instr>>8)&0xF)<<1|
			((instr>>25)&0x3F)<<5|
			((instr>>7)&1)<<11|
			(instr>>31)<<12,
		12,
	)
}

func parseImmTypeU(instr uint32) int32 {
	return int32(instr & 0xFFFFF000)
}

func parseImmTypeJ(instr uint32) int32 {
	return signExtend(
		((instr>>21)&0x3FF)<<1|
			((instr>>20)&1)<<11|
			((instr>>12)&0xFF)<<12|
			(instr>>31)<<20,
		20,
	)
}

func parseOpcode(instr uint32) uint32 {
	return instr & 0x7F
}

func parseRd(instr uint32) uint8 {
	return uint8((instr >> 7) & 0x1F)
}

func parseFunct3(instr uint32) uint32 {
	return (instr >> 12) & 0x7
}

func parseRs1(instr uint32) uint8 {
	return uint8((instr >> 15) & 0x1F)
}

func parseRs2(instr uint32) uint8 {
	return uint8((instr >> 20) & 0x1F)
}

func parseFunct7(instr uint32) uint32 {
	return instr >> 25
}
