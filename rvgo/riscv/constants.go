package riscv

// Memory map defaults. RAM, CLINT and UART windows can be moved through the machine config.
const (
	RAMBase   = uint32(0x8000_0000)
	RAMSize   = uint32(64 << 20)
	CLINTBase = uint32(0x0200_0000)
	CLINTSize = uint32(0x0001_0000)
	UARTBase  = uint32(0x1000_0000)
	UARTSize  = uint32(0x0000_0100)

	// DTBReserve is the space kept free for the device tree at the top of RAM.
	DTBReserve = uint32(1 << 20)
)

const (
	PrivUser    = 0
	PrivMachine = 3
)

const (
	OpLoad     = 0x03 // 000_0011
	OpMiscMem  = 0x0F // 000_1111
	OpImm      = 0x13 // 001_0011
	OpAUIPC    = 0x17 // 001_0111
	OpStore    = 0x23 // 010_0011
	OpAMO      = 0x2F // 010_1111
	OpReg      = 0x33 // 011_0011
	OpLUI      = 0x37 // 011_0111
	OpBranch   = 0x63 // 110_0011
	OpJALR     = 0x67 // 110_0111
	OpJAL      = 0x6F // 110_1111
	OpSystem   = 0x73 // 111_0011
	OpcodeMask = 0x7F
)

// misa: MXL=1 (32 bit), with A, I, M and U.
const (
	MisaA    = 1 << 0
	MisaI    = 1 << 8
	MisaM    = 1 << 12
	MisaU    = 1 << 20
	MisaMXL  = 1 << 30
	MisaRV32 = MisaMXL | MisaA | MisaI | MisaM | MisaU
)

const (
	MstatusMIE      = 1 << 3
	MstatusMPIE     = 1 << 7
	MstatusMPPShift = 11
	MstatusMPP      = 3 << MstatusMPPShift
)

// Interrupt bits, shared by mip and mie.
const (
	MipMSIP = 1 << IntMachineSoftware
	MipMTIP = 1 << IntMachineTimer
	MipMEIP = 1 << IntMachineExternal
)

const (
	IntMachineSoftware = 3
	IntMachineTimer    = 7
	IntMachineExternal = 11

	InterruptBit = uint32(1) << 31
)

const (
	CauseInsnAddrMisaligned  = 0
	CauseInsnAccessFault     = 1
	CauseIllegalInsn         = 2
	CauseBreakpoint          = 3
	CauseLoadAddrMisaligned  = 4
	CauseLoadAccessFault     = 5
	CauseStoreAddrMisaligned = 6
	CauseStoreAccessFault    = 7
	CauseEcallFromU          = 8
	CauseEcallFromM          = 11
)

const (
	CSRMstatus    = 0x300
	CSRMisa       = 0x301
	CSRMie        = 0x304
	CSRMtvec      = 0x305
	CSRMcounteren = 0x306
	CSRMstatush   = 0x310
	CSRMscratch   = 0x340
	CSRMepc       = 0x341
	CSRMcause     = 0x342
	CSRMtval      = 0x343
	CSRMip        = 0x344
	CSRPmpcfg0    = 0x3A0
	CSRPmpaddr0   = 0x3B0
	CSRMcycle     = 0xB00
	CSRMinstret   = 0xB02
	CSRMcycleh    = 0xB80
	CSRMinstreth  = 0xB82
	CSRCycle      = 0xC00
	CSRTime       = 0xC01
	CSRInstret    = 0xC02
	CSRCycleh     = 0xC80
	CSRTimeh      = 0xC81
	CSRInstreth   = 0xC82
	CSRMvendorid  = 0xF11
	CSRMarchid    = 0xF12
	CSRMimpid     = 0xF13
	CSRMhartid    = 0xF14
)

// CLINT register offsets within its window.
const (
	ClintMsip       = 0x0000
	ClintMtimecmp   = 0x4000
	ClintMtimecmpHi = 0x4004
	ClintMtime      = 0xBFF8
	ClintMtimeHi    = 0xBFFC
)

// riscv-tests end-of-test convention: a7 holds the exit marker, gp the test result.
const (
	RegGP = 3
	RegA0 = 10
	RegA1 = 11
	RegA7 = 17

	TestExitMarker = 93
)
