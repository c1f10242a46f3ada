package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

const handlerOffset = 0x100

// withHandler installs a trap handler that skips the trapping instruction.
func withHandler(s *State) uint32 {
	h := s.Config.RAMBase + handlerOffset
	for i, w := range []uint32{
		csrrs(5, riscv.CSRMepc, 0),
		addi(5, 5, 4),
		csrrw(0, riscv.CSRMepc, 5),
		insnMRET,
	} {
		s.Memory.Store(h+uint32(4*i), 4, w)
	}
	s.CSR.Set(riscv.CSRMtvec, h)
	return h
}

func TestTraps(t *testing.T) {
	base := riscv.RAMBase

	t.Run("ecall from user mode", func(t *testing.T) {
		s := newTestState(t, insnECALL, insnNOP)
		h := withHandler(s)
		s.Priv = riscv.PrivUser
		s.CSR.Set(riscv.CSRMstatus, riscv.MstatusMIE)

		st, err := Step(s)
		require.NoError(t, err)
		require.Equal(t, StatusContinue, st)
		require.Equal(t, h, s.PC)
		require.Equal(t, uint8(riscv.PrivMachine), s.Priv)
		require.Equal(t, uint32(riscv.CauseEcallFromU), s.CSR.Get(riscv.CSRMcause))
		require.Equal(t, base, s.CSR.Get(riscv.CSRMepc))
		mstatus := s.CSR.Get(riscv.CSRMstatus)
		require.Zero(t, mstatus&riscv.MstatusMIE)
		require.NotZero(t, mstatus&riscv.MstatusMPIE)
		require.Zero(t, mstatus&riscv.MstatusMPP, "MPP holds user mode")
		require.Equal(t, exception(riscv.CauseEcallFromU, 0), s.LastTrap())

		stepN(t, s, 4)
		require.Equal(t, base+4, s.PC)
		require.Equal(t, uint8(riscv.PrivUser), s.Priv)
		mstatus = s.CSR.Get(riscv.CSRMstatus)
		require.NotZero(t, mstatus&riscv.MstatusMIE, "restored from MPIE")
		require.Zero(t, mstatus&riscv.MstatusMPP)
		require.Equal(t, uint64(5), s.Step)
		require.Equal(t, uint32(4), s.CSR.Get(riscv.CSRMinstret), "the trapping ecall does not retire")
	})

	t.Run("ecall from machine mode", func(t *testing.T) {
		s := newTestState(t, insnECALL)
		withHandler(s)
		stepN(t, s, 1)
		require.Equal(t, uint32(riscv.CauseEcallFromM), s.CSR.Get(riscv.CSRMcause))
		require.Equal(t, uint32(riscv.MstatusMPP), s.CSR.Get(riscv.CSRMstatus)&riscv.MstatusMPP)
	})

	t.Run("ebreak", func(t *testing.T) {
		s := newTestState(t, insnNOP, insnEBREAK)
		withHandler(s)
		stepN(t, s, 2)
		require.Equal(t, uint32(riscv.CauseBreakpoint), s.CSR.Get(riscv.CSRMcause))
		require.Equal(t, base+4, s.CSR.Get(riscv.CSRMtval))
	})

	t.Run("illegal instruction", func(t *testing.T) {
		s := newTestState(t, 0xffffffff)
		h := withHandler(s)
		stepN(t, s, 1)
		require.Equal(t, h, s.PC)
		require.Equal(t, uint32(riscv.CauseIllegalInsn), s.CSR.Get(riscv.CSRMcause))
		require.Equal(t, uint32(0xffffffff), s.CSR.Get(riscv.CSRMtval))
	})

	t.Run("mret from user mode is illegal", func(t *testing.T) {
		s := newTestState(t, insnMRET)
		withHandler(s)
		s.Priv = riscv.PrivUser
		stepN(t, s, 1)
		require.Equal(t, uint32(riscv.CauseIllegalInsn), s.CSR.Get(riscv.CSRMcause))
		require.Equal(t, uint32(insnMRET), s.CSR.Get(riscv.CSRMtval))
	})

	t.Run("csr access from user mode is illegal", func(t *testing.T) {
		s := newTestState(t, csrrs(1, riscv.CSRMscratch, 0))
		withHandler(s)
		s.Priv = riscv.PrivUser
		s.Registers[1] = 77
		stepN(t, s, 1)
		require.Equal(t, uint32(riscv.CauseIllegalInsn), s.CSR.Get(riscv.CSRMcause))
		require.Equal(t, uint32(77), s.Registers[1], "rd untouched")
	})

	t.Run("wfi is a no-op", func(t *testing.T) {
		s := newTestState(t, insnWFI)
		stepN(t, s, 1)
		require.Equal(t, base+4, s.PC)
	})
}

func TestInterrupts(t *testing.T) {
	base := riscv.RAMBase
	all := uint32(riscv.MipMSIP | riscv.MipMTIP | riscv.MipMEIP)

	t.Run("timer fires on the next step", func(t *testing.T) {
		s := newTestState(t,
			lui(1, riscv.CLINTBase+riscv.ClintMtimecmp),
			sw(0, 1, 0),
			sw(0, 1, 4),
			insnNOP,
		)
		h := withHandler(s)
		s.CSR.Set(riscv.CSRMie, riscv.MipMTIP)
		s.CSR.Set(riscv.CSRMstatus, riscv.MstatusMIE)

		stepN(t, s, 3)
		require.Equal(t, base+12, s.PC)
		require.Equal(t, uint32(riscv.MipMTIP), s.CSR.Get(riscv.CSRMip))

		stepN(t, s, 1)
		require.Equal(t, h, s.PC)
		require.Equal(t, riscv.InterruptBit|riscv.IntMachineTimer, s.CSR.Get(riscv.CSRMcause))
		require.Equal(t, base+12, s.CSR.Get(riscv.CSRMepc), "interrupted instruction did not execute")
		require.Zero(t, s.CSR.Get(riscv.CSRMtval))
		require.Zero(t, s.CSR.Get(riscv.CSRMstatus)&riscv.MstatusMIE)
		require.Equal(t, interrupt(riscv.IntMachineTimer), s.LastTrap())
	})

	t.Run("disabled in machine mode", func(t *testing.T) {
		s := newTestState(t, insnNOP)
		withHandler(s)
		s.CLINT.Mtimecmp = 0
		s.CSR.Set(riscv.CSRMie, all)
		stepN(t, s, 1)
		require.Equal(t, base+4, s.PC)
		require.False(t, s.LastTrap().Pending())
	})

	t.Run("always enabled in user mode", func(t *testing.T) {
		s := newTestState(t, insnNOP)
		h := withHandler(s)
		s.Priv = riscv.PrivUser
		s.CLINT.Mtimecmp = 0
		s.CSR.Set(riscv.CSRMie, riscv.MipMTIP)
		stepN(t, s, 1)
		require.Equal(t, h, s.PC)
		require.Equal(t, uint8(riscv.PrivMachine), s.Priv)
		mstatus := s.CSR.Get(riscv.CSRMstatus)
		require.Zero(t, mstatus&riscv.MstatusMPP)
		require.Zero(t, mstatus&riscv.MstatusMPIE)
	})

	t.Run("masked by mie", func(t *testing.T) {
		s := newTestState(t, insnNOP)
		withHandler(s)
		s.CLINT.Mtimecmp = 0
		s.CSR.Set(riscv.CSRMstatus, riscv.MstatusMIE)
		s.CSR.Set(riscv.CSRMie, riscv.MipMSIP)
		stepN(t, s, 1)
		require.Equal(t, base+4, s.PC)
	})

	t.Run("priority", func(t *testing.T) {
		pend := func(s *State) {
			s.CLINT.Mtimecmp = 0
			s.CLINT.Msip = 1
			s.UART.EnqueueInput([]byte{'x'})
			s.UART.IER = UARTIERRxAvail
			s.CSR.Set(riscv.CSRMstatus, riscv.MstatusMIE)
		}
		for _, c := range []struct {
			mie  uint32
			want uint32
		}{
			{all, riscv.IntMachineTimer},
			{riscv.MipMSIP | riscv.MipMEIP, riscv.IntMachineSoftware},
			{riscv.MipMEIP, riscv.IntMachineExternal},
		} {
			s := newTestState(t, insnNOP)
			withHandler(s)
			pend(s)
			s.CSR.Set(riscv.CSRMie, c.mie)
			stepN(t, s, 1)
			require.Equal(t, riscv.InterruptBit|c.want, s.CSR.Get(riscv.CSRMcause))
		}
	})

	t.Run("reservation dropped on trap", func(t *testing.T) {
		s := newTestState(t, insnNOP)
		withHandler(s)
		s.Reservation = Reservation{Valid: true, Addr: base + 0x800}
		s.CLINT.Mtimecmp = 0
		s.CSR.Set(riscv.CSRMstatus, riscv.MstatusMIE)
		s.CSR.Set(riscv.CSRMie, riscv.MipMTIP)
		stepN(t, s, 1)
		require.False(t, s.Reservation.Valid)
	})
}

func TestTrapString(t *testing.T) {
	require.Equal(t, "none", noTrap.String())
	require.Equal(t, "breakpoint (tval 0x80000004)", exception(riscv.CauseBreakpoint, 0x80000004).String())
	require.Equal(t, "machine timer interrupt", interrupt(riscv.IntMachineTimer).String())
	require.Equal(t, "exception 14 (tval 0x00000000)", exception(14, 0).String())
	require.Equal(t, riscv.InterruptBit|riscv.IntMachineExternal, interrupt(riscv.IntMachineExternal).MCause())
}
