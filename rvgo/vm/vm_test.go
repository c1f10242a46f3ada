package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

func TestRun(t *testing.T) {
	base := riscv.RAMBase

	t.Run("exit code from test marker", func(t *testing.T) {
		s := newTestState(t,
			addi(1, 0, 5),
			addi(2, 0, 7),
			add(3, 1, 2),
			addi(17, 0, riscv.TestExitMarker),
			insnECALL,
		)
		s.TestMode = DefaultTestMode()
		st, err := Run(context.Background(), s, 100)
		require.NoError(t, err)
		require.Equal(t, StatusHalted, st)
		require.True(t, s.Exited)
		require.Equal(t, uint32(12), s.ExitCode)
		require.Equal(t, uint64(5), s.Step)
		require.Equal(t, base+16, s.PC)

		// halted machines stay halted
		st, err = Step(s)
		require.NoError(t, err)
		require.Equal(t, StatusHalted, st)
		require.Equal(t, uint64(5), s.Step)
	})

	t.Run("ecall without marker traps", func(t *testing.T) {
		s := newTestState(t, addi(17, 0, 1), insnECALL)
		h := withHandler(s)
		s.TestMode = DefaultTestMode()
		stepN(t, s, 2)
		require.False(t, s.Exited)
		require.Equal(t, h, s.PC)
	})

	t.Run("custom result register", func(t *testing.T) {
		s := newTestState(t, addi(10, 0, 3), addi(17, 0, riscv.TestExitMarker), insnECALL)
		s.TestMode = DefaultTestMode()
		s.TestMode.ResultReg = riscv.RegA0
		st, err := Run(context.Background(), s, 0)
		require.NoError(t, err)
		require.Equal(t, StatusHalted, st)
		require.Equal(t, uint32(3), s.ExitCode)
	})

	t.Run("self loop halts", func(t *testing.T) {
		s := newTestState(t, insnNOP, jal(0, 0))
		s.TestMode = DefaultTestMode()
		s.Registers[riscv.RegGP] = 1
		st, err := Run(context.Background(), s, 100)
		require.NoError(t, err)
		require.Equal(t, StatusHalted, st)
		require.Zero(t, s.ExitCode)
		require.Equal(t, uint64(2), s.Step)
	})

	t.Run("self loop waiting for an interrupt", func(t *testing.T) {
		s := newTestState(t, jal(0, 0))
		withHandler(s)
		s.TestMode = DefaultTestMode()
		s.CSR.Set(riscv.CSRMie, riscv.MipMTIP)
		s.CSR.Set(riscv.CSRMstatus, riscv.MstatusMIE)
		s.CLINT.Mtimecmp = 10
		st, err := Run(context.Background(), s, 20)
		require.NoError(t, err)
		require.Equal(t, StatusContinue, st)
		require.False(t, s.Exited)
		require.Equal(t, riscv.InterruptBit|riscv.IntMachineTimer, s.CSR.Get(riscv.CSRMcause))
	})

	t.Run("self loop outside test mode", func(t *testing.T) {
		s := newTestState(t, jal(0, 0))
		st, err := Run(context.Background(), s, 10)
		require.NoError(t, err)
		require.Equal(t, StatusContinue, st)
		require.Equal(t, uint64(10), s.Step)
		require.Equal(t, base, s.PC)
	})

	t.Run("context cancelled", func(t *testing.T) {
		s := newTestState(t, jal(0, 0))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		st, err := Run(ctx, s, 0)
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, StatusContinue, st)
		require.Zero(t, s.Step)
	})

	t.Run("no trap path", func(t *testing.T) {
		s := newTestState(t, 0xffffffff)
		st, err := Step(s)
		require.NoError(t, err)
		require.Equal(t, StatusContinue, st)
		require.Zero(t, s.PC, "mtvec resets to zero")

		st, err = Step(s)
		require.ErrorIs(t, err, ErrNoTrapPath)
		require.Equal(t, StatusFault, st)
		require.Zero(t, s.PC)
		require.Equal(t, uint64(1), s.Step)
	})

	t.Run("misaligned pc", func(t *testing.T) {
		s := newTestState(t)
		h := withHandler(s)
		s.PC = base + 2
		stepN(t, s, 1)
		require.Equal(t, h, s.PC)
		require.Equal(t, uint32(riscv.CauseInsnAddrMisaligned), s.CSR.Get(riscv.CSRMcause))
		require.Equal(t, base+2, s.CSR.Get(riscv.CSRMtval))
		require.Equal(t, base, s.CSR.Get(riscv.CSRMepc))
	})

	t.Run("fetch outside ram", func(t *testing.T) {
		s := newTestState(t)
		h := withHandler(s)
		s.PC = riscv.UARTBase
		stepN(t, s, 1)
		require.Equal(t, h, s.PC)
		require.Equal(t, uint32(riscv.CauseInsnAccessFault), s.CSR.Get(riscv.CSRMcause))
		require.Equal(t, riscv.UARTBase, s.CSR.Get(riscv.CSRMtval))
	})

	t.Run("counters", func(t *testing.T) {
		s := newTestState(t, insnNOP, insnNOP, insnNOP)
		s.Config.TimerDivider = 2
		stepN(t, s, 3)
		require.Equal(t, uint32(3), s.CSR.Get(riscv.CSRMcycle))
		require.Equal(t, uint32(3), s.CSR.Get(riscv.CSRMinstret))
		require.Equal(t, uint64(1), s.CLINT.Mtime)
		require.Equal(t, uint32(1), s.CSR.Get(riscv.CSRTime))
	})

	t.Run("counter writes are seen by the next instruction", func(t *testing.T) {
		s := newTestState(t,
			insnNOP,
			csrrw(0, riscv.CSRMinstret, 0),
			csrrs(5, riscv.CSRMinstret, 0),
			csrrw(0, riscv.CSRMcycle, 0),
			csrrs(6, riscv.CSRMcycle, 0),
			csrrs(7, riscv.CSRMinstret, 0),
		)
		stepN(t, s, 6)
		require.Zero(t, s.Registers[5])
		require.Zero(t, s.Registers[6])
		require.Equal(t, uint32(3), s.Registers[7], "counting resumes after the write")
		require.Equal(t, uint32(2), s.CSR.Get(riscv.CSRMcycle))
	})
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "continue", StatusContinue.String())
	require.Equal(t, "halted", StatusHalted.String())
	require.Equal(t, "fault", StatusFault.String())
	require.Equal(t, "status(9)", Status(9).String())
}

func BenchmarkStep(b *testing.B) {
	s := newTestState(b,
		addi(1, 1, 1),
		sw(1, 2, 0x100),
		jal(0, -8),
	)
	s.Registers[2] = s.Config.RAMBase
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Step(s); err != nil {
			b.Fatal(err)
		}
	}
}
