package vm

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

func TestInstrumentedState(t *testing.T) {
	newInstrumented := func(t *testing.T, prog ...uint32) (*InstrumentedState, *bytes.Buffer, *bytes.Buffer) {
		var console, logs bytes.Buffer
		s := newTestState(t, prog...)
		l := log.NewLogger(log.LogfmtHandlerWithLevel(&logs, log.LevelTrace))
		return NewInstrumentedState(s, &console, l), &console, &logs
	}

	t.Run("console output", func(t *testing.T) {
		m, console, _ := newInstrumented(t,
			lui(1, riscv.UARTBase),
			addi(2, 0, 'h'),
			encS(riscv.OpStore, 0, 1, 2, UARTRegTHR),
			addi(2, 0, 'i'),
			encS(riscv.OpStore, 0, 1, 2, UARTRegTHR),
		)
		for i := 0; i < 5; i++ {
			st, err := m.Step()
			require.NoError(t, err)
			require.Equal(t, StatusContinue, st)
		}
		require.Equal(t, "hi", console.String())
	})

	t.Run("input", func(t *testing.T) {
		m, _, _ := newInstrumented(t,
			lui(1, riscv.UARTBase),
			encI(riscv.OpLoad, 2, 4, 1, UARTRegRBR),
		)
		m.EnqueueInput(nil)
		require.Empty(t, m.State().UART.Input)
		m.EnqueueInput([]byte("q"))
		for i := 0; i < 2; i++ {
			_, err := m.Step()
			require.NoError(t, err)
		}
		require.Equal(t, uint32('q'), m.State().Registers[2])
	})

	t.Run("trace and traps", func(t *testing.T) {
		m, _, logs := newInstrumented(t, insnNOP, insnEBREAK)
		withHandler(m.State())
		m.Trace = true
		for i := 0; i < 2; i++ {
			_, err := m.Step()
			require.NoError(t, err)
		}
		out := logs.String()
		require.Contains(t, out, "insn=\"addi x0, x0, 0\"")
		require.Contains(t, out, "msg=trap")
		require.Contains(t, out, `trap="breakpoint (tval 0x80000004)"`)
	})

	t.Run("halt", func(t *testing.T) {
		m, _, logs := newInstrumented(t, addi(17, 0, riscv.TestExitMarker), insnECALL)
		m.State().TestMode = DefaultTestMode()
		_, err := m.Step()
		require.NoError(t, err)
		st, err := m.Step()
		require.NoError(t, err)
		require.Equal(t, StatusHalted, st)
		require.Contains(t, logs.String(), "msg=halted")
	})

	t.Run("fault", func(t *testing.T) {
		m, _, logs := newInstrumented(t, 0xffffffff)
		_, err := m.Step()
		require.NoError(t, err)
		st, err := m.Step()
		require.ErrorIs(t, err, ErrNoTrapPath)
		require.Equal(t, StatusFault, st)
		require.Contains(t, logs.String(), "machine fault")
	})
}
