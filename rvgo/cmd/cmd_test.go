package cmd

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/rv32emu/rv32emu/rvgo/vm"
)

func TestStepMatcher(t *testing.T) {
	at := func(step uint64) *vm.State {
		return &vm.State{Step: step}
	}
	t.Run("never", func(t *testing.T) {
		m := MustStepMatcherFlag("never").Matcher()
		require.False(t, m(at(0)))
		require.False(t, m(at(100)))
	})
	t.Run("always", func(t *testing.T) {
		m := MustStepMatcherFlag("always").Matcher()
		require.True(t, m(at(0)))
		require.True(t, m(at(7)))
	})
	t.Run("exact", func(t *testing.T) {
		m := MustStepMatcherFlag("=42").Matcher()
		require.True(t, m(at(42)))
		require.False(t, m(at(41)))
		require.False(t, m(at(84)))
	})
	t.Run("interval", func(t *testing.T) {
		m := MustStepMatcherFlag("%10").Matcher()
		require.True(t, m(at(0)))
		require.True(t, m(at(30)))
		require.False(t, m(at(31)))
	})
	t.Run("unset", func(t *testing.T) {
		require.False(t, new(StepMatcherFlag).Matcher()(at(0)))
	})
	t.Run("invalid", func(t *testing.T) {
		for _, s := range []string{"sometimes", "=x", "%0", "%-1"} {
			require.Error(t, new(StepMatcherFlag).Set(s), s)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("empty keeps defaults", func(t *testing.T) {
		cfg, err := LoadConfig(strings.NewReader(""))
		require.NoError(t, err)
		require.Equal(t, vm.DefaultConfig(), cfg)
	})
	t.Run("override", func(t *testing.T) {
		cfg, err := LoadConfig(strings.NewReader("ram_size: 0x200000\ndtb_offset: 0x100000\nclint_base: 0x11000000\nbootargs: console=hvc0\n"))
		require.NoError(t, err)
		require.Equal(t, uint32(0x200000), cfg.RAMSize)
		require.Equal(t, uint32(0x11000000), cfg.CLINTBase)
		require.Equal(t, "console=hvc0", cfg.Bootargs)
		require.Equal(t, vm.DefaultConfig().UARTBase, cfg.UARTBase)
	})
	t.Run("unknown field", func(t *testing.T) {
		_, err := LoadConfig(strings.NewReader("ram_sise: 4096\n"))
		require.ErrorContains(t, err, "ram_sise")
	})
	t.Run("overlapping windows", func(t *testing.T) {
		_, err := LoadConfig(strings.NewReader("uart_base: 0x02000000\n"))
		require.ErrorIs(t, err, vm.ErrInvalidConfig)
	})
}

func TestLoggingWriter(t *testing.T) {
	var buf bytes.Buffer
	lvl, err := ParseLevel("info")
	require.NoError(t, err)
	lw := &LoggingWriter{Name: "console", Log: Logger(&buf, lvl)}

	for _, b := range []byte("hello\nwor") {
		n, err := lw.Write([]byte{b})
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}
	require.Contains(t, buf.String(), "text=hello")
	require.NotContains(t, buf.String(), "wor")

	lw.Flush()
	require.Contains(t, buf.String(), "text=wor")

	buf.Reset()
	_, _ = lw.Write([]byte{0xff, 0x00, '\n'})
	require.Contains(t, buf.String(), "data=0xff000a")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("TRACE")
	require.NoError(t, err)
	require.Equal(t, log.LevelTrace, lvl)
	_, err = ParseLevel("verbose")
	require.Error(t, err)
}

func TestConsoleEscape(t *testing.T) {
	c := &Console{}
	out := c.filter(nil, []byte{'a', escapeByte, escapeByte, 'b'})
	require.Equal(t, []byte{'a', escapeByte, 'b'}, out)
	require.False(t, c.Quit())

	// the escape may be split across reads
	out = c.filter(nil, []byte{'c', escapeByte})
	require.Equal(t, []byte{'c'}, out)
	out = c.filter(nil, []byte{'x'})
	require.Empty(t, out)
	require.True(t, c.Quit())
}

func TestHexU32(t *testing.T) {
	require.Equal(t, "80000000", HexU32(0x80000000).String())
	text, err := HexU32(0x13).MarshalText()
	require.NoError(t, err)
	require.Equal(t, "00000013", string(text))
}

func TestExitStatus(t *testing.T) {
	l := Logger(io.Discard, log.LevelInfo)
	exited := func(resultReg uint8, regs map[uint8]uint32) *vm.State {
		s := &vm.State{TestMode: vm.DefaultTestMode()}
		s.TestMode.ResultReg = resultReg
		for r, v := range regs {
			s.Registers[r] = v
		}
		s.ExitCode = s.Registers[resultReg]
		s.Exited = true
		return s
	}
	code := func(t *testing.T, err error) int {
		var ec cli.ExitCoder
		require.True(t, errors.As(err, &ec), "expected an exit code, got %v", err)
		return ec.ExitCode()
	}

	t.Run("result register value", func(t *testing.T) {
		require.Equal(t, 12, code(t, exitStatus(l, exited(3, map[uint8]uint32{3: 12}))))
	})
	t.Run("low byte zero", func(t *testing.T) {
		require.Equal(t, 1, code(t, exitStatus(l, exited(3, map[uint8]uint32{3: 0x100}))))
	})
	// riscv-tests pass with gp == 1 and a0 == 0
	t.Run("riscv-tests pass with gp", func(t *testing.T) {
		require.Equal(t, 1, code(t, exitStatus(l, exited(3, map[uint8]uint32{3: 1, 10: 0}))))
	})
	t.Run("riscv-tests pass with a0", func(t *testing.T) {
		require.NoError(t, exitStatus(l, exited(10, map[uint8]uint32{3: 1, 10: 0})))
	})
	t.Run("not exited", func(t *testing.T) {
		require.NoError(t, exitStatus(l, &vm.State{TestMode: vm.DefaultTestMode()}))
	})
	t.Run("usage documents the pass value", func(t *testing.T) {
		require.Contains(t, RunTestModeFlag.Usage, "--test-result-reg 10")
	})
}
