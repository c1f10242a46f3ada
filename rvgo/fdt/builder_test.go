package fdt

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rv32emu/rv32emu/rvgo/vm"
)

func TestBuilder(t *testing.T) {
	t.Run("empty root", func(t *testing.T) {
		b := NewBuilder()
		b.BeginNode("")
		b.EndNode()
		blob := b.Build()

		require.Equal(t, uint32(Magic), binary.BigEndian.Uint32(blob[0:]))
		require.Equal(t, uint32(len(blob)), binary.BigEndian.Uint32(blob[4:]))
		require.Equal(t, uint32(Version), binary.BigEndian.Uint32(blob[20:]))
		structOff := binary.BigEndian.Uint32(blob[8:])
		require.Equal(t, uint32(headerSize+16), structOff)
		// begin node, empty name padded to 4 bytes, end node, end
		require.Equal(t, []uint32{tokenBeginNode, 0, tokenEndNode, tokenEnd}, words(blob[structOff:structOff+16]))
	})
	t.Run("strings are deduplicated", func(t *testing.T) {
		b := NewBuilder()
		b.BeginNode("")
		b.AddPropertyU32("reg", 1)
		b.AddPropertyU32("reg", 2)
		b.EndNode()
		blob := b.Build()
		stringsSize := binary.BigEndian.Uint32(blob[32:])
		require.Equal(t, uint32(len("reg")+1), stringsSize)
	})
	t.Run("string property padding", func(t *testing.T) {
		b := NewBuilder()
		b.AddPropertyString("model", "abcde")
		require.Equal(t, 0, b.structure.Len()%4)
		// token, len, nameoff, "abcde\0" padded to 8
		require.Equal(t, 12+8, b.structure.Len())
	})
}

func words(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(b[4*i:])
	}
	return out
}

func TestMachine(t *testing.T) {
	cfg := vm.DefaultConfig()
	cfg.Bootargs = "console=ttyS0"
	blob := Machine(cfg)

	require.Equal(t, uint32(Magic), binary.BigEndian.Uint32(blob[0:]))
	require.Equal(t, uint32(len(blob)), binary.BigEndian.Uint32(blob[4:]))
	for _, s := range []string{"memory@80000000", "clint@2000000", "serial@10000000", "rv32ima_zicsr_zifencei", "console=ttyS0", "/soc/serial@10000000"} {
		require.True(t, bytes.Contains(blob, []byte(s)), "blob must contain %q", s)
	}
	structOff := binary.BigEndian.Uint32(blob[8:])
	structSize := binary.BigEndian.Uint32(blob[36:])
	structure := words(blob[structOff : structOff+structSize])
	require.Equal(t, uint32(tokenEnd), structure[len(structure)-1])
	require.Equal(t, uint32(tokenEndNode), structure[len(structure)-2])
}
