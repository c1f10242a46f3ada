package cmd

import (
	"debug/elf"

	"github.com/rv32emu/rv32emu/rvgo/vm"
)

type Metadata struct {
	Symbols vm.SortedSymbols `json:"symbols"`
}

func MakeMetadata(f *elf.File) (*Metadata, error) {
	syms, err := vm.Symbols(f)
	if err != nil {
		return nil, err
	}
	return &Metadata{Symbols: syms}, nil
}

func (m *Metadata) LookupSymbol(addr uint32) string {
	if len(m.Symbols) == 0 {
		return "!unknown"
	}
	return m.Symbols.FindSymbol(uint64(addr)).Name
}
