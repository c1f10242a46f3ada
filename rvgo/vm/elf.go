package vm

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

var ErrNotRISCV32 = errors.New("not a 32-bit RISC-V ELF")

// LoadELF builds a machine from the loadable segments of a 32-bit RISC-V ELF.
func LoadELF(f *elf.File, cfg Config) (*State, error) {
	if f.Machine != elf.EM_RISCV || f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("%w: machine %s, class %s", ErrNotRISCV32, f.Machine, f.Class)
	}
	out, err := NewState(cfg)
	if err != nil {
		return nil, err
	}
	out.PC = uint32(f.Entry)

	for i, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			// .riscv.attributes and friends are not loaded into memory
			continue
		}
		if prog.Filesz > prog.Memsz {
			return nil, fmt.Errorf("invalid PT_LOAD program segment %d, file size (%d) > mem size (%d)", i, prog.Filesz, prog.Memsz)
		}
		if !out.Memory.Contains(uint32(prog.Vaddr), 0) || prog.Vaddr+prog.Memsz > uint64(cfg.RAMBase)+uint64(cfg.RAMSize) {
			return nil, fmt.Errorf("%w: segment %d at 0x%08x (size 0x%x)", ErrImageTooLarge, i, prog.Vaddr, prog.Memsz)
		}
		r := io.Reader(io.NewSectionReader(prog, 0, int64(prog.Filesz)))
		if prog.Filesz < prog.Memsz {
			r = io.MultiReader(r, bytes.NewReader(make([]byte, prog.Memsz-prog.Filesz)))
		}
		if err := out.Memory.SetMemoryRange(uint32(prog.Vaddr), r); err != nil {
			return nil, fmt.Errorf("failed to read program segment %d: %w", i, err)
		}
	}
	return out, nil
}

// LoadKernel places a raw kernel image at the start of RAM and the device tree
// blob at cfg.DTBOffset, following the RISC-V Linux boot protocol:
// a0 holds the hart id and a1 the address of the device tree.
func LoadKernel(kernel, dtb []byte, cfg Config) (*State, error) {
	out, err := NewState(cfg)
	if err != nil {
		return nil, err
	}
	if uint64(len(kernel)) > uint64(cfg.DTBOffset) {
		return nil, fmt.Errorf("%w: kernel of %d bytes overlaps device tree at offset 0x%x", ErrImageTooLarge, len(kernel), cfg.DTBOffset)
	}
	if uint64(cfg.DTBOffset)+uint64(len(dtb)) > uint64(cfg.RAMSize) {
		return nil, fmt.Errorf("%w: device tree of %d bytes at offset 0x%x", ErrImageTooLarge, len(dtb), cfg.DTBOffset)
	}
	if err := out.Memory.SetMemoryRange(cfg.RAMBase, bytes.NewReader(kernel)); err != nil {
		return nil, fmt.Errorf("failed to load kernel: %w", err)
	}
	dtbAddr := cfg.RAMBase + cfg.DTBOffset
	if err := out.Memory.SetMemoryRange(dtbAddr, bytes.NewReader(dtb)); err != nil {
		return nil, fmt.Errorf("failed to load device tree: %w", err)
	}
	out.PC = cfg.RAMBase
	out.Registers[riscv.RegA0] = 0
	out.Registers[riscv.RegA1] = dtbAddr
	return out, nil
}

type SortedSymbols []elf.Symbol

// FindSymbol finds the symbol that intersects with the given addr, or a "!start"/"!gap" placeholder
func (s SortedSymbols) FindSymbol(addr uint64) elf.Symbol {
	// find first symbol with higher start. Or n if no such symbol exists
	i := sort.Search(len(s), func(i int) bool {
		return s[i].Value > addr
	})
	if i == 0 {
		return elf.Symbol{Name: "!start", Value: 0}
	}
	out := &s[i-1]
	if out.Value+out.Size < addr { // addr may be pointing to a gap between symbols
		return elf.Symbol{Name: "!gap", Value: addr}
	}
	return *out
}

func Symbols(f *elf.File) (SortedSymbols, error) {
	symbols, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols data: %w", err)
	}
	// not every ELF has sorted symbols
	out := make(SortedSymbols, len(symbols))
	copy(out, symbols)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Value < out[j].Value
	})
	return out, nil
}
