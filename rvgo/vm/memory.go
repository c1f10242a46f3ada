package vm

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Pages are only used to keep JSON snapshots sparse. RAM itself is one contiguous image.
const (
	PageAddrSize = 12
	PageSize     = 1 << PageAddrSize
	PageAddrMask = PageSize - 1
)

var ErrImageTooLarge = errors.New("image does not fit in RAM")

// Memory is the RAM of the machine: a contiguous byte image mapped at base.
type Memory struct {
	base uint32
	data []byte
}

func NewMemory(base, size uint32) *Memory {
	return &Memory{base: base, data: make([]byte, size)}
}

func (m *Memory) Base() uint32 {
	return m.base
}

func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

// Contains reports whether the full [addr, addr+size) range is backed by RAM.
func (m *Memory) Contains(addr uint32, size int) bool {
	if addr < m.base {
		return false
	}
	return uint64(addr-m.base)+uint64(size) <= uint64(len(m.data))
}

// Load reads a little-endian value of 1, 2 or 4 bytes. The range must be contained in RAM.
func (m *Memory) Load(addr uint32, size int) uint32 {
	off := addr - m.base
	switch size {
	case 1:
		return uint32(m.data[off])
	case 2:
		return uint32(binary.LittleEndian.Uint16(m.data[off:]))
	default:
		return binary.LittleEndian.Uint32(m.data[off:])
	}
}

func (m *Memory) Store(addr uint32, size int, value uint32) {
	off := addr - m.base
	switch size {
	case 1:
		m.data[off] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(m.data[off:], uint16(value))
	default:
		binary.LittleEndian.PutUint32(m.data[off:], value)
	}
}

// SetMemoryRange copies everything r produces into RAM starting at addr.
// Data that does not fit is a host error, never a guest fault.
func (m *Memory) SetMemoryRange(addr uint32, r io.Reader) error {
	if !m.Contains(addr, 0) {
		return fmt.Errorf("%w: start address 0x%08x outside of RAM", ErrImageTooLarge, addr)
	}
	_, err := io.ReadFull(r, m.data[addr-m.base:])
	switch err {
	case io.EOF, io.ErrUnexpectedEOF:
		return nil
	case nil:
		var probe [1]byte
		if _, err := io.ReadFull(r, probe[:]); err == nil {
			return fmt.Errorf("%w: data at 0x%08x runs past end of RAM 0x%08x", ErrImageTooLarge, addr, uint64(m.base)+uint64(len(m.data)))
		}
		return nil
	default:
		return err
	}
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// PageCount is the number of pages with non-zero contents.
func (m *Memory) PageCount() int {
	n := 0
	for off := 0; off < len(m.data); off += PageSize {
		if !isZero(m.data[off:min(off+PageSize, len(m.data))]) {
			n++
		}
	}
	return n
}

func (m *Memory) Hash() common.Hash {
	return crypto.Keccak256Hash(m.data)
}

func (m *Memory) Usage() string {
	total := uint64(len(m.data))
	const unit = 1024
	if total < unit {
		return fmt.Sprintf("%d B", total)
	}
	div, exp := uint64(unit), 0
	for n := total / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	// KiB, MiB, GiB
	return fmt.Sprintf("%.1f %ciB", float64(total)/float64(div), "KMGTPE"[exp])
}

type pageEntry struct {
	Index uint32        `json:"index"`
	Data  hexutil.Bytes `json:"data"`
}

type memoryJSON struct {
	Base  uint32      `json:"base"`
	Size  uint32      `json:"size"`
	Pages []pageEntry `json:"pages"`
}

func (m *Memory) MarshalJSON() ([]byte, error) {
	out := memoryJSON{Base: m.base, Size: uint32(len(m.data)), Pages: []pageEntry{}}
	for off := 0; off < len(m.data); off += PageSize {
		page := m.data[off:min(off+PageSize, len(m.data))]
		if isZero(page) {
			continue
		}
		out.Pages = append(out.Pages, pageEntry{Index: uint32(off >> PageAddrSize), Data: page})
	}
	return json.Marshal(out)
}

func (m *Memory) UnmarshalJSON(data []byte) error {
	var in memoryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.base = in.Base
	m.data = make([]byte, in.Size)
	seen := make(map[uint32]struct{}, len(in.Pages))
	for i, p := range in.Pages {
		if _, ok := seen[p.Index]; ok {
			return fmt.Errorf("cannot load duplicate page, entry %d, page index %d", i, p.Index)
		}
		seen[p.Index] = struct{}{}
		off := uint64(p.Index) << PageAddrSize
		if off+uint64(len(p.Data)) > uint64(len(m.data)) || len(p.Data) > PageSize {
			return fmt.Errorf("page %d (entry %d) does not fit in RAM of size 0x%x", p.Index, i, in.Size)
		}
		copy(m.data[off:], p.Data)
	}
	return nil
}
