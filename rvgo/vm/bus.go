package vm

import (
	"errors"
	"fmt"
)

// ErrUnmapped marks an access that neither RAM nor any device backs.
// The execution engine turns it into an access fault; every other device error is fatal to the host.
var ErrUnmapped = errors.New("unmapped address")

// Device is a memory-mapped peripheral. Offsets are relative to the device base,
// sizes are 1, 2 or 4 bytes and need not be aligned.
type Device interface {
	Load(offset uint32, size int) (uint32, error)
	Store(offset uint32, size int, value uint32) error
	Size() uint32
}

type DeviceMapping struct {
	Name   string
	Base   uint32
	Size   uint32
	Device Device
}

func (d *DeviceMapping) contains(addr uint32, size int) bool {
	if addr < d.Base {
		return false
	}
	return uint64(addr-d.Base)+uint64(size) <= uint64(d.Size)
}

// Bus routes loads, stores and fetches to RAM or to a device window.
type Bus struct {
	RAM     *Memory
	Devices []DeviceMapping
}

func NewBus(ram *Memory) *Bus {
	return &Bus{RAM: ram}
}

func (b *Bus) AddDevice(name string, base uint32, dev Device) error {
	w := window{name: name, base: base, size: dev.Size()}
	if w.end() > 1<<32 {
		return fmt.Errorf("%w: device %s at 0x%08x exceeds the address space", ErrInvalidConfig, name, base)
	}
	if w.overlaps(window{base: b.RAM.Base(), size: b.RAM.Size()}) {
		return fmt.Errorf("%w: device %s at 0x%08x overlaps RAM", ErrInvalidConfig, name, base)
	}
	for _, d := range b.Devices {
		if w.overlaps(window{base: d.Base, size: d.Size}) {
			return fmt.Errorf("%w: device %s at 0x%08x overlaps %s", ErrInvalidConfig, name, base, d.Name)
		}
	}
	b.Devices = append(b.Devices, DeviceMapping{Name: name, Base: base, Size: dev.Size(), Device: dev})
	return nil
}

func (b *Bus) findDevice(addr uint32, size int) *DeviceMapping {
	for i := range b.Devices {
		if b.Devices[i].contains(addr, size) {
			return &b.Devices[i]
		}
	}
	return nil
}

func (b *Bus) Load(addr uint32, size int) (uint32, error) {
	if b.RAM.Contains(addr, size) {
		return b.RAM.Load(addr, size), nil
	}
	if d := b.findDevice(addr, size); d != nil {
		v, err := d.Device.Load(addr-d.Base, size)
		if err != nil {
			return 0, fmt.Errorf("%s load at 0x%08x: %w", d.Name, addr, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: load of %d bytes at 0x%08x", ErrUnmapped, size, addr)
}

func (b *Bus) Store(addr uint32, size int, value uint32) error {
	if b.RAM.Contains(addr, size) {
		b.RAM.Store(addr, size, value)
		return nil
	}
	if d := b.findDevice(addr, size); d != nil {
		if err := d.Device.Store(addr-d.Base, size, value); err != nil {
			return fmt.Errorf("%s store at 0x%08x: %w", d.Name, addr, err)
		}
		return nil
	}
	return fmt.Errorf("%w: store of %d bytes at 0x%08x", ErrUnmapped, size, addr)
}

// Fetch reads an instruction word. Only RAM is executable.
func (b *Bus) Fetch(addr uint32) (uint32, error) {
	if !b.RAM.Contains(addr, 4) {
		return 0, fmt.Errorf("%w: fetch at 0x%08x", ErrUnmapped, addr)
	}
	return b.RAM.Load(addr, 4), nil
}
