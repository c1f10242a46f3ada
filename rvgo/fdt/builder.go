// Package fdt builds flattened device tree blobs describing the emulated machine.
package fdt

import (
	"bytes"
	"encoding/binary"
)

const (
	Magic          = 0xd00dfeed
	Version        = 17
	LastCompatible = 16

	tokenBeginNode = 0x00000001
	tokenEndNode   = 0x00000002
	tokenProp      = 0x00000003
	tokenEnd       = 0x00000009

	headerSize = 40
)

// Builder emits the structure and strings blocks of a device tree in order.
// Nodes must be balanced: every BeginNode needs a matching EndNode before Build.
type Builder struct {
	structure bytes.Buffer
	strings   bytes.Buffer
	stringOff map[string]uint32
}

func NewBuilder() *Builder {
	return &Builder{stringOff: make(map[string]uint32)}
}

func (b *Builder) putU32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	b.structure.Write(buf[:])
}

func (b *Builder) pad() {
	for b.structure.Len()%4 != 0 {
		b.structure.WriteByte(0)
	}
}

func (b *Builder) addString(name string) uint32 {
	if off, ok := b.stringOff[name]; ok {
		return off
	}
	off := uint32(b.strings.Len())
	b.strings.WriteString(name)
	b.strings.WriteByte(0)
	b.stringOff[name] = off
	return off
}

func (b *Builder) prop(name string, data []byte) {
	b.putU32(tokenProp)
	b.putU32(uint32(len(data)))
	b.putU32(b.addString(name))
	b.structure.Write(data)
	b.pad()
}

func (b *Builder) BeginNode(name string) {
	b.putU32(tokenBeginNode)
	b.structure.WriteString(name)
	b.structure.WriteByte(0)
	b.pad()
}

func (b *Builder) EndNode() {
	b.putU32(tokenEndNode)
}

func (b *Builder) AddPropertyEmpty(name string) {
	b.prop(name, nil)
}

func (b *Builder) AddPropertyString(name, value string) {
	b.prop(name, append([]byte(value), 0))
}

func (b *Builder) AddPropertyStringList(name string, values ...string) {
	var data []byte
	for _, v := range values {
		data = append(data, v...)
		data = append(data, 0)
	}
	b.prop(name, data)
}

func (b *Builder) AddPropertyU32(name string, values ...uint32) {
	data := make([]byte, 0, 4*len(values))
	for _, v := range values {
		data = binary.BigEndian.AppendUint32(data, v)
	}
	b.prop(name, data)
}

// Build terminates the structure block and assembles the blob with an empty memory reservation map.
func (b *Builder) Build() []byte {
	b.putU32(tokenEnd)

	const rsvmapOff = headerSize
	const rsvmapSize = 16
	structOff := uint32(rsvmapOff + rsvmapSize)
	structSize := uint32(b.structure.Len())
	stringsOff := structOff + structSize
	stringsSize := uint32(b.strings.Len())
	totalSize := stringsOff + stringsSize

	out := make([]byte, totalSize)
	hdr := []uint32{
		Magic,
		totalSize,
		structOff,
		stringsOff,
		rsvmapOff,
		Version,
		LastCompatible,
		0, // boot cpu
		stringsSize,
		structSize,
	}
	for i, v := range hdr {
		binary.BigEndian.PutUint32(out[4*i:], v)
	}
	copy(out[structOff:], b.structure.Bytes())
	copy(out[stringsOff:], b.strings.Bytes())
	return out
}
