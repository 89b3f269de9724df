package asm

import (
	"encoding/binary"
)

type (
	// DataSection is a deduplicating pool of literal blobs referenced
	// by offset from LWD ops.
	DataSection struct {
		blobs    [][]byte
		offs     []uint64
		size     uint64
		interned map[string]DataID
	}
)

func NewDataSection() *DataSection {
	return &DataSection{
		interned: map[string]DataID{},
	}
}

// Word inserts a 64-bit literal, reusing an existing entry with the
// same bytes.
func (d *DataSection) Word(v uint64) DataID {
	var b [8]byte

	binary.BigEndian.PutUint64(b[:], v)

	return d.Bytes(b[:])
}

func (d *DataSection) Bytes(b []byte) DataID {
	if id, ok := d.interned[string(b)]; ok {
		return id
	}

	id := DataID(len(d.blobs))

	d.blobs = append(d.blobs, append([]byte(nil), b...))
	d.offs = append(d.offs, d.size)
	d.size += uint64(len(b))

	d.interned[string(b)] = id

	return id
}

// Offset is the byte offset of the entry from the data section start.
func (d *DataSection) Offset(id DataID) uint64 {
	return d.offs[id]
}

func (d *DataSection) Len() int {
	return len(d.blobs)
}

func (d *DataSection) Serialize() []byte {
	out := make([]byte, 0, d.size)

	for _, b := range d.blobs {
		out = append(out, b...)
	}

	return out
}
