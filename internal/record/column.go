// Package record implements the fixed binary serialization for Column,
// Schema, and Row described by the record layer: little-endian,
// self-describing via magic numbers on Column and Schema, with a null
// bitmap carried on every Row.
package record

import (
	"encoding/binary"
	"fmt"

	"github.com/nainya/treestore/internal/dberr"
)

// Type enumerates the column/field value kinds the engine supports.
type Type byte

const (
	TypeInvalid Type = iota
	TypeInt32
	TypeFloat32
	TypeChar
)

func (t Type) String() string {
	switch t {
	case TypeInt32:
		return "INT32"
	case TypeFloat32:
		return "FLOAT32"
	case TypeChar:
		return "CHAR"
	default:
		return "INVALID"
	}
}

// columnMagic tags a serialized Column so deserialization can detect a
// misaligned read instead of silently decoding garbage.
const columnMagic uint32 = 0xC01C0103

// Column describes one field of a Schema: its name, type, declared length
// (CHAR(len) byte width; ignored for INT32/FLOAT32), its ordinal within the
// owning schema, and whether it is nullable/unique.
type Column struct {
	Name     string
	Type     Type
	Length   uint32
	Ordinal  uint32
	Nullable bool
	Unique   bool
}

// FixedLen returns the on-disk byte width of one value of this column's
// type: 4 for INT32/FLOAT32, Length for CHAR.
func (c Column) FixedLen() uint32 {
	switch c.Type {
	case TypeInt32, TypeFloat32:
		return 4
	case TypeChar:
		return c.Length
	default:
		return 0
	}
}

// SerializeSize returns the exact number of bytes Serialize will write.
func (c Column) SerializeSize() int {
	return 4 + 4 + len(c.Name) + 1 + 4 + 4 + 1 + 1
}

// Serialize writes magic, name length, name bytes, type, length, ordinal,
// nullable, unique, in that order.
func (c Column) Serialize(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], columnMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(c.Name)))
	off += 4
	off += copy(buf[off:], c.Name)
	buf[off] = byte(c.Type)
	off++
	binary.LittleEndian.PutUint32(buf[off:], c.Length)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], c.Ordinal)
	off += 4
	buf[off] = boolByte(c.Nullable)
	off++
	buf[off] = boolByte(c.Unique)
	off++
	return off
}

// DeserializeColumn reads a Column written by Serialize, returning the
// column and the number of bytes consumed.
func DeserializeColumn(buf []byte) (Column, int, error) {
	if len(buf) < 8 {
		return Column{}, 0, dberr.ErrCorruption
	}
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != columnMagic {
		return Column{}, 0, fmt.Errorf("%w: column magic %x", dberr.ErrCorruption, magic)
	}
	nameLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if len(buf) < off+int(nameLen)+10 {
		return Column{}, 0, dberr.ErrCorruption
	}
	name := string(buf[off : off+int(nameLen)])
	off += int(nameLen)
	c := Column{Name: name}
	c.Type = Type(buf[off])
	off++
	c.Length = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	c.Ordinal = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	c.Nullable = buf[off] != 0
	off++
	c.Unique = buf[off] != 0
	off++
	return c, off, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
