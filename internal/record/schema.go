package record

import (
	"encoding/binary"
	"fmt"

	"github.com/nainya/treestore/internal/dberr"
)

const schemaMagic uint32 = 0x5C4E0A01

// Schema is an ordered sequence of columns. Manage marks a schema owned
// (and therefore freed) by its creator, mirroring the catalog/key-schema
// split: heap schemas are managed, projected key schemas are not.
type Schema struct {
	Columns []Column
	Manage  bool
}

// NewSchema builds a schema from columns in declaration order, assigning
// each column's Ordinal to its position.
func NewSchema(columns []Column) *Schema {
	for i := range columns {
		columns[i].Ordinal = uint32(i)
	}
	return &Schema{Columns: columns, Manage: true}
}

// ColumnCount returns the number of columns in the schema.
func (s *Schema) ColumnCount() int { return len(s.Columns) }

// GetColumn returns the column at ordinal i.
func (s *Schema) GetColumn(i int) Column { return s.Columns[i] }

// ColumnIndex returns the ordinal of the column named name, or -1.
func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// SerializeSize returns the exact number of bytes Serialize will write.
func (s *Schema) SerializeSize() int {
	n := 4 + 4
	for _, c := range s.Columns {
		n += c.SerializeSize()
	}
	return n + 1
}

// Serialize writes magic, column count, each column, then the manage flag.
func (s *Schema) Serialize(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], schemaMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s.Columns)))
	off += 4
	for _, c := range s.Columns {
		off += c.Serialize(buf[off:])
	}
	buf[off] = boolByte(s.Manage)
	off++
	return off
}

// DeserializeSchema reads a Schema written by Serialize, returning the
// schema and the number of bytes consumed.
func DeserializeSchema(buf []byte) (*Schema, int, error) {
	if len(buf) < 8 {
		return nil, 0, dberr.ErrCorruption
	}
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != schemaMagic {
		return nil, 0, fmt.Errorf("%w: schema magic %x", dberr.ErrCorruption, magic)
	}
	count := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	cols := make([]Column, count)
	for i := uint32(0); i < count; i++ {
		c, n, err := DeserializeColumn(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		cols[i] = c
		off += n
	}
	manage := buf[off] != 0
	off++
	return &Schema{Columns: cols, Manage: manage}, off, nil
}

// Project returns a new, unmanaged schema containing only the named
// columns, in the order requested — used to build a key schema for an
// index over a subset of a table's columns.
func (s *Schema) Project(names []string) (*Schema, error) {
	cols := make([]Column, 0, len(names))
	for ord, name := range names {
		i := s.ColumnIndex(name)
		if i < 0 {
			return nil, dberr.New(dberr.ColumnNameNotExist, "Schema.Project", fmt.Errorf("no column %q", name))
		}
		c := s.Columns[i]
		c.Ordinal = uint32(ord)
		cols = append(cols, c)
	}
	return &Schema{Columns: cols, Manage: false}, nil
}
