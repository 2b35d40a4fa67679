package record

import (
	"encoding/binary"
	"fmt"

	"github.com/nainya/treestore/internal/dberr"
	"github.com/nainya/treestore/internal/diskio"
)

// RowID locates a tuple within a table heap: the slotted page holding it
// and its slot number within that page.
type RowID struct {
	Page diskio.PageID
	Slot uint32
}

func (r RowID) String() string { return fmt.Sprintf("%s:%d", r.Page, r.Slot) }

// Valid reports whether the RowID refers to a real location.
func (r RowID) Valid() bool { return r.Page != diskio.InvalidPageID }

// Row is a RowID plus an ordered set of Fields, one per column of its
// owning Schema.
type Row struct {
	ID     RowID
	Fields []Field
}

func nullBitmapSize(n int) int { return (n + 7) / 8 }

// SerializeSize returns the exact number of bytes Serialize will write for
// this row under schema.
func (r *Row) SerializeSize(schema *Schema) int {
	n := 4 + 4 + 4 + nullBitmapSize(len(r.Fields))
	for i, f := range r.Fields {
		if f.Null {
			continue
		}
		n += f.SerializeSize(schema.Columns[i])
	}
	return n
}

// Serialize writes RowId.page, RowId.slot, column count, a null bitmap,
// then each non-null field back-to-back, per schema's column order.
func (r *Row) Serialize(buf []byte, schema *Schema) (int, error) {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.ID.Page))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], r.ID.Slot)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Fields)))
	off += 4

	bitmapOff := off
	bitmapLen := nullBitmapSize(len(r.Fields))
	for i := range buf[bitmapOff : bitmapOff+bitmapLen] {
		buf[bitmapOff+i] = 0
	}
	off += bitmapLen

	for i, f := range r.Fields {
		if f.Null {
			buf[bitmapOff+i/8] |= 1 << uint(i%8)
			continue
		}
		n, err := f.Serialize(buf[off:], schema.Columns[i])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

// DeserializeRow reads a Row written by Serialize under schema.
func DeserializeRow(buf []byte, schema *Schema) (*Row, int, error) {
	if len(buf) < 12 {
		return nil, 0, dberr.ErrCorruption
	}
	off := 0
	page := diskio.PageID(int32(binary.LittleEndian.Uint32(buf[off:])))
	off += 4
	slot := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	count := binary.LittleEndian.Uint32(buf[off:])
	off += 4

	bitmapLen := nullBitmapSize(int(count))
	if len(buf) < off+bitmapLen {
		return nil, 0, dberr.ErrCorruption
	}
	bitmap := buf[off : off+bitmapLen]
	off += bitmapLen

	fields := make([]Field, count)
	for i := uint32(0); i < count; i++ {
		if bitmap[i/8]&(1<<uint(i%8)) != 0 {
			fields[i] = NewNullField(schema.Columns[i].Type)
			continue
		}
		f, n, err := DeserializeField(buf[off:], schema.Columns[i])
		if err != nil {
			return nil, 0, err
		}
		fields[i] = f
		off += n
	}

	return &Row{ID: RowID{Page: page, Slot: slot}, Fields: fields}, off, nil
}

// GetValue returns the field at schema column ordinal i.
func (r *Row) GetValue(i int) Field { return r.Fields[i] }

// ProjectKey builds a key row containing only the fields named by
// keySchema, in keySchema's column order, looking each one up by name in
// the row's own schema.
func (r *Row) ProjectKey(schema, keySchema *Schema) (*Row, error) {
	fields := make([]Field, len(keySchema.Columns))
	for i, kc := range keySchema.Columns {
		srcIdx := schema.ColumnIndex(kc.Name)
		if srcIdx < 0 {
			return nil, dberr.New(dberr.ColumnNameNotExist, "Row.ProjectKey", fmt.Errorf("no column %q", kc.Name))
		}
		fields[i] = r.Fields[srcIdx]
	}
	return &Row{Fields: fields}, nil
}

// Equal reports whether two rows carry the same RowID and field values.
func (r *Row) Equal(other *Row) bool {
	if r.ID != other.ID || len(r.Fields) != len(other.Fields) {
		return false
	}
	for i := range r.Fields {
		if !r.Fields[i].Equal(other.Fields[i]) {
			return false
		}
	}
	return true
}
