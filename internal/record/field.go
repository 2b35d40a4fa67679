package record

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nainya/treestore/internal/dberr"
)

// Field is one value of a Row, tagged by type. Null fields carry no value
// payload; their presence is tracked by the owning Row's null bitmap, not
// by anything in the Field's own serialized form.
type Field struct {
	Type Type
	Null bool
	I32  int32
	F32  float32
	Str  string
}

func NewInt32Field(v int32) Field   { return Field{Type: TypeInt32, I32: v} }
func NewFloat32Field(v float32) Field { return Field{Type: TypeFloat32, F32: v} }
func NewCharField(v string) Field   { return Field{Type: TypeChar, Str: v} }
func NewNullField(t Type) Field     { return Field{Type: t, Null: true} }

// SerializeSize returns the on-disk width for a field of column col's type;
// a null field still reserves no bytes (the null bitmap records its
// absence), so this is only meaningful for non-null fields.
func (f Field) SerializeSize(col Column) int {
	return int(col.FixedLen())
}

// Serialize writes the field's value payload per col's type. Callers must
// not call this for a null field.
func (f Field) Serialize(buf []byte, col Column) (int, error) {
	switch col.Type {
	case TypeInt32:
		binary.LittleEndian.PutUint32(buf, uint32(f.I32))
		return 4, nil
	case TypeFloat32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f.F32))
		return 4, nil
	case TypeChar:
		width := int(col.Length)
		for i := 0; i < width; i++ {
			buf[i] = 0
		}
		n := copy(buf[:width], f.Str)
		_ = n
		return width, nil
	default:
		return 0, fmt.Errorf("record: serialize field: %w", dberr.ErrCorruption)
	}
}

// DeserializeField reads a non-null field of col's type.
func DeserializeField(buf []byte, col Column) (Field, int, error) {
	switch col.Type {
	case TypeInt32:
		if len(buf) < 4 {
			return Field{}, 0, dberr.ErrCorruption
		}
		return Field{Type: TypeInt32, I32: int32(binary.LittleEndian.Uint32(buf))}, 4, nil
	case TypeFloat32:
		if len(buf) < 4 {
			return Field{}, 0, dberr.ErrCorruption
		}
		bits := binary.LittleEndian.Uint32(buf)
		return Field{Type: TypeFloat32, F32: math.Float32frombits(bits)}, 4, nil
	case TypeChar:
		width := int(col.Length)
		if len(buf) < width {
			return Field{}, 0, dberr.ErrCorruption
		}
		end := width
		for end > 0 && buf[end-1] == 0 {
			end--
		}
		return Field{Type: TypeChar, Str: string(buf[:end])}, width, nil
	default:
		return Field{}, 0, fmt.Errorf("record: deserialize field: %w", dberr.ErrCorruption)
	}
}

// Equal reports whether two fields carry the same type and value, treating
// two null fields of the same type as equal.
func (f Field) Equal(other Field) bool {
	if f.Type != other.Type || f.Null != other.Null {
		return false
	}
	if f.Null {
		return true
	}
	switch f.Type {
	case TypeInt32:
		return f.I32 == other.I32
	case TypeFloat32:
		return f.F32 == other.F32
	case TypeChar:
		return f.Str == other.Str
	default:
		return false
	}
}

// Compare orders two non-null fields of the same type; used by the B+-tree
// comparator over projected index keys.
func (f Field) Compare(other Field) int {
	switch f.Type {
	case TypeInt32:
		switch {
		case f.I32 < other.I32:
			return -1
		case f.I32 > other.I32:
			return 1
		default:
			return 0
		}
	case TypeFloat32:
		switch {
		case f.F32 < other.F32:
			return -1
		case f.F32 > other.F32:
			return 1
		default:
			return 0
		}
	case TypeChar:
		switch {
		case f.Str < other.Str:
			return -1
		case f.Str > other.Str:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}
