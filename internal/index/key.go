// Package index implements the disk-resident B+-tree: leaf/internal pages
// with a common header, point and range search, insert-with-split,
// delete-with-merge-or-redistribute, and a leaf-chain iterator.
package index

import (
	"github.com/nainya/treestore/internal/record"
)

// KeySize returns the fixed on-disk width of a key built from schema: the
// sum of each column's fixed length. Index keys are assumed non-null.
func KeySize(schema *record.Schema) int {
	n := 0
	for _, c := range schema.Columns {
		n += int(c.FixedLen())
	}
	return n
}

// EncodeKey writes row's fields, in schema's column order, back-to-back
// with no null bitmap or magic — a fixed-width comparator key.
func EncodeKey(row *record.Row, schema *record.Schema) []byte {
	buf := make([]byte, KeySize(schema))
	off := 0
	for i, c := range schema.Columns {
		n, _ := row.Fields[i].Serialize(buf[off:], c)
		off += n
	}
	return buf
}

// DecodeKey reconstructs the fields of a key encoded by EncodeKey.
func DecodeKey(buf []byte, schema *record.Schema) []record.Field {
	fields := make([]record.Field, len(schema.Columns))
	off := 0
	for i, c := range schema.Columns {
		f, n, _ := record.DeserializeField(buf[off:], c)
		fields[i] = f
		off += n
	}
	return fields
}

// CompareKeys orders two fixed-width keys field by field under schema.
func CompareKeys(a, b []byte, schema *record.Schema) int {
	offA, offB := 0, 0
	for _, c := range schema.Columns {
		w := int(c.FixedLen())
		fa, _, _ := record.DeserializeField(a[offA:offA+w], c)
		fb, _, _ := record.DeserializeField(b[offB:offB+w], c)
		if cmp := fa.Compare(fb); cmp != 0 {
			return cmp
		}
		offA += w
		offB += w
	}
	return 0
}
