// ABOUTME: Tests for Column/Schema/Row binary serialization
// ABOUTME: Covers the round-trip invariant and exact size accounting

package record

import (
	"testing"

	"github.com/nainya/treestore/internal/diskio"
)

func testSchema() *Schema {
	return NewSchema([]Column{
		{Name: "id", Type: TypeInt32, Nullable: false, Unique: true},
		{Name: "score", Type: TypeFloat32, Nullable: true},
		{Name: "name", Type: TypeChar, Length: 16, Nullable: true},
	})
}

func TestColumnRoundTrip(t *testing.T) {
	c := Column{Name: "age", Type: TypeInt32, Length: 0, Ordinal: 2, Nullable: true, Unique: false}
	buf := make([]byte, c.SerializeSize())
	n := c.Serialize(buf)
	if n != len(buf) {
		t.Fatalf("Serialize wrote %d bytes, SerializeSize said %d", n, len(buf))
	}

	got, consumed, err := DeserializeColumn(buf)
	if err != nil {
		t.Fatalf("DeserializeColumn: %v", err)
	}
	if consumed != n {
		t.Fatalf("DeserializeColumn consumed %d bytes, want %d", consumed, n)
	}
	if got != c {
		t.Fatalf("DeserializeColumn = %+v, want %+v", got, c)
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	s := testSchema()
	buf := make([]byte, s.SerializeSize())
	n := s.Serialize(buf)
	if n != len(buf) {
		t.Fatalf("Serialize wrote %d bytes, SerializeSize said %d", n, len(buf))
	}

	got, consumed, err := DeserializeSchema(buf)
	if err != nil {
		t.Fatalf("DeserializeSchema: %v", err)
	}
	if consumed != n {
		t.Fatalf("DeserializeSchema consumed %d bytes, want %d", consumed, n)
	}
	if len(got.Columns) != len(s.Columns) {
		t.Fatalf("column count = %d, want %d", len(got.Columns), len(s.Columns))
	}
	for i := range s.Columns {
		if got.Columns[i] != s.Columns[i] {
			t.Fatalf("column %d = %+v, want %+v", i, got.Columns[i], s.Columns[i])
		}
	}
}

func TestRowRoundTrip(t *testing.T) {
	s := testSchema()
	row := &Row{
		ID: RowID{Page: diskio.PageID(7), Slot: 3},
		Fields: []Field{
			NewInt32Field(42),
			NewNullField(TypeFloat32),
			NewCharField("hello"),
		},
	}

	buf := make([]byte, row.SerializeSize(s))
	n, err := row.Serialize(buf, s)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Serialize wrote %d bytes, SerializeSize said %d", n, len(buf))
	}

	got, consumed, err := DeserializeRow(buf, s)
	if err != nil {
		t.Fatalf("DeserializeRow: %v", err)
	}
	if consumed != n {
		t.Fatalf("DeserializeRow consumed %d bytes, want %d", consumed, n)
	}
	if !got.Equal(row) {
		t.Fatalf("DeserializeRow = %+v, want %+v", got, row)
	}
}

func TestRowProjectKey(t *testing.T) {
	s := testSchema()
	keySchema, err := s.Project([]string{"id"})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	row := &Row{Fields: []Field{NewInt32Field(9), NewNullField(TypeFloat32), NewCharField("x")}}
	key, err := row.ProjectKey(s, keySchema)
	if err != nil {
		t.Fatalf("ProjectKey: %v", err)
	}
	if len(key.Fields) != 1 || key.Fields[0].I32 != 9 {
		t.Fatalf("ProjectKey = %+v, want a single id=9 field", key.Fields)
	}
}

func TestSchemaProjectUnknownColumn(t *testing.T) {
	s := testSchema()
	if _, err := s.Project([]string{"nonexistent"}); err == nil {
		t.Fatal("Project with an unknown column succeeded, want error")
	}
}
