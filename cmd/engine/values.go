package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nainya/treestore/internal/record"
)

// literalToField converts one parsed token into a Field typed per col.
func literalToField(t token, col record.Column) (record.Field, error) {
	if t.kind == tokWord && strings.ToUpper(t.text) == "NULL" {
		if !col.Nullable {
			return record.Field{}, fmt.Errorf("column %q is not nullable", col.Name)
		}
		return record.NewNullField(col.Type), nil
	}
	switch col.Type {
	case record.TypeInt32:
		if t.kind != tokNumber {
			return record.Field{}, fmt.Errorf("column %q expects an integer", col.Name)
		}
		n, err := strconv.ParseInt(t.text, 10, 32)
		if err != nil {
			return record.Field{}, fmt.Errorf("column %q: %w", col.Name, err)
		}
		return record.NewInt32Field(int32(n)), nil
	case record.TypeFloat32:
		if t.kind != tokNumber {
			return record.Field{}, fmt.Errorf("column %q expects a number", col.Name)
		}
		f, err := strconv.ParseFloat(t.text, 32)
		if err != nil {
			return record.Field{}, fmt.Errorf("column %q: %w", col.Name, err)
		}
		return record.NewFloat32Field(float32(f)), nil
	case record.TypeChar:
		if t.kind != tokString {
			return record.Field{}, fmt.Errorf("column %q expects a quoted string", col.Name)
		}
		return record.NewCharField(t.text), nil
	default:
		return record.Field{}, fmt.Errorf("column %q has an unsupported type", col.Name)
	}
}

// fieldString renders a field's value for display or for the recovery
// log's toy key/value payload.
func fieldString(f record.Field) string {
	if f.Null {
		return "NULL"
	}
	switch f.Type {
	case record.TypeInt32:
		return strconv.FormatInt(int64(f.I32), 10)
	case record.TypeFloat32:
		return strconv.FormatFloat(float64(f.F32), 'g', -1, 32)
	case record.TypeChar:
		return f.Str
	default:
		return ""
	}
}

// rowString renders a row's fields comma-joined, for display and for the
// recovery log's toy payload.
func rowString(row *record.Row) string {
	parts := make([]string, len(row.Fields))
	for i, f := range row.Fields {
		parts[i] = fieldString(f)
	}
	return strings.Join(parts, ",")
}
