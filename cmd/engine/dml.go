package main

import (
	"fmt"
	"io"

	"github.com/nainya/treestore/internal/record"
	"github.com/nainya/treestore/internal/txn"
)

// whereClause is the minimal predicate this engine understands: an
// equality test against one column, or none at all (every row matches).
type whereClause struct {
	column string
	value  token
	has    bool
}

func parseWhere(s *tokenStream) (whereClause, error) {
	if s.upperWord() != "WHERE" {
		return whereClause{}, nil
	}
	s.next()
	col, err := s.expectWord()
	if err != nil {
		return whereClause{}, err
	}
	if err := s.expectPunct("="); err != nil {
		return whereClause{}, err
	}
	val := s.next()
	return whereClause{column: col, value: val, has: true}, nil
}

func (w whereClause) matches(row *record.Row, schema *record.Schema) (bool, error) {
	if !w.has {
		return true, nil
	}
	idx := schema.ColumnIndex(w.column)
	if idx < 0 {
		return false, fmt.Errorf("no such column %q", w.column)
	}
	target, err := literalToField(w.value, schema.Columns[idx])
	if err != nil {
		return false, err
	}
	return row.Fields[idx].Equal(target), nil
}

func (e *engine) execInsert(s *tokenStream, out io.Writer) error {
	db, err := e.requireDatabase()
	if err != nil {
		return err
	}
	s.next() // INSERT
	if s.upperWord() != "INTO" {
		return fmt.Errorf("INSERT: expected INTO")
	}
	s.next()
	tableName, err := s.expectWord()
	if err != nil {
		return err
	}
	info, ok := db.catalog.GetTable(tableName)
	if !ok {
		return fmt.Errorf("no such table %q", tableName)
	}
	if s.upperWord() != "VALUES" {
		return fmt.Errorf("INSERT: expected VALUES")
	}
	s.next()
	if err := s.expectPunct("("); err != nil {
		return err
	}

	schema := info.Meta.Schema
	fields := make([]record.Field, 0, len(schema.Columns))
	for i := 0; ; i++ {
		if i >= len(schema.Columns) {
			return fmt.Errorf("too many values for table %q", tableName)
		}
		t := s.next()
		f, err := literalToField(t, schema.Columns[i])
		if err != nil {
			return err
		}
		fields = append(fields, f)
		if s.peek().kind == tokPunct && s.peek().text == "," {
			s.next()
			continue
		}
		break
	}
	if err := s.expectPunct(")"); err != nil {
		return err
	}
	if len(fields) != len(schema.Columns) {
		return fmt.Errorf("expected %d values for table %q, got %d", len(schema.Columns), tableName, len(fields))
	}

	t := db.locks.Begin(txn.ReadCommitted)
	db.log.AppendBegin(t.ID)

	row := &record.Row{Fields: fields}
	if err := info.Heap.InsertTuple(row); err != nil {
		db.locks.Abort(t)
		db.log.AppendAbort(t.ID)
		return err
	}
	if err := db.locks.LockExclusive(t, row.ID); err != nil {
		db.log.AppendAbort(t.ID)
		return err
	}

	key := fmt.Sprintf("%s/%s", tableName, row.ID)
	db.log.AppendInsert(t.ID, key, rowString(row))

	if err := reindexInsert(db, tableName, info.Meta.Schema, row); err != nil {
		db.locks.Abort(t)
		db.log.AppendAbort(t.ID)
		return err
	}

	if err := db.locks.Commit(t); err != nil {
		db.log.AppendAbort(t.ID)
		return err
	}
	db.log.AppendCommit(t.ID)

	fmt.Fprintf(out, "1 row inserted\n")
	return nil
}

func (e *engine) execSelect(s *tokenStream, out io.Writer) error {
	db, err := e.requireDatabase()
	if err != nil {
		return err
	}
	s.next() // SELECT
	if err := s.expectPunct("*"); err != nil {
		return fmt.Errorf("SELECT: only SELECT * is supported")
	}
	if s.upperWord() != "FROM" {
		return fmt.Errorf("SELECT: expected FROM")
	}
	s.next()
	tableName, err := s.expectWord()
	if err != nil {
		return err
	}
	where, err := parseWhere(s)
	if err != nil {
		return err
	}

	info, ok := db.catalog.GetTable(tableName)
	if !ok {
		return fmt.Errorf("no such table %q", tableName)
	}
	schema := info.Meta.Schema

	t := db.locks.Begin(txn.ReadCommitted)

	it, err := info.Heap.Begin()
	if err != nil {
		db.locks.Abort(t)
		return err
	}
	count := 0
	for it.Valid() {
		row := it.Row()
		if err := db.locks.LockShared(t, row.ID); err != nil {
			db.locks.Abort(t)
			return err
		}
		match, err := where.matches(row, schema)
		if err != nil {
			db.locks.Abort(t)
			return err
		}
		if match {
			fmt.Fprintln(out, rowString(row))
			count++
		}
		if err := it.Next(); err != nil {
			db.locks.Abort(t)
			return err
		}
	}
	if err := db.locks.Commit(t); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d row(s)\n", count)
	return nil
}

func (e *engine) execUpdate(s *tokenStream, out io.Writer) error {
	db, err := e.requireDatabase()
	if err != nil {
		return err
	}
	s.next() // UPDATE
	tableName, err := s.expectWord()
	if err != nil {
		return err
	}
	info, ok := db.catalog.GetTable(tableName)
	if !ok {
		return fmt.Errorf("no such table %q", tableName)
	}
	schema := info.Meta.Schema

	if s.upperWord() != "SET" {
		return fmt.Errorf("UPDATE: expected SET")
	}
	s.next()
	setCol, err := s.expectWord()
	if err != nil {
		return err
	}
	if err := s.expectPunct("="); err != nil {
		return err
	}
	setTok := s.next()
	setIdx := schema.ColumnIndex(setCol)
	if setIdx < 0 {
		return fmt.Errorf("no such column %q", setCol)
	}
	setField, err := literalToField(setTok, schema.Columns[setIdx])
	if err != nil {
		return err
	}

	where, err := parseWhere(s)
	if err != nil {
		return err
	}

	t := db.locks.Begin(txn.ReadCommitted)
	db.log.AppendBegin(t.ID)

	it, err := info.Heap.Begin()
	if err != nil {
		db.locks.Abort(t)
		db.log.AppendAbort(t.ID)
		return err
	}

	var rowIDs []record.RowID
	for it.Valid() {
		row := it.Row()
		if err := db.locks.LockExclusive(t, row.ID); err != nil {
			db.locks.Abort(t)
			db.log.AppendAbort(t.ID)
			return err
		}
		match, err := where.matches(row, schema)
		if err != nil {
			db.locks.Abort(t)
			db.log.AppendAbort(t.ID)
			return err
		}
		if match {
			rowIDs = append(rowIDs, row.ID)
		}
		if err := it.Next(); err != nil {
			db.locks.Abort(t)
			db.log.AppendAbort(t.ID)
			return err
		}
	}

	updated := 0
	for _, rid := range rowIDs {
		old := &record.Row{ID: rid}
		if err := info.Heap.GetTuple(old); err != nil {
			db.locks.Abort(t)
			db.log.AppendAbort(t.ID)
			return err
		}
		newRow := &record.Row{ID: rid, Fields: append([]record.Field{}, old.Fields...)}
		newRow.Fields[setIdx] = setField

		if err := info.Heap.UpdateTuple(newRow, rid); err != nil {
			db.locks.Abort(t)
			db.log.AppendAbort(t.ID)
			return err
		}
		key := fmt.Sprintf("%s/%s", tableName, rid)
		db.log.AppendUpdate(t.ID, key, rowString(newRow))

		if err := reindexUpdate(db, tableName, schema, old, newRow); err != nil {
			db.locks.Abort(t)
			db.log.AppendAbort(t.ID)
			return err
		}
		updated++
	}

	if err := db.locks.Commit(t); err != nil {
		db.log.AppendAbort(t.ID)
		return err
	}
	db.log.AppendCommit(t.ID)

	fmt.Fprintf(out, "%d row(s) updated\n", updated)
	return nil
}

func (e *engine) execDelete(s *tokenStream, out io.Writer) error {
	db, err := e.requireDatabase()
	if err != nil {
		return err
	}
	s.next() // DELETE
	if s.upperWord() != "FROM" {
		return fmt.Errorf("DELETE: expected FROM")
	}
	s.next()
	tableName, err := s.expectWord()
	if err != nil {
		return err
	}
	info, ok := db.catalog.GetTable(tableName)
	if !ok {
		return fmt.Errorf("no such table %q", tableName)
	}
	schema := info.Meta.Schema

	where, err := parseWhere(s)
	if err != nil {
		return err
	}

	t := db.locks.Begin(txn.ReadCommitted)
	db.log.AppendBegin(t.ID)

	it, err := info.Heap.Begin()
	if err != nil {
		db.locks.Abort(t)
		db.log.AppendAbort(t.ID)
		return err
	}

	var toDelete []*record.Row
	for it.Valid() {
		row := it.Row()
		if err := db.locks.LockExclusive(t, row.ID); err != nil {
			db.locks.Abort(t)
			db.log.AppendAbort(t.ID)
			return err
		}
		match, err := where.matches(row, schema)
		if err != nil {
			db.locks.Abort(t)
			db.log.AppendAbort(t.ID)
			return err
		}
		if match {
			cp := &record.Row{ID: row.ID, Fields: append([]record.Field{}, row.Fields...)}
			toDelete = append(toDelete, cp)
		}
		if err := it.Next(); err != nil {
			db.locks.Abort(t)
			db.log.AppendAbort(t.ID)
			return err
		}
	}

	deleted := 0
	for _, row := range toDelete {
		if err := info.Heap.MarkDelete(row.ID); err != nil {
			db.locks.Abort(t)
			db.log.AppendAbort(t.ID)
			return err
		}
		if err := info.Heap.ApplyDelete(row.ID); err != nil {
			db.locks.Abort(t)
			db.log.AppendAbort(t.ID)
			return err
		}
		key := fmt.Sprintf("%s/%s", tableName, row.ID)
		db.log.AppendDelete(t.ID, key)

		if err := reindexDelete(db, tableName, schema, row); err != nil {
			db.locks.Abort(t)
			db.log.AppendAbort(t.ID)
			return err
		}
		deleted++
	}

	if err := db.locks.Commit(t); err != nil {
		db.log.AppendAbort(t.ID)
		return err
	}
	db.log.AppendCommit(t.ID)

	fmt.Fprintf(out, "%d row(s) deleted\n", deleted)
	return nil
}

