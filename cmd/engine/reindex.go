package main

import (
	"github.com/nainya/treestore/internal/index"
	"github.com/nainya/treestore/internal/record"
)

// reindexInsert adds row to every index defined on table.
func reindexInsert(db *database, table string, schema *record.Schema, row *record.Row) error {
	for _, idxName := range db.catalog.GetTableIndexes(table) {
		info, ok := db.catalog.GetIndex(idxName)
		if !ok {
			continue
		}
		key, err := row.ProjectKey(schema, info.Meta.KeySchema)
		if err != nil {
			return err
		}
		if err := info.Tree.Insert(index.EncodeKey(key, info.Meta.KeySchema), row.ID); err != nil {
			return err
		}
	}
	return nil
}

// reindexDelete removes old's entry from every index defined on table.
func reindexDelete(db *database, table string, schema *record.Schema, old *record.Row) error {
	for _, idxName := range db.catalog.GetTableIndexes(table) {
		info, ok := db.catalog.GetIndex(idxName)
		if !ok {
			continue
		}
		key, err := old.ProjectKey(schema, info.Meta.KeySchema)
		if err != nil {
			return err
		}
		if err := info.Tree.Delete(index.EncodeKey(key, info.Meta.KeySchema)); err != nil {
			return err
		}
	}
	return nil
}

// reindexUpdate moves an index entry from old to newRow's projected key
// whenever the new value actually differs from the old one, for every
// index defined on table.
func reindexUpdate(db *database, table string, schema *record.Schema, old, newRow *record.Row) error {
	for _, idxName := range db.catalog.GetTableIndexes(table) {
		info, ok := db.catalog.GetIndex(idxName)
		if !ok {
			continue
		}
		oldKey, err := old.ProjectKey(schema, info.Meta.KeySchema)
		if err != nil {
			return err
		}
		newKey, err := newRow.ProjectKey(schema, info.Meta.KeySchema)
		if err != nil {
			return err
		}
		oldEnc := index.EncodeKey(oldKey, info.Meta.KeySchema)
		newEnc := index.EncodeKey(newKey, info.Meta.KeySchema)
		if string(oldEnc) == string(newEnc) {
			continue
		}
		if err := info.Tree.Delete(oldEnc); err != nil {
			return err
		}
		if err := info.Tree.Insert(newEnc, newRow.ID); err != nil {
			return err
		}
	}
	return nil
}
