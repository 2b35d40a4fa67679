package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/nainya/treestore/internal/record"
)

func (e *engine) execCreate(s *tokenStream, w io.Writer) error {
	s.next() // CREATE
	switch s.upperWord() {
	case "DATABASE":
		s.next()
		name, err := s.expectWord()
		if err != nil {
			return err
		}
		db, err := createDatabase(e.cfg, name, e.log, e.metrics)
		if err != nil {
			return err
		}
		if err := db.close(); err != nil {
			return err
		}
		fmt.Fprintf(w, "database %q created\n", name)
		return nil
	case "TABLE":
		s.next()
		return e.execCreateTable(s, w)
	case "INDEX":
		s.next()
		return e.execCreateIndex(s, w)
	default:
		return fmt.Errorf("CREATE: expected DATABASE, TABLE, or INDEX")
	}
}

func (e *engine) execDrop(s *tokenStream, w io.Writer) error {
	s.next() // DROP
	switch s.upperWord() {
	case "DATABASE":
		s.next()
		name, err := s.expectWord()
		if err != nil {
			return err
		}
		if e.current != nil && e.current.name == name {
			return fmt.Errorf("cannot drop the currently selected database %q", name)
		}
		if err := dropDatabase(e.cfg.DataDir, name); err != nil {
			return err
		}
		fmt.Fprintf(w, "database %q dropped\n", name)
		return nil
	case "TABLE":
		s.next()
		name, err := s.expectWord()
		if err != nil {
			return err
		}
		db, err := e.requireDatabase()
		if err != nil {
			return err
		}
		if err := db.catalog.DropTable(name); err != nil {
			return err
		}
		fmt.Fprintf(w, "table %q dropped\n", name)
		return nil
	case "INDEX":
		s.next()
		name, err := s.expectWord()
		if err != nil {
			return err
		}
		db, err := e.requireDatabase()
		if err != nil {
			return err
		}
		if err := db.catalog.DropIndex(name); err != nil {
			return err
		}
		fmt.Fprintf(w, "index %q dropped\n", name)
		return nil
	default:
		return fmt.Errorf("DROP: expected DATABASE, TABLE, or INDEX")
	}
}

func (e *engine) execShow(s *tokenStream, w io.Writer) error {
	s.next() // SHOW
	switch s.upperWord() {
	case "DATABASES":
		s.next()
		names, err := listDatabases(e.cfg.DataDir)
		if err != nil {
			return err
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintln(w, n)
		}
		return nil
	case "TABLES":
		s.next()
		db, err := e.requireDatabase()
		if err != nil {
			return err
		}
		for _, n := range db.catalog.GetTables() {
			fmt.Fprintln(w, n)
		}
		return nil
	case "INDEXES":
		s.next()
		db, err := e.requireDatabase()
		if err != nil {
			return err
		}
		table, err := s.expectWord()
		if err != nil {
			return err
		}
		for _, n := range db.catalog.GetTableIndexes(table) {
			fmt.Fprintln(w, n)
		}
		return nil
	default:
		return fmt.Errorf("SHOW: expected DATABASES, TABLES, or INDEXES")
	}
}

func (e *engine) execUse(s *tokenStream, w io.Writer) error {
	s.next() // USE
	name, err := s.expectWord()
	if err != nil {
		return err
	}
	if e.current != nil {
		if err := e.current.close(); err != nil {
			return err
		}
		e.current = nil
	}
	db, err := openDatabase(e.cfg, name, e.log, e.metrics)
	if err != nil {
		return err
	}
	e.current = db
	if e.super != nil {
		e.super.Go(db.checkpointer.Run)
	}
	fmt.Fprintf(w, "using database %q\n", name)
	return nil
}

// parseColumnDef reads one "name type [UNIQUE]" column declaration; type is
// INT, FLOAT, or CHAR(n).
func parseColumnDef(s *tokenStream) (record.Column, error) {
	name, err := s.expectWord()
	if err != nil {
		return record.Column{}, err
	}
	typeWord, err := s.expectWord()
	if err != nil {
		return record.Column{}, err
	}

	col := record.Column{Name: name, Nullable: true}
	switch strings.ToUpper(typeWord) {
	case "INT", "INT32":
		col.Type = record.TypeInt32
	case "FLOAT", "FLOAT32":
		col.Type = record.TypeFloat32
	case "CHAR":
		if err := s.expectPunct("("); err != nil {
			return record.Column{}, err
		}
		lenTok := s.next()
		if lenTok.kind != tokNumber {
			return record.Column{}, fmt.Errorf("CHAR length must be numeric")
		}
		n, err := strconv.Atoi(lenTok.text)
		if err != nil {
			return record.Column{}, err
		}
		col.Length = uint32(n)
		col.Type = record.TypeChar
		if err := s.expectPunct(")"); err != nil {
			return record.Column{}, err
		}
	default:
		return record.Column{}, fmt.Errorf("unknown column type %q", typeWord)
	}

	for s.upperWord() == "UNIQUE" || s.upperWord() == "NOT" {
		if s.upperWord() == "UNIQUE" {
			s.next()
			col.Unique = true
			continue
		}
		s.next() // NOT
		if s.upperWord() != "NULL" {
			return record.Column{}, fmt.Errorf("expected NULL after NOT")
		}
		s.next()
		col.Nullable = false
	}
	return col, nil
}

func (e *engine) execCreateTable(s *tokenStream, w io.Writer) error {
	db, err := e.requireDatabase()
	if err != nil {
		return err
	}
	name, err := s.expectWord()
	if err != nil {
		return err
	}
	if err := s.expectPunct("("); err != nil {
		return err
	}

	var columns []record.Column
	for {
		col, err := parseColumnDef(s)
		if err != nil {
			return err
		}
		columns = append(columns, col)
		if s.peek().kind == tokPunct && s.peek().text == "," {
			s.next()
			continue
		}
		break
	}
	if err := s.expectPunct(")"); err != nil {
		return err
	}

	schema := record.NewSchema(columns)
	if _, err := db.catalog.CreateTable(name, schema); err != nil {
		return err
	}
	fmt.Fprintf(w, "table %q created\n", name)
	return nil
}

func (e *engine) execCreateIndex(s *tokenStream, w io.Writer) error {
	db, err := e.requireDatabase()
	if err != nil {
		return err
	}
	indexName, err := s.expectWord()
	if err != nil {
		return err
	}
	if s.upperWord() != "ON" {
		return fmt.Errorf("CREATE INDEX: expected ON")
	}
	s.next()
	tableName, err := s.expectWord()
	if err != nil {
		return err
	}
	if err := s.expectPunct("("); err != nil {
		return err
	}
	var columns []string
	for {
		col, err := s.expectWord()
		if err != nil {
			return err
		}
		columns = append(columns, col)
		if s.peek().kind == tokPunct && s.peek().text == "," {
			s.next()
			continue
		}
		break
	}
	if err := s.expectPunct(")"); err != nil {
		return err
	}

	_, rowsLoaded, err := db.catalog.CreateIndex(tableName, indexName, columns)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "index %q created, %d rows loaded\n", indexName, rowsLoaded)
	return nil
}
