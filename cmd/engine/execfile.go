package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// execFile runs every semicolon-terminated statement in a file in order,
// writing each statement's output to out.
func (e *engine) execFile(s *tokenStream, out io.Writer) error {
	s.next() // EXECFILE
	pathTok := s.next()
	if pathTok.kind != tokString {
		return fmt.Errorf("EXECFILE: expected a quoted path")
	}

	f, err := os.Open(pathTok.text)
	if err != nil {
		return fmt.Errorf("EXECFILE: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var buf strings.Builder
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte(' ')
		line := buf.String()
		if !strings.Contains(line, ";") {
			continue
		}
		for _, stmt := range strings.Split(line, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if err := e.Execute(stmt, out); err != nil {
				if err == errQuit {
					return errQuit
				}
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
		buf.Reset()
	}
	return scanner.Err()
}
