// Package estimate computes how many rows of the boolean-presence table
// satisfy a metric selection.
package estimate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Identifier columns of the presence table. Every other column is a metric.
const (
	ColSubject   = "BIDS_ID"
	ColSession   = "SES"
	ColSite      = "SITE"
	ColSessionID = "SESSION_ID"
)

var identifierColumns = map[string]bool{
	ColSubject:   true,
	ColSession:   true,
	ColSite:      true,
	ColSessionID: true,
}

// Row is one subject session.
type Row struct {
	Subject   string
	Session   string
	Site      string
	SessionID string
	Present   map[string]bool
}

// Has reports whether column carries data in this row.
func (r Row) Has(column string) bool { return r.Present[column] }

// Table is the loaded presence snapshot.
type Table struct {
	Columns []string
	Rows    []Row
}

// ReadCSV parses a presence table. A metric cell counts as present only when
// it parses to the number 1.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	t := &Table{Columns: header}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		row := Row{Present: make(map[string]bool, len(header))}
		for i, col := range header {
			if i >= len(rec) {
				break
			}
			cell := strings.TrimSpace(rec[i])
			switch col {
			case ColSubject:
				row.Subject = cell
			case ColSession:
				row.Session = cell
			case ColSite:
				row.Site = cell
			case ColSessionID:
				row.SessionID = cell
			default:
				row.Present[col] = isPresent(cell)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// LoadCSV reads a presence table from disk.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open boolean data: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func isPresent(cell string) bool {
	v, err := strconv.ParseFloat(cell, 64)
	return err == nil && v == 1
}

// IsIdentifier reports whether column is one of the row key columns.
func IsIdentifier(column string) bool { return identifierColumns[column] }

// Records projects the table into JSON-ready objects: identifiers as strings
// (nil when empty) and metric columns as 0/1.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, 0, len(t.Rows))
	for _, r := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for _, col := range t.Columns {
			switch col {
			case ColSubject:
				rec[col] = nullable(r.Subject)
			case ColSession:
				rec[col] = nullable(r.Session)
			case ColSite:
				rec[col] = nullable(r.Site)
			case ColSessionID:
				rec[col] = nullable(r.SessionID)
			default:
				if r.Present[col] {
					rec[col] = 1
				} else {
					rec[col] = 0
				}
			}
		}
		out = append(out, rec)
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
