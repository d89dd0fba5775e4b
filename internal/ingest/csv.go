// Package ingest reads the tabular planning inputs. Column names are the
// wire contract; a missing column or an unparseable cell aborts the load
// with the file and row that caused it.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"fieldplan/internal/model"
)

// RowError carries the position of a bad input cell.
type RowError struct {
	File string
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.File, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// table walks a CSV file row by row, handing each record to fn together
// with a column resolver. Header is taken from the first row.
type table struct {
	file   string
	line   int
	cols   map[string]int
	record []string
}

func (t *table) errf(format string, args ...any) error {
	return &RowError{File: t.file, Line: t.line, Err: fmt.Errorf(format, args...)}
}

// col returns the named cell, trimmed. Column presence was validated up
// front so the lookup cannot miss.
func (t *table) col(name string) string {
	return strings.TrimSpace(t.record[t.cols[name]])
}

func (t *table) str(name string) (string, error) {
	v := t.col(name)
	if v == "" {
		return "", t.errf("column %s is empty", name)
	}
	return v, nil
}

func (t *table) code(name string) (model.Code, error) {
	v, err := t.str(name)
	if err != nil {
		return model.Code{}, err
	}
	return model.NewCode(v), nil
}

func (t *table) float(name string) (float64, error) {
	v, err := t.str(name)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, t.errf("column %s: %q is not a number", name, v)
	}
	return f, nil
}

func (t *table) int(name string) (int, error) {
	v, err := t.str(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, t.errf("column %s: %q is not an integer", name, v)
	}
	return n, nil
}

// clock parses HH:MM:SS into seconds since the day origin.
func (t *table) clock(name string) (int, error) {
	v, err := t.str(name)
	if err != nil {
		return 0, err
	}
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return 0, t.errf("column %s: %q is not a HH:MM:SS time", name, v)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	s, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || m > 59 || s < 0 || s > 59 {
		return 0, t.errf("column %s: %q is not a HH:MM:SS time", name, v)
	}
	return h*3600 + m*60 + s, nil
}

func (t *table) date(name string) (time.Time, error) {
	v, err := t.str(name)
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, t.errf("column %s: %q is not a YYYY-MM-DD date", name, v)
	}
	return d, nil
}

// flagSN parses the S/N eligibility flag. Anything else is a hard error.
func (t *table) flagSN(name string) (bool, error) {
	v, err := t.str(name)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(v) {
	case "S":
		return true, nil
	case "N":
		return false, nil
	}
	return false, t.errf("column %s: %q is not S or N", name, v)
}

var weekdayNames = map[string]int{
	"Mon": model.Monday,
	"Tue": model.Tuesday,
	"Wed": model.Wednesday,
	"Thu": model.Thursday,
	"Fri": model.Friday,
	"Sat": model.Saturday,
}

// weekday parses an optional Mon..Sat cell. Empty means no fixed weekday.
func (t *table) weekday(name string) (int, error) {
	v := t.col(name)
	if v == "" {
		return model.NoFixedWeekday, nil
	}
	d, ok := weekdayNames[v]
	if !ok {
		return 0, t.errf("column %s: %q is not a weekday Mon..Sat", name, v)
	}
	return d, nil
}

// forEachRow opens path and calls fn once per data row. required lists the
// columns that must be present in the header.
func forEachRow(path string, required []string, fn func(t *table) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return fmt.Errorf("%s: missing required column %s", path, name)
		}
	}

	t := &table{file: path, cols: cols}
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &RowError{File: path, Line: line, Err: err}
		}
		t.line = line
		t.record = record
		if err := fn(t); err != nil {
			return err
		}
	}
}
