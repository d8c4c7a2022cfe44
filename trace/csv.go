package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// csvHeader is the column layout traces are written and read with.
var csvHeader = []string{"run", "method", "problem", "iteration", "residual_norm", "elapsed_seconds"}

// WriteCSV writes traces as CSV with a header row. Records keep their
// in-trace order; traces are emitted sorted by run ID.
func WriteCSV(w io.Writer, traces ...*Trace) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, tr := range traces {
		for _, rec := range tr.Records {
			row := []string{
				rec.Run,
				rec.Method,
				rec.Problem,
				strconv.Itoa(rec.Iteration),
				strconv.FormatFloat(rec.ResidualNorm, 'g', 17, 64),
				strconv.FormatFloat(rec.Elapsed.Seconds(), 'g', 17, 64),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing record: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes traces to a CSV file, creating or truncating it.
func WriteCSVFile(filename string, traces ...*Trace) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := WriteCSV(f, traces...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ParseCSV reads a convergence log from a CSV file.
func ParseCSV(filename string) (*Log, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return ParseCSVReader(f)
}

// ParseCSVReader reads a convergence log from a CSV stream. The header
// row names the columns; order does not matter and unknown columns are
// ignored.
func ParseCSVReader(r io.Reader) (*Log, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"run", "iteration", "residual_norm"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("column %q not found in header: %v", required, header)
		}
	}
	at := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	log := NewLog()
	lineNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", lineNum+1, err)
		}
		lineNum++

		run := at(record, "run")
		if run == "" {
			return nil, fmt.Errorf("line %d: empty run ID", lineNum)
		}
		iteration, err := strconv.Atoi(at(record, "iteration"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid iteration: %w", lineNum, err)
		}
		norm, err := strconv.ParseFloat(at(record, "residual_norm"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid residual norm: %w", lineNum, err)
		}
		rec := Record{
			Run:          run,
			Method:       at(record, "method"),
			Problem:      at(record, "problem"),
			Iteration:    iteration,
			ResidualNorm: norm,
		}
		if s := at(record, "elapsed_seconds"); s != "" {
			secs, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid elapsed seconds: %w", lineNum, err)
			}
			rec.Elapsed = time.Duration(secs * float64(time.Second))
		}
		log.Add(rec)
	}
	return log, nil
}
