package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"
)

// recordJSON is the wire form of a Record. The residual norm is a JSON
// number when finite and a string ("NaN", "+Inf", "-Inf") otherwise,
// since JSON has no literal for non-finite numbers. Elapsed time is
// integer nanoseconds.
type recordJSON struct {
	Run          string      `json:"run"`
	Method       string      `json:"method,omitempty"`
	Problem      string      `json:"problem,omitempty"`
	Iteration    int         `json:"iteration"`
	ResidualNorm interface{} `json:"residual_norm"`
	ElapsedNS    int64       `json:"elapsed_ns"`
}

// MarshalJSON encodes the record in its wire form.
func (rec Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Run:       rec.Run,
		Method:    rec.Method,
		Problem:   rec.Problem,
		Iteration: rec.Iteration,
		ElapsedNS: int64(rec.Elapsed),
	}
	if math.IsNaN(rec.ResidualNorm) || math.IsInf(rec.ResidualNorm, 0) {
		out.ResidualNorm = strconv.FormatFloat(rec.ResidualNorm, 'g', -1, 64)
	} else {
		out.ResidualNorm = rec.ResidualNorm
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire form, accepting the residual norm as
// either a number or a string.
func (rec *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	rec.Run = in.Run
	rec.Method = in.Method
	rec.Problem = in.Problem
	rec.Iteration = in.Iteration
	rec.Elapsed = time.Duration(in.ElapsedNS)
	switch v := in.ResidualNorm.(type) {
	case float64:
		rec.ResidualNorm = v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid residual norm %q: %w", v, err)
		}
		rec.ResidualNorm = f
	case nil:
		return fmt.Errorf("missing residual norm")
	default:
		return fmt.Errorf("invalid residual norm type %T", in.ResidualNorm)
	}
	return nil
}

// WriteJSONL writes traces as JSON Lines, one record per line. The line
// format matches the Record JSON tags, so files interleave cleanly when
// runs append to a shared stream.
func WriteJSONL(w io.Writer, traces ...*Trace) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, tr := range traces {
		for _, rec := range tr.Records {
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("encoding record: %w", err)
			}
		}
	}
	return bw.Flush()
}

// WriteJSONLFile writes traces to a JSONL file, creating or truncating it.
func WriteJSONLFile(filename string, traces ...*Trace) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := WriteJSONL(f, traces...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ParseJSONL reads a convergence log from a JSONL file.
func ParseJSONL(filename string) (*Log, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return ParseJSONLReader(f)
}

// ParseJSONLReader reads a convergence log from a JSONL stream. Empty
// lines are skipped.
func ParseJSONLReader(r io.Reader) (*Log, error) {
	log := NewLog()
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		if rec.Run == "" {
			return nil, fmt.Errorf("line %d: empty run ID", lineNum)
		}
		log.Add(rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}
	return log, nil
}
